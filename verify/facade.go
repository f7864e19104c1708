// CLAUDE:SUMMARY Page Verification Facade: named accessibility checks against the page currently loaded in a session, parameterised by the catalogue entry of its profile.
// Package verify evaluates the accessibility checklist against whatever page a
// browser.Page currently shows. Each check resolves the page profile from the
// current URL, looks up its catalogue entry and composes automation queries
// into a pass/fail outcome.
//
// A check returns nil on success, a *Failure when an expectation is not met,
// and any other error (wrapped with the check name) when the page could not be
// driven, typically a context deadline while waiting for an element.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
)

// Check names, used in Failure and error messages.
const (
	CheckDistinctHeadings  = "distinct-headings"
	CheckHeadingOrder      = "heading-order"
	CheckSkipLink          = "skip-link"
	CheckTitlePresent      = "title-present"
	CheckTitleDescriptive  = "title-descriptive"
	CheckTitleUnique       = "title-unique"
	CheckUniqueLinks       = "unique-links"
	CheckErrorSummaryFocus = "error-summary"
	CheckPagination        = "pagination"
	CheckNewTabLink        = "new-tab"
	CheckInputFocus        = "input-focus"
	CheckKeyboardSubmit    = "keyboard"
	CheckLanguage          = "language"
)

// Failure is an unmet expectation. It carries what was expected and what the
// page actually showed.
type Failure struct {
	Check    string
	Expected string
	Actual   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("verify: %s: expected %s, got %s", f.Check, f.Expected, f.Actual)
}

func fail(check, expected string, actual any) *Failure {
	return &Failure{Check: check, Expected: expected, Actual: fmt.Sprint(actual)}
}

// Config configures a Facade.
type Config struct {
	// StepTimeout bounds each wait for an element, a URL or a focus change.
	// Default: 10s.
	StepTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Facade runs checks against one page. It holds no state beyond its
// arguments and is used by a single scenario.
type Facade struct {
	page   browser.Page
	cat    *catalogue.Catalogue
	cfg    Config
	logger *slog.Logger
}

// New binds the checks to a page and a catalogue.
func New(page browser.Page, cat *catalogue.Catalogue, cfg Config) *Facade {
	cfg.defaults()
	return &Facade{page: page, cat: cat, cfg: cfg, logger: cfg.Logger}
}

// step derives the context of one wait.
func (f *Facade) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.cfg.StepTimeout)
}

// entry resolves the catalogue record of the page currently loaded.
// An unmatched URL is a configuration error and is returned as is.
func (f *Facade) entry(ctx context.Context) (*catalogue.Entry, string, error) {
	u, err := f.page.URL(ctx)
	if err != nil {
		return nil, "", err
	}
	e, err := f.cat.EntryFor(u)
	if err != nil {
		return nil, u, err
	}
	return e, u, nil
}

func (f *Facade) waitVisible(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	sctx, cancel := f.step(ctx)
	defer cancel()
	return browser.WaitVisible(sctx, f.page, loc)
}

// waitFocused polls until el holds focus. A timeout is reported as a Failure
// since the element was found and the expectation is about its state.
func (f *Facade) waitFocused(ctx context.Context, check string, el browser.Element, what string) error {
	sctx, cancel := f.step(ctx)
	defer cancel()
	for {
		ok, err := el.Focused(sctx)
		if err == nil && ok {
			return nil
		}
		if err != nil && sctx.Err() == nil {
			return err
		}
		select {
		case <-sctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail(check, what+" focused", "focus elsewhere")
		case <-time.After(browser.PollInterval):
		}
	}
}

func wrap(check string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return fmt.Errorf("verify: %s: %w", check, err)
}
