package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
)

// Flow drives a session through the portal: sign-in, navigation between
// audit pages, filling and submitting the search form.
type Flow struct {
	page        browser.Page
	cat         *catalogue.Catalogue
	stepTimeout time.Duration
	logger      *slog.Logger
}

// NewFlow binds a flow to a session.
func NewFlow(page browser.Page, cat *catalogue.Catalogue, stepTimeout time.Duration, logger *slog.Logger) *Flow {
	if stepTimeout <= 0 {
		stepTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{page: page, cat: cat, stepTimeout: stepTimeout, logger: logger}
}

func (f *Flow) visible(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	sctx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	return browser.WaitVisible(sctx, f.page, loc)
}

func (f *Flow) waitRoute(ctx context.Context, route string) error {
	sctx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	return f.page.WaitURL(sctx, regexp.MustCompile(regexp.QuoteMeta(route)+`$`))
}

// Login signs in with creds and waits for the landing route. Missing
// credentials fail before the page is touched.
func (f *Flow) Login(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if err := f.page.Goto(ctx, "/"); err != nil {
		return fmt.Errorf("scenario: login: %w", err)
	}
	for _, fill := range []struct {
		loc   browser.Locator
		value string
	}{
		{f.cat.Login.Username, creds.Username},
		{f.cat.Login.Password, creds.Password},
	} {
		el, err := f.visible(ctx, fill.loc)
		if err != nil {
			return fmt.Errorf("scenario: login: %w", err)
		}
		if err := el.Fill(ctx, fill.value); err != nil {
			return fmt.Errorf("scenario: login: fill %s: %w", fill.loc, err)
		}
	}
	btn, err := f.visible(ctx, f.cat.Login.SignIn)
	if err != nil {
		return fmt.Errorf("scenario: login: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		return fmt.Errorf("scenario: login: sign in: %w", err)
	}
	if err := f.waitRoute(ctx, f.cat.Landing); err != nil {
		return fmt.Errorf("scenario: login: landing: %w", err)
	}
	f.logger.Debug("scenario: signed in", "landing", f.cat.Landing)
	return nil
}

// Open navigates to a profile through its header link and waits for its route.
func (f *Flow) Open(ctx context.Context, p catalogue.Profile) (*catalogue.Entry, error) {
	e, err := f.cat.Entry(p)
	if err != nil {
		return nil, err
	}
	link, err := f.visible(ctx, e.NavLink)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %s: %w", p, err)
	}
	if err := link.Click(ctx); err != nil {
		return nil, fmt.Errorf("scenario: open %s: %w", p, err)
	}
	if err := f.waitRoute(ctx, p.Route()); err != nil {
		return nil, fmt.Errorf("scenario: open %s: %w", p, err)
	}
	return e, nil
}

// FillSearchForm fills the profile's search form with pointer actions.
func (f *Flow) FillSearchForm(ctx context.Context, e *catalogue.Entry) error {
	for _, fill := range e.Form {
		el, err := f.visible(ctx, fill.Field)
		if err != nil {
			return fmt.Errorf("scenario: fill %s: %w", fill.Field, err)
		}
		if err := el.Fill(ctx, fill.Value); err != nil {
			return fmt.Errorf("scenario: fill %s: %w", fill.Field, err)
		}
	}
	return nil
}

// SubmitSearch activates the search button.
func (f *Flow) SubmitSearch(ctx context.Context) error {
	btn, err := f.visible(ctx, f.cat.SearchButton)
	if err != nil {
		return fmt.Errorf("scenario: search: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		return fmt.Errorf("scenario: search: %w", err)
	}
	return nil
}

// Search fills the form, submits it and waits for the results heading.
func (f *Flow) Search(ctx context.Context, e *catalogue.Entry) error {
	if err := f.FillSearchForm(ctx, e); err != nil {
		return err
	}
	if err := f.SubmitSearch(ctx); err != nil {
		return err
	}
	if _, err := f.visible(ctx, f.cat.ResultsHeading); err != nil {
		return fmt.Errorf("scenario: search: results: %w", err)
	}
	return nil
}

// NextPage follows the pagination "next" link and waits for the page change.
func (f *Flow) NextPage(ctx context.Context) error {
	before, err := f.page.URL(ctx)
	if err != nil {
		return err
	}
	next, err := f.visible(ctx, f.cat.Pagination.Next)
	if err != nil {
		return fmt.Errorf("scenario: next page: %w", err)
	}
	if err := next.Click(ctx); err != nil {
		return fmt.Errorf("scenario: next page: %w", err)
	}
	sctx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	notBefore := regexp.MustCompile(`^` + regexp.QuoteMeta(before) + `$`)
	for {
		u, err := f.page.URL(sctx)
		if err == nil && !notBefore.MatchString(u) {
			return nil
		}
		select {
		case <-sctx.Done():
			return fmt.Errorf("scenario: next page: still at %s: %w", before, sctx.Err())
		case <-time.After(browser.PollInterval):
		}
	}
}
