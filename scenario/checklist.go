package scenario

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/lauaudit/axe"
	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
	"github.com/hazyhaar/lauaudit/verify"
)

// Env is what a checklist item runs with: the profile's entry, a flow and a
// facade bound to the scenario's session, and the oracle when one is set.
type Env struct {
	Profile catalogue.Profile
	Entry   *catalogue.Entry
	Cat     *catalogue.Catalogue
	Flow    *Flow
	Check   *verify.Facade
	Oracle  axe.Oracle
	Logger  *slog.Logger
}

// Audit runs the oracle. Without an oracle the audit is logged and skipped.
func (e *Env) Audit(ctx context.Context, opts axe.Options) error {
	if e.Oracle == nil {
		e.Logger.Debug("scenario: no oracle, audit skipped", "rules", opts.String())
		return nil
	}
	return e.Oracle.Audit(ctx, opts)
}

// Item is one entry of the checklist. Run starts on the profile's search
// page with a signed-in session.
type Item struct {
	ID  string
	Run func(ctx context.Context, env *Env) error
}

// check wraps a facade check followed by an audit restricted to rules.
// No rules means no audit.
func check(fn func(*verify.Facade, context.Context) error, rules ...string) func(context.Context, *Env) error {
	return func(ctx context.Context, env *Env) error {
		if err := fn(env.Check, ctx); err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}
		return env.Audit(ctx, axe.Rules(rules...))
	}
}

// Checklist is the fixed list of items run against every profile, in order.
var Checklist = []Item{
	{ID: "axe", Run: func(ctx context.Context, env *Env) error {
		return env.Audit(ctx, axe.Options{})
	}},
	{ID: verify.CheckDistinctHeadings, Run: check((*verify.Facade).DistinctHeadings, "p-as-heading")},
	{ID: verify.CheckHeadingOrder, Run: check((*verify.Facade).HeadingOrder, "heading-order", "page-has-heading-one")},
	{ID: verify.CheckSkipLink, Run: check((*verify.Facade).SkipLink, "bypass", "skip-link")},
	{ID: verify.CheckTitlePresent, Run: check((*verify.Facade).TitlePresent, "document-title")},
	{ID: verify.CheckTitleDescriptive, Run: check((*verify.Facade).TitleDescriptive)},
	{ID: verify.CheckTitleUnique, Run: check((*verify.Facade).TitleUnique)},
	{ID: "colour-contrast", Run: colourContrast},
	{ID: verify.CheckNewTabLink, Run: func(ctx context.Context, env *Env) error {
		if err := env.Flow.Search(ctx, env.Entry); err != nil {
			return err
		}
		return env.Check.NewTabLink(ctx)
	}},
	{ID: verify.CheckUniqueLinks, Run: check((*verify.Facade).UniqueLinks, "link-name", "link-in-text-block")},
	{ID: verify.CheckLanguage, Run: check((*verify.Facade).Language, "html-has-lang", "html-lang-valid", "valid-lang")},
	{ID: verify.CheckErrorSummaryFocus, Run: check((*verify.Facade).ErrorSummaryFocus)},
	{ID: verify.CheckPagination, Run: pagination},
	{ID: verify.CheckKeyboardSubmit, Run: check((*verify.Facade).KeyboardSubmit)},
	{ID: verify.CheckInputFocus, Run: func(ctx context.Context, env *Env) error {
		if err := env.Check.InputFocus(ctx); err != nil {
			return err
		}
		return env.Audit(ctx, axe.Options{})
	}},
}

// ItemByID looks an item up.
func ItemByID(id string) (Item, bool) {
	for _, it := range Checklist {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// colourContrast audits contrast in the three states of the search page:
// initial, with the error summary focused, and results.
func colourContrast(ctx context.Context, env *Env) error {
	contrast := axe.Rules("color-contrast")
	if err := env.Audit(ctx, contrast); err != nil {
		return err
	}

	if err := env.Flow.SubmitSearch(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, env.Flow.stepTimeout)
	summary, err := browser.First(sctx, env.Flow.page, browser.CSS(env.Cat.ErrorSummary))
	cancel()
	if err != nil {
		return err
	}
	if err := summary.Focus(ctx); err != nil {
		return err
	}
	if err := env.Audit(ctx, contrast); err != nil {
		return err
	}

	if _, err := env.Flow.Open(ctx, env.Profile); err != nil {
		return err
	}
	if err := env.Flow.Search(ctx, env.Entry); err != nil {
		return err
	}
	return env.Audit(ctx, contrast)
}

// pagination checks the controls on the first results page and again on
// the second, where the previous control appears.
func pagination(ctx context.Context, env *Env) error {
	if err := env.Flow.Search(ctx, env.Entry); err != nil {
		return err
	}
	if err := env.Check.Pagination(ctx); err != nil {
		return err
	}
	if err := env.Flow.NextPage(ctx); err != nil {
		return err
	}
	if err := env.Check.Pagination(ctx); err != nil {
		return err
	}
	return env.Audit(ctx, axe.Rules("link-name"))
}
