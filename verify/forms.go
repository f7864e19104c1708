package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
)

// ErrorSummaryFocus submits the empty search form, activates the first link
// of the error summary and asserts focus moved to the matching input.
func (f *Facade) ErrorSummaryFocus(ctx context.Context) error {
	search, err := f.waitVisible(ctx, f.cat.SearchButton)
	if err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}
	if err := search.Click(ctx); err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}

	sctx, cancel := f.step(ctx)
	link, err := browser.First(sctx, f.page, f.cat.ErrorSummaryLink)
	cancel()
	if err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}
	if err := link.Click(ctx); err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}

	u, err := f.page.URL(ctx)
	if err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}
	target, err := expectedFocusTarget(u, f.cat)
	if err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}
	el, err := f.waitVisible(ctx, target)
	if err != nil {
		return wrap(CheckErrorSummaryFocus, err)
	}
	return f.waitFocused(ctx, CheckErrorSummaryFocus, el, target.String())
}

// expectedFocusTarget picks the input the first error summary link must
// focus: the user-or-email input on the user details page, the profile's
// first input everywhere else.
func expectedFocusTarget(url string, cat *catalogue.Catalogue) (browser.Locator, error) {
	if strings.Contains(url, "details") {
		return cat.UserOrEmailInput, nil
	}
	e, err := cat.EntryFor(url)
	if err != nil {
		return browser.Locator{}, err
	}
	return e.FirstInput, nil
}

// InputFocus clicks each of the profile's inputs in order and asserts it
// takes focus and shows a focus indicator.
func (f *Facade) InputFocus(ctx context.Context) error {
	e, _, err := f.entry(ctx)
	if err != nil {
		return wrap(CheckInputFocus, err)
	}
	if len(e.FocusInputs) == 0 {
		return wrap(CheckInputFocus, fmt.Errorf("profile %s lists no inputs", e.Profile))
	}
	for _, loc := range e.FocusInputs {
		el, err := f.waitVisible(ctx, loc)
		if err != nil {
			return wrap(CheckInputFocus, err)
		}
		if err := el.Click(ctx); err != nil {
			return wrap(CheckInputFocus, err)
		}
		if err := f.waitFocused(ctx, CheckInputFocus, el, loc.String()); err != nil {
			return wrap(CheckInputFocus, err)
		}
		if err := f.focusIndicator(ctx, el, loc); err != nil {
			return wrap(CheckInputFocus, err)
		}
	}
	return nil
}

func (f *Facade) focusIndicator(ctx context.Context, el browser.Element, loc browser.Locator) error {
	var v [3]string
	for i, prop := range []string{"outline-style", "outline-width", "box-shadow"} {
		s, err := el.Style(ctx, prop)
		if err != nil {
			return err
		}
		v[i] = s
	}
	if hasFocusIndicator(v[0], v[1], v[2]) {
		return nil
	}
	return fail(CheckInputFocus,
		fmt.Sprintf("%s to show a focus outline or shadow", loc),
		fmt.Sprintf("outline-style=%q outline-width=%q box-shadow=%q", v[0], v[1], v[2]))
}

func hasFocusIndicator(outlineStyle, outlineWidth, boxShadow string) bool {
	outline := outlineStyle != "" && outlineStyle != "none" &&
		outlineWidth != "" && outlineWidth != "0px"
	shadow := boxShadow != "" && boxShadow != "none"
	return outline || shadow
}

// KeyboardSubmit drives the profile's search form with key presses only,
// following the keyboard plan in the catalogue, and asserts the results
// heading appears. Keystrokes go to whichever element holds focus, so a plan
// that no longer matches the form's tab order fills the wrong fields.
func (f *Facade) KeyboardSubmit(ctx context.Context) error {
	e, _, err := f.entry(ctx)
	if err != nil {
		return wrap(CheckKeyboardSubmit, err)
	}
	if len(e.Keyboard) == 0 {
		return wrap(CheckKeyboardSubmit, fmt.Errorf("profile %s has no keyboard plan", e.Profile))
	}
	for i, st := range e.Keyboard {
		if err := f.keyStep(ctx, st); err != nil {
			return wrap(CheckKeyboardSubmit, fmt.Errorf("step %d: %w", i, err))
		}
	}

	sctx, cancel := f.step(ctx)
	defer cancel()
	if _, err := browser.WaitVisible(sctx, f.page, f.cat.ResultsHeading); err != nil {
		if ctx.Err() == nil && sctx.Err() != nil {
			u, _ := f.page.URL(ctx)
			return fail(CheckKeyboardSubmit, "results heading after keyboard submission", "no results at "+u)
		}
		return wrap(CheckKeyboardSubmit, err)
	}
	return nil
}

func (f *Facade) keyStep(ctx context.Context, st catalogue.KeyStep) error {
	if st.Expect != nil {
		if _, err := f.waitVisible(ctx, *st.Expect); err != nil {
			return err
		}
	}
	if st.Focus != nil {
		el, err := f.waitVisible(ctx, *st.Focus)
		if err != nil {
			return err
		}
		if err := el.Focus(ctx); err != nil {
			return err
		}
	}
	if st.Type != "" {
		if err := f.page.Type(ctx, st.Type); err != nil {
			return err
		}
	}
	for _, k := range st.Press {
		if err := f.page.Press(ctx, k); err != nil {
			return err
		}
	}
	for range st.Tabs {
		if err := f.page.Press(ctx, "Tab"); err != nil {
			return err
		}
	}
	return nil
}
