package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
	"github.com/hazyhaar/lauaudit/fixture"
)

func TestCompareHeadingSizes(t *testing.T) {
	if err := compareHeadingSizes(32, 24, 16); err != nil {
		t.Errorf("32/24/16: %v", err)
	}
	for _, c := range [][3]float64{{20, 24, 16}, {24, 24, 16}, {32, 16, 16}, {16, 24, 32}} {
		err := compareHeadingSizes(c[0], c[1], c[2])
		var f *Failure
		if !errors.As(err, &f) {
			t.Errorf("%v: got %v, want a Failure", c, err)
		}
	}
}

func TestParsePx(t *testing.T) {
	if v, err := parsePx(" 24px"); err != nil || v != 24 {
		t.Errorf("24px: got %v, %v", v, err)
	}
	if v, err := parsePx("19.2px"); err != nil || v != 19.2 {
		t.Errorf("19.2px: got %v, %v", v, err)
	}
	if _, err := parsePx("1.5em"); err == nil {
		t.Error("1.5em: expected error")
	}
}

func TestCheckLinkNames(t *testing.T) {
	ok := []LinkRecord{
		{Text: "help", Href: "/help"},
		{Text: "cookies", Href: "/cookies"},
		{Text: "help", Href: "/help"},
	}
	if err := CheckLinkNames(ok); err != nil {
		t.Errorf("same destination twice: %v", err)
	}
	if err := CheckLinkNames(nil); err != nil {
		t.Errorf("no links: %v", err)
	}

	bad := []LinkRecord{
		{Text: "next page", Href: "?page=2"},
		{Text: "help", Href: "/support"},
		{Text: "next page", Href: "?page=3"},
		{Text: "help", Href: "/help"},
	}
	err := CheckLinkNames(bad)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("got %v, want a Failure", err)
	}
	if !strings.Contains(f.Expected, `"next page"`) {
		t.Errorf("first offending text: got %s", f.Expected)
	}
	if f.Actual != "?page=2, ?page=3" {
		t.Errorf("actual: got %q", f.Actual)
	}
}

func TestDistinctTitles(t *testing.T) {
	routes := []string{"/a", "/b", "/c", "/d", "/e"}
	titles := []string{"Case Audit", "Challenged Access", "Log-Ons Audit", "User Deletion Audit", "User Details Audit"}
	if err := distinctTitles(routes, titles); err != nil {
		t.Errorf("distinct: %v", err)
	}
	titles[4] = "Case Audit"
	err := distinctTitles(routes, titles)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("got %v, want a Failure", err)
	}
	if !strings.Contains(f.Actual, "/a") || !strings.Contains(f.Actual, "/e") {
		t.Errorf("actual should name both routes: %s", f.Actual)
	}
}

func TestExpectedFocusTarget(t *testing.T) {
	cat := defaultCatalogue(t)
	cases := []struct {
		url  string
		want browser.Locator
	}{
		{"https://lau.example/user-details-audit", cat.UserOrEmailInput},
		{"https://lau.example/case-audit#userId", cat.Entries[catalogue.CaseAudit].FirstInput},
		{"https://lau.example/logon-audit", cat.Entries[catalogue.LogonAudit].FirstInput},
	}
	for _, c := range cases {
		got, err := expectedFocusTarget(c.url, cat)
		if err != nil {
			t.Fatalf("%s: %v", c.url, err)
		}
		if got.String() != c.want.String() {
			t.Errorf("%s: got %s, want %s", c.url, got, c.want)
		}
	}
	if _, err := expectedFocusTarget("https://lau.example/help", cat); !errors.Is(err, catalogue.ErrUnknownProfile) {
		t.Errorf("unknown page: got %v", err)
	}
}

func TestHasFocusIndicator(t *testing.T) {
	cases := []struct {
		style, width, shadow string
		want                 bool
	}{
		{"solid", "3px", "none", true},
		{"none", "0px", "rgb(11, 12, 12) 0px 0px 0px 2px inset", true},
		{"solid", "0px", "none", false},
		{"none", "3px", "none", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		if got := hasFocusIndicator(c.style, c.width, c.shadow); got != c.want {
			t.Errorf("%q %q %q: got %v, want %v", c.style, c.width, c.shadow, got, c.want)
		}
	}
}

func TestWrapKeepsFailures(t *testing.T) {
	f := fail(CheckSkipLink, "x", "y")
	if got := wrap(CheckSkipLink, f); got != error(f) {
		t.Errorf("failure was rewrapped: %v", got)
	}
	err := wrap(CheckSkipLink, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) || !strings.HasPrefix(err.Error(), "verify: skip-link: ") {
		t.Errorf("got %v", err)
	}
	if wrap(CheckSkipLink, nil) != nil {
		t.Error("nil should stay nil")
	}
}

// Checks against the fixture portal.

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func defaultCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	cat, err := catalogue.Default()
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	cat   *catalogue.Catalogue
	page  *fixture.Driver
	check *Facade
}

// open signs into a fixture portal with the given defects and opens the
// profile's search page.
func open(t *testing.T, defects fixture.Defects, p catalogue.Profile) *harness {
	t.Helper()
	old := browser.PollInterval
	browser.PollInterval = time.Millisecond
	t.Cleanup(func() { browser.PollInterval = old })

	site := fixture.NewSite(fixture.SiteConfig{Defects: defects, Logger: quiet()})
	d, err := fixture.NewDriver(fixture.DriverConfig{Handler: site, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })

	h := &harness{t: t, ctx: context.Background(), cat: defaultCatalogue(t), page: d}
	h.check = New(d, h.cat, Config{StepTimeout: 50 * time.Millisecond, Logger: quiet()})

	h.goTo("/")
	h.el(h.cat.Login.Username).Fill(h.ctx, "auditor@example.com")
	h.el(h.cat.Login.Password).Fill(h.ctx, "secret")
	if err := h.el(h.cat.Login.SignIn).Click(h.ctx); err != nil {
		t.Fatal(err)
	}
	h.goTo(p.Route())
	return h
}

func (h *harness) goTo(path string) {
	h.t.Helper()
	if err := h.page.Goto(h.ctx, path); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) el(loc browser.Locator) browser.Element {
	h.t.Helper()
	el, err := browser.Single(h.ctx, h.page, loc)
	if err != nil {
		h.t.Fatalf("%s: %v", loc, err)
	}
	return el
}

// search fills the profile's form by pointer and submits it.
func (h *harness) search(p catalogue.Profile) {
	h.t.Helper()
	e, err := h.cat.Entry(p)
	if err != nil {
		h.t.Fatal(err)
	}
	for _, f := range e.Form {
		if err := h.el(f.Field).Fill(h.ctx, f.Value); err != nil {
			h.t.Fatalf("fill %s: %v", f.Field, err)
		}
	}
	if err := h.el(h.cat.SearchButton).Click(h.ctx); err != nil {
		h.t.Fatal(err)
	}
	h.el(h.cat.ResultsHeading)
}

func wantFailure(t *testing.T, check string, err error) {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("got %v, want a Failure", err)
	}
	if f.Check != check {
		t.Errorf("check: got %s, want %s", f.Check, check)
	}
}

func TestFacade_SearchPageChecksPass(t *testing.T) {
	checks := map[string]func(*Facade, context.Context) error{
		CheckDistinctHeadings:  (*Facade).DistinctHeadings,
		CheckHeadingOrder:      (*Facade).HeadingOrder,
		CheckSkipLink:          (*Facade).SkipLink,
		CheckTitlePresent:      (*Facade).TitlePresent,
		CheckTitleDescriptive:  (*Facade).TitleDescriptive,
		CheckUniqueLinks:       (*Facade).UniqueLinks,
		CheckLanguage:          (*Facade).Language,
		CheckErrorSummaryFocus: (*Facade).ErrorSummaryFocus,
		CheckTitleUnique:       (*Facade).TitleUnique,
	}
	for _, p := range catalogue.Profiles {
		for name, fn := range checks {
			t.Run(fmt.Sprintf("%s/%s", p, name), func(t *testing.T) {
				h := open(t, fixture.Defects{}, p)
				if err := fn(h.check, h.ctx); err != nil {
					t.Fatal(err)
				}
			})
		}
	}
}

func TestFacade_InputFocus(t *testing.T) {
	for _, p := range []catalogue.Profile{catalogue.CaseAudit, catalogue.LogonAudit, catalogue.UserDeletionAudit} {
		h := open(t, fixture.Defects{}, p)
		if err := h.check.InputFocus(h.ctx); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
	h := open(t, fixture.Defects{NoFocusOutline: true}, catalogue.CaseAudit)
	wantFailure(t, CheckInputFocus, h.check.InputFocus(h.ctx))

	// No focus inputs listed for this profile.
	h = open(t, fixture.Defects{}, catalogue.UserDetailsAudit)
	if err := h.check.InputFocus(h.ctx); err == nil {
		t.Error("user details: expected an error")
	}
}

func TestFacade_ResultsChecks(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.search(catalogue.CaseAudit)
	if err := h.check.NewTabLink(h.ctx); err != nil {
		t.Errorf("new tab: %v", err)
	}
	if err := h.check.Pagination(h.ctx); err != nil {
		t.Errorf("pagination, first page: %v", err)
	}
	if err := h.el(h.cat.Pagination.Next).Click(h.ctx); err != nil {
		t.Fatal(err)
	}
	h.el(h.cat.Pagination.Previous)
	if err := h.check.Pagination(h.ctx); err != nil {
		t.Errorf("pagination, second page: %v", err)
	}

	// The last page has no next control.
	if err := h.el(h.cat.Pagination.Last).Click(h.ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.check.Pagination(h.ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("pagination, last page: got %v", err)
	}
}

func TestFacade_NewTabLinkWarning(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.LogonAudit)
	h.search(catalogue.LogonAudit)
	h.cat.NewTabWarning = "opens in a new window"
	wantFailure(t, CheckNewTabLink, h.check.NewTabLink(h.ctx))
}

func TestFacade_Defects(t *testing.T) {
	cases := []struct {
		defects fixture.Defects
		check   string
		run     func(*Facade, context.Context) error
	}{
		{fixture.Defects{FlatHeadings: true}, CheckDistinctHeadings, (*Facade).DistinctHeadings},
		{fixture.Defects{SharedTitle: true}, CheckTitleUnique, (*Facade).TitleUnique},
		{fixture.Defects{ConflictingLinks: true}, CheckUniqueLinks, (*Facade).UniqueLinks},
		{fixture.Defects{WrongSkipTarget: true}, CheckSkipLink, (*Facade).SkipLink},
		{fixture.Defects{MissingLang: true}, CheckLanguage, (*Facade).Language},
		{fixture.Defects{NoFocusOutline: true}, CheckInputFocus, (*Facade).InputFocus},
		{fixture.Defects{InvertedHeadings: true}, CheckHeadingOrder, (*Facade).HeadingOrder},
		{fixture.Defects{ErrorLinkWrongTarget: true}, CheckErrorSummaryFocus, (*Facade).ErrorSummaryFocus},
	}
	for _, c := range cases {
		t.Run(c.check, func(t *testing.T) {
			h := open(t, c.defects, catalogue.CaseAudit)
			wantFailure(t, c.check, c.run(h.check, h.ctx))
		})
	}
}

func TestFacade_DistinctHeadingsParagraph(t *testing.T) {
	h := open(t, fixture.Defects{DuplicateIntro: true}, catalogue.CaseAudit)
	if err := h.check.DistinctHeadings(h.ctx); !errors.Is(err, browser.ErrAmbiguous) {
		t.Errorf("duplicate paragraph: got %v, want ErrAmbiguous", err)
	}

	h = open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.cat.Entries[catalogue.CaseAudit].Paragraph = "Choose a report"
	if err := h.check.DistinctHeadings(h.ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("missing paragraph: got %v, want deadline exceeded", err)
	}
}

func TestFacade_DistinctHeadingsLooseHeadingOne(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.cat.Entries[catalogue.CaseAudit].H1 = "case audit"
	if err := h.check.DistinctHeadings(h.ctx); err != nil {
		t.Errorf("heading-1 by partial name: %v", err)
	}

	h = open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.cat.Entries[catalogue.CaseAudit].H2 = "search"
	if err := h.check.DistinctHeadings(h.ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("heading-2 must match exactly: got %v", err)
	}
}

func TestFacade_LanguageIsExact(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.cat.Language = "EN"
	wantFailure(t, CheckLanguage, h.check.Language(h.ctx))
}

func TestFacade_TitleDescriptiveFails(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.cat.Entries[catalogue.CaseAudit].TitleKeywords = []string{"Deleted"}
	wantFailure(t, CheckTitleDescriptive, h.check.TitleDescriptive(h.ctx))
}

func TestFacade_UnknownPage(t *testing.T) {
	h := open(t, fixture.Defects{}, catalogue.CaseAudit)
	h.goTo("/help")
	err := h.check.TitleDescriptive(h.ctx)
	if !errors.Is(err, catalogue.ErrUnknownProfile) {
		t.Fatalf("got %v, want ErrUnknownProfile", err)
	}
	var f *Failure
	if errors.As(err, &f) {
		t.Error("a configuration error must not be reported as a Failure")
	}
}

func TestFacade_KeyboardSubmit(t *testing.T) {
	for _, p := range []catalogue.Profile{catalogue.CaseAudit, catalogue.UserDetailsAudit} {
		h := open(t, fixture.Defects{}, p)
		if err := h.check.KeyboardSubmit(h.ctx); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
}

// Every single tab count off by one must send keystrokes to the wrong
// element, and the search must not complete.
func TestFacade_KeyboardSubmitOffByOne(t *testing.T) {
	base := defaultCatalogue(t).Entries[catalogue.CaseAudit].Keyboard
	for i := range base {
		// Tabs after the final keystroke cannot change the outcome.
		if base[i].Tabs == 0 {
			continue
		}
		for _, delta := range []int{-1, 1} {
			t.Run(fmt.Sprintf("step%d%+d", i, delta), func(t *testing.T) {
				h := open(t, fixture.Defects{}, catalogue.CaseAudit)
				e := h.cat.Entries[catalogue.CaseAudit]
				plan := append([]catalogue.KeyStep(nil), e.Keyboard...)
				plan[i].Tabs += delta
				e.Keyboard = plan

				err := h.check.KeyboardSubmit(h.ctx)
				if err == nil {
					t.Fatal("keyboard plan passed with a wrong tab count")
				}
			})
		}
	}
}
