// Package catalogue holds the locator catalogue: every selector, accessible
// name and text fragment the checks need, keyed by audited page profile.
//
// A Catalogue is loaded once at start (embedded default, YAML file, or SQLite)
// and is read-only afterwards, so one value is shared by all scenarios.
package catalogue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/lauaudit/browser"
)

// Profile identifies one audited page of the LAU portal.
type Profile string

const (
	CaseAudit                Profile = "case-audit"
	ChallengedSpecificAccess Profile = "challenged-specific-access"
	LogonAudit               Profile = "logon-audit"
	UserDeletionAudit        Profile = "user-deletion-audit"
	UserDetailsAudit         Profile = "user-details-audit"
)

// Profiles lists every profile in resolution order.
var Profiles = []Profile{
	CaseAudit,
	ChallengedSpecificAccess,
	LogonAudit,
	UserDeletionAudit,
	UserDetailsAudit,
}

// Route is the path the profile is served at, e.g. "/case-audit".
func (p Profile) Route() string { return "/" + string(p) }

// Valid reports whether p is one of the five known profiles.
func (p Profile) Valid() bool {
	for _, known := range Profiles {
		if p == known {
			return true
		}
	}
	return false
}

// Catalogue is the full locator catalogue: a pool shared by all profiles plus
// one Entry per profile.
type Catalogue struct {
	// Landing is the route the portal redirects to after sign-in.
	Landing  string `yaml:"landing"`
	Language string `yaml:"language"`

	Login LoginLocators `yaml:"login"`

	SearchButton     browser.Locator `yaml:"search_button"`
	SkipLink         browser.Locator `yaml:"skip_link"`
	MainAnchor       string          `yaml:"main_anchor"`
	ErrorSummary     string          `yaml:"error_summary"`
	ErrorSummaryLink browser.Locator `yaml:"error_summary_link"`
	// UserOrEmailInput receives focus from the error summary on the user
	// details page instead of the profile's first input.
	UserOrEmailInput browser.Locator `yaml:"user_or_email_input"`
	ResultsHeading   browser.Locator `yaml:"results_heading"`

	Pagination PaginationLocators `yaml:"pagination"`

	CSVGuideLink  browser.Locator `yaml:"csv_guide_link"`
	NewTabWarning string          `yaml:"new_tab_warning"`
	NewTabTarget  string          `yaml:"new_tab_target"`

	Entries map[Profile]*Entry `yaml:"profiles"`
}

// LoginLocators are fixed, not profile dependent.
type LoginLocators struct {
	Username browser.Locator `yaml:"username"`
	Password browser.Locator `yaml:"password"`
	SignIn   browser.Locator `yaml:"sign_in"`
}

// PaginationLocators name the result paging links.
type PaginationLocators struct {
	Next     browser.Locator `yaml:"next"`
	Last     browser.Locator `yaml:"last"`
	Previous browser.Locator `yaml:"previous"`
}

// Entry is the per-profile record.
type Entry struct {
	Profile Profile `yaml:"-"`

	// NavLink is the header link leading to the profile.
	NavLink browser.Locator `yaml:"nav_link"`

	H1        string `yaml:"h1"`
	H2        string `yaml:"h2"`
	Paragraph string `yaml:"paragraph"`

	// TitleKeywords: the page title must contain at least one of them.
	TitleKeywords []string `yaml:"title_keywords"`

	// FirstInput receives focus from the first error summary link.
	FirstInput browser.Locator `yaml:"first_input"`

	// Form is filled by pointer before searching.
	Form []Fill `yaml:"form"`

	// FocusInputs are clicked in order and must each take focus.
	FocusInputs []browser.Locator `yaml:"focus_inputs"`

	// Keyboard drives the search form without a pointer. Empty = not keyboard tested.
	Keyboard []KeyStep `yaml:"keyboard"`

	// Skip lists checklist item IDs that do not apply to this profile.
	Skip []string `yaml:"skip"`
}

// Fill sets one form field.
type Fill struct {
	Field browser.Locator `yaml:"field"`
	Value string          `yaml:"value"`
}

// KeyStep is one step of a keyboard plan. Within a step: Expect is waited
// for, Focus is focused, Type is typed into the focused element, Press keys
// are sent, then Tabs Tab presses move focus on.
type KeyStep struct {
	Expect *browser.Locator `yaml:"expect,omitempty"`
	Focus  *browser.Locator `yaml:"focus,omitempty"`
	Type   string           `yaml:"type,omitempty"`
	Press  []string         `yaml:"press,omitempty"`
	Tabs   int              `yaml:"tabs,omitempty"`
}

// Headings returns the heading-1, heading-2 and paragraph text of the entry.
func (e *Entry) Headings() (h1, h2, p string) {
	return e.H1, e.H2, e.Paragraph
}

// Skips reports whether the checklist item applies to this profile.
func (e *Entry) Skips(item string) bool {
	for _, s := range e.Skip {
		if s == item {
			return true
		}
	}
	return false
}

// Entry returns the record for a profile.
func (c *Catalogue) Entry(p Profile) (*Entry, error) {
	e, ok := c.Entries[p]
	if !ok {
		return nil, fmt.Errorf("catalogue: %w: %q", ErrUnknownProfile, p)
	}
	return e, nil
}

// EntryFor resolves the profile of a URL and returns its record.
func (c *Catalogue) EntryFor(url string) (*Entry, error) {
	p, err := Resolve(url)
	if err != nil {
		return nil, err
	}
	return c.Entry(p)
}

// Routes returns the profile routes in resolution order.
func (c *Catalogue) Routes() []string {
	routes := make([]string, len(Profiles))
	for i, p := range Profiles {
		routes[i] = p.Route()
	}
	return routes
}

// Validate checks that every profile has an entry and that the fields the
// checks depend on are set. Loaders call it; a failing catalogue is a
// configuration error.
func (c *Catalogue) Validate() error {
	var errs []error
	need := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is empty", name))
		}
	}
	loc := func(name string, l browser.Locator) {
		if err := l.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	need("landing", c.Landing)
	need("main_anchor", c.MainAnchor)
	loc("login.username", c.Login.Username)
	loc("login.password", c.Login.Password)
	loc("login.sign_in", c.Login.SignIn)
	loc("search_button", c.SearchButton)
	loc("skip_link", c.SkipLink)
	loc("error_summary", browser.CSS(c.ErrorSummary))
	loc("error_summary_link", c.ErrorSummaryLink)
	loc("user_or_email_input", c.UserOrEmailInput)
	loc("results_heading", c.ResultsHeading)
	loc("pagination.next", c.Pagination.Next)
	loc("pagination.last", c.Pagination.Last)
	loc("pagination.previous", c.Pagination.Previous)

	for p := range c.Entries {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("profiles: %w: %q", ErrUnknownProfile, p))
		}
	}
	for _, p := range Profiles {
		e, ok := c.Entries[p]
		if !ok || e == nil {
			errs = append(errs, fmt.Errorf("profiles.%s: missing", p))
			continue
		}
		need(string(p)+".h1", e.H1)
		need(string(p)+".h2", e.H2)
		need(string(p)+".paragraph", e.Paragraph)
		loc(string(p)+".first_input", e.FirstInput)
		if len(e.TitleKeywords) == 0 {
			errs = append(errs, fmt.Errorf("%s.title_keywords is empty", p))
		}
		for i, f := range e.Form {
			loc(fmt.Sprintf("%s.form[%d]", p, i), f.Field)
		}
		for i, l := range e.FocusInputs {
			loc(fmt.Sprintf("%s.focus_inputs[%d]", p, i), l)
		}
		for i, s := range e.Keyboard {
			if s.Tabs < 0 {
				errs = append(errs, fmt.Errorf("%s.keyboard[%d].tabs is negative", p, i))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalogue: invalid: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Catalogue) applyDefaults() {
	if c.Landing == "" {
		c.Landing = CaseAudit.Route()
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.MainAnchor == "" {
		c.MainAnchor = "#main-content"
	}
	if c.NewTabTarget == "" {
		c.NewTabTarget = "_blank"
	}
	if c.ErrorSummary == "" {
		c.ErrorSummary = ".govuk-error-summary"
	}
	for p, e := range c.Entries {
		if e != nil {
			e.Profile = p
		}
	}
}
