// Package browser defines the automation handle the verification checks run
// against: a Page that navigates and locates elements, and Elements that can
// be read, focused, clicked and typed into.
//
// Two implementations exist: package chrome drives a real Chrome through Rod,
// package fixture drives an in-process http.Handler with a goquery DOM. Every
// method is a suspension point bounded by its context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// ErrInvalidLocator marks a locator no implementation can evaluate. It is a
// configuration error and is never retried.
var ErrInvalidLocator = errors.New("browser: invalid locator")

// Page is one isolated browsing session.
type Page interface {
	// Goto navigates to path (resolved against the base URL) and waits for load.
	Goto(ctx context.Context, path string) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// Title returns document.title.
	Title(ctx context.Context) (string, error)
	// WaitURL blocks until the current location matches re.
	WaitURL(ctx context.Context, re *regexp.Regexp) error
	// Query returns the elements currently matching loc, in document order.
	// It does not wait.
	Query(ctx context.Context, loc Locator) ([]Element, error)
	// Press sends one named key ("Tab", "Enter", ...) to the focused element.
	Press(ctx context.Context, key string) error
	// Type sends text to the focused element one keystroke at a time.
	Type(ctx context.Context, text string) error
	// Close releases the session.
	Close() error
}

// Element is a handle to one DOM element of a Page.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	// Text is the rendered text (innerText) of the element.
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// TagName is the lowercase element type.
	TagName(ctx context.Context) (string, error)
	// Style returns a computed style property, e.g. "font-size".
	Style(ctx context.Context, prop string) (string, error)
	Focused(ctx context.Context) (bool, error)
	Focus(ctx context.Context) error
	Click(ctx context.Context) error
	// Fill replaces the element value.
	Fill(ctx context.Context, value string) error
}

// Locator identifies elements by accessible role and name, or by CSS selector,
// optionally scoped and filtered. Role and CSS are mutually exclusive.
type Locator struct {
	CSS  string `yaml:"css,omitempty" json:"css,omitempty"`
	Role string `yaml:"role,omitempty" json:"role,omitempty"`
	// Name matches the accessible name: case-insensitive substring, or the
	// whole name case-sensitively when Exact is set. Empty matches any name.
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Exact bool   `yaml:"exact,omitempty" json:"exact,omitempty"`
	// HasText keeps elements whose text contains it, case-insensitively.
	HasText string `yaml:"has_text,omitempty" json:"has_text,omitempty"`
	// Within keeps elements that have an ancestor (or self) matching this CSS selector.
	Within string `yaml:"within,omitempty" json:"within,omitempty"`
}

// CSS returns a selector locator.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// Role returns a role locator with a case-insensitive name match.
func Role(role, name string) Locator { return Locator{Role: role, Name: name} }

// ExactRole returns a role locator requiring the full accessible name.
func ExactRole(role, name string) Locator { return Locator{Role: role, Name: name, Exact: true} }

// In scopes the locator to descendants of scope.
func (l Locator) In(scope string) Locator {
	l.Within = scope
	return l
}

// Filter keeps only elements whose text contains text.
func (l Locator) Filter(text string) Locator {
	l.HasText = text
	return l
}

// IsZero reports whether the locator selects nothing.
func (l Locator) IsZero() bool { return l.CSS == "" && l.Role == "" }

// Validate rejects locators the implementations cannot evaluate.
func (l Locator) Validate() error {
	switch {
	case l.IsZero():
		return fmt.Errorf("%w: neither css nor role", ErrInvalidLocator)
	case l.CSS != "" && l.Role != "":
		return fmt.Errorf("%w: %s sets both css and role", ErrInvalidLocator, l)
	}
	for _, sel := range []string{l.CSS, l.Within} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("%w: selector %q: %v", ErrInvalidLocator, sel, err)
		}
	}
	return nil
}

// MatchName applies the locator's name rule to an accessible name.
func (l Locator) MatchName(name string) bool {
	if l.Name == "" {
		return true
	}
	name = NormalizeSpace(name)
	if l.Exact {
		return name == NormalizeSpace(l.Name)
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(NormalizeSpace(l.Name)))
}

// MatchText applies the HasText filter to element text.
func (l Locator) MatchText(text string) bool {
	if l.HasText == "" {
		return true
	}
	return strings.Contains(strings.ToLower(NormalizeSpace(text)), strings.ToLower(l.HasText))
}

func (l Locator) String() string {
	var b strings.Builder
	if l.Role != "" {
		fmt.Fprintf(&b, "role=%s", l.Role)
		if l.Name != "" {
			if l.Exact {
				fmt.Fprintf(&b, "[name=%q]", l.Name)
			} else {
				fmt.Fprintf(&b, "[name~=%q]", l.Name)
			}
		}
	} else {
		b.WriteString(l.CSS)
	}
	if l.HasText != "" {
		fmt.Fprintf(&b, " has-text=%q", l.HasText)
	}
	if l.Within != "" {
		fmt.Fprintf(&b, " within %s", l.Within)
	}
	return b.String()
}

// NormalizeSpace trims and collapses runs of whitespace to single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
