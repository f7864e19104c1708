package chrome

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/lauaudit/browser"
)

// Session is one isolated page. It implements browser.Page and
// axe.Evaluator. A Session is used by a single scenario goroutine.
type Session struct {
	page    *rod.Page
	context *rod.Browser // incognito context owning page
	router  *rod.HijackRouter
	base    *url.URL
	cfg     Config
	logger  *slog.Logger
}

var _ browser.Page = (*Session)(nil)

// Goto navigates to path relative to the base URL and waits for the load event.
func (s *Session) Goto(ctx context.Context, path string) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("chrome: goto %q: %w", path, err)
	}
	target := s.base.ResolveReference(ref).String()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}

	page := s.page.Context(ctx)
	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("chrome: navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("chrome: wait load %s: %w", target, err)
	}
	return nil
}

// URL returns location.href.
func (s *Session) URL(ctx context.Context) (string, error) {
	return s.Eval(ctx, `() => location.href`)
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	return s.Eval(ctx, `() => document.title`)
}

// WaitURL polls the location until it matches re.
func (s *Session) WaitURL(ctx context.Context, re *regexp.Regexp) error {
	var last string
	for {
		u, err := s.URL(ctx)
		if err == nil && re.MatchString(u) {
			return nil
		}
		if err == nil {
			last = u
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("chrome: wait url %s (at %s): %w", re, last, ctx.Err())
		case <-time.After(browser.PollInterval):
		}
	}
}

// Query resolves loc against the live DOM. Role locators go through the
// accessibility tree so names are the ones assistive technology sees.
func (s *Session) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	page := s.page.Context(ctx)

	var (
		els rod.Elements
		err error
	)
	if loc.Role != "" {
		els, err = s.byRole(page, loc)
	} else {
		els, err = page.Elements(loc.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("chrome: query %s: %w", loc, err)
	}

	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		el = el.Context(ctx)
		if loc.Within != "" {
			res, err := el.Eval(`(sel) => this.closest(sel) !== null`, loc.Within)
			if err != nil {
				return nil, fmt.Errorf("chrome: query %s: scope: %w", loc, err)
			}
			if !res.Value.Bool() {
				continue
			}
		}
		if loc.HasText != "" {
			txt, err := el.Text()
			if err != nil {
				return nil, fmt.Errorf("chrome: query %s: text: %w", loc, err)
			}
			if !loc.MatchText(txt) {
				continue
			}
		}
		out = append(out, &element{el: el, s: s})
	}
	return out, nil
}

func (s *Session) byRole(page *rod.Page, loc browser.Locator) (rod.Elements, error) {
	tree, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err != nil {
		return nil, err
	}

	var els rod.Elements
	for _, n := range tree.Nodes {
		if n.Ignored || n.Role == nil || n.BackendDOMNodeID == 0 {
			continue
		}
		if n.Role.Value.Str() != loc.Role {
			continue
		}
		name := ""
		if n.Name != nil {
			name = n.Name.Value.Str()
		}
		if !loc.MatchName(name) {
			continue
		}
		el, err := page.ElementFromNode(&proto.DOMNode{BackendNodeID: n.BackendDOMNodeID})
		if err != nil {
			return nil, err
		}
		els = append(els, el)
	}
	return els, nil
}

// Press sends a named key to the focused element.
func (s *Session) Press(ctx context.Context, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	if err := s.page.Context(ctx).Keyboard.Press(k); err != nil {
		return fmt.Errorf("chrome: press %s: %w", key, err)
	}
	return s.settle(ctx)
}

// Type sends text to the focused element one keystroke at a time.
func (s *Session) Type(ctx context.Context, text string) error {
	page := s.page.Context(ctx)
	for _, r := range text {
		k, ok := typeable(r)
		if !ok {
			if err := page.InsertText(string(r)); err != nil {
				return fmt.Errorf("chrome: type %q: %w", r, err)
			}
			continue
		}
		if err := page.Keyboard.Type(k); err != nil {
			return fmt.Errorf("chrome: type %q: %w", r, err)
		}
	}
	return nil
}

// Eval runs a JS function in the page and returns its value as a string.
// Non-string results are JSON-encoded by Rod.
func (s *Session) Eval(ctx context.Context, js string, args ...any) (string, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", fmt.Errorf("chrome: eval: %w", err)
	}
	return res.Value.Str(), nil
}

// Close disposes the incognito context and everything in it.
func (s *Session) Close() error {
	if s.router != nil {
		s.router.Stop()
	}
	if s.context != nil {
		return s.context.Close()
	}
	return s.page.Close()
}

// settle waits for the page to load and the DOM to stop changing after an
// action that may navigate or re-render.
func (s *Session) settle(ctx context.Context) error {
	page := s.page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("chrome: settle: %w", err)
	}
	if err := page.WaitDOMStable(s.cfg.Settle, 0); err != nil {
		return fmt.Errorf("chrome: settle: %w", err)
	}
	return nil
}
