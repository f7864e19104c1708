// CLAUDE:SUMMARY In-process browser.Page: fetches pages through an http.Client (optionally bound to an http.Handler), parses them with goquery and models focus, Tab order, typing, clicks and form submission.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lauaudit/browser"
)

// ErrStale is returned by an Element whose page has since been replaced.
var ErrStale = errors.New("fixture: element belongs to a previous document")

// ErrClosed is returned once the driver is closed.
var ErrClosed = errors.New("fixture: page is closed")

// DriverConfig configures a Driver.
type DriverConfig struct {
	// BaseURL resolves relative paths. Default: "http://lau.test".
	BaseURL string

	// Handler serves every request in-process. Nil sends requests over the
	// network to BaseURL.
	Handler http.Handler

	Logger *slog.Logger
}

func (c *DriverConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://lau.test"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Driver is a headless, script-less page. Each Driver has its own cookie
// jar, so drivers are isolated sessions. A Driver is not safe for
// concurrent use, matching browser.Page.
type Driver struct {
	cfg    DriverConfig
	base   *url.URL
	client *http.Client
	logger *slog.Logger

	url    *url.URL
	doc    *goquery.Document
	gen    int
	focus  *html.Node
	closed bool
}

var _ browser.Page = (*Driver)(nil)

// NewDriver opens a session.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("fixture: invalid base URL %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("fixture: cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar}
	if cfg.Handler != nil {
		client.Transport = handlerTransport{h: cfg.Handler}
	}

	d := &Driver{cfg: cfg, base: base, client: client, logger: cfg.Logger}
	d.url = base
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	if err != nil {
		return nil, err
	}
	d.doc = doc
	return d, nil
}

// handlerTransport answers requests by calling an http.Handler directly.
type handlerTransport struct {
	h http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	if r.Body == nil {
		r.Body = http.NoBody
	}
	r.RequestURI = r.URL.RequestURI()
	r.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, r)
	res := rec.Result()
	res.Request = req
	return res, nil
}

func (d *Driver) live() error {
	if d.closed {
		return ErrClosed
	}
	return nil
}

// load performs a request and replaces the current document with the
// response, following redirects.
func (d *Driver) load(ctx context.Context, method string, u *url.URL, form url.Values) error {
	var body io.Reader
	target := *u
	target.Fragment = ""
	if form != nil {
		if method == http.MethodGet {
			target.RawQuery = form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("fixture: %s %s: %w", method, target.String(), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fixture: %s %s: %w", method, target.String(), err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		d.logger.Warn("fixture: error status", "url", res.Request.URL.String(), "status", res.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return fmt.Errorf("fixture: parse %s: %w", res.Request.URL, err)
	}
	d.doc = doc
	d.url = res.Request.URL
	d.gen++
	d.focus = nil
	return nil
}

func (d *Driver) Goto(ctx context.Context, path string) error {
	if err := d.live(); err != nil {
		return err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("fixture: goto %q: %w", path, err)
	}
	return d.load(ctx, http.MethodGet, d.base.ResolveReference(ref), nil)
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	if err := d.live(); err != nil {
		return "", err
	}
	return d.url.String(), nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	if err := d.live(); err != nil {
		return "", err
	}
	return browser.NormalizeSpace(d.doc.Find("title").First().Text()), nil
}

func (d *Driver) WaitURL(ctx context.Context, re *regexp.Regexp) error {
	for {
		if err := d.live(); err != nil {
			return err
		}
		if re.MatchString(d.url.String()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("fixture: wait url %s (at %s): %w", re, d.url, ctx.Err())
		case <-time.After(browser.PollInterval):
		}
	}
}

func (d *Driver) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	var nodes []*html.Node
	if loc.Role != "" {
		root := d.doc.Get(0)
		walkElements(root, func(n *html.Node) bool {
			if role(n) == loc.Role && !hidden(n) && loc.MatchName(accessibleName(root, n)) {
				nodes = append(nodes, n)
			}
			return true
		})
	} else {
		nodes = d.doc.Find(loc.CSS).Nodes
	}

	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		if loc.Within != "" && d.doc.FindNodes(n).Closest(loc.Within).Length() == 0 {
			continue
		}
		if !loc.MatchText(innerText(n)) {
			continue
		}
		out = append(out, &element{d: d, n: n, gen: d.gen})
	}
	return out, nil
}

func (d *Driver) Press(ctx context.Context, key string) error {
	if err := d.live(); err != nil {
		return err
	}
	f := d.focus
	switch key {
	case "Tab":
		d.focus = d.nextTabbable(f)
	case "Enter":
		if f == nil {
			return nil
		}
		switch {
		case role(f) == "combobox":
			// Enter confirms the selection of a combobox.
		case f.DataAtom == atom.A && hasAttr(f, "href"):
			return d.click(ctx, f)
		case isButton(f):
			return d.click(ctx, f)
		case f.DataAtom == atom.Input && textEntry(f):
			if form := d.formOf(f); form != nil {
				return d.submit(ctx, form, d.defaultButton(form))
			}
		}
	case " ", "Space":
		if f != nil && (isButton(f) || f.DataAtom == atom.Input) {
			return d.click(ctx, f)
		}
	case "Escape", "ArrowDown", "ArrowUp", "ArrowLeft", "ArrowRight", "Backspace":
		if key == "Backspace" && f != nil && textEntry(f) {
			v := []rune(value(f))
			if len(v) > 0 {
				setValue(f, string(v[:len(v)-1]))
			}
		}
	default:
		if len([]rune(key)) == 1 {
			return d.Type(ctx, key)
		}
		return fmt.Errorf("fixture: unknown key %q", key)
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, text string) error {
	if err := d.live(); err != nil {
		return err
	}
	f := d.focus
	switch {
	case f == nil:
	case textEntry(f):
		setValue(f, value(f)+text)
	case f.DataAtom == atom.Select:
		selectOption(f, text, true)
	}
	return nil
}

func (d *Driver) Close() error {
	d.closed = true
	d.focus = nil
	return nil
}

// nextTabbable returns the first tabbable element after from in document
// order, or the first tabbable element when from is nil. Past the last one,
// focus leaves the document.
func (d *Driver) nextTabbable(from *html.Node) *html.Node {
	var next *html.Node
	passed := from == nil
	walkElements(d.doc.Get(0), func(n *html.Node) bool {
		if !passed {
			passed = n == from
			return true
		}
		if tabbable(n) {
			next = n
			return false
		}
		return true
	})
	return next
}

func (d *Driver) formOf(n *html.Node) *html.Node {
	if id, ok := attr(n, "form"); ok {
		return byID(d.doc.Get(0), id)
	}
	return ancestor(n, atom.Form)
}

func (d *Driver) defaultButton(form *html.Node) *html.Node {
	var btn *html.Node
	walkElements(form, func(n *html.Node) bool {
		if isButton(n) && buttonType(n) == "submit" && !hasAttr(n, "disabled") {
			btn = n
			return false
		}
		return true
	})
	return btn
}

// click activates n the way a pointer click would.
func (d *Driver) click(ctx context.Context, n *html.Node) error {
	if focusable(n) {
		d.focus = n
	} else if n.DataAtom == atom.Label {
		if id, ok := attr(n, "for"); ok {
			if c := byID(d.doc.Get(0), id); c != nil && focusable(c) {
				d.focus = c
			}
		}
		return nil
	} else {
		d.focus = nil
	}

	switch {
	case n.DataAtom == atom.A && hasAttr(n, "href"):
		return d.follow(ctx, n)
	case isButton(n):
		if buttonType(n) != "submit" {
			return nil
		}
		if form := d.formOf(n); form != nil {
			return d.submit(ctx, form, n)
		}
	case n.DataAtom == atom.Input && (inputType(n) == "checkbox" || inputType(n) == "radio"):
		if hasAttr(n, "checked") && inputType(n) == "checkbox" {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	}
	return nil
}

// follow handles a link activation: in-page anchors move focus to their
// target, _blank links open elsewhere and leave this page untouched.
func (d *Driver) follow(ctx context.Context, a *html.Node) error {
	href, _ := attr(a, "href")
	if t, _ := attr(a, "target"); t == "_blank" {
		d.logger.Debug("fixture: link opens a new browsing context", "href", href)
		return nil
	}
	if strings.HasPrefix(href, "#") {
		id := strings.TrimPrefix(href, "#")
		u := *d.url
		u.Fragment = id
		d.url = &u
		if t := byID(d.doc.Get(0), id); t != nil && focusable(t) {
			d.focus = t
		}
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("fixture: link href %q: %w", href, err)
	}
	return d.load(ctx, http.MethodGet, d.url.ResolveReference(ref), nil)
}

// submit sends form with the successful controls and the submitter.
func (d *Driver) submit(ctx context.Context, form, submitter *html.Node) error {
	values := url.Values{}
	walkElements(form, func(n *html.Node) bool {
		name, ok := attr(n, "name")
		if !ok || name == "" || hasAttr(n, "disabled") {
			return true
		}
		switch n.DataAtom {
		case atom.Input:
			switch inputType(n) {
			case "submit", "button", "reset", "image":
				if n == submitter {
					values.Add(name, value(n))
				}
			case "checkbox", "radio":
				if hasAttr(n, "checked") {
					values.Add(name, attrOr(n, "value", "on"))
				}
			case "file":
			default:
				values.Add(name, value(n))
			}
		case atom.Button:
			if n == submitter {
				values.Add(name, value(n))
			}
		case atom.Select, atom.Textarea:
			values.Add(name, value(n))
		}
		return true
	})

	method := strings.ToUpper(attrOr(form, "method", "GET"))
	if method != http.MethodPost {
		method = http.MethodGet
	}
	action := d.url
	if a, ok := attr(form, "action"); ok && a != "" {
		ref, err := url.Parse(a)
		if err != nil {
			return fmt.Errorf("fixture: form action %q: %w", a, err)
		}
		action = d.url.ResolveReference(ref)
	}
	d.logger.Debug("fixture: submit", "method", method, "action", action.String())
	return d.load(ctx, method, action, values)
}

// element is a node of the document that was current when it was located.
type element struct {
	d   *Driver
	n   *html.Node
	gen int
}

var _ browser.Element = (*element)(nil)

func (e *element) check(ctx context.Context) error {
	if err := e.d.live(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.gen != e.d.gen {
		return ErrStale
	}
	return nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	if err := e.check(ctx); err != nil {
		return false, err
	}
	return !hidden(e.n), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return innerText(e.n), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := attr(e.n, name)
	return v, ok, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return e.n.Data, nil
}

func (e *element) Style(ctx context.Context, prop string) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	switch prop {
	case "font-size":
		return defaultFontSize(e.n), nil
	case "outline-style", "outline-width", "box-shadow":
		if e.d.focus == e.n {
			return focusStyle(e.n, prop), nil
		}
		if v, ok := inlineStyle(e.n, prop); ok {
			return v, nil
		}
		if prop == "outline-width" {
			return "0px", nil
		}
		return "none", nil
	case "display":
		if hidden(e.n) {
			return "none", nil
		}
	}
	v, _ := inlineStyle(e.n, prop)
	return v, nil
}

func (e *element) Focused(ctx context.Context) (bool, error) {
	if err := e.check(ctx); err != nil {
		return false, err
	}
	return e.d.focus == e.n, nil
}

func (e *element) Focus(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if focusable(e.n) {
		e.d.focus = e.n
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if hidden(e.n) {
		return fmt.Errorf("fixture: click on a hidden <%s>", e.n.Data)
	}
	return e.d.click(ctx, e.n)
}

func (e *element) Fill(ctx context.Context, v string) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	switch {
	case e.n.DataAtom == atom.Select:
		if !selectOption(e.n, v, false) {
			return fmt.Errorf("fixture: fill: no option %q", v)
		}
	case textEntry(e.n):
		setValue(e.n, v)
	default:
		return fmt.Errorf("fixture: fill: <%s> is not editable", e.n.Data)
	}
	if focusable(e.n) {
		e.d.focus = e.n
	}
	return nil
}
