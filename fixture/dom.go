package fixture

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lauaudit/browser"
)

// The functions below model the slice of browser behaviour the checks
// observe: roles, accessible names, visibility, focusability and a handful
// of computed styles. Everything is derived from the parsed document; no CSS
// cascade is evaluated beyond inline style attributes and the defaults of
// the portal stylesheet.

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func inputType(n *html.Node) string {
	t, _ := attr(n, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "text"
	}
	return t
}

// inlineStyle returns a property of the style attribute.
func inlineStyle(n *html.Node, prop string) (string, bool) {
	s, ok := attr(n, "style")
	if !ok {
		return "", false
	}
	for _, decl := range strings.Split(s, ";") {
		k, v, found := strings.Cut(decl, ":")
		if found && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

var hiddenTags = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Title:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Datalist: true,
	atom.Noscript: true,
}

// hidden reports whether n is not rendered.
func hidden(n *html.Node) bool {
	if n.Type == html.ElementNode && n.DataAtom == atom.Input && inputType(n) == "hidden" {
		return true
	}
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		if hiddenTags[c.DataAtom] || hasAttr(c, "hidden") {
			return true
		}
		if v, ok := inlineStyle(c, "display"); ok && v == "none" {
			return true
		}
		if v, ok := inlineStyle(c, "visibility"); ok && v == "hidden" {
			return true
		}
	}
	return false
}

// innerText approximates the rendered text of n.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if c != n && hidden(c) {
				return
			}
			if c.DataAtom == atom.Br {
				b.WriteString(" ")
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
			if k.Type == html.ElementNode {
				b.WriteString(" ")
			}
		}
	}
	walk(n)
	return browser.NormalizeSpace(b.String())
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// role returns the ARIA role of n, explicit or implicit.
func role(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	if r, ok := attr(n, "role"); ok && strings.TrimSpace(r) != "" {
		return strings.Fields(r)[0]
	}
	switch n.DataAtom {
	case atom.A, atom.Area:
		if hasAttr(n, "href") {
			return "link"
		}
	case atom.Button:
		return "button"
	case atom.Input:
		switch inputType(n) {
		case "submit", "button", "reset", "image":
			return "button"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "number":
			return "spinbutton"
		case "range":
			return "slider"
		case "hidden", "password", "file", "color", "date", "time", "datetime-local", "month", "week":
			return ""
		}
		if hasAttr(n, "list") {
			return "combobox"
		}
		return "textbox"
	case atom.Select:
		size, _ := strconv.Atoi(attrOr(n, "size", "0"))
		if hasAttr(n, "multiple") || size > 1 {
			return "listbox"
		}
		return "combobox"
	case atom.Textarea:
		return "textbox"
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return "heading"
	case atom.Main:
		return "main"
	case atom.Nav:
		return "navigation"
	case atom.Header:
		return "banner"
	case atom.Footer:
		return "contentinfo"
	case atom.Form:
		return "form"
	case atom.Table:
		return "table"
	case atom.Ul, atom.Ol:
		return "list"
	case atom.Li:
		return "listitem"
	case atom.P:
		return "paragraph"
	case atom.Option:
		return "option"
	case atom.Img:
		return "img"
	}
	return ""
}

func attrOr(n *html.Node, key, def string) string {
	if v, ok := attr(n, key); ok {
		return v
	}
	return def
}

// byID finds the element with the given id in the tree rooted at root.
func byID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walkElements(root, func(n *html.Node) bool {
		if v, ok := attr(n, "id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// walkElements visits root and its element descendants in document order
// until fn returns false.
func walkElements(root *html.Node, fn func(*html.Node) bool) bool {
	if root == nil {
		return true
	}
	if root.Type == html.ElementNode && !fn(root) {
		return false
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

func ancestor(n *html.Node, a atom.Atom) *html.Node {
	for c := n.Parent; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// labelFor returns the label text of a form control.
func labelFor(root, n *html.Node) string {
	if id, ok := attr(n, "id"); ok && id != "" {
		var text string
		walkElements(root, func(c *html.Node) bool {
			if c.DataAtom == atom.Label {
				if v, ok := attr(c, "for"); ok && v == id {
					text = innerText(c)
					return false
				}
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	if l := ancestor(n, atom.Label); l != nil {
		return innerText(l)
	}
	return ""
}

// accessibleName follows the accessible name computation closely enough for
// the portal's markup: aria-labelledby, aria-label, associated label, then
// content, then title and placeholder.
func accessibleName(root, n *html.Node) string {
	if ids, ok := attr(n, "aria-labelledby"); ok {
		var parts []string
		for _, id := range strings.Fields(ids) {
			if t := byID(root, id); t != nil {
				parts = append(parts, innerText(t))
			}
		}
		if len(parts) > 0 {
			return browser.NormalizeSpace(strings.Join(parts, " "))
		}
	}
	if v, ok := attr(n, "aria-label"); ok && strings.TrimSpace(v) != "" {
		return browser.NormalizeSpace(v)
	}

	switch n.DataAtom {
	case atom.Input:
		switch inputType(n) {
		case "submit", "button", "reset":
			if v, ok := attr(n, "value"); ok {
				return browser.NormalizeSpace(v)
			}
			if inputType(n) == "submit" {
				return "Submit"
			}
			return ""
		}
		if l := labelFor(root, n); l != "" {
			return l
		}
	case atom.Select, atom.Textarea:
		if l := labelFor(root, n); l != "" {
			return l
		}
	case atom.Img:
		return browser.NormalizeSpace(attrOr(n, "alt", ""))
	default:
		switch role(n) {
		case "link", "button", "heading", "option", "listitem", "paragraph":
			if t := innerText(n); t != "" {
				return t
			}
		}
	}
	if v, ok := attr(n, "title"); ok {
		return browser.NormalizeSpace(v)
	}
	if v, ok := attr(n, "placeholder"); ok {
		return browser.NormalizeSpace(v)
	}
	return ""
}

// focusable reports whether n can receive focus by script or pointer.
func focusable(n *html.Node) bool {
	if n.Type != html.ElementNode || hidden(n) || hasAttr(n, "disabled") {
		return false
	}
	if v, ok := attr(n, "tabindex"); ok {
		if _, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return true
		}
	}
	switch n.DataAtom {
	case atom.A, atom.Area:
		return hasAttr(n, "href")
	case atom.Button, atom.Select, atom.Textarea:
		return true
	case atom.Input:
		return inputType(n) != "hidden"
	}
	return false
}

// tabbable reports whether n is in the sequential focus order.
func tabbable(n *html.Node) bool {
	if !focusable(n) {
		return false
	}
	if v, ok := attr(n, "tabindex"); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i < 0 {
			return false
		}
	}
	return true
}

// textEntry reports whether typing into n edits its value.
func textEntry(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch inputType(n) {
		case "text", "email", "search", "tel", "url", "password", "number", "date", "time":
			return true
		}
	}
	return false
}

func isButton(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Button:
		return true
	case atom.Input:
		switch inputType(n) {
		case "submit", "button", "reset", "image":
			return true
		}
	}
	return false
}

// buttonType is "submit", "button" or "reset".
func buttonType(n *html.Node) string {
	if n.DataAtom == atom.Input {
		return inputType(n)
	}
	switch t := strings.ToLower(attrOr(n, "type", "submit")); t {
	case "button", "reset":
		return t
	}
	return "submit"
}

// value returns the current value of a form control.
func value(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	case atom.Select:
		var first, sel *html.Node
		walkElements(n, func(c *html.Node) bool {
			if c.DataAtom != atom.Option {
				return true
			}
			if first == nil {
				first = c
			}
			if hasAttr(c, "selected") {
				sel = c
				return false
			}
			return true
		})
		if sel == nil {
			sel = first
		}
		if sel == nil {
			return ""
		}
		return optionValue(sel)
	}
	return attrOr(n, "value", "")
}

func optionValue(o *html.Node) string {
	if v, ok := attr(o, "value"); ok {
		return v
	}
	return innerText(o)
}

func setValue(n *html.Node, v string) {
	if n.DataAtom == atom.Textarea {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
		return
	}
	setAttr(n, "value", v)
}

// selectOption selects the option whose label or value equals v. It reports
// whether one matched.
func selectOption(sel *html.Node, v string, prefix bool) bool {
	var match *html.Node
	var options []*html.Node
	walkElements(sel, func(c *html.Node) bool {
		if c.DataAtom != atom.Option {
			return true
		}
		options = append(options, c)
		if match != nil {
			return true
		}
		label := innerText(c)
		switch {
		case prefix && v != "" && strings.HasPrefix(strings.ToLower(label), strings.ToLower(v)):
			match = c
		case !prefix && (label == browser.NormalizeSpace(v) || optionValue(c) == v):
			match = c
		}
		return true
	})
	if match == nil {
		return false
	}
	for _, o := range options {
		removeAttr(o, "selected")
	}
	setAttr(match, "selected", "")
	return true
}

// defaultFontSize mirrors the portal stylesheet.
func defaultFontSize(n *html.Node) string {
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		if v, ok := inlineStyle(c, "font-size"); ok {
			return v
		}
		switch headingLevel(c) {
		case 1:
			return "32px"
		case 2:
			return "24px"
		case 3:
			return "19px"
		}
	}
	return "16px"
}

// focusStyle returns outline-style, outline-width and box-shadow of a focused
// element: the portal focus ring unless the inline style removes it.
func focusStyle(n *html.Node, prop string) string {
	outline, hasOutline := inlineStyle(n, "outline")
	switch prop {
	case "outline-style":
		if v, ok := inlineStyle(n, prop); ok {
			return v
		}
		if hasOutline && (outline == "none" || outline == "0") {
			return "none"
		}
		return "solid"
	case "outline-width":
		if v, ok := inlineStyle(n, prop); ok {
			return v
		}
		if hasOutline && (outline == "none" || outline == "0") {
			return "0px"
		}
		return "3px"
	case "box-shadow":
		if v, ok := inlineStyle(n, prop); ok {
			return v
		}
		return "rgb(11, 12, 12) 0px 0px 0px 2px inset"
	}
	return ""
}
