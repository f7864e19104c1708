package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/lauaudit/browser"
)

// LinkRecord is one visible anchor: its trimmed lowercase text and its href.
type LinkRecord struct {
	Text string
	Href string
}

// UniqueLinks asserts that no two visible links share a name but lead to
// different destinations.
func (f *Facade) UniqueLinks(ctx context.Context) error {
	els, err := f.page.Query(ctx, browser.CSS("a"))
	if err != nil {
		return wrap(CheckUniqueLinks, err)
	}
	var links []LinkRecord
	for _, el := range els {
		vis, err := el.Visible(ctx)
		if err != nil {
			return wrap(CheckUniqueLinks, err)
		}
		if !vis {
			continue
		}
		text, err := el.Text(ctx)
		if err != nil {
			return wrap(CheckUniqueLinks, err)
		}
		href, _, err := el.Attribute(ctx, "href")
		if err != nil {
			return wrap(CheckUniqueLinks, err)
		}
		links = append(links, LinkRecord{
			Text: strings.ToLower(browser.NormalizeSpace(text)),
			Href: href,
		})
	}
	f.logger.Debug("verify: visible links", "count", len(links))
	return CheckLinkNames(links)
}

// CheckLinkNames builds a text to href multimap in one pass and fails on the
// first text (in input order) that maps to more than one href.
func CheckLinkNames(links []LinkRecord) error {
	hrefs := make(map[string]map[string]struct{}, len(links))
	var order []string
	for _, l := range links {
		set, ok := hrefs[l.Text]
		if !ok {
			set = make(map[string]struct{}, 1)
			hrefs[l.Text] = set
			order = append(order, l.Text)
		}
		set[l.Href] = struct{}{}
	}
	for _, text := range order {
		set := hrefs[text]
		if len(set) == 1 {
			continue
		}
		got := make([]string, 0, len(set))
		for h := range set {
			got = append(got, h)
		}
		sort.Strings(got)
		return fail(CheckUniqueLinks,
			fmt.Sprintf("link %q to have one destination", text),
			strings.Join(got, ", "))
	}
	return nil
}

// NewTabLink asserts that the CSV usage guide link opens a new browsing
// context and warns about it in its text.
func (f *Facade) NewTabLink(ctx context.Context) error {
	el, err := f.waitVisible(ctx, f.cat.CSVGuideLink)
	if err != nil {
		return wrap(CheckNewTabLink, err)
	}
	target, _, err := el.Attribute(ctx, "target")
	if err != nil {
		return wrap(CheckNewTabLink, err)
	}
	if target != f.cat.NewTabTarget {
		return fail(CheckNewTabLink, fmt.Sprintf("target=%q", f.cat.NewTabTarget), fmt.Sprintf("target=%q", target))
	}
	text, err := el.Text(ctx)
	if err != nil {
		return wrap(CheckNewTabLink, err)
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(f.cat.NewTabWarning)) {
		return fail(CheckNewTabLink, fmt.Sprintf("text containing %q", f.cat.NewTabWarning), fmt.Sprintf("%q", text))
	}
	return nil
}

// SkipLink asserts the skip link is visible and targets the main content
// anchor exactly.
func (f *Facade) SkipLink(ctx context.Context) error {
	el, err := f.waitVisible(ctx, f.cat.SkipLink)
	if err != nil {
		return wrap(CheckSkipLink, err)
	}
	href, _, err := el.Attribute(ctx, "href")
	if err != nil {
		return wrap(CheckSkipLink, err)
	}
	if href != f.cat.MainAnchor {
		return fail(CheckSkipLink, fmt.Sprintf("href=%q", f.cat.MainAnchor), fmt.Sprintf("href=%q", href))
	}
	return nil
}

// Pagination asserts the next and last controls are visible, and the previous
// control too when the page has one.
func (f *Facade) Pagination(ctx context.Context) error {
	for _, loc := range []browser.Locator{f.cat.Pagination.Next, f.cat.Pagination.Last} {
		if _, err := f.waitVisible(ctx, loc); err != nil {
			return wrap(CheckPagination, err)
		}
	}
	n, err := browser.Count(ctx, f.page, f.cat.Pagination.Previous)
	if err != nil {
		return wrap(CheckPagination, err)
	}
	if n == 0 {
		return nil
	}
	if _, err := f.waitVisible(ctx, f.cat.Pagination.Previous); err != nil {
		return wrap(CheckPagination, err)
	}
	return nil
}
