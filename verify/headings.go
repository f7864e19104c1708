package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/lauaudit/browser"
)

// DistinctHeadings asserts that the computed font size of the level-1
// heading is strictly greater than the level-2 heading, which is strictly
// greater than the introductory paragraph. Each of the three must resolve to
// exactly one visible element.
func (f *Facade) DistinctHeadings(ctx context.Context) error {
	e, _, err := f.entry(ctx)
	if err != nil {
		return wrap(CheckDistinctHeadings, err)
	}
	h1, h2, p := e.Headings()

	locs := []browser.Locator{
		browser.Role("heading", h1),
		browser.ExactRole("heading", h2),
		browser.CSS("p").Filter(p).In("main"),
	}
	var sizes [3]float64
	for i, loc := range locs {
		el, err := f.waitVisible(ctx, loc)
		if err != nil {
			return wrap(CheckDistinctHeadings, err)
		}
		raw, err := el.Style(ctx, "font-size")
		if err != nil {
			return wrap(CheckDistinctHeadings, err)
		}
		px, err := parsePx(raw)
		if err != nil {
			return wrap(CheckDistinctHeadings, fmt.Errorf("%s: %w", loc, err))
		}
		sizes[i] = px
	}
	return compareHeadingSizes(sizes[0], sizes[1], sizes[2])
}

func compareHeadingSizes(h1, h2, p float64) error {
	if h1 > h2 && h2 > p {
		return nil
	}
	return fail(CheckDistinctHeadings,
		"font-size h1 > h2 > p",
		fmt.Sprintf("h1=%gpx h2=%gpx p=%gpx", h1, h2, p))
}

// parsePx reads a computed CSS length such as "24px".
func parsePx(v string) (float64, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimSuffix(s, "px")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("font-size %q is not a pixel length", v)
	}
	return n, nil
}

// HeadingOrder asserts that the first two headings of the main region are an
// h1 followed by an h2.
func (f *Facade) HeadingOrder(ctx context.Context) error {
	loc := browser.Role("heading", "").In("main")
	if _, err := func() (browser.Element, error) {
		sctx, cancel := f.step(ctx)
		defer cancel()
		return browser.First(sctx, f.page, loc)
	}(); err != nil {
		return wrap(CheckHeadingOrder, err)
	}

	els, err := f.page.Query(ctx, loc)
	if err != nil {
		return wrap(CheckHeadingOrder, err)
	}
	if len(els) < 2 {
		return fail(CheckHeadingOrder, "at least two headings in main", len(els))
	}
	var tags [2]string
	for i := range tags {
		if tags[i], err = els[i].TagName(ctx); err != nil {
			return wrap(CheckHeadingOrder, err)
		}
	}
	if tags[0] != "h1" || tags[1] != "h2" {
		return fail(CheckHeadingOrder, "h1 then h2", tags[0]+" then "+tags[1])
	}
	return nil
}
