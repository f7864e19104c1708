package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/lauaudit/browser"
)

// TitlePresent asserts the document has a non-empty title.
func (f *Facade) TitlePresent(ctx context.Context) error {
	title, err := f.page.Title(ctx)
	if err != nil {
		return wrap(CheckTitlePresent, err)
	}
	if strings.TrimSpace(title) == "" {
		return fail(CheckTitlePresent, "a document title", `""`)
	}
	return nil
}

// TitleDescriptive asserts the title contains at least one of the profile's
// keywords, case-insensitively.
func (f *Facade) TitleDescriptive(ctx context.Context) error {
	e, _, err := f.entry(ctx)
	if err != nil {
		return wrap(CheckTitleDescriptive, err)
	}
	title, err := f.page.Title(ctx)
	if err != nil {
		return wrap(CheckTitleDescriptive, err)
	}
	lower := strings.ToLower(title)
	for _, kw := range e.TitleKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return nil
		}
	}
	return fail(CheckTitleDescriptive,
		fmt.Sprintf("title containing one of %q", e.TitleKeywords),
		fmt.Sprintf("%q", title))
}

// TitleUnique visits every profile route in order, confirms each navigation
// landed on that route and asserts the collected titles are pairwise
// distinct. It leaves the page on the last route.
func (f *Facade) TitleUnique(ctx context.Context) error {
	routes := f.cat.Routes()
	titles := make([]string, 0, len(routes))
	for _, route := range routes {
		if err := f.page.Goto(ctx, route); err != nil {
			return wrap(CheckTitleUnique, err)
		}
		re := regexp.MustCompile(regexp.QuoteMeta(route) + `$`)
		sctx, cancel := f.step(ctx)
		err := f.page.WaitURL(sctx, re)
		cancel()
		if err != nil {
			return wrap(CheckTitleUnique, err)
		}
		title, err := f.page.Title(ctx)
		if err != nil {
			return wrap(CheckTitleUnique, err)
		}
		titles = append(titles, title)
	}
	return distinctTitles(routes, titles)
}

func distinctTitles(routes, titles []string) error {
	seen := make(map[string]string, len(titles))
	for i, t := range titles {
		if prev, ok := seen[t]; ok {
			return fail(CheckTitleUnique,
				fmt.Sprintf("%d distinct titles", len(titles)),
				fmt.Sprintf("%q on both %s and %s", t, prev, routes[i]))
		}
		seen[t] = routes[i]
	}
	return nil
}

// Language asserts the root element declares the configured language.
func (f *Facade) Language(ctx context.Context) error {
	sctx, cancel := f.step(ctx)
	el, err := browser.First(sctx, f.page, browser.CSS("html"))
	cancel()
	if err != nil {
		return wrap(CheckLanguage, err)
	}
	lang, ok, err := el.Attribute(ctx, "lang")
	if err != nil {
		return wrap(CheckLanguage, err)
	}
	if !ok || lang != f.cat.Language {
		return fail(CheckLanguage, fmt.Sprintf("lang=%q", f.cat.Language), fmt.Sprintf("lang=%q", lang))
	}
	return nil
}
