// CLAUDE:SUMMARY Auto-waiting element resolution on top of Page.Query: strict single match, visibility polling, URL waits.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PollInterval is how often the wait helpers re-query the page.
var PollInterval = 100 * time.Millisecond

// ErrAmbiguous is returned when a strict lookup matches more than one element.
var ErrAmbiguous = errors.New("browser: locator matched more than one element")

// ErrNotFound is returned when a strict lookup matches nothing. Wait helpers
// return the context error instead once their budget runs out.
var ErrNotFound = errors.New("browser: locator matched no element")

// Single returns the one element matching loc right now.
func Single(ctx context.Context, p Page, loc Locator) (Element, error) {
	els, err := p.Query(ctx, loc)
	if err != nil {
		return nil, err
	}
	switch len(els) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	case 1:
		return els[0], nil
	default:
		return nil, fmt.Errorf("%w: %s (%d matches)", ErrAmbiguous, loc, len(els))
	}
}

// WaitVisible polls until exactly one element matches loc and it is visible.
// More than one match or an invalid locator fails immediately; no match fails
// when ctx expires.
func WaitVisible(ctx context.Context, p Page, loc Locator) (Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	var last error
	for {
		el, err := Single(ctx, p, loc)
		switch {
		case errors.Is(err, ErrAmbiguous), errors.Is(err, ErrInvalidLocator):
			return nil, err
		case err == nil:
			vis, verr := el.Visible(ctx)
			if verr == nil && vis {
				return el, nil
			}
			last = fmt.Errorf("browser: %s is not visible", loc)
			if verr != nil {
				last = verr
			}
		case errors.Is(err, ErrNotFound):
			last = err
		default:
			if ctx.Err() == nil {
				last = err
				break
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("browser: wait visible %s: %w (last: %v)", loc, ctx.Err(), last)
		case <-time.After(PollInterval):
		}
	}
}

// First waits until at least one element matches loc and returns the first.
func First(ctx context.Context, p Page, loc Locator) (Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	for {
		els, err := p.Query(ctx, loc)
		if err != nil && (ctx.Err() != nil || errors.Is(err, ErrInvalidLocator)) {
			return nil, err
		}
		if err == nil && len(els) > 0 {
			return els[0], nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("browser: wait first %s: %w", loc, ctx.Err())
		case <-time.After(PollInterval):
		}
	}
}

// Count returns how many elements match loc right now.
func Count(ctx context.Context, p Page, loc Locator) (int, error) {
	els, err := p.Query(ctx, loc)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}
