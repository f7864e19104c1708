// CLAUDE:SUMMARY Runs axe-core inside a page through an Evaluator, injecting the script on first use.
package axe

import (
	"context"
	"fmt"
	"log/slog"
)

// Evaluator runs a JS function in the page and returns its result as a
// string. The function receives args as parameters; promises are awaited.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) (string, error)
}

// Auditor is the Oracle for one page.
type Auditor struct {
	script string
	eval   Evaluator
	logger *slog.Logger
}

// NewAuditor binds the axe-core source to a page evaluator.
func NewAuditor(script []byte, ev Evaluator, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{script: string(script), eval: ev, logger: logger}
}

const loadedJS = `() => String(typeof window.axe !== 'undefined')`

const injectJS = `(source) => {
	const s = document.createElement('script');
	s.text = source;
	(document.head || document.documentElement).appendChild(s);
	return String(typeof window.axe !== 'undefined');
}`

const runJS = `async (rules) => {
	const opts = rules.length ? { runOnly: { type: 'rule', values: rules } } : {};
	const res = await window.axe.run(document, opts);
	return JSON.stringify({ url: location.href, violations: res.violations });
}`

// Audit runs the selected rules against the current document.
func (a *Auditor) Audit(ctx context.Context, opts Options) error {
	loaded, err := a.eval.Eval(ctx, loadedJS)
	if err != nil {
		return fmt.Errorf("axe: probe: %w", err)
	}
	if loaded != "true" {
		ok, err := a.eval.Eval(ctx, injectJS, a.script)
		if err != nil {
			return fmt.Errorf("axe: inject: %w", err)
		}
		if ok != "true" {
			return fmt.Errorf("axe: script injected but window.axe is undefined")
		}
	}

	rules := opts.Rules
	if rules == nil {
		rules = []string{}
	}
	out, err := a.eval.Eval(ctx, runJS, rules)
	if err != nil {
		return fmt.Errorf("axe: run %s: %w", opts, err)
	}

	url, violations, err := ParseResult([]byte(out))
	if err != nil {
		return err
	}
	a.logger.Debug("axe: audit complete", "url", url, "rules", opts.String(), "violations", len(violations))
	if len(violations) > 0 {
		return &ViolationError{URL: url, Options: opts, Violations: violations}
	}
	return nil
}
