// Package axe is the accessibility oracle: it injects axe-core into the
// current page, runs either the default rule set or a named subset, and turns
// the result into an error carrying every violation in full.
package axe

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Options selects the rules to run. No rules = the full default rule set.
type Options struct {
	Rules []string
}

// Rules is shorthand for Options{Rules: ids}.
func Rules(ids ...string) Options { return Options{Rules: ids} }

func (o Options) String() string {
	if len(o.Rules) == 0 {
		return "default"
	}
	return strings.Join(o.Rules, ",")
}

// Oracle audits the page it is bound to. A nil error means no violations.
type Oracle interface {
	Audit(ctx context.Context, opts Options) error
}

// Violation is one failed axe rule.
type Violation struct {
	ID      string
	Impact  string
	Help    string
	HelpURL string
	Nodes   []Node
}

// Node is one offending element of a violation.
type Node struct {
	Target         []string
	HTML           string
	FailureSummary string
}

// ViolationError reports a failed audit. Error() renders every violation and
// node; nothing is summarised away.
type ViolationError struct {
	URL        string
	Options    Options
	Violations []Violation
}

func (e *ViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "axe: %d violation(s) on %s (rules: %s)", len(e.Violations), e.URL, e.Options)
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n- %s [%s]: %s (%s)", v.ID, v.Impact, v.Help, v.HelpURL)
		for _, n := range v.Nodes {
			fmt.Fprintf(&b, "\n    %s: %s", strings.Join(n.Target, " "), oneLine(n.FailureSummary))
			if n.HTML != "" {
				fmt.Fprintf(&b, "\n      %s", n.HTML)
			}
		}
	}
	return b.String()
}

// ParseResult reads the JSON produced by the audit script:
// {"url": "...", "violations": [...axe violation objects...]}.
func ParseResult(data []byte) (url string, violations []Violation, err error) {
	if !gjson.ValidBytes(data) {
		return "", nil, fmt.Errorf("axe: result is not valid JSON")
	}
	res := gjson.ParseBytes(data)
	vs := res.Get("violations")
	if !vs.IsArray() {
		return "", nil, fmt.Errorf("axe: result has no violations array")
	}

	vs.ForEach(func(_, v gjson.Result) bool {
		viol := Violation{
			ID:      v.Get("id").String(),
			Impact:  v.Get("impact").String(),
			Help:    v.Get("help").String(),
			HelpURL: v.Get("helpUrl").String(),
		}
		v.Get("nodes").ForEach(func(_, n gjson.Result) bool {
			node := Node{
				HTML:           n.Get("html").String(),
				FailureSummary: n.Get("failureSummary").String(),
			}
			for _, t := range n.Get("target").Array() {
				node.Target = append(node.Target, t.String())
			}
			viol.Nodes = append(viol.Nodes, node)
			return true
		})
		violations = append(violations, viol)
		return true
	})
	return res.Get("url").String(), violations, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
