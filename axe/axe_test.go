package axe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleResult = `{
	"url": "https://lau.example.net/case-audit",
	"violations": [
		{
			"id": "color-contrast",
			"impact": "serious",
			"help": "Elements must meet minimum color contrast ratio thresholds",
			"helpUrl": "https://dequeuniversity.com/rules/axe/4.10/color-contrast",
			"nodes": [
				{
					"target": [".govuk-hint"],
					"html": "<div class=\"govuk-hint\">Hint</div>",
					"failureSummary": "Fix any of the following:\n  Element has insufficient color contrast of 3.2"
				},
				{
					"target": ["#footer", "a"],
					"html": "<a href=\"/cookies\">Cookies</a>",
					"failureSummary": "Fix any of the following: low contrast"
				}
			]
		}
	]
}`

func TestParseResult(t *testing.T) {
	url, vs, err := ParseResult([]byte(sampleResult))
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://lau.example.net/case-audit" {
		t.Errorf("url: got %q", url)
	}
	if len(vs) != 1 {
		t.Fatalf("violations: got %d, want 1", len(vs))
	}
	v := vs[0]
	if v.ID != "color-contrast" || v.Impact != "serious" {
		t.Errorf("violation: got %+v", v)
	}
	if len(v.Nodes) != 2 {
		t.Fatalf("nodes: got %d, want 2", len(v.Nodes))
	}
	if got := strings.Join(v.Nodes[1].Target, " "); got != "#footer a" {
		t.Errorf("target: got %q", got)
	}
}

func TestParseResult_Invalid(t *testing.T) {
	if _, _, err := ParseResult([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, _, err := ParseResult([]byte(`{"url": "x"}`)); err == nil {
		t.Error("expected error for missing violations")
	}
}

func TestViolationError_FullDetail(t *testing.T) {
	_, vs, _ := ParseResult([]byte(sampleResult))
	err := &ViolationError{URL: "u", Options: Rules("color-contrast"), Violations: vs}
	msg := err.Error()
	for _, frag := range []string{
		"1 violation(s)",
		"rules: color-contrast",
		"color-contrast [serious]",
		".govuk-hint: Fix any of the following: Element has insufficient color contrast of 3.2",
		"#footer a",
		`<a href="/cookies">Cookies</a>`,
	} {
		if !strings.Contains(msg, frag) {
			t.Errorf("message missing %q:\n%s", frag, msg)
		}
	}
}

type fakeEval struct {
	loaded  bool
	calls   []string
	rules   []string
	result  string
	evalErr error
}

func (f *fakeEval) Eval(_ context.Context, js string, args ...any) (string, error) {
	if f.evalErr != nil {
		return "", f.evalErr
	}
	switch js {
	case loadedJS:
		f.calls = append(f.calls, "probe")
		if f.loaded {
			return "true", nil
		}
		return "false", nil
	case injectJS:
		f.calls = append(f.calls, "inject")
		f.loaded = true
		return "true", nil
	case runJS:
		f.calls = append(f.calls, "run")
		f.rules = args[0].([]string)
		return f.result, nil
	}
	return "", errors.New("unexpected script")
}

func TestAuditor_InjectsOnceAndPasses(t *testing.T) {
	ev := &fakeEval{result: `{"url": "u", "violations": []}`}
	a := NewAuditor([]byte("window.axe = {}"), ev, nil)

	if err := a.Audit(context.Background(), Rules("html-has-lang")); err != nil {
		t.Fatalf("first audit: %v", err)
	}
	if err := a.Audit(context.Background(), Options{}); err != nil {
		t.Fatalf("second audit: %v", err)
	}

	want := "probe,inject,run,probe,run"
	if got := strings.Join(ev.calls, ","); got != want {
		t.Errorf("calls: got %s, want %s", got, want)
	}
	if ev.rules == nil || len(ev.rules) != 0 {
		t.Errorf("default audit should pass an empty rule list, got %#v", ev.rules)
	}
}

func TestAuditor_Violations(t *testing.T) {
	ev := &fakeEval{loaded: true, result: sampleResult}
	a := NewAuditor(nil, ev, nil)

	err := a.Audit(context.Background(), Rules("color-contrast"))
	var ve *ViolationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want *ViolationError", err)
	}
	if len(ve.Violations) != 1 || ve.Options.Rules[0] != "color-contrast" {
		t.Errorf("ViolationError: got %+v", ve)
	}
}

func TestAuditor_EvalErrorPropagates(t *testing.T) {
	ev := &fakeEval{evalErr: context.DeadlineExceeded}
	a := NewAuditor(nil, ev, nil)
	if err := a.Audit(context.Background(), Options{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axe.min.js")
	if err := os.WriteFile(path, []byte("/*! axe v4 */ window.axe = {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := Source{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "axe v4") {
		t.Errorf("data: got %q", data)
	}
}

func TestSource_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/axe.min.js" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("/*! axe */"))
	}))
	defer srv.Close()

	data, err := Source{URL: srv.URL + "/axe.min.js"}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "/*! axe */" {
		t.Errorf("data: got %q", data)
	}

	if _, err := (Source{URL: srv.URL + "/missing.js"}).Load(context.Background()); err == nil {
		t.Error("expected error for 404")
	}
}

func TestSource_RejectsNonAxe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.js")
	os.WriteFile(path, []byte("console.log(1)"), 0o644)
	if _, err := (Source{Path: path}).Load(context.Background()); err == nil {
		t.Error("expected error for non-axe script")
	}
}
