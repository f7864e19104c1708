package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/lauaudit/axe"
	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
	"github.com/hazyhaar/lauaudit/fixture"
	"github.com/hazyhaar/lauaudit/idgen"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var creds = Credentials{Username: "auditor@example.com", Password: "secret"}

func defaultCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	cat, err := catalogue.Default()
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func fastPoll(t *testing.T) {
	t.Helper()
	old := browser.PollInterval
	browser.PollInterval = time.Millisecond
	t.Cleanup(func() { browser.PollInterval = old })
}

func TestCredentialsFromEnv(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	c, err := CredentialsFromEnv(env(map[string]string{EnvUsername: "u", EnvPassword: "p"}))
	if err != nil || c.Username != "u" || c.Password != "p" {
		t.Fatalf("got %+v, %v", c, err)
	}

	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{EnvPassword: "p"}, EnvUsername},
		{map[string]string{EnvUsername: "u"}, EnvPassword},
		{map[string]string{}, EnvUsername},
	}
	for _, tc := range cases {
		_, err := CredentialsFromEnv(env(tc.env))
		var mc *MissingCredentialError
		if !errors.As(err, &mc) {
			t.Fatalf("%v: got %v, want MissingCredentialError", tc.env, err)
		}
		if mc.Var != tc.want {
			t.Errorf("%v: got %s, want %s", tc.env, mc.Var, tc.want)
		}
	}
}

func TestFlow_LoginWithoutCredentialsTouchesNothing(t *testing.T) {
	d, err := fixture.NewDriver(fixture.DriverConfig{Handler: fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	f := NewFlow(d, defaultCatalogue(t), time.Second, quiet())
	err = f.Login(context.Background(), Credentials{Username: "u"})
	var mc *MissingCredentialError
	if !errors.As(err, &mc) || mc.Var != EnvPassword {
		t.Fatalf("got %v", err)
	}
	if u, _ := d.URL(context.Background()); u != "http://lau.test" {
		t.Errorf("page was navigated to %s", u)
	}
}

func TestFlow_LoginOpenSearch(t *testing.T) {
	fastPoll(t)
	d, err := fixture.NewDriver(fixture.DriverConfig{Handler: fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()
	cat := defaultCatalogue(t)
	f := NewFlow(d, cat, time.Second, quiet())

	if err := f.Login(ctx, creds); err != nil {
		t.Fatal(err)
	}
	for _, p := range catalogue.Profiles {
		e, err := f.Open(ctx, p)
		if err != nil {
			t.Fatalf("open %s: %v", p, err)
		}
		if err := f.Search(ctx, e); err != nil {
			t.Fatalf("search %s: %v", p, err)
		}
		if err := f.NextPage(ctx); err != nil {
			t.Fatalf("next page %s: %v", p, err)
		}
		if u, _ := d.URL(ctx); !strings.HasSuffix(u, p.Route()+"/results?page=2") {
			t.Errorf("%s: got %s", p, u)
		}
	}
}

func TestFlow_LoginRejected(t *testing.T) {
	fastPoll(t)
	site := fixture.NewSite(fixture.SiteConfig{Username: "someone-else", Password: "x", Logger: quiet()})
	d, _ := fixture.NewDriver(fixture.DriverConfig{Handler: site, Logger: quiet()})
	defer d.Close()
	f := NewFlow(d, defaultCatalogue(t), 30*time.Millisecond, quiet())
	err := f.Login(context.Background(), creds)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want a landing timeout", err)
	}
}

func TestItemByID(t *testing.T) {
	if len(Checklist) != 15 {
		t.Fatalf("checklist: got %d items", len(Checklist))
	}
	seen := map[string]bool{}
	for _, it := range Checklist {
		if seen[it.ID] {
			t.Errorf("duplicate item %s", it.ID)
		}
		seen[it.ID] = true
		got, ok := ItemByID(it.ID)
		if !ok || got.ID != it.ID {
			t.Errorf("ItemByID(%s): got %v, %v", it.ID, got.ID, ok)
		}
	}
	if _, ok := ItemByID("nope"); ok {
		t.Error("unknown item found")
	}
}

func TestDefaultWorkers(t *testing.T) {
	t.Setenv("CI", "true")
	if n := DefaultWorkers(); n != 1 {
		t.Errorf("CI: got %d", n)
	}
	t.Setenv("CI", "")
	if n := DefaultWorkers(); n != 7 {
		t.Errorf("local: got %d", n)
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	var opened atomic.Int32
	sessions := func(context.Context) (browser.Page, error) {
		opened.Add(1)
		return nil, errors.New("unreachable")
	}
	cat := defaultCatalogue(t)

	if _, err := New(Config{Credentials: creds, Sessions: sessions}); err == nil {
		t.Error("no catalogue: expected error")
	}
	_, err := New(Config{Catalogue: cat, Sessions: sessions, Credentials: Credentials{Password: "p"}})
	var mc *MissingCredentialError
	if !errors.As(err, &mc) || mc.Var != EnvUsername {
		t.Errorf("missing username: got %v", err)
	}
	if _, err := New(Config{Catalogue: cat, Credentials: creds}); err == nil {
		t.Error("no session factory: expected error")
	}
	if _, err := New(Config{Catalogue: cat, Credentials: creds, Sessions: sessions, Filter: []string{"case-audit/["}}); err == nil {
		t.Error("bad filter: expected error")
	}
	if n := opened.Load(); n != 0 {
		t.Errorf("sessions opened: %d", n)
	}
}

func TestRunner_Plan(t *testing.T) {
	cat := defaultCatalogue(t)
	sessions := func(context.Context) (browser.Page, error) { return nil, errors.New("unused") }

	r, err := New(Config{Catalogue: cat, Credentials: creds, Sessions: sessions, Logger: quiet()})
	if err != nil {
		t.Fatal(err)
	}
	plan := r.Plan()
	if len(plan) != len(catalogue.Profiles)*len(Checklist) {
		t.Fatalf("plan: got %d scenarios", len(plan))
	}
	skipped := map[string]bool{}
	ids := map[string]bool{}
	for _, s := range plan {
		if s.Skip {
			skipped[s.Name()] = true
		}
		if ids[s.ID] {
			t.Errorf("duplicate scenario id %s", s.ID)
		}
		ids[s.ID] = true
	}
	for _, name := range []string{
		"challenged-specific-access/keyboard",
		"challenged-specific-access/input-focus",
		"logon-audit/keyboard",
		"user-deletion-audit/keyboard",
		"user-details-audit/new-tab",
		"user-details-audit/input-focus",
	} {
		if !skipped[name] {
			t.Errorf("%s should be skipped", name)
		}
	}
	if len(skipped) != 6 {
		t.Errorf("skipped: got %d", len(skipped))
	}
	if plan[0].Name() != "case-audit/axe" {
		t.Errorf("first scenario: got %s", plan[0].Name())
	}

	r, _ = New(Config{Catalogue: cat, Credentials: creds, Sessions: sessions, Filter: []string{"case-audit/*", "*/keyboard"}, Logger: quiet()})
	if n := len(r.Plan()); n != len(Checklist)+4 {
		t.Errorf("filtered plan: got %d", n)
	}
}

// recorder is an oracle that records the rules it was asked to run and
// fails the ones listed in fail.
type recorder struct {
	mu    sync.Mutex
	calls []axe.Options
	fail  map[string]bool
}

func (r *recorder) Audit(ctx context.Context, opts axe.Options) error {
	r.mu.Lock()
	r.calls = append(r.calls, opts)
	r.mu.Unlock()
	for _, id := range opts.Rules {
		if r.fail[id] {
			return &axe.ViolationError{Options: opts, Violations: []axe.Violation{{ID: id, Impact: "serious"}}}
		}
	}
	return nil
}

func (r *recorder) count(rules string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.calls {
		if o.String() == rules {
			n++
		}
	}
	return n
}

// sessions tracks the drivers it hands out.
type sessions struct {
	site     *fixture.Site
	open     atomic.Int32
	peak     atomic.Int32
	closed   atomic.Int32
	launched atomic.Int32
}

type trackedPage struct {
	*fixture.Driver
	s *sessions
}

func (p trackedPage) Close() error {
	p.s.open.Add(-1)
	p.s.closed.Add(1)
	return p.Driver.Close()
}

func (s *sessions) factory(ctx context.Context) (browser.Page, error) {
	d, err := fixture.NewDriver(fixture.DriverConfig{Handler: s.site, Logger: quiet()})
	if err != nil {
		return nil, err
	}
	s.launched.Add(1)
	n := s.open.Add(1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return trackedPage{Driver: d, s: s}, nil
}

func newRunner(t *testing.T, site *fixture.Site, oracle axe.Oracle, cfg Config) (*Runner, *sessions) {
	t.Helper()
	fastPoll(t)
	s := &sessions{site: site}
	cfg.Catalogue = defaultCatalogue(t)
	cfg.Credentials = creds
	cfg.Sessions = s.factory
	if oracle != nil {
		cfg.Oracles = func(browser.Page) axe.Oracle { return oracle }
	}
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 200 * time.Millisecond
	}
	cfg.Logger = quiet()
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return r, s
}

func TestRunner_FullChecklistAgainstFixture(t *testing.T) {
	oracle := &recorder{}
	r, s := newRunner(t, fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), oracle, Config{Workers: 4})

	rep := r.Run(context.Background())
	for _, res := range rep.Results {
		if res.Status == StatusFail || res.Status == StatusTimeout {
			t.Errorf("%s: %s: %v", res.Scenario.Name(), res.Status, res.Err)
		}
	}
	if !rep.OK() {
		t.FailNow()
	}
	if got := rep.Count(StatusSkipped); got != 6 {
		t.Errorf("skipped: got %d", got)
	}
	if got := rep.Count(StatusPass); got != len(rep.Results)-6 {
		t.Errorf("pass: got %d", got)
	}
	if !strings.HasPrefix(rep.RunID, "run_") {
		t.Errorf("run id: %s", rep.RunID)
	}

	if l, c := s.launched.Load(), s.closed.Load(); l != c || int(l) != len(rep.Results)-6 {
		t.Errorf("sessions: launched %d, closed %d", l, c)
	}
	if p := s.peak.Load(); p > 4 {
		t.Errorf("peak concurrent sessions: %d > 4 workers", p)
	}

	n := len(catalogue.Profiles)
	if got := oracle.count("default"); got != n+3 {
		// axe on every profile, input-focus on the three that are not skipped.
		t.Errorf("default audits: got %d, want %d", got, n+3)
	}
	if got := oracle.count("color-contrast"); got != 3*n {
		t.Errorf("contrast audits: got %d, want %d", got, 3*n)
	}
	if got := oracle.count("html-has-lang,html-lang-valid,valid-lang"); got != n {
		t.Errorf("language audits: got %d", got)
	}
}

// focusState records, for every contrast audit run while an error summary
// is on the page, whether the summary holds focus.
type focusState struct {
	mu      sync.Mutex
	summary []bool
}

type summaryOracle struct {
	page  browser.Page
	state *focusState
}

func (o summaryOracle) Audit(ctx context.Context, opts axe.Options) error {
	if opts.String() != "color-contrast" {
		return nil
	}
	els, err := o.page.Query(ctx, browser.CSS(".govuk-error-summary"))
	if err != nil || len(els) == 0 {
		return err
	}
	focused, err := els[0].Focused(ctx)
	if err != nil {
		return err
	}
	o.state.mu.Lock()
	o.state.summary = append(o.state.summary, focused)
	o.state.mu.Unlock()
	return nil
}

func TestRunner_ContrastAuditsFocusedErrorSummary(t *testing.T) {
	fastPoll(t)
	s := &sessions{site: fixture.NewSite(fixture.SiteConfig{Logger: quiet()})}
	state := &focusState{}
	r, err := New(Config{
		Catalogue:   defaultCatalogue(t),
		Credentials: creds,
		Sessions:    s.factory,
		Oracles: func(p browser.Page) axe.Oracle {
			return summaryOracle{page: p, state: state}
		},
		Workers:     2,
		StepTimeout: 200 * time.Millisecond,
		Filter:      []string{"*/colour-contrast"},
		Logger:      quiet(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rep := r.Run(context.Background())
	if !rep.OK() {
		t.Fatalf("report: %+v", rep.Results)
	}
	if got, want := len(state.summary), len(catalogue.Profiles); got != want {
		t.Fatalf("audits with an error summary: got %d, want %d", got, want)
	}
	for i, focused := range state.summary {
		if !focused {
			t.Errorf("audit %d: error summary not focused", i)
		}
	}
}

func TestRunner_FailuresStayIndependent(t *testing.T) {
	site := fixture.NewSite(fixture.SiteConfig{Logger: quiet(), Defects: fixture.Defects{MissingLang: true}})
	r, _ := newRunner(t, site, nil, Config{Workers: 2, Filter: []string{"*/language", "*/skip-link"}})

	rep := r.Run(context.Background())
	if len(rep.Results) != 10 {
		t.Fatalf("results: got %d", len(rep.Results))
	}
	for _, res := range rep.Results {
		switch res.Scenario.Item.ID {
		case "language":
			if res.Status != StatusFail {
				t.Errorf("%s: got %s", res.Scenario.Name(), res.Status)
			}
		case "skip-link":
			if res.Status != StatusPass {
				t.Errorf("%s: got %s (%v)", res.Scenario.Name(), res.Status, res.Err)
			}
		}
	}
	if rep.OK() {
		t.Error("report with failures should not be OK")
	}
}

func TestRunner_OracleViolationFails(t *testing.T) {
	oracle := &recorder{fail: map[string]bool{"document-title": true}}
	r, _ := newRunner(t, fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), oracle, Config{Filter: []string{"case-audit/title-*"}})

	rep := r.Run(context.Background())
	for _, res := range rep.Results {
		var ve *axe.ViolationError
		isViolation := errors.As(res.Err, &ve)
		if res.Scenario.Item.ID == "title-present" {
			if res.Status != StatusFail || !isViolation {
				t.Errorf("title-present: got %s, %v", res.Status, res.Err)
			}
		} else if res.Status != StatusPass {
			t.Errorf("%s: got %s, %v", res.Scenario.Name(), res.Status, res.Err)
		}
	}
}

func TestRunner_Timeout(t *testing.T) {
	fastPoll(t)
	r, err := New(Config{
		Catalogue:   defaultCatalogue(t),
		Credentials: creds,
		Sessions: func(ctx context.Context) (browser.Page, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 20 * time.Millisecond,
		Filter:  []string{"case-audit/axe", "case-audit/language"},
		Logger:  quiet(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rep := r.Run(context.Background())
	if got := rep.Count(StatusTimeout); got != 2 {
		t.Fatalf("timeouts: got %d (%v)", got, rep.Results)
	}
}

func TestRunner_SessionErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	r, err := New(Config{
		Catalogue:   defaultCatalogue(t),
		Credentials: creds,
		Sessions: func(ctx context.Context) (browser.Page, error) {
			if calls.Add(1)%2 == 0 {
				panic("driver crashed")
			}
			return nil, errors.New("no browser")
		},
		Workers: 1,
		Filter:  []string{"case-audit/axe", "case-audit/language"},
		Logger:  quiet(),
	})
	if err != nil {
		t.Fatal(err)
	}
	rep := r.Run(context.Background())
	if got := rep.Count(StatusFail); got != 2 {
		t.Fatalf("failures: got %d", got)
	}
	var sawPanic bool
	for _, res := range rep.Results {
		if strings.Contains(res.Err.Error(), "panic: driver crashed") {
			sawPanic = true
		}
	}
	if !sawPanic {
		t.Error("panic was not reported")
	}
}

func TestRunner_Retries(t *testing.T) {
	fastPoll(t)
	for _, retries := range []int{0, 1} {
		s := &sessions{site: fixture.NewSite(fixture.SiteConfig{Logger: quiet()})}
		var calls atomic.Int32
		r, err := New(Config{
			Catalogue:   defaultCatalogue(t),
			Credentials: creds,
			Sessions: func(ctx context.Context) (browser.Page, error) {
				if calls.Add(1) == 1 {
					return nil, errors.New("browser not ready")
				}
				return s.factory(ctx)
			},
			Workers:     1,
			StepTimeout: 200 * time.Millisecond,
			Retries:     retries,
			Filter:      []string{"case-audit/language"},
			Logger:      quiet(),
		})
		if err != nil {
			t.Fatal(err)
		}
		res := r.Run(context.Background()).Results[0]
		want, attempts := StatusFail, 1
		if retries > 0 {
			want, attempts = StatusPass, 2
		}
		if res.Status != want || res.Attempts != attempts {
			t.Errorf("retries=%d: got %s after %d attempts (%v)", retries, res.Status, res.Attempts, res.Err)
		}
	}
}

func TestRunner_DeterministicIDs(t *testing.T) {
	r, _ := newRunner(t, fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), nil, Config{
		IDs:    idgen.Sequence(),
		Filter: []string{"case-audit/language", "case-audit/skip-link"},
	})
	rep := r.Run(context.Background())
	if rep.RunID != "run_3" {
		t.Errorf("run id: got %s", rep.RunID)
	}
	var ids []string
	for _, res := range rep.Results {
		ids = append(ids, res.Scenario.Name()+"="+res.Scenario.ID)
	}
	if got := strings.Join(ids, " "); got != "case-audit/skip-link=scn_1 case-audit/language=scn_2" {
		t.Errorf("scenario ids: %s", got)
	}
}

func TestDefaultRetries(t *testing.T) {
	t.Setenv("CI", "1")
	if n := DefaultRetries(); n != 2 {
		t.Errorf("CI: got %d", n)
	}
	t.Setenv("CI", "")
	if n := DefaultRetries(); n != 0 {
		t.Errorf("local: got %d", n)
	}
}

func TestRunner_CancelledRunPassesNothing(t *testing.T) {
	r, _ := newRunner(t, fixture.NewSite(fixture.SiteConfig{Logger: quiet()}), nil, Config{Workers: 1, Filter: []string{"case-audit/*"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := r.Run(ctx)
	if n := rep.Count(StatusPass); n != 0 {
		t.Errorf("pass after cancel: %d", n)
	}
	if rep.OK() {
		t.Error("cancelled run should not be OK")
	}
}
