// CLAUDE:SUMMARY Scenario Runner: plans (profile x checklist item) scenarios, runs them on isolated sessions with a bounded worker pool and per-scenario timeout, reports pass/fail/timeout/skipped.
// Package scenario sequences sign-in, navigation and form actions before
// handing the page to the verification checks. Every (profile, checklist
// item) pair is one scenario with its own session; scenarios run
// concurrently and fail independently.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hazyhaar/lauaudit/axe"
	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/catalogue"
	"github.com/hazyhaar/lauaudit/idgen"
	"github.com/hazyhaar/lauaudit/verify"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
)

// SessionFactory opens an isolated session. The runner closes it.
type SessionFactory func(ctx context.Context) (browser.Page, error)

// OracleFactory binds an oracle to a session. It may return nil when the
// session cannot be audited.
type OracleFactory func(page browser.Page) axe.Oracle

// Config configures a Runner.
type Config struct {
	Catalogue   *catalogue.Catalogue
	Credentials Credentials
	Sessions    SessionFactory
	Oracles     OracleFactory

	// Workers bounds concurrently running scenarios. Default: DefaultWorkers().
	Workers int
	// Timeout bounds one scenario. Default: 2m.
	Timeout time.Duration
	// StepTimeout bounds each wait inside a scenario. Default: 10s.
	StepTimeout time.Duration
	// Retries re-runs a failed or timed-out scenario in a fresh session up to
	// this many times. Default: 0.
	Retries int

	// IDs generates run and scenario IDs. Default: idgen.Default.
	IDs idgen.Generator

	// Filter keeps scenarios whose name ("<profile>/<item>") matches one of
	// the doublestar patterns. Empty runs everything.
	Filter []string

	Logger *slog.Logger
}

// DefaultWorkers is 7, or 1 on CI where the browser shares a small runner.
func DefaultWorkers() int {
	if os.Getenv("CI") != "" {
		return 1
	}
	return 7
}

// DefaultRetries is 2 on CI, 0 elsewhere.
func DefaultRetries() int {
	if os.Getenv("CI") != "" {
		return 2
	}
	return 0
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.IDs == nil {
		c.IDs = idgen.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scenario is one planned (profile, item) pair.
type Scenario struct {
	ID      string
	Profile catalogue.Profile
	Item    Item
	Skip    bool
}

// Name is "<profile>/<item>".
func (s Scenario) Name() string { return string(s.Profile) + "/" + s.Item.ID }

// Result is the outcome of one scenario.
type Result struct {
	Scenario Scenario
	Status   Status
	Err      error
	Duration time.Duration
	// Attempts is how many times the scenario ran.
	Attempts int
}

// Report collects every result of a run, in plan order.
type Report struct {
	RunID   string
	Results []Result
}

// Count returns the number of results with status st.
func (r *Report) Count(st Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == st {
			n++
		}
	}
	return n
}

// OK reports whether no scenario failed or timed out.
func (r *Report) OK() bool {
	return r.Count(StatusFail) == 0 && r.Count(StatusTimeout) == 0
}

// Runner executes the checklist.
type Runner struct {
	cfg    Config
	runID  idgen.Generator
	scnID  idgen.Generator
	logger *slog.Logger
}

// New validates the configuration. Missing credentials and an invalid
// catalogue are reported here, before any session is opened.
func New(cfg Config) (*Runner, error) {
	cfg.defaults()
	if cfg.Catalogue == nil {
		return nil, fmt.Errorf("scenario: no catalogue")
	}
	if err := cfg.Catalogue.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("scenario: no session factory")
	}
	for _, pat := range cfg.Filter {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("scenario: invalid filter pattern %q", pat)
		}
	}
	return &Runner{
		cfg:    cfg,
		runID:  idgen.Prefixed("run_", cfg.IDs),
		scnID:  idgen.Prefixed("scn_", cfg.IDs),
		logger: cfg.Logger,
	}, nil
}

// Plan lists the scenarios to run: every profile crossed with every item,
// in order, filtered. Items a profile skips are planned as skipped.
func (r *Runner) Plan() []Scenario {
	var out []Scenario
	for _, p := range catalogue.Profiles {
		e, err := r.cfg.Catalogue.Entry(p)
		if err != nil {
			continue
		}
		for _, it := range Checklist {
			s := Scenario{Profile: p, Item: it, Skip: e.Skips(it.ID)}
			if !r.selected(s.Name()) {
				continue
			}
			s.ID = r.scnID()
			out = append(out, s)
		}
	}
	return out
}

func (r *Runner) selected(name string) bool {
	if len(r.cfg.Filter) == 0 {
		return true
	}
	for _, pat := range r.cfg.Filter {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Run executes the plan with at most Workers scenarios in flight. It
// returns once every scenario finished; cancelling ctx fails the scenarios
// still running.
func (r *Runner) Run(ctx context.Context) *Report {
	plan := r.Plan()
	rep := &Report{RunID: r.runID(), Results: make([]Result, len(plan))}
	log := r.logger.With("run", rep.RunID)
	log.Info("scenario: run started", "scenarios", len(plan), "workers", r.cfg.Workers)

	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup

	for i, s := range plan {
		if s.Skip {
			rep.Results[i] = Result{Scenario: s, Status: StatusSkipped}
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			rep.Results[i] = Result{Scenario: s, Status: StatusFail, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, s Scenario) {
			defer wg.Done()
			defer func() { <-sem }()
			rep.Results[i] = r.runOne(ctx, log, s)
		}(i, s)
	}
	wg.Wait()

	log.Info("scenario: run finished",
		"pass", rep.Count(StatusPass),
		"fail", rep.Count(StatusFail),
		"timeout", rep.Count(StatusTimeout),
		"skipped", rep.Count(StatusSkipped))
	return rep
}

func (r *Runner) runOne(parent context.Context, log *slog.Logger, s Scenario) Result {
	log = log.With("scenario", s.ID, "profile", s.Profile, "check", s.Item.ID)
	var res Result
	for attempt := 1; ; attempt++ {
		res = r.attempt(parent, log, s)
		res.Attempts = attempt
		if res.Status == StatusPass || attempt > r.cfg.Retries || parent.Err() != nil {
			return res
		}
		log.Info("scenario: retry", "attempt", attempt+1, "status", res.Status)
	}
}

// attempt runs s once in its own session under the scenario timeout.
func (r *Runner) attempt(parent context.Context, log *slog.Logger, s Scenario) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()

	err := r.execute(ctx, log, s)
	res := Result{Scenario: s, Err: err, Duration: time.Since(start)}
	switch {
	case err == nil:
		res.Status = StatusPass
		log.Info("scenario: pass", "duration", res.Duration)
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusTimeout
		log.Warn("scenario: timeout", "duration", res.Duration, "error", err)
	default:
		res.Status = StatusFail
		log.Warn("scenario: fail", "duration", res.Duration, "error", err)
	}
	return res
}

func (r *Runner) execute(ctx context.Context, log *slog.Logger, s Scenario) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario: panic: %v", p)
		}
	}()

	page, err := r.cfg.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("scenario: open session: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Debug("scenario: close session", "error", cerr)
		}
	}()

	flow := NewFlow(page, r.cfg.Catalogue, r.cfg.StepTimeout, log)
	if err := flow.Login(ctx, r.cfg.Credentials); err != nil {
		return err
	}
	entry, err := flow.Open(ctx, s.Profile)
	if err != nil {
		return err
	}

	env := &Env{
		Profile: s.Profile,
		Entry:   entry,
		Cat:     r.cfg.Catalogue,
		Flow:    flow,
		Check:   verify.New(page, r.cfg.Catalogue, verify.Config{StepTimeout: r.cfg.StepTimeout, Logger: log}),
		Logger:  log,
	}
	if r.cfg.Oracles != nil {
		env.Oracle = r.cfg.Oracles(page)
	}
	return s.Item.Run(ctx, env)
}
