package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lauaudit/axe"
	"github.com/hazyhaar/lauaudit/browser"
	"github.com/hazyhaar/lauaudit/chrome"
	"github.com/hazyhaar/lauaudit/fixture"
	"github.com/hazyhaar/lauaudit/scenario"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the accessibility checklist against every profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.String("base-url", "", "portal root URL (required with the chrome driver)")
	f.String("driver", "chrome", "page driver: chrome or fixture")
	f.Int("workers", scenario.DefaultWorkers(), "scenarios run concurrently")
	f.Int("retries", scenario.DefaultRetries(), "re-runs of a failed or timed-out scenario")
	f.Duration("timeout", 2*time.Minute, "timeout per scenario")
	f.Duration("step-timeout", 10*time.Second, "timeout per wait inside a scenario")
	f.StringSlice("filter", nil, "run only scenarios matching these globs, e.g. 'case-audit/*'")
	f.Bool("headful", false, "run a visible Chrome on an Xvfb display")
	f.String("remote", "", "DevTools WebSocket URL of an external Chrome")
	f.String("chrome-bin", "", "Chrome binary for the launcher")
	f.Bool("stealth", false, "open sessions through go-rod/stealth")
	f.StringSlice("block", nil, "resource types to block: images, fonts, media")
	f.String("axe-script", "", "local axe-core script")
	f.String("axe-url", axe.DefaultScriptURL, "axe-core script URL, used without --axe-script")
	f.Bool("no-axe", false, "skip the axe-core audits")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer) error {
	v := a.v
	cat, err := a.loadCatalogue(ctx)
	if err != nil {
		return err
	}
	creds, err := scenario.CredentialsFromEnv(a.getenv)
	if err != nil {
		return err
	}

	cfg := scenario.Config{
		Catalogue:   cat,
		Credentials: creds,
		Workers:     v.GetInt("workers"),
		Timeout:     v.GetDuration("timeout"),
		StepTimeout: v.GetDuration("step-timeout"),
		Retries:     v.GetInt("retries"),
		Filter:      v.GetStringSlice("filter"),
		Logger:      a.logger,
	}

	switch driver := v.GetString("driver"); driver {
	case "fixture":
		site := fixture.NewSite(fixture.SiteConfig{Username: creds.Username, Password: creds.Password, Logger: a.logger})
		cfg.Sessions = func(ctx context.Context) (browser.Page, error) {
			return fixture.NewDriver(fixture.DriverConfig{Handler: site, Logger: a.logger})
		}
		a.logger.Info("lauaudit: using the in-process fixture portal, axe audits disabled")

	case "chrome":
		mgr, err := chrome.NewManager(chrome.Config{
			BaseURL:          v.GetString("base-url"),
			RemoteURL:        v.GetString("remote"),
			Bin:              v.GetString("chrome-bin"),
			Headful:          v.GetBool("headful"),
			Stealth:          v.GetBool("stealth"),
			ResourceBlocking: v.GetStringSlice("block"),
			Logger:           a.logger,
		})
		if err != nil {
			return err
		}
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		defer mgr.Close()

		cfg.Sessions = func(ctx context.Context) (browser.Page, error) {
			s, err := mgr.NewSession(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		if !v.GetBool("no-axe") {
			src := axe.Source{Path: v.GetString("axe-script"), URL: v.GetString("axe-url"), Logger: a.logger}
			script, err := src.Load(ctx)
			if err != nil {
				return err
			}
			cfg.Oracles = func(p browser.Page) axe.Oracle {
				ev, ok := p.(axe.Evaluator)
				if !ok {
					return nil
				}
				return axe.NewAuditor(script, ev, a.logger)
			}
		}

	default:
		return fmt.Errorf("unknown driver %q", driver)
	}

	r, err := scenario.New(cfg)
	if err != nil {
		return err
	}
	rep := r.Run(ctx)
	printReport(out, rep)
	if !rep.OK() {
		return fmt.Errorf("%d failed, %d timed out", rep.Count(scenario.StatusFail), rep.Count(scenario.StatusTimeout))
	}
	return nil
}

func printReport(w io.Writer, rep *scenario.Report) {
	for _, res := range rep.Results {
		fmt.Fprintf(w, "%-8s %-45s %8s\n", res.Status, res.Scenario.Name(), res.Duration.Round(time.Millisecond))
		if res.Attempts > 1 {
			fmt.Fprintf(w, "         after %d attempts\n", res.Attempts)
		}
		if res.Err != nil {
			fmt.Fprintf(w, "         %v\n", res.Err)
		}
	}
	fmt.Fprintf(w, "\nrun %s: %d passed, %d failed, %d timed out, %d skipped\n",
		rep.RunID,
		rep.Count(scenario.StatusPass),
		rep.Count(scenario.StatusFail),
		rep.Count(scenario.StatusTimeout),
		rep.Count(scenario.StatusSkipped))
}
