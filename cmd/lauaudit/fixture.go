package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lauaudit/fixture"
)

// defectFlags maps --defect values to the fixture switches.
var defectFlags = map[string]func(*fixture.Defects){
	"flat-headings":           func(d *fixture.Defects) { d.FlatHeadings = true },
	"shared-title":            func(d *fixture.Defects) { d.SharedTitle = true },
	"conflicting-links":       func(d *fixture.Defects) { d.ConflictingLinks = true },
	"wrong-skip-target":       func(d *fixture.Defects) { d.WrongSkipTarget = true },
	"missing-lang":            func(d *fixture.Defects) { d.MissingLang = true },
	"no-focus-outline":        func(d *fixture.Defects) { d.NoFocusOutline = true },
	"inverted-headings":       func(d *fixture.Defects) { d.InvertedHeadings = true },
	"duplicate-intro":         func(d *fixture.Defects) { d.DuplicateIntro = true },
	"error-link-wrong-target": func(d *fixture.Defects) { d.ErrorLinkWrongTarget = true },
}

func parseDefects(names []string) (fixture.Defects, error) {
	var d fixture.Defects
	for _, n := range names {
		set, ok := defectFlags[n]
		if !ok {
			return d, fmt.Errorf("unknown defect %q", n)
		}
		set(&d)
	}
	return d, nil
}

func newFixtureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve the fixture LAU portal for local runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defects, err := parseDefects(a.v.GetStringSlice("defect"))
			if err != nil {
				return err
			}
			site := fixture.NewSite(fixture.SiteConfig{
				Username:    a.v.GetString("username"),
				Password:    a.v.GetString("password"),
				ResultPages: a.v.GetInt("result-pages"),
				Defects:     defects,
				Logger:      a.logger,
			})
			return serve(cmd.Context(), a, a.v.GetString("addr"), site)
		},
	}
	f := cmd.Flags()
	f.String("addr", "127.0.0.1:8080", "listen address")
	f.Int("result-pages", 3, "result pages per search")
	f.StringSlice("defect", nil, "switch on a defect: flat-headings, shared-title, conflicting-links, wrong-skip-target, missing-lang, no-focus-outline, inverted-headings, duplicate-intro, error-link-wrong-target")
	return cmd
}

func serve(ctx context.Context, a *app, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("lauaudit: fixture portal listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
