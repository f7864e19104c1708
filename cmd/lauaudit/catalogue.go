package main

import (
	"database/sql"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lauaudit/catalogue"
)

func newProfilesCmd(a *app) *cobra.Command {
	var saveDB string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the audited profiles from the catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := a.loadCatalogue(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROFILE\tROUTE\tHEADING\tKEYBOARD STEPS\tSKIPPED")
			for _, p := range catalogue.Profiles {
				e, err := cat.Entry(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p, p.Route(), e.H1, len(e.Keyboard), strings.Join(e.Skip, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if saveDB == "" {
				return nil
			}
			db, err := sql.Open("sqlite", saveDB)
			if err != nil {
				return fmt.Errorf("open %s: %w", saveDB, err)
			}
			defer db.Close()
			if err := catalogue.Init(ctx, db); err != nil {
				return err
			}
			if err := catalogue.SaveDB(ctx, db, cat); err != nil {
				return err
			}
			a.logger.Info("lauaudit: catalogue saved", "db", saveDB)
			return nil
		},
	}
	cmd.Flags().StringVar(&saveDB, "save-db", "", "also write the catalogue into this SQLite database")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve URL...",
		Short: "Print the profile each URL resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, u := range args {
				p, err := catalogue.Resolve(u)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\t%v\n", u, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u, p)
			}
			if failed > 0 {
				return fmt.Errorf("%d URL(s) matched no profile", failed)
			}
			return nil
		},
	}
}
