// CLAUDE:SUMMARY CLI entry point for lauaudit: run the accessibility checklist against the LAU portal, inspect the catalogue, resolve URLs, serve the fixture portal.
// Command lauaudit runs the LAU accessibility checklist.
//
// Usage:
//
//	lauaudit run --base-url https://lau.example     # every profile, every check
//	lauaudit run --filter 'case-audit/*'            # one profile
//	lauaudit run --driver fixture                   # in-process fixture portal, no Chrome
//	lauaudit profiles                               # list the catalogue
//	lauaudit resolve https://lau.example/logon-audit
//	lauaudit fixture --addr :8080                   # serve the fixture portal
//
// Settings are read from flags, LAU_* environment variables and an optional
// lauaudit.yaml, in that order of precedence. LAU_USERNAME and LAU_PASSWORD
// are required by run.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lauaudit/catalogue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lauaudit:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "lauaudit",
		Short:         "Accessibility checks for the LAU (Log and Audit) portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := a.readConfig(cfgFile); err != nil {
				return err
			}
			a.logger = newLogger(a.v.GetString("log-level"))
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./lauaudit.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("catalogue", "", "YAML locator catalogue (default: built-in)")
	root.PersistentFlags().String("catalogue-db", "", "SQLite database holding the locator catalogue")

	root.AddCommand(
		newRunCmd(a),
		newProfilesCmd(a),
		newResolveCmd(a),
		newFixtureCmd(a),
	)
	return root
}

func (a *app) readConfig(path string) error {
	a.v.SetEnvPrefix("LAU")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path != "" {
		a.v.SetConfigFile(path)
	} else {
		a.v.SetConfigName("lauaudit")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// getenv looks a LAU_* variable up through viper, so the config file can
// provide it as well.
func (a *app) getenv(key string) string {
	return a.v.GetString(strings.ToLower(strings.TrimPrefix(key, "LAU_")))
}

func newLogger(name string) *slog.Logger {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadCatalogue picks the catalogue source: SQLite, then YAML file, then the
// built-in default.
func (a *app) loadCatalogue(ctx context.Context) (*catalogue.Catalogue, error) {
	if path := a.v.GetString("catalogue-db"); path != "" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer db.Close()
		cat, err := catalogue.LoadDB(ctx, db)
		if err != nil {
			return nil, err
		}
		a.logger.Info("lauaudit: catalogue loaded", "source", path)
		return cat, nil
	}
	if path := a.v.GetString("catalogue"); path != "" {
		cat, err := catalogue.LoadFile(path)
		if err != nil {
			return nil, err
		}
		a.logger.Info("lauaudit: catalogue loaded", "source", path)
		return cat, nil
	}
	return catalogue.Default()
}
