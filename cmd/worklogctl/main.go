// Command worklogctl administers a WorkLog database: exports, catalog items
// and report listings.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/WorkLog/internal/store"
)

const defaultStateDir = "/var/lib/worklog"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	dsn      string
	logLevel string
}

// NewRootCommand builds the worklogctl command tree.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "worklogctl",
		Short:        "Administer a WorkLog database",
		SilenceUsage: true,

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(flags.logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.dsn, "db-dsn", defaultDSN(), "application database DSN (defaults to $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", envOr("WORKLOG_LOG_LEVEL", "warn"), "log level: debug, info, warn or error")

	cmd.AddCommand(NewExportCommand(flags))
	cmd.AddCommand(NewCatalogCommand(flags))
	cmd.AddCommand(NewReportsCommand(flags))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func stateDir() string {
	return envOr("WORKLOG_STATE_DIR", defaultStateDir)
}

func defaultDSN() string {
	return envOr("DATABASE_URL", filepath.Join(stateDir(), "worklog.db"))
}

// initializeLogger logs to stderr so command output stays clean on stdout.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// openStore opens the backend matching dsn.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.Open(store.WithPostgresDSN(dsn))
	}
	return store.Open(store.WithSQLiteDSN(dsn))
}
