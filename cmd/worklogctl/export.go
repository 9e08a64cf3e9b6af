package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/WorkLog/internal/export"
	"github.com/BTreeMap/WorkLog/internal/models"
)

type exportFlags struct {
	month string
	dir   string
	tz    string
}

// NewExportCommand creates the export command, which rebuilds the sheets of
// one month directly from the database.
func NewExportCommand(root *rootFlags) *cobra.Command {
	flags := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rebuild the monthly export sheets",
		Long: `Rebuild the work and foreman sheets of one month from the database
using the layout of the running service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), afero.NewOsFs(), root.dsn, flags)
		},
	}
	cmd.Flags().StringVar(&flags.month, "month", "", "month to export as YYYY-MM (default current month)")
	cmd.Flags().StringVar(&flags.dir, "dir", envOr("EXPORT_DIR", filepath.Join(stateDir(), "exports")), "directory of exported sheets (defaults to $EXPORT_DIR)")
	cmd.Flags().StringVar(&flags.tz, "tz", envOr("WORKLOG_TZ", "Local"), "time zone that defines the current month")
	return cmd
}

func runExport(ctx context.Context, out io.Writer, fs afero.Fs, dsn string, flags *exportFlags) error {
	month := flags.month
	if month == "" {
		loc, err := time.LoadLocation(flags.tz)
		if err != nil {
			return fmt.Errorf("invalid time zone %q: %w", flags.tz, err)
		}
		month = time.Now().In(loc).Format(export.MonthLayout)
	}
	if _, err := time.Parse(export.MonthLayout, month); err != nil {
		return fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}

	st, err := openStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sheets := export.NewSheets(fs, flags.dir)
	if err := export.NewExporter(st, sheets).Sweep(ctx, month); err != nil {
		return fmt.Errorf("export %s: %w", month, err)
	}
	fmt.Fprintf(out, "exported %s\n", month)
	for _, flow := range []models.FlowType{models.FlowWork, models.FlowForeman} {
		fmt.Fprintf(out, "  %s\n", sheets.Path(flow, month))
	}
	return nil
}
