package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/roles"
	"github.com/BTreeMap/WorkLog/internal/store"
)

type reportsFlags struct {
	user   string
	from   string
	to     string
	limit  int
	asJSON bool
}

// NewReportsCommand creates the reports command group.
func NewReportsCommand(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored work reports",
	}
	flags := &reportsFlags{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List work reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportsList(cmd.Context(), cmd.OutOrStdout(), root.dsn, flags)
		},
	}
	list.Flags().StringVar(&flags.user, "user", "", "only reports of this user id")
	list.Flags().StringVar(&flags.from, "from", "", "first work date, YYYY-MM-DD")
	list.Flags().StringVar(&flags.to, "to", "", "last work date, YYYY-MM-DD")
	list.Flags().IntVar(&flags.limit, "limit", 100, "maximum number of reports")
	list.Flags().BoolVar(&flags.asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(list)
	return cmd
}

func runReportsList(ctx context.Context, out io.Writer, dsn string, flags *reportsFlags) error {
	for name, v := range map[string]string{"from": flags.from, "to": flags.to} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, v); err != nil {
			return fmt.Errorf("invalid --%s date %q, expected YYYY-MM-DD", name, v)
		}
	}
	if flags.limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}

	st, err := openStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	reports, err := st.ListWorkReports(ctx, store.ReportQuery{
		UserID: roles.Canonical(flags.user),
		From:   flags.from,
		To:     flags.to,
		Limit:  flags.limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	if flags.asJSON {
		if reports == nil {
			reports = []models.WorkReport{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUSER\tCATEGORY\tACTIVITY\tLOCATION\tHOURS\tID")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", r.WorkDate, r.UserID, r.Category, r.Activity, r.Location, r.Hours, r.ID)
	}
	return tw.Flush()
}
