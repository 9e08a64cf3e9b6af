package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/store"
)

// Source is the read side of the store the exporter needs.
type Source interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetWorkReport(ctx context.Context, id string) (*models.WorkReport, error)
	GetForemanReport(ctx context.Context, id string) (*models.ForemanReport, error)
	ListWorkReports(ctx context.Context, q store.ReportQuery) ([]models.WorkReport, error)
	ListForemanReports(ctx context.Context, q store.ReportQuery) ([]models.ForemanReport, error)
}

var _ Source = (store.Store)(nil)

// Exporter applies queued changes and sweeps to the sheets.
type Exporter struct {
	src    Source
	sheets *Sheets
}

// NewExporter creates an Exporter reading records from src.
func NewExporter(src Source, sheets *Sheets) *Exporter {
	return &Exporter{src: src, sheets: sheets}
}

// Sheets returns the sheets the exporter writes to.
func (e *Exporter) Sheets() *Sheets {
	return e.sheets
}

func monthOf(date string) (string, error) {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("invalid work date %q: %w", date, err)
	}
	return d.Format(MonthLayout), nil
}

func (e *Exporter) userName(ctx context.Context, id string, cache map[string]string) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	u, err := e.src.GetUser(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load user %s: %w", id, err)
	}
	name := ""
	if u != nil {
		name = u.Name
	}
	cache[id] = name
	return name, nil
}

// Deliver applies one outbox message. An upsert re-reads the record, so a
// record deleted in the meantime is removed from its sheet instead.
func (e *Exporter) Deliver(ctx context.Context, msg store.OutboxMessage) error {
	var change models.ExportChange
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &change); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Kind, err)
	}
	month, err := monthOf(change.WorkDate)
	if err != nil {
		return err
	}

	if msg.Kind == OutboxKindDelete {
		removed, err := e.sheets.Delete(change.Flow, month, change.RecordID)
		if err != nil {
			return err
		}
		slog.Info("Exporter.Deliver: row deleted", "recordID", change.RecordID, "month", month, "removed", removed)
		return nil
	}
	if msg.Kind != OutboxKindUpsert {
		return fmt.Errorf("unknown export message kind %q", msg.Kind)
	}

	row, err := e.currentRow(ctx, change)
	if err != nil {
		return err
	}
	if row == nil {
		_, err := e.sheets.Delete(change.Flow, month, change.RecordID)
		slog.Info("Exporter.Deliver: record gone, row dropped", "recordID", change.RecordID, "month", month)
		return err
	}
	if err := e.sheets.Upsert(change.Flow, month, row); err != nil {
		return err
	}
	slog.Info("Exporter.Deliver: row upserted", "recordID", change.RecordID, "flow", change.Flow, "month", month)
	return nil
}

// currentRow renders the stored state of the changed record, or nil.
func (e *Exporter) currentRow(ctx context.Context, change models.ExportChange) ([]string, error) {
	names := map[string]string{}
	switch change.Flow {
	case models.FlowWork:
		r, err := e.src.GetWorkReport(ctx, change.RecordID)
		if err != nil || r == nil {
			return nil, err
		}
		name, err := e.userName(ctx, r.UserID, names)
		if err != nil {
			return nil, err
		}
		return WorkRow(*r, name), nil
	case models.FlowForeman:
		r, err := e.src.GetForemanReport(ctx, change.RecordID)
		if err != nil || r == nil {
			return nil, err
		}
		name, err := e.userName(ctx, r.UserID, names)
		if err != nil {
			return nil, err
		}
		return ForemanRow(*r, name), nil
	}
	return nil, fmt.Errorf("no export sheet for flow %q", change.Flow)
}

// Sweep rebuilds both sheets of month from the store.
func (e *Exporter) Sweep(ctx context.Context, month string) error {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return fmt.Errorf("invalid export month %q: %w", month, err)
	}
	q := store.ReportQuery{
		From: start.Format(models.DateLayout),
		To:   start.AddDate(0, 1, -1).Format(models.DateLayout),
	}
	names := map[string]string{}

	work, err := e.src.ListWorkReports(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to list work reports: %w", err)
	}
	workRows := make([][]string, 0, len(work))
	for _, r := range work {
		name, err := e.userName(ctx, r.UserID, names)
		if err != nil {
			return err
		}
		workRows = append(workRows, WorkRow(r, name))
	}

	foreman, err := e.src.ListForemanReports(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to list foreman reports: %w", err)
	}
	foremanRows := make([][]string, 0, len(foreman))
	for _, r := range foreman {
		name, err := e.userName(ctx, r.UserID, names)
		if err != nil {
			return err
		}
		foremanRows = append(foremanRows, ForemanRow(r, name))
	}

	if err := e.sheets.Replace(models.FlowWork, month, workRows); err != nil {
		return err
	}
	if err := e.sheets.Replace(models.FlowForeman, month, foremanRows); err != nil {
		return err
	}
	slog.Info("Exporter.Sweep: month rebuilt", "month", month, "work", len(workRows), "foreman", len(foremanRows))
	return nil
}

// RegisterJobHandlers registers the export job handlers with the given JobRunner.
func RegisterJobHandlers(runner *store.JobRunner, exp *Exporter) {
	runner.RegisterHandler(JobKindSweep, makeSweepHandler(exp))
}

func makeSweepHandler(exp *Exporter) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p SweepPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid export.sweep payload: %w", err)
		}
		slog.Info("JobHandler.export_sweep: executing", "month", p.Month)
		return exp.Sweep(ctx, p.Month)
	}
}
