// Package export mirrors finished reports into monthly CSV sheets. Record
// changes travel through the durable outbox, full rebuilds of a month run as
// durable jobs.
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

// Outbox message kinds.
const (
	OutboxKindUpsert = "export.upsert"
	OutboxKindDelete = "export.delete"
)

// JobKindSweep rebuilds both sheets of one month.
const JobKindSweep = "export.sweep"

// MonthLayout is the format of a sheet month.
const MonthLayout = "2006-01"

// SweepPayload is the JSON payload for export.sweep jobs.
type SweepPayload struct {
	Month string `json:"month"`
}

// Notifier queues export work. It satisfies the flow engine's export
// collaborator.
type Notifier struct {
	outbox store.OutboxRepo
	jobs   store.JobRepo
	now    func() time.Time
}

// NewNotifier creates a Notifier writing to the given queues.
func NewNotifier(outbox store.OutboxRepo, jobs store.JobRepo) *Notifier {
	return &Notifier{outbox: outbox, jobs: jobs, now: time.Now}
}

// NotifyExport enqueues one record change. Repeated upserts of a record that
// is still queued collapse into one message.
func (n *Notifier) NotifyExport(ctx context.Context, change models.ExportChange) error {
	if change.RecordID == "" {
		return fmt.Errorf("export change without record id")
	}
	kind := OutboxKindUpsert
	if change.Op == models.ExportDelete {
		kind = OutboxKindDelete
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode export change: %w", err)
	}
	id, err := n.outbox.EnqueueOutboxMessage(ctx, change.RecordID, kind, string(payload), kind+":"+change.RecordID)
	if err != nil {
		return fmt.Errorf("failed to enqueue export change: %w", err)
	}
	slog.Debug("Notifier.NotifyExport: queued", "messageID", id, "recordID", change.RecordID, "kind", kind)
	return nil
}

// RequestSweep enqueues a rebuild of month. At most one sweep per month is
// pending at a time.
func (n *Notifier) RequestSweep(ctx context.Context, month string) error {
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return fmt.Errorf("invalid export month %q: %w", month, err)
	}
	payload, err := json.Marshal(SweepPayload{Month: month})
	if err != nil {
		return fmt.Errorf("failed to encode sweep payload: %w", err)
	}
	id, err := n.jobs.EnqueueJob(ctx, JobKindSweep, n.now(), string(payload), "sweep:"+month)
	if err != nil {
		return fmt.Errorf("failed to enqueue export sweep: %w", err)
	}
	slog.Info("Notifier.RequestSweep: sweep queued", "jobID", id, "month", month)
	return nil
}
