package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/WorkLog/internal/util"
)

// --- Outbox ---

func (s *sqlStore) EnqueueOutboxMessage(ctx context.Context, subjectID, kind, payloadJSON, dedupeKey string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if dedupeKey != "" {
		var existing string
		err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM outbox_messages
			WHERE dedupe_key = ? AND status IN ('queued', 'sending') LIMIT 1`), dedupeKey).Scan(&existing)
		if err == nil {
			slog.Debug(s.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "id", existing)
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe lookup: %w", err)
		}
	}

	id := util.NewID("obx_")
	now := utc(time.Now())
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO outbox_messages
		(id, subject_id, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`),
		id, subjectID, kind, payloadJSON, now, nilIfEmpty(dedupeKey), now, now)
	if err != nil {
		slog.Error(s.name+".EnqueueOutboxMessage: insert failed", "kind", kind, "error", err)
		return "", fmt.Errorf("insert outbox message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Debug(s.name+".EnqueueOutboxMessage: enqueued", "id", id, "kind", kind, "subjectID", subjectID)
	return id, nil
}

func (s *sqlStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	now = utc(now)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT id, subject_id, kind, payload_json, attempts, dedupe_key, created_at
		FROM outbox_messages
		WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at LIMIT ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	rows, err := tx.QueryContext(ctx, s.q(query), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due outbox messages: %w", err)
	}
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var dedupe sql.NullString
		if err := rows.Scan(&m.ID, &m.SubjectID, &m.Kind, &m.PayloadJSON, &m.Attempts, &dedupe, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		m.DedupeKey = dedupe.String
		m.Status = OutboxStatusSending
		locked := now
		m.LockedAt = &locked
		m.UpdatedAt = now
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE outbox_messages
			SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`), now, now, m.ID); err != nil {
			return nil, fmt.Errorf("claim outbox message %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *sqlStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE outbox_messages
		SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`), now, id)
	return err
}

func (s *sqlStore) FailOutboxMessage(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE outbox_messages
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
			last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		WHERE id = ?`), MaxOutboxAttempts, errMsg, utc(nextAttemptAt), now, id)
	return err
}

func (s *sqlStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	now := utc(time.Now())
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE outbox_messages
		SET status = 'queued', locked_at = NULL, updated_at = ?
		WHERE status = 'sending' AND locked_at < ?`), now, utc(staleBefore))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlStore) CountOutboxMessages(ctx context.Context, status OutboxStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM outbox_messages WHERE status = ?`), string(status)).Scan(&n)
	return n, err
}

// --- Jobs ---

func (s *sqlStore) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON, dedupeKey string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if dedupeKey != "" {
		var existing string
		err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM jobs
			WHERE dedupe_key = ? AND status IN ('queued', 'running') LIMIT 1`), dedupeKey).Scan(&existing)
		if err == nil {
			slog.Debug(s.name+".EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "id", existing)
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("job dedupe lookup: %w", err)
		}
	}

	id := util.NewID("job_")
	now := utc(time.Now())
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO jobs
		(id, kind, run_at, payload_json, status, attempt, max_attempts, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`),
		id, kind, utc(runAt), payloadJSON, DefaultJobMaxAttempts, nilIfEmpty(dedupeKey), now, now)
	if err != nil {
		slog.Error(s.name+".EnqueueJob: insert failed", "kind", kind, "error", err)
		return "", fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Debug(s.name+".EnqueueJob: enqueued", "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status string
	var lastErr, dedupe sql.NullString
	var locked sql.NullTime
	if err := row.Scan(&j.ID, &j.Kind, &j.RunAt, &j.PayloadJSON, &status, &j.Attempt, &j.MaxAttempts,
		&lastErr, &locked, &dedupe, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.LastError = lastErr.String
	j.DedupeKey = dedupe.String
	if locked.Valid {
		t := locked.Time
		j.LockedAt = &t
	}
	return &j, nil
}

func (s *sqlStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	now = utc(now)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'queued' AND run_at <= ?
		ORDER BY run_at LIMIT ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE SKIP LOCKED`
	}
	rows, err := tx.QueryContext(ctx, s.q(query), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		j.Status = JobStatusRunning
		locked := now
		j.LockedAt = &locked
		j.UpdatedAt = now
		jobs = append(jobs, *j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE jobs
			SET status = 'running', locked_at = ?, updated_at = ? WHERE id = ?`), now, now, j.ID); err != nil {
			return nil, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *sqlStore) CompleteJob(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobStatusDone)
}

func (s *sqlStore) CancelJob(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobStatusCanceled)
}

func (s *sqlStore) setJobStatus(ctx context.Context, id string, status JobStatus) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE jobs
		SET status = ?, locked_at = NULL, updated_at = ? WHERE id = ?`), string(status), now, id)
	return err
}

func (s *sqlStore) FailJob(ctx context.Context, id, errMsg string, nextRunAt time.Time) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE jobs
		SET attempt = attempt + 1,
			status = CASE WHEN attempt + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
			last_error = ?, run_at = ?, locked_at = NULL, updated_at = ?
		WHERE id = ?`), errMsg, utc(nextRunAt), now, id)
	return err
}

func (s *sqlStore) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	now := utc(time.Now())
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE jobs
		SET status = 'queued', locked_at = NULL, updated_at = ?
		WHERE status = 'running' AND locked_at < ?`), now, utc(staleBefore))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// --- Inbound dedup ---

func (s *sqlStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM inbound_dedup WHERE message_id = ?`), messageID).Scan(&n)
	return n > 0, err
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, subjectID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO inbound_dedup (message_id, subject_id, received_at)
		VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`), messageID, subjectID, utc(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record inbound: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`),
		utc(time.Now()), messageID)
	return err
}

func (s *sqlStore) PurgeInbound(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM inbound_dedup
		WHERE processed_at IS NOT NULL AND received_at < ?`), utc(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
