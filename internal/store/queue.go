package store

import (
	"context"
	"time"
)

// OutboxStatus represents the lifecycle state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusQueued   OutboxStatus = "queued"
	OutboxStatusSending  OutboxStatus = "sending"
	OutboxStatusSent     OutboxStatus = "sent"
	OutboxStatusFailed   OutboxStatus = "failed"
	OutboxStatusCanceled OutboxStatus = "canceled"
)

// MaxOutboxAttempts is the number of failed deliveries after which an
// outbox message is parked as failed.
const MaxOutboxAttempts = 8

// OutboxMessage is a durable side effect waiting to be delivered, such as an
// export row change. SubjectID names the record or user the message is about.
type OutboxMessage struct {
	ID            string       `json:"id"`
	SubjectID     string       `json:"subject_id"`
	Kind          string       `json:"kind"`
	PayloadJSON   string       `json:"payload_json"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"next_attempt_at"`
	DedupeKey     string       `json:"dedupe_key"`
	LockedAt      *time.Time   `json:"locked_at"`
	LastError     string       `json:"last_error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OutboxRepo persists outbox messages.
type OutboxRepo interface {
	// EnqueueOutboxMessage inserts a message. A non-empty dedupeKey that
	// matches a queued or sending message returns the existing ID.
	EnqueueOutboxMessage(ctx context.Context, subjectID, kind, payloadJSON, dedupeKey string) (string, error)
	// ClaimDueOutboxMessages moves up to limit due queued messages to sending.
	ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	MarkOutboxMessageSent(ctx context.Context, id string) error
	// FailOutboxMessage records a failure and requeues the message for
	// nextAttemptAt, or parks it once MaxOutboxAttempts is reached.
	FailOutboxMessage(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error
	// RequeueStaleSendingMessages returns messages locked before staleBefore
	// to the queue.
	RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error)
	CountOutboxMessages(ctx context.Context, status OutboxStatus) (int, error)
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// DefaultJobMaxAttempts bounds retries of a job.
const DefaultJobMaxAttempts = 3

// Job is a durable unit of deferred work.
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	RunAt       time.Time  `json:"run_at"`
	PayloadJSON string     `json:"payload_json"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error"`
	LockedAt    *time.Time `json:"locked_at"`
	DedupeKey   string     `json:"dedupe_key"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobRepo persists jobs.
type JobRepo interface {
	// EnqueueJob inserts a job. A non-empty dedupeKey that matches a queued
	// or running job returns the existing ID.
	EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON, dedupeKey string) (string, error)
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	CompleteJob(ctx context.Context, id string) error
	// FailJob requeues the job at nextRunAt until max_attempts is reached,
	// then marks it failed.
	FailJob(ctx context.Context, id, errMsg string, nextRunAt time.Time) error
	CancelJob(ctx context.Context, id string) error
	RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error)
	// GetJob returns nil, nil when the job does not exist.
	GetJob(ctx context.Context, id string) (*Job, error)
}

// DedupRecord is one inbound message id seen by the service.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SubjectID   string     `json:"subject_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against processing a provider message twice.
type DedupRepo interface {
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	// RecordInbound returns false if messageID was already recorded.
	RecordInbound(ctx context.Context, messageID, subjectID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	// PurgeInbound deletes processed records received before the cutoff.
	PurgeInbound(ctx context.Context, before time.Time) (int, error)
}
