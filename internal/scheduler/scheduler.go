// Package scheduler runs WorkLog's periodic tasks on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is a scheduled unit of work. Its context is cancelled on Stop.
type Task func(ctx context.Context)

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Opts holds configuration options for the Scheduler.
type Opts struct {
	Location *time.Location
}

// Option defines a configuration option for the Scheduler.
type Option func(*Opts)

// WithLocation evaluates cron expressions in loc.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// Scheduler provides cron-based task scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler using the standard 5-field parser. Panicking tasks
// are recovered and overlapping runs of the same task are skipped.
func New(opts ...Option) *Scheduler {
	cfg := Opts{Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel}
}

// Add schedules task under name. It returns an error if expr is invalid.
func (s *Scheduler) Add(name, expr string, task Task) error {
	_, err := s.cron.AddFunc(expr, func() {
		slog.Info("Scheduler: running task", "task", name)
		task(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", expr, name, err)
	}
	slog.Info("Scheduler.Add: task scheduled", "task", name, "expr", expr)
	return nil
}

// Next returns the next activation of the earliest task, or the zero time
// when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if t := e.Next; !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	return next
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
