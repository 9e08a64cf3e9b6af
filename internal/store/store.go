// Package store provides the SQLite and PostgreSQL persistence backends of WorkLog.
//
// Both backends share one SQL implementation; queries are written with '?'
// placeholders and rebound for PostgreSQL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/models"
)

// Opts holds configuration options for the store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or key=value
// connection strings and "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || (strings.Contains(d, "=") && strings.Contains(d, " ")) {
		return "postgres"
	}
	return "sqlite3"
}

// ReportQuery filters report listings. Empty fields do not filter.
type ReportQuery struct {
	UserID string
	From   string
	To     string
	Limit  int
}

// UserRepo persists registered users.
type UserRepo interface {
	// GetUser returns nil, nil when the user is not registered.
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u models.User) error
}

// CatalogRepo persists admin-managed catalog items.
type CatalogRepo interface {
	ListCatalogItems(ctx context.Context, kind models.CatalogKind, group string) ([]models.CatalogItem, error)
	AddCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
	RemoveCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
	CountCatalogItems(ctx context.Context, kind models.CatalogKind) (int, error)
}

// ReportRepo persists finished work and foreman records and answers the
// budget ledger queries.
type ReportRepo interface {
	budget.Ledger

	InsertWorkReport(ctx context.Context, r models.WorkReport) (string, error)
	GetWorkReport(ctx context.Context, id string) (*models.WorkReport, error)
	// UpdateWorkReportHours and DeleteWorkReport only touch a record owned by
	// userID and report whether a row changed.
	UpdateWorkReportHours(ctx context.Context, id, userID string, hours int) (bool, error)
	DeleteWorkReport(ctx context.Context, id, userID string) (bool, error)
	RecentWorkReports(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkReport, error)
	ListWorkReports(ctx context.Context, q ReportQuery) ([]models.WorkReport, error)

	InsertForemanReport(ctx context.Context, r models.ForemanReport) (string, error)
	GetForemanReport(ctx context.Context, id string) (*models.ForemanReport, error)
	ListForemanReports(ctx context.Context, q ReportQuery) ([]models.ForemanReport, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	UserRepo
	CatalogRepo
	ReportRepo
	OutboxRepo
	JobRepo
	DedupRepo
	Close() error
}

// Open creates the backend matching the configured DSN.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("store.Open: using PostgreSQL backend")
		return NewPostgresStore(opts...)
	}
	slog.Debug("store.Open: using SQLite backend", "path", cfg.DSN)
	return NewSQLiteStore(opts...)
}
