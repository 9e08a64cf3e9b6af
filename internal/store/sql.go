package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore is the SQL implementation shared by SQLiteStore and PostgresStore.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	name    string
}

func newSQLStore(db *sql.DB, d dialect, name string) *sqlStore {
	return &sqlStore{db: db, dialect: d, name: name}
}

// q rebinds '?' placeholders for the active dialect.
func (s *sqlStore) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) migrate(migrations string) error {
	slog.Debug(s.name+".migrate: applying schema")
	if _, err := s.db.Exec(migrations); err != nil {
		slog.Error(s.name+".migrate: failed to run migrations", "error", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug(s.name + ".migrate: schema applied")
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.name+".Close: failed to close database", "error", err)
	}
	return err
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// utc normalizes timestamps so text comparisons in SQLite stay consistent.
func utc(t time.Time) time.Time {
	return t.UTC()
}
