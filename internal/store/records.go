package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/util"
)

// --- Users ---

func (s *sqlStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, created_at, updated_at FROM users WHERE id = ?`), id).
		Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SaveUser inserts the user or renames an existing one.
func (s *sqlStore) SaveUser(ctx context.Context, u models.User) error {
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`),
		u.ID, u.Name, now, now)
	if err != nil {
		slog.Error(s.name+".SaveUser: upsert failed", "userID", u.ID, "error", err)
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// --- Catalog ---

func (s *sqlStore) ListCatalogItems(ctx context.Context, kind models.CatalogKind, group string) ([]models.CatalogItem, error) {
	query := `SELECT id, kind, grp, name, created_at FROM catalog_items WHERE kind = ?`
	args := []any{string(kind)}
	if group != "" {
		query += ` AND grp = ?`
		args = append(args, group)
	}
	query += ` ORDER BY created_at, name`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()
	var out []models.CatalogItem
	for rows.Next() {
		var it models.CatalogItem
		var k string
		if err := rows.Scan(&it.ID, &k, &it.Group, &it.Name, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Kind = models.CatalogKind(k)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO catalog_items (id, kind, grp, name, created_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (kind, grp, name) DO NOTHING`),
		util.NewID("cat_"), string(kind), group, name, utc(time.Now()))
	if err != nil {
		return false, fmt.Errorf("add catalog item: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) RemoveCatalogItem(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM catalog_items WHERE kind = ? AND grp = ? AND name = ?`),
		string(kind), group, name)
	if err != nil {
		return false, fmt.Errorf("remove catalog item: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) CountCatalogItems(ctx context.Context, kind models.CatalogKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM catalog_items WHERE kind = ?`), string(kind)).Scan(&n)
	return n, err
}

// --- Work reports ---

const workColumns = `id, user_id, work_date, category, machinery, activity, location_group, location, crop, hours, trips, created_at, updated_at`

func scanWork(row rowScanner) (*models.WorkReport, error) {
	var r models.WorkReport
	var category, group string
	var machinery, crop sql.NullString
	if err := row.Scan(&r.ID, &r.UserID, &r.WorkDate, &category, &machinery, &r.Activity, &group,
		&r.Location, &crop, &r.Hours, &r.Trips, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	r.LocationGroup = models.LocationGroup(group)
	r.Machinery = machinery.String
	r.Crop = crop.String
	return &r, nil
}

func (s *sqlStore) InsertWorkReport(ctx context.Context, r models.WorkReport) (string, error) {
	if r.ID == "" {
		r.ID = util.NewID("wr_")
	}
	now := utc(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO work_reports (`+workColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.WorkDate, string(r.Category), nilIfEmpty(r.Machinery), r.Activity,
		string(r.LocationGroup), r.Location, nilIfEmpty(r.Crop), r.Hours, r.Trips, now, now)
	if err != nil {
		slog.Error(s.name+".InsertWorkReport: insert failed", "userID", r.UserID, "error", err)
		return "", fmt.Errorf("insert work report: %w", err)
	}
	slog.Debug(s.name+".InsertWorkReport: saved", "id", r.ID, "userID", r.UserID, "date", r.WorkDate, "hours", r.Hours)
	return r.ID, nil
}

func (s *sqlStore) GetWorkReport(ctx context.Context, id string) (*models.WorkReport, error) {
	r, err := scanWork(s.db.QueryRowContext(ctx, s.q(`SELECT `+workColumns+` FROM work_reports WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work report: %w", err)
	}
	return r, nil
}

func (s *sqlStore) UpdateWorkReportHours(ctx context.Context, id, userID string, hours int) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE work_reports SET hours = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`), hours, utc(time.Now()), id, userID)
	if err != nil {
		return false, fmt.Errorf("update work report hours: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) DeleteWorkReport(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM work_reports WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return false, fmt.Errorf("delete work report: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CommittedHours sums the user's hours on f.Date, skipping excluded
// categories and the excluded record.
func (s *sqlStore) CommittedHours(ctx context.Context, f budget.Filter) (int, error) {
	query := `SELECT COALESCE(SUM(hours), 0) FROM work_reports WHERE user_id = ? AND work_date = ?`
	args := []any{f.UserID, f.Date}
	if len(f.ExcludeCategories) > 0 {
		query += ` AND category NOT IN (` + placeholders(len(f.ExcludeCategories)) + `)`
		for _, c := range f.ExcludeCategories {
			args = append(args, string(c))
		}
	}
	if f.ExcludeRecordID != "" {
		query += ` AND id <> ?`
		args = append(args, f.ExcludeRecordID)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("committed hours: %w", err)
	}
	return total, nil
}

func (s *sqlStore) DayReports(ctx context.Context, userID, date string) ([]models.WorkReport, error) {
	return s.ListWorkReports(ctx, ReportQuery{UserID: userID, From: date, To: date})
}

func (s *sqlStore) RecentWorkReports(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkReport, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+workColumns+` FROM work_reports
		WHERE user_id = ? AND created_at >= ? ORDER BY created_at DESC LIMIT ?`), userID, utc(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent work reports: %w", err)
	}
	defer rows.Close()
	var out []models.WorkReport
	for rows.Next() {
		r, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// reportWhere builds the WHERE clause shared by the report listings.
func reportWhere(q ReportQuery) (string, []any) {
	var conds []string
	var args []any
	if q.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.From != "" {
		conds = append(conds, "work_date >= ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		conds = append(conds, "work_date <= ?")
		args = append(args, q.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *sqlStore) ListWorkReports(ctx context.Context, q ReportQuery) ([]models.WorkReport, error) {
	where, args := reportWhere(q)
	query := `SELECT ` + workColumns + ` FROM work_reports` + where + ` ORDER BY work_date, created_at`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list work reports: %w", err)
	}
	defer rows.Close()
	var out []models.WorkReport
	for rows.Next() {
		r, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Foreman reports ---

const foremanColumns = `id, user_id, work_date, work_type, crop, field, rows_count, bags, workers, created_at`

func scanForeman(row rowScanner) (*models.ForemanReport, error) {
	var r models.ForemanReport
	if err := row.Scan(&r.ID, &r.UserID, &r.WorkDate, &r.WorkType, &r.Crop, &r.Field,
		&r.Rows, &r.Bags, &r.Workers, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlStore) InsertForemanReport(ctx context.Context, r models.ForemanReport) (string, error) {
	if r.ID == "" {
		r.ID = util.NewID("fr_")
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO foreman_reports (`+foremanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.WorkDate, r.WorkType, r.Crop, r.Field, r.Rows, r.Bags, r.Workers, utc(time.Now()))
	if err != nil {
		slog.Error(s.name+".InsertForemanReport: insert failed", "userID", r.UserID, "error", err)
		return "", fmt.Errorf("insert foreman report: %w", err)
	}
	return r.ID, nil
}

func (s *sqlStore) GetForemanReport(ctx context.Context, id string) (*models.ForemanReport, error) {
	r, err := scanForeman(s.db.QueryRowContext(ctx, s.q(`SELECT `+foremanColumns+` FROM foreman_reports WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get foreman report: %w", err)
	}
	return r, nil
}

func (s *sqlStore) ListForemanReports(ctx context.Context, q ReportQuery) ([]models.ForemanReport, error) {
	where, args := reportWhere(q)
	query := `SELECT ` + foremanColumns + ` FROM foreman_reports` + where + ` ORDER BY work_date, created_at`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list foreman reports: %w", err)
	}
	defer rows.Close()
	var out []models.ForemanReport
	for rows.Next() {
		r, err := scanForeman(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
