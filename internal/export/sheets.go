package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// DefaultDirPermissions is used when creating the export directory.
const DefaultDirPermissions = 0755

var (
	workHeader = []string{
		"id", "user_id", "user_name", "work_date", "category", "machinery", "activity",
		"location_group", "location", "crop", "hours", "trips", "created_at",
	}
	foremanHeader = []string{
		"id", "user_id", "user_name", "work_date", "work_type", "crop", "field",
		"rows", "workers", "bags", "created_at",
	}
)

// Sheets stores one CSV file per flow and month. Rows are keyed by record id
// in the first column and kept sorted by work date, then creation time.
type Sheets struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// NewSheets creates a Sheets rooted at dir on fs.
func NewSheets(fs afero.Fs, dir string) *Sheets {
	return &Sheets{fs: fs, dir: dir}
}

// Path returns the sheet file of flow and month.
func (s *Sheets) Path(flow models.FlowType, month string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.csv", flow, month))
}

func header(flow models.FlowType) ([]string, error) {
	switch flow {
	case models.FlowWork:
		return workHeader, nil
	case models.FlowForeman:
		return foremanHeader, nil
	}
	return nil, fmt.Errorf("no export sheet for flow %q", flow)
}

// WorkRow renders a work report as a sheet row.
func WorkRow(r models.WorkReport, userName string) []string {
	trips := ""
	if r.Trips > 0 {
		trips = strconv.Itoa(r.Trips)
	}
	return []string{
		r.ID, r.UserID, userName, r.WorkDate, string(r.Category), r.Machinery, r.Activity,
		string(r.LocationGroup), r.Location, r.Crop, strconv.Itoa(r.Hours), trips,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ForemanRow renders a foreman report as a sheet row.
func ForemanRow(r models.ForemanReport, userName string) []string {
	bags := ""
	if r.Bags > 0 {
		bags = strconv.Itoa(r.Bags)
	}
	return []string{
		r.ID, r.UserID, userName, r.WorkDate, r.WorkType, r.Crop, r.Field,
		strconv.Itoa(r.Rows), strconv.Itoa(r.Workers), bags,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Rows reads the data rows of a sheet. A missing sheet has no rows.
func (s *Sheets) Rows(flow models.FlowType, month string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(flow, month)
}

func (s *Sheets) read(flow models.FlowType, month string) ([][]string, error) {
	if _, err := header(flow); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.Path(flow, month))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheet %s: %w", s.Path(flow, month), err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

// write replaces the sheet through a temporary file and a rename.
func (s *Sheets) write(flow models.FlowType, month string, rows [][]string) error {
	head, err := header(flow)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	sortRows(flow, rows)

	tmp, err := afero.TempFile(s.fs, s.dir, fmt.Sprintf(".%s-%s-*.tmp", flow, month))
	if err != nil {
		return fmt.Errorf("failed to create temp sheet: %w", err)
	}
	if err := writeCSV(tmp, head, rows); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp sheet: %w", err)
	}
	if err := s.fs.Rename(tmp.Name(), s.Path(flow, month)); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to replace sheet: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, head []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("failed to write sheet header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write sheet rows: %w", err)
	}
	return nil
}

// sortRows orders rows by work date, then creation time, then id.
func sortRows(flow models.FlowType, rows [][]string) {
	created := len(workHeader) - 1
	if flow == models.FlowForeman {
		created = len(foremanHeader) - 1
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a[3] != b[3] {
			return a[3] < b[3]
		}
		if a[created] != b[created] {
			return a[created] < b[created]
		}
		return a[0] < b[0]
	})
}

// Upsert replaces the row with the same id or appends row.
func (s *Sheets) Upsert(flow models.FlowType, month string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.read(flow, month)
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range rows {
		if len(r) > 0 && r[0] == row[0] {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	return s.write(flow, month, rows)
}

// Delete removes the row of id. It reports whether a row was removed.
func (s *Sheets) Delete(flow models.FlowType, month, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.read(flow, month)
	if err != nil {
		return false, err
	}
	kept := rows[:0]
	for _, r := range rows {
		if len(r) > 0 && r[0] == id {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(rows) {
		return false, nil
	}
	return true, s.write(flow, month, kept)
}

// Replace overwrites the whole sheet with rows.
func (s *Sheets) Replace(flow models.FlowType, month string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(flow, month, rows)
}
