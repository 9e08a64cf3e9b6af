package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeRoles map[string]models.Roles

func (f fakeRoles) RolesOf(userID string) models.Roles {
	return append(models.Roles{models.RoleOperator}, f[userID]...)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) SaveUser(_ context.Context, u models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

type fakeCatalog struct {
	locations  map[models.LocationGroup][]string
	activities map[models.Category][]string
	machinery  []string
	crops      []string
	workTypes  []string
	bags       map[string]bool
	trips      map[string]bool
	err        error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		locations: map[models.LocationGroup][]string{
			models.GroupFields:    {"North", "South"},
			models.GroupWarehouse: {"Main warehouse"},
			models.GroupOffice:    {"Head office"},
		},
		activities: map[models.Category][]string{
			models.CategoryMachinery:      {"Plowing", "Seeding"},
			models.CategoryManual:         {"Weeding", "Harvesting"},
			models.CategoryAdministrative: {"Paperwork"},
			models.CategoryIT:             {"Support"},
		},
		machinery: []string{"A", "Truck B"},
		crops:     []string{"Wheat", "Potato", "Zucchini"},
		workTypes: []string{"Harvest", "Planting"},
		bags:      map[string]bool{"Potato": true},
		trips:     map[string]bool{"Truck B": true},
	}
}

func named(prefix string, names []string) []fuzzy.Candidate {
	out := make([]fuzzy.Candidate, len(names))
	for i, n := range names {
		out[i] = fuzzy.Candidate{ID: fmt.Sprintf("%s%d", prefix, i+1), Label: n}
	}
	return out
}

func (f *fakeCatalog) Locations(_ context.Context, g models.LocationGroup) ([]fuzzy.Candidate, error) {
	return named("loc", f.locations[g]), f.err
}

func (f *fakeCatalog) Activities(_ context.Context, c models.Category) ([]fuzzy.Candidate, error) {
	return named("act", f.activities[c]), f.err
}

func (f *fakeCatalog) Machinery(context.Context) ([]fuzzy.Candidate, error) {
	return named("m", f.machinery), f.err
}

func (f *fakeCatalog) Crops(context.Context) ([]fuzzy.Candidate, error) {
	return named("c", f.crops), f.err
}

func (f *fakeCatalog) WorkTypes(context.Context) ([]fuzzy.Candidate, error) {
	return named("w", f.workTypes), f.err
}

func (f *fakeCatalog) CropRequiresBags(crop string) bool         { return f.bags[crop] }
func (f *fakeCatalog) MachineryCountsTrips(machinery string) bool { return f.trips[machinery] }

func (f *fakeCatalog) Add(_ context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	if kind == models.KindLocation {
		g := models.LocationGroup(group)
		if slices.Contains(f.locations[g], name) {
			return false, nil
		}
		f.locations[g] = append(f.locations[g], name)
		return true, nil
	}
	c := models.Category(group)
	if slices.Contains(f.activities[c], name) {
		return false, nil
	}
	f.activities[c] = append(f.activities[c], name)
	return true, nil
}

func (f *fakeCatalog) Remove(_ context.Context, kind models.CatalogKind, group, name string) (bool, error) {
	if kind == models.KindLocation {
		g := models.LocationGroup(group)
		i := slices.Index(f.locations[g], name)
		if i < 0 {
			return false, nil
		}
		f.locations[g] = slices.Delete(f.locations[g], i, i+1)
		return true, nil
	}
	c := models.Category(group)
	i := slices.Index(f.activities[c], name)
	if i < 0 {
		return false, nil
	}
	f.activities[c] = slices.Delete(f.activities[c], i, i+1)
	return true, nil
}

type fakeReports struct {
	mu      sync.Mutex
	seq     int
	work    []models.WorkReport
	foreman []models.ForemanReport
}

func (f *fakeReports) CommittedHours(_ context.Context, flt budget.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.work {
		if r.UserID != flt.UserID || r.WorkDate != flt.Date || r.ID == flt.ExcludeRecordID {
			continue
		}
		if slices.Contains(flt.ExcludeCategories, r.Category) {
			continue
		}
		total += r.Hours
	}
	return total, nil
}

func (f *fakeReports) DayReports(_ context.Context, userID, date string) ([]models.WorkReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WorkReport
	for _, r := range f.work {
		if r.UserID == userID && r.WorkDate == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReports) InsertWorkReport(_ context.Context, r models.WorkReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = fmt.Sprintf("wr%d", f.seq)
	r.CreatedAt = testNow.Add(time.Duration(f.seq) * time.Second)
	f.work = append(f.work, r)
	return r.ID, nil
}

func (f *fakeReports) InsertForemanReport(_ context.Context, r models.ForemanReport) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = fmt.Sprintf("fr%d", f.seq)
	f.foreman = append(f.foreman, r)
	return r.ID, nil
}

func (f *fakeReports) GetWorkReport(_ context.Context, id string) (*models.WorkReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.work {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeReports) UpdateWorkReportHours(_ context.Context, id, userID string, hours int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.work {
		if f.work[i].ID == id && f.work[i].UserID == userID {
			f.work[i].Hours = hours
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReports) DeleteWorkReport(_ context.Context, id, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.work {
		if f.work[i].ID == id && f.work[i].UserID == userID {
			f.work = slices.Delete(f.work, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReports) RecentWorkReports(_ context.Context, userID string, since time.Time, limit int) ([]models.WorkReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WorkReport
	for _, r := range f.work {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeExport struct {
	mu      sync.Mutex
	changes []models.ExportChange
	sweeps  []string
	err     error
}

func (f *fakeExport) NotifyExport(_ context.Context, c models.ExportChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.changes = append(f.changes, c)
	return nil
}

func (f *fakeExport) RequestSweep(_ context.Context, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sweeps = append(f.sweeps, month)
	return nil
}

var errBoom = errors.New("boom")

type harness struct {
	t        *testing.T
	engine   *Engine
	sessions *session.Store
	users    *fakeUsers
	catalog  *fakeCatalog
	reports  *fakeReports
	export   *fakeExport
	roles    fakeRoles
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRoles(t, nil)
}

// newHarnessWithRoles builds a harness whose engine asks src for roles. A nil
// src uses the harness's own table filled by register.
func newHarnessWithRoles(t *testing.T, src RoleSource) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		sessions: session.NewStore(),
		users:    &fakeUsers{users: map[string]models.User{}},
		catalog:  newFakeCatalog(),
		reports:  &fakeReports{},
		export:   &fakeExport{},
		roles:    fakeRoles{},
	}
	if src == nil {
		src = h.roles
	}
	e, err := NewEngine(Deps{
		Sessions: h.sessions,
		Roles:    src,
		Users:    h.users,
		Catalog:  h.catalog,
		Reports:  h.reports,
		Export:   h.export,
	}, WithClock(func() time.Time { return testNow }), WithLocation(time.UTC))
	require.NoError(t, err)
	h.engine = e
	return h
}

// register adds a user with the given extra roles.
func (h *harness) register(userID string, roles ...models.Role) {
	h.users.users[userID] = models.User{ID: userID, Name: "User " + userID}
	h.roles[userID] = roles
}

func (h *harness) send(userID, text string) Prompt {
	h.t.Helper()
	p, err := h.engine.HandleTurn(context.Background(), userID, Input{Text: text})
	require.NoError(h.t, err, "input %q", text)
	return p
}

func (h *harness) tap(userID, id string) Prompt {
	h.t.Helper()
	p, err := h.engine.HandleTurn(context.Background(), userID, Input{Selection: id})
	require.NoError(h.t, err, "selection %q", id)
	return p
}

func (h *harness) step(userID string) models.StepID {
	return h.sessions.Get(userID).Step
}

func labels(p Prompt) []string {
	out := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		out[i] = c.Label
	}
	return out
}
