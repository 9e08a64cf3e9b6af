package budget

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	reports []models.WorkReport
	err     error
	calls   int
}

func (l *memLedger) CommittedHours(_ context.Context, f Filter) (int, error) {
	l.calls++
	if l.err != nil {
		return 0, l.err
	}
	total := 0
	for _, r := range l.reports {
		if r.UserID != f.UserID || r.WorkDate != f.Date || r.ID == f.ExcludeRecordID {
			continue
		}
		if slices.Contains(f.ExcludeCategories, r.Category) {
			continue
		}
		total += r.Hours
	}
	return total, nil
}

func (l *memLedger) DayReports(_ context.Context, userID, date string) ([]models.WorkReport, error) {
	var out []models.WorkReport
	for _, r := range l.reports {
		if r.UserID == userID && r.WorkDate == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{" 24 ", 24, false},
		{"6", 6, false},
		{"0", 0, true},
		{"25", 0, true},
		{"-3", 0, true},
		{"6.5", 0, true},
		{"six", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseHours(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidHours, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestPolicy_Excluded(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, []models.Category{models.CategoryAdministrative}, p.Excluded(models.Roles{models.RoleOperator}))
	assert.Equal(t, []models.Category{models.CategoryIT}, p.Excluded(models.Roles{models.RoleIT}))
	assert.Empty(t, p.Excluded(models.Roles{models.RoleForeman}))
	assert.Equal(t,
		[]models.Category{models.CategoryAdministrative, models.CategoryIT},
		p.Excluded(models.Roles{models.RoleIT, models.RoleOperator, models.RoleAdmin}))
}

func TestPolicy_ExemptIsRoleAware(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.Exempt(models.Roles{models.RoleOperator}, models.CategoryAdministrative))
	assert.False(t, p.Exempt(models.Roles{models.RoleIT}, models.CategoryAdministrative),
		"administrative work is not exempt for a role that only excludes IT")
	assert.True(t, p.Exempt(models.Roles{models.RoleIT}, models.CategoryIT))
	assert.False(t, p.Exempt(models.Roles{models.RoleOperator}, models.CategoryMachinery))
}

func TestPolicy_SpecificRoleOverridesOperator(t *testing.T) {
	dir := roles.NewDirectory(
		roles.WithAdmins("adm"),
		roles.WithForemen("fm"),
		roles.WithITStaff("it", "itadm"),
		roles.WithAdmins("itadm"),
	)
	p := DefaultPolicy()

	tests := []struct {
		user string
		want []models.Category
	}{
		{"op", []models.Category{models.CategoryAdministrative}},
		{"adm", []models.Category{models.CategoryAdministrative}},
		{"fm", nil},
		{"it", []models.Category{models.CategoryIT}},
		{"itadm", []models.Category{models.CategoryAdministrative, models.CategoryIT}},
	}
	for _, tt := range tests {
		got := dir.RolesOf(tt.user)
		require.True(t, got.Has(models.RoleOperator), "directory tags every user as operator")
		assert.Equal(t, tt.want, p.Excluded(got), "user %s", tt.user)
	}
	assert.False(t, p.Exempt(dir.RolesOf("it"), models.CategoryAdministrative))
	assert.False(t, p.Exempt(dir.RolesOf("fm"), models.CategoryAdministrative))
}

func TestValidator_DirectoryRolesCountAdministrativeHours(t *testing.T) {
	dir := roles.NewDirectory(roles.WithITStaff("it1"), roles.WithForemen("fm1"))
	for _, user := range []string{"it1", "fm1"} {
		ledger := &memLedger{reports: []models.WorkReport{
			{ID: "r1", UserID: user, WorkDate: "2024-05-01", Category: models.CategoryManual, Hours: 20},
		}}
		v := NewValidator(ledger, DefaultPolicy())
		d, err := v.Check(context.Background(), Request{
			UserID: user, Date: "2024-05-01", Roles: dir.RolesOf(user),
			Category: models.CategoryAdministrative, Hours: 10,
		})
		require.NoError(t, err)
		assert.False(t, d.OK, "user %s", user)
		assert.False(t, d.Exempt, "user %s", user)
		assert.Equal(t, 4, d.MaxAddable, "user %s", user)
	}
}

func TestValidator_Scenario(t *testing.T) {
	ledger := &memLedger{}
	v := NewValidator(ledger, DefaultPolicy())
	ctx := context.Background()
	roles := models.Roles{models.RoleOperator}

	d, err := v.Check(ctx, Request{UserID: "u1", Date: "2024-05-01", Roles: roles, Category: models.CategoryMachinery, Hours: 6})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 0, d.Committed)

	ledger.reports = append(ledger.reports, models.WorkReport{ID: "r1", UserID: "u1", WorkDate: "2024-05-01", Category: models.CategoryMachinery, Hours: 6})

	d, err = v.Check(ctx, Request{UserID: "u1", Date: "2024-05-01", Roles: roles, Category: models.CategoryMachinery, Hours: 20})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 18, d.MaxAddable)
	require.Len(t, d.Existing, 1)
	assert.Equal(t, "r1", d.Existing[0].ID)
}

func TestValidator_ExactlyTwentyFour(t *testing.T) {
	ledger := &memLedger{reports: []models.WorkReport{
		{ID: "r1", UserID: "u1", WorkDate: "2024-05-01", Category: models.CategoryManual, Hours: 20},
	}}
	v := NewValidator(ledger, DefaultPolicy())
	d, err := v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleOperator}, Category: models.CategoryManual, Hours: 4})
	require.NoError(t, err)
	assert.True(t, d.OK)
}

func TestValidator_ExcludeRecordOnEdit(t *testing.T) {
	ledger := &memLedger{reports: []models.WorkReport{
		{ID: "r1", UserID: "u1", WorkDate: "2024-05-01", Category: models.CategoryManual, Hours: 10},
		{ID: "r2", UserID: "u1", WorkDate: "2024-05-01", Category: models.CategoryManual, Hours: 10},
	}}
	v := NewValidator(ledger, DefaultPolicy())
	req := Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleOperator}, Category: models.CategoryManual, Hours: 14, ExcludeRecordID: "r2"}
	d, err := v.Check(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d.OK, "editing r2 to 14h gives 10+14=24")

	req.Hours = 15
	d, err = v.Check(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 14, d.MaxAddable)
	for _, r := range d.Existing {
		assert.NotEqual(t, "r2", r.ID, "edited record is not listed as existing")
	}
}

func TestValidator_ExcludedCategoriesDoNotCount(t *testing.T) {
	ledger := &memLedger{reports: []models.WorkReport{
		{ID: "r1", UserID: "u1", WorkDate: "2024-05-01", Category: models.CategoryAdministrative, Hours: 20},
	}}
	v := NewValidator(ledger, DefaultPolicy())

	d, err := v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleOperator}, Category: models.CategoryManual, Hours: 10})
	require.NoError(t, err)
	assert.True(t, d.OK, "administrative hours are excluded for operators")

	d, err = v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleIT}, Category: models.CategoryManual, Hours: 10})
	require.NoError(t, err)
	assert.False(t, d.OK, "administrative hours count for the IT role")
	assert.Equal(t, 4, d.MaxAddable)
}

func TestValidator_ExemptSkipsLookup(t *testing.T) {
	ledger := &memLedger{err: errors.New("db down")}
	v := NewValidator(ledger, DefaultPolicy())
	d, err := v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleOperator}, Category: models.CategoryAdministrative, Hours: 8})
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.True(t, d.Exempt)
	assert.Equal(t, 0, ledger.calls)
}

func TestValidator_InvalidHoursBeforeLookup(t *testing.T) {
	ledger := &memLedger{}
	v := NewValidator(ledger, DefaultPolicy())
	_, err := v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Hours: 30})
	assert.ErrorIs(t, err, ErrInvalidHours)
	assert.Equal(t, 0, ledger.calls)
}

func TestValidator_LedgerFailure(t *testing.T) {
	boom := errors.New("db down")
	v := NewValidator(&memLedger{err: boom}, DefaultPolicy())
	_, err := v.Check(context.Background(), Request{UserID: "u1", Date: "2024-05-01", Roles: models.Roles{models.RoleOperator}, Category: models.CategoryManual, Hours: 8})
	assert.ErrorIs(t, err, boom)
}

func TestExceededError(t *testing.T) {
	var err error = &ExceededError{Decision: Decision{Committed: 6, MaxAddable: 18}}
	var ex *ExceededError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 18, ex.Decision.MaxAddable)
	assert.Contains(t, err.Error(), "18")
}
