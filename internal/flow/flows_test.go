package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/roles"
)

// logWarehouseWork completes a manual warehouse entry of the given hours.
func logWarehouseWork(h *harness, userID, date, hours string) {
	h.t.Helper()
	h.send(userID, "Log work")
	h.send(userID, date)
	h.send(userID, "Manual work")
	h.send(userID, "Weeding")
	h.send(userID, "Warehouse")
	h.send(userID, hours)
	require.Equal(h.t, models.StepWorkConfirm, h.step(userID))
	h.send(userID, "Save")
}

func TestRegistration(t *testing.T) {
	h := newHarness(t)

	p := h.send("u9", "hello")
	assert.Equal(t, models.StepRegisterName, h.step("u9"))
	assert.Contains(t, p.Text, textRegisterName)

	p = h.send("u9", "Al")
	assert.Contains(t, p.Text, textNameLength)
	assert.Equal(t, models.StepRegisterName, h.step("u9"))

	p = h.send("u9", "  Alice   Smith ")
	assert.Contains(t, p.Text, "Thanks, Alice Smith")
	assert.Equal(t, models.StepIdle, h.step("u9"))
	assert.Equal(t, "Alice Smith", h.users.users["u9"].Name)
	assert.Contains(t, labels(p), "Log work")
}

func TestChangeName(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	h.send("u1", "More")
	h.send("u1", "Change name")
	require.Equal(t, models.StepRegisterName, h.step("u1"))

	p := h.send("u1", "Bob Builder")
	assert.Contains(t, p.Text, "Your name is now Bob Builder")
	assert.Equal(t, "Bob Builder", h.users.users["u1"].Name)
}

func TestWorkFlow_MachineryInTheField(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	h.send("u1", "Log work")
	h.send("u1", "2024-05-09")
	h.send("u1", "Machinery")
	h.send("u1", "A")
	h.send("u1", "Plowing")
	h.send("u1", "Fields")
	require.Equal(t, models.StepWorkLocation, h.step("u1"))
	h.send("u1", "North")
	require.Equal(t, models.StepWorkCrop, h.step("u1"))
	h.send("u1", "Wheat")
	p := h.send("u1", "6")
	require.Equal(t, models.StepWorkConfirm, h.step("u1"))
	assert.Contains(t, p.Text, "Hours: 6")
	assert.Contains(t, p.Text, "Date: 09.05.2024")
	assert.NotContains(t, p.Text, "Trips")

	p = h.send("u1", "Save")
	assert.Contains(t, p.Text, textSaved)
	assert.Equal(t, models.StepIdle, h.step("u1"))

	require.Len(t, h.reports.work, 1)
	r := h.reports.work[0]
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, "2024-05-09", r.WorkDate)
	assert.Equal(t, models.CategoryMachinery, r.Category)
	assert.Equal(t, "A", r.Machinery)
	assert.Equal(t, "Plowing", r.Activity)
	assert.Equal(t, models.GroupFields, r.LocationGroup)
	assert.Equal(t, "North", r.Location)
	assert.Equal(t, "Wheat", r.Crop)
	assert.Equal(t, 6, r.Hours)
	assert.Zero(t, r.Trips)

	require.Len(t, h.export.changes, 1)
	assert.Equal(t, models.ExportChange{
		Op: models.ExportUpsert, Flow: models.FlowWork, RecordID: r.ID, WorkDate: "2024-05-09",
	}, h.export.changes[0])
}

func TestWorkFlow_DailyBudget(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	logWarehouseWork(h, "u1", "09.05", "6")
	require.Len(t, h.reports.work, 1)

	h.send("u1", "Log work")
	h.send("u1", "09.05")
	h.send("u1", "Manual work")
	h.send("u1", "Harvesting")
	h.send("u1", "Warehouse")
	require.Equal(t, models.StepWorkHours, h.step("u1"))

	p := h.send("u1", "20")
	assert.Equal(t, models.StepWorkHours, h.step("u1"))
	assert.Contains(t, p.Text, "at most 18")
	assert.Contains(t, p.Text, "Weeding")
	_, set := h.sessions.Get("u1").Buffer[models.KeyHours]
	assert.False(t, set)

	h.send("u1", "18")
	require.Equal(t, models.StepWorkConfirm, h.step("u1"))
	h.send("u1", "Save")
	require.Len(t, h.reports.work, 2)

	logWarehouseWorkUntilHours(h, "u1", "09.05")
	p = h.send("u1", "1")
	assert.Contains(t, p.Text, "already full")
	assert.Equal(t, models.StepWorkHours, h.step("u1"))
}

// logWarehouseWorkUntilHours walks a manual warehouse entry up to the hours step.
func logWarehouseWorkUntilHours(h *harness, userID, date string) {
	h.t.Helper()
	h.send(userID, "Log work")
	h.send(userID, date)
	h.send(userID, "Manual work")
	h.send(userID, "Weeding")
	h.send(userID, "Warehouse")
	require.Equal(h.t, models.StepWorkHours, h.step(userID))
}

func TestWorkFlow_OtherDaysHaveTheirOwnBudget(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	logWarehouseWork(h, "u1", "09.05", "24")
	logWarehouseWork(h, "u1", "08.05", "24")
	assert.Len(t, h.reports.work, 2)
}

func TestWorkFlow_AdministrativeIsExemptForOperators(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	logWarehouseWork(h, "u1", "09.05", "20")

	h.send("u1", "Log work")
	h.send("u1", "09.05")
	h.send("u1", "Administrative")
	p := h.send("u1", "Paperwork")
	require.Equal(t, models.StepWorkHours, h.step("u1"))
	assert.NotContains(t, labels(p), "Fields")

	h.send("u1", "10")
	require.Equal(t, models.StepWorkConfirm, h.step("u1"))
	h.send("u1", "Save")

	require.Len(t, h.reports.work, 2)
	r := h.reports.work[1]
	assert.Equal(t, models.CategoryAdministrative, r.Category)
	assert.Equal(t, models.GroupOffice, r.LocationGroup)
	assert.Equal(t, "Head office", r.Location)
	assert.Equal(t, 10, r.Hours)

	// Administrative hours do not count toward the remaining budget.
	logWarehouseWorkUntilHours(h, "u1", "09.05")
	h.send("u1", "4")
	assert.Equal(t, models.StepWorkConfirm, h.step("u1"))
}

func TestWorkFlow_AdministrativeCountsForITStaffAndForemen(t *testing.T) {
	dir := roles.NewDirectory(roles.WithITStaff("it1"), roles.WithForemen("fm1"))
	h := newHarnessWithRoles(t, dir)

	for _, user := range []string{"it1", "fm1"} {
		h.register(user)
		logWarehouseWork(h, user, "09.05", "20")

		h.send(user, "Log work")
		h.send(user, "09.05")
		h.send(user, "Administrative")
		h.send(user, "Paperwork")
		require.Equal(t, models.StepWorkHours, h.step(user))

		p := h.send(user, "10")
		assert.Equal(t, models.StepWorkHours, h.step(user), "user %s", user)
		assert.Contains(t, p.Text, "can add at most 4", "user %s", user)

		h.send(user, "4")
		assert.Equal(t, models.StepWorkConfirm, h.step(user), "user %s", user)
		h.send(user, "Save")
	}
	assert.Len(t, h.reports.work, 4)
}

func TestWorkFlow_ITCategoryOnlyForITRole(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	h.register("u2", models.RoleIT)

	h.send("u1", "Log work")
	p := h.send("u1", "09.05")
	assert.NotContains(t, labels(p), "IT")

	h.send("u2", "Log work")
	p = h.send("u2", "09.05")
	assert.Contains(t, labels(p), "IT")
}

func TestWorkFlow_TripsForCountedMachinery(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	h.send("u1", "Log work")
	h.send("u1", "09.05")
	h.send("u1", "Machinery")
	h.send("u1", "Truck B")
	h.send("u1", "Seeding")
	h.send("u1", "Warehouse")
	h.send("u1", "5")
	require.Equal(t, models.StepWorkTrips, h.step("u1"))

	p := h.send("u1", "101")
	assert.Contains(t, p.Text, textTripsInvalid)
	h.send("u1", "7")
	require.Equal(t, models.StepWorkConfirm, h.step("u1"))
	h.send("u1", "Save")

	require.Len(t, h.reports.work, 1)
	assert.Equal(t, 7, h.reports.work[0].Trips)
	assert.Equal(t, "Main warehouse", h.reports.work[0].Location)
}

func TestWorkFlow_CustomActivity(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	h.send("u1", "Log work")
	h.send("u1", "09.05")
	h.send("u1", "Manual work")
	h.send("u1", "Other")
	require.Equal(t, models.StepWorkActivityCustom, h.step("u1"))

	p := h.send("u1", "ab")
	assert.Contains(t, p.Text, textActivityLength)
	h.send("u1", "Fence repair")
	assert.Equal(t, models.StepWorkLocationGroup, h.step("u1"))
	assert.Equal(t, "Fence repair", h.sessions.Get("u1").Buffer[models.KeyActivity])
}

func TestWorkFlow_DateInput(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	h.send("u1", "Log work")

	p := h.send("u1", "11.05.2024")
	assert.Contains(t, p.Text, textDateFuture)
	p = h.send("u1", "2024-05-11")
	assert.Contains(t, p.Text, textDateFuture)
	p = h.send("u1", "31.02.2024")
	assert.Contains(t, p.Text, textDateInvalid)
	assert.Equal(t, models.StepWorkDate, h.step("u1"))

	h.send("u1", "01.03.2024")
	assert.Equal(t, "2024-03-01", h.sessions.Get("u1").Buffer[models.KeyDate])
}

func TestWorkFlow_StartOver(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	logWarehouseWorkUntilHours(h, "u1", "09.05")
	h.send("u1", "3")
	require.Equal(t, models.StepWorkConfirm, h.step("u1"))

	h.send("u1", "Start over")
	sess := h.sessions.Get("u1")
	assert.Equal(t, models.StepWorkDate, sess.Step)
	assert.Equal(t, "work", sess.Buffer[models.KeyFlow])
	assert.Len(t, sess.Buffer, 1)
	assert.Zero(t, h.sessions.Depth("u1"))
	assert.Empty(t, h.reports.work)
}

func TestForemanFlow_NotOfferedToOperators(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	h.register("f1", models.RoleForeman)

	p := h.send("u1", "menu")
	assert.NotContains(t, labels(p), "Foreman report")

	p = h.send("f1", "menu")
	assert.Contains(t, labels(p), "Foreman report")
}

func TestForemanFlow_BagsOnlyForBaggedCrops(t *testing.T) {
	tests := []struct {
		crop     string
		wantBags int
	}{
		{crop: "Potato", wantBags: 300},
		{crop: "Zucchini"},
	}
	for _, tt := range tests {
		t.Run(tt.crop, func(t *testing.T) {
			h := newHarness(t)
			h.register("f1", models.RoleForeman)

			h.send("f1", "Foreman report")
			require.Equal(t, models.StepForemanDate, h.step("f1"))
			h.send("f1", "10.05")
			h.send("f1", "Harvest")
			h.send("f1", tt.crop)
			p := h.send("f1", "1001")
			assert.Contains(t, p.Text, textRowsInvalid)
			h.send("f1", "12")
			h.send("f1", "North")
			h.send("f1", "5")
			if tt.wantBags > 0 {
				require.Equal(t, models.StepForemanBags, h.step("f1"))
				h.send("f1", "300")
			}
			require.Equal(t, models.StepForemanConfirm, h.step("f1"))
			h.send("f1", "Save")

			require.Len(t, h.reports.foreman, 1)
			r := h.reports.foreman[0]
			assert.Equal(t, "2024-05-10", r.WorkDate)
			assert.Equal(t, "Harvest", r.WorkType)
			assert.Equal(t, tt.crop, r.Crop)
			assert.Equal(t, "North", r.Field)
			assert.Equal(t, 12, r.Rows)
			assert.Equal(t, 5, r.Workers)
			assert.Equal(t, tt.wantBags, r.Bags)
			require.Len(t, h.export.changes, 1)
			assert.Equal(t, models.FlowForeman, h.export.changes[0].Flow)
		})
	}
}

func TestEditFlow_ChangeHoursExcludesTheRecordItself(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	logWarehouseWork(h, "u1", "09.05", "20")
	logWarehouseWork(h, "u1", "09.05", "4")
	first := h.reports.work[0].ID

	p := h.send("u1", "my")
	require.Equal(t, models.StepEditPick, h.step("u1"))
	require.Len(t, p.Choices, 2)
	assert.Equal(t, first, p.Choices[1].ID)

	h.tap("u1", first)
	h.tap("u1", editChangeHours)
	require.Equal(t, models.StepEditHours, h.step("u1"))

	p = h.send("u1", "21")
	assert.Contains(t, p.Text, "at most 20")
	assert.Equal(t, 20, h.reports.work[0].Hours)

	p = h.send("u1", "19")
	assert.Contains(t, p.Text, textHoursUpdated)
	assert.Equal(t, 19, h.reports.work[0].Hours)
	assert.Equal(t, models.StepIdle, h.step("u1"))
	last := h.export.changes[len(h.export.changes)-1]
	assert.Equal(t, models.ExportChange{Op: models.ExportUpsert, Flow: models.FlowWork, RecordID: first, WorkDate: "2024-05-09"}, last)
}

func TestEditFlow_Delete(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	logWarehouseWork(h, "u1", "09.05", "8")
	id := h.reports.work[0].ID

	h.send("u1", "More")
	h.send("u1", "Edit recent reports")
	require.Equal(t, models.StepEditPick, h.step("u1"))
	h.tap("u1", id)
	h.tap("u1", editDelete)
	require.Equal(t, models.StepEditDelete, h.step("u1"))

	h.tap("u1", deleteNo)
	assert.Equal(t, models.StepEditAction, h.step("u1"))
	require.Len(t, h.reports.work, 1)

	h.tap("u1", editDelete)
	p := h.tap("u1", deleteYes)
	assert.Contains(t, p.Text, textDeleted)
	assert.Empty(t, h.reports.work)
	last := h.export.changes[len(h.export.changes)-1]
	assert.Equal(t, models.ExportDelete, last.Op)
	assert.Equal(t, id, last.RecordID)
}

func TestEditFlow_NothingToEdit(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	p := h.send("u1", "my")
	assert.Contains(t, p.Text, textEditNone)
	assert.Equal(t, models.StepIdle, h.step("u1"))
}

func TestEditFlow_OthersReportsAreInvisible(t *testing.T) {
	h := newHarness(t)
	h.register("u1")
	h.register("u2")
	logWarehouseWork(h, "u2", "09.05", "8")

	p := h.send("u1", "my")
	assert.Contains(t, p.Text, textEditNone)
}

func TestAdminFlow_AddAndRemoveLocation(t *testing.T) {
	h := newHarness(t)
	h.register("a1", models.RoleAdmin)

	h.send("a1", "More")
	h.send("a1", "Admin panel")
	require.Equal(t, models.StepAdminPanel, h.step("a1"))
	h.tap("a1", "add:location")
	h.tap("a1", string(models.GroupFields))
	require.Equal(t, models.StepAdminName, h.step("a1"))

	p := h.send("a1", "West")
	assert.Contains(t, p.Text, `Added "West"`)
	assert.Contains(t, h.catalog.locations[models.GroupFields], "West")

	h.send("a1", "More")
	h.send("a1", "Admin panel")
	h.tap("a1", "add:location")
	h.tap("a1", string(models.GroupFields))
	p = h.send("a1", "West")
	assert.Contains(t, p.Text, `"West" already exists`)

	h.send("a1", "More")
	h.send("a1", "Admin panel")
	h.tap("a1", "remove:location")
	h.tap("a1", string(models.GroupFields))
	require.Equal(t, models.StepAdminRemove, h.step("a1"))
	p = h.send("a1", "West")
	assert.Contains(t, p.Text, `Removed "West"`)
	assert.NotContains(t, h.catalog.locations[models.GroupFields], "West")
}

func TestAdminFlow_Export(t *testing.T) {
	h := newHarness(t)
	h.register("a1", models.RoleAdmin)

	h.send("a1", "More")
	h.send("a1", "Admin panel")
	p := h.tap("a1", adminExport)
	assert.Contains(t, p.Text, "Export of 2024-05 queued")
	assert.Equal(t, []string{"2024-05"}, h.export.sweeps)
}

func TestAdminFlow_HiddenFromOperators(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	p := h.send("u1", "More")
	assert.NotContains(t, labels(p), "Admin panel")
}

func TestAdminFlow_EveryStepRequiresTheRole(t *testing.T) {
	h := newHarness(t)
	h.register("a1", models.RoleAdmin)

	h.send("a1", "More")
	h.send("a1", "Admin panel")
	h.tap("a1", "add:location")
	require.Equal(t, models.StepAdminGroup, h.step("a1"))

	h.roles["a1"] = nil
	_, err := h.engine.HandleTurn(context.Background(), "a1", Input{Selection: string(models.GroupFields)})
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, models.StepIdle, h.step("a1"))

	h.roles["a1"] = models.Roles{models.RoleAdmin}
	h.send("a1", "More")
	h.send("a1", "Admin panel")
	h.tap("a1", "remove:location")
	h.tap("a1", string(models.GroupFields))
	require.Equal(t, models.StepAdminRemove, h.step("a1"))

	h.roles["a1"] = nil
	_, err = h.engine.HandleTurn(context.Background(), "a1", Input{Text: CancelToken})
	assert.ErrorIs(t, err, ErrContractViolation, "back re-renders the group step")
	assert.Equal(t, models.StepIdle, h.step("a1"))
	assert.Equal(t, []string{"North", "South"}, h.catalog.locations[models.GroupFields])
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.register("u1")

	p := h.send("u1", "today")
	assert.Contains(t, p.Text, textStatsEmpty)

	logWarehouseWork(h, "u1", "10.05", "5")
	logWarehouseWork(h, "u1", "08.05", "3")

	p = h.send("u1", "today")
	assert.Contains(t, p.Text, "Today (10.05.2024): 5 hours.")

	p = h.send("u1", "My stats")
	assert.Contains(t, p.Text, "Last 7 days: 8 hours.")
}
