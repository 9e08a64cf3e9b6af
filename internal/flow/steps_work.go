package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/report"
	"github.com/BTreeMap/WorkLog/internal/session"
)

const (
	activityOther = "other"
	confirmSave   = "save"
	confirmRedo   = "restart"
)

func budgetFilter(userID, date string) budget.Filter {
	return budget.Filter{UserID: userID, Date: date}
}

func (e *Engine) workSteps() []*Step {
	return []*Step{
		{ID: models.StepWorkDate, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderDate, Handle: e.handleWorkDate},
		{ID: models.StepWorkCategory, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderCategory, Handle: e.handleCategory},
		{ID: models.StepWorkMachinery, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderMachinery, Handle: e.handleMachinery},
		{ID: models.StepWorkActivity, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderActivity, Handle: e.handleActivity},
		{ID: models.StepWorkActivityCustom, Flow: models.FlowWork, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textActivityCustom), Handle: e.handleActivityCustom},
		{ID: models.StepWorkLocationGroup, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderLocationGroup, Handle: e.handleLocationGroup},
		{ID: models.StepWorkLocation, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderLocation, Handle: e.handleLocation},
		{ID: models.StepWorkCrop, Flow: models.FlowWork, Kind: KindMenu, Returnable: true,
			Render: e.renderCrop, Handle: e.handleWorkCrop},
		{ID: models.StepWorkHours, Flow: models.FlowWork, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textHours), Handle: e.handleHours},
		{ID: models.StepWorkTrips, Flow: models.FlowWork, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textTrips), Handle: e.handleTrips},
		{ID: models.StepWorkConfirm, Flow: models.FlowWork, Kind: KindConfirm,
			Render: e.renderConfirm, Handle: e.handleConfirm},
	}
}

func staticPrompt(text string) func(*turn) (Prompt, error) {
	return func(*turn) (Prompt, error) { return Prompt{Text: text}, nil }
}

func (e *Engine) renderDate(*turn) (Prompt, error) {
	return Prompt{Text: textDate, Choices: e.dateChoices()}, nil
}

func (e *Engine) handleWorkDate(t *turn, in Input) (Outcome, error) {
	date, msg := t.resolveDate(in)
	if msg != "" {
		return Reprompt(msg), nil
	}
	return Advance(models.StepWorkCategory, session.Buffer{models.KeyDate: date}), nil
}

func (e *Engine) renderCategory(t *turn) (Prompt, error) {
	choices := []Choice{
		{ID: string(models.CategoryMachinery), Label: "Machinery"},
		{ID: string(models.CategoryManual), Label: "Manual work"},
		{ID: string(models.CategoryAdministrative), Label: "Administrative"},
	}
	if t.roles.Has(models.RoleIT) {
		choices = append(choices, Choice{ID: string(models.CategoryIT), Label: "IT"})
	}
	return Prompt{Text: textCategory, Choices: choices}, nil
}

func (e *Engine) handleCategory(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	values := session.Buffer{models.KeyCategory: c.ID}
	if models.Category(c.ID) == models.CategoryMachinery {
		return Advance(models.StepWorkMachinery, values), nil
	}
	return Advance(models.StepWorkActivity, values), nil
}

func (e *Engine) renderMachinery(t *turn) (Prompt, error) {
	cands, err := e.catalog.Machinery(t.ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("machinery list: %w", err)
	}
	return Prompt{Text: textMachinery, Choices: toChoices(cands)}, nil
}

func (e *Engine) handleMachinery(t *turn, in Input) (Outcome, error) {
	return pickOrReprompt(t, in, models.StepWorkActivity, models.KeyMachinery)
}

func (e *Engine) renderActivity(t *turn) (Prompt, error) {
	cands, err := e.catalog.Activities(t.ctx, models.Category(t.get(models.KeyCategory)))
	if err != nil {
		return Prompt{}, fmt.Errorf("activity list: %w", err)
	}
	choices := append(toChoices(cands), Choice{ID: activityOther, Label: "Other"})
	return Prompt{Text: textActivity, Choices: choices}, nil
}

func (e *Engine) handleActivity(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	if c.ID == activityOther {
		return Advance(models.StepWorkActivityCustom, nil), nil
	}
	return e.afterActivity(t, c.Label)
}

func (e *Engine) handleActivityCustom(t *turn, in Input) (Outcome, error) {
	activity, ok := textInRange(in.Text, 3, 50)
	if !ok {
		return Reprompt(textActivityLength), nil
	}
	return e.afterActivity(t, activity)
}

// afterActivity records the activity and routes to the location questions.
// Office categories skip them and book the first office location.
func (e *Engine) afterActivity(t *turn, activity string) (Outcome, error) {
	values := session.Buffer{models.KeyActivity: activity}
	switch models.Category(t.get(models.KeyCategory)) {
	case models.CategoryAdministrative, models.CategoryIT:
		offices, err := e.catalog.Locations(t.ctx, models.GroupOffice)
		if err != nil {
			return Outcome{}, fmt.Errorf("office locations: %w", err)
		}
		location := "Office"
		if len(offices) > 0 {
			location = offices[0].Label
		}
		values[models.KeyLocationGroup] = string(models.GroupOffice)
		values[models.KeyLocation] = location
		return Advance(models.StepWorkHours, values), nil
	}
	return Advance(models.StepWorkLocationGroup, values), nil
}

func (e *Engine) renderLocationGroup(*turn) (Prompt, error) {
	return Prompt{Text: textLocationGroup, Choices: []Choice{
		{ID: string(models.GroupFields), Label: "Fields"},
		{ID: string(models.GroupWarehouse), Label: "Warehouse"},
	}}, nil
}

func (e *Engine) handleLocationGroup(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	group := models.LocationGroup(c.ID)
	locations, err := e.catalog.Locations(t.ctx, group)
	if err != nil {
		return Outcome{}, fmt.Errorf("locations of %s: %w", group, err)
	}
	values := session.Buffer{models.KeyLocationGroup: string(group)}
	switch len(locations) {
	case 0:
		return Reprompt(textNoLocations), nil
	case 1:
		values[models.KeyLocation] = locations[0].Label
		return Advance(afterLocation(group), values), nil
	}
	return Advance(models.StepWorkLocation, values), nil
}

func afterLocation(group models.LocationGroup) models.StepID {
	if group == models.GroupFields {
		return models.StepWorkCrop
	}
	return models.StepWorkHours
}

func (e *Engine) renderLocation(t *turn) (Prompt, error) {
	group := models.LocationGroup(t.get(models.KeyLocationGroup))
	cands, err := e.catalog.Locations(t.ctx, group)
	if err != nil {
		return Prompt{}, fmt.Errorf("locations of %s: %w", group, err)
	}
	return Prompt{Text: textLocation, Choices: toChoices(cands)}, nil
}

func (e *Engine) handleLocation(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	group := models.LocationGroup(t.get(models.KeyLocationGroup))
	return Advance(afterLocation(group), session.Buffer{models.KeyLocation: c.Label}), nil
}

func (e *Engine) renderCrop(t *turn) (Prompt, error) {
	cands, err := e.catalog.Crops(t.ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("crop list: %w", err)
	}
	return Prompt{Text: textCrop, Choices: toChoices(cands)}, nil
}

func (e *Engine) handleWorkCrop(t *turn, in Input) (Outcome, error) {
	return pickOrReprompt(t, in, models.StepWorkHours, models.KeyCrop)
}

func (e *Engine) handleHours(t *turn, in Input) (Outcome, error) {
	hours, err := budget.ParseHours(in.Text)
	if err != nil {
		return Reprompt(textHoursInvalid), nil
	}
	d, err := e.validator.Check(t.ctx, budget.Request{
		UserID:   t.userID,
		Date:     t.get(models.KeyDate),
		Roles:    t.roles,
		Category: models.Category(t.get(models.KeyCategory)),
		Hours:    hours,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("budget check: %w", err)
	}
	if !d.OK {
		return Reprompt(budgetMessage(t.get(models.KeyDate), d)), nil
	}
	values := session.Buffer{models.KeyHours: strconv.Itoa(hours)}
	if m := t.get(models.KeyMachinery); m != "" && e.catalog.MachineryCountsTrips(m) {
		return Advance(models.StepWorkTrips, values), nil
	}
	return Advance(models.StepWorkConfirm, values), nil
}

func budgetMessage(date string, d budget.Decision) string {
	var msg string
	if d.MaxAddable == 0 {
		msg = fmt.Sprintf(textBudgetFull, displayDate(date))
	} else {
		msg = fmt.Sprintf(textBudgetExceeded, displayDate(date), d.Committed, d.MaxAddable)
	}
	for _, r := range d.Existing {
		msg += "\n• " + describeWork(r)
	}
	return msg
}

func (e *Engine) handleTrips(t *turn, in Input) (Outcome, error) {
	trips, ok := parseBounded(in.Text, 1, 100)
	if !ok {
		return Reprompt(textTripsInvalid), nil
	}
	return Advance(models.StepWorkConfirm, session.Buffer{models.KeyTrips: strconv.Itoa(trips)}), nil
}

var fieldLabels = map[models.DataKey]string{
	models.KeyDate:          "Date",
	models.KeyCategory:      "Category",
	models.KeyMachinery:     "Machine",
	models.KeyActivity:      "Activity",
	models.KeyLocationGroup: "Area",
	models.KeyLocation:      "Location",
	models.KeyCrop:          "Crop",
	models.KeyHours:         "Hours",
	models.KeyTrips:         "Trips",
	models.KeyWorkType:      "Work type",
	models.KeyRows:          "Rows",
	models.KeyField:         "Field",
	models.KeyWorkers:       "Workers",
	models.KeyBags:          "Bags",
}

// renderConfirm summarizes the buffer in the order of the flow's schema.
func (e *Engine) renderConfirm(t *turn) (Prompt, error) {
	flow := models.FlowType(t.get(models.KeyFlow))
	schema, ok := report.SchemaFor(flow)
	if !ok {
		return Prompt{}, fmt.Errorf("%w: confirm step in flow %q without schema", ErrContractViolation, flow)
	}
	var b strings.Builder
	b.WriteString(textConfirm)
	for _, k := range schema.Required(t.sess.Buffer, e.catalog) {
		v := t.get(k)
		if k == models.KeyDate {
			v = displayDate(v)
		}
		fmt.Fprintf(&b, "\n%s: %s", fieldLabels[k], v)
	}
	return Prompt{Text: b.String(), Choices: []Choice{
		{ID: confirmSave, Label: "Save"},
		{ID: confirmRedo, Label: "Start over"},
	}}, nil
}

// handleConfirm commits the buffer of the work and foreman flows.
func (e *Engine) handleConfirm(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	flow := models.FlowType(t.get(models.KeyFlow))
	if c.ID == confirmRedo {
		first := models.StepWorkDate
		if flow == models.FlowForeman {
			first = models.StepForemanDate
		}
		return Restart(first, session.Buffer{models.KeyFlow: string(flow)}), nil
	}

	rec, err := e.assembler.TryCommit(t.ctx, report.CommitRequest{
		Flow:   flow,
		UserID: t.userID,
		Roles:  t.roles,
		Buffer: t.sess.Buffer,
	})
	var exceeded *budget.ExceededError
	if errors.As(err, &exceeded) {
		return Reprompt(budgetMessage(t.get(models.KeyDate), exceeded.Decision)), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return e.persist(t, rec)
}

// persist writes a finished record and notifies the export collaborator.
func (e *Engine) persist(t *turn, rec report.Record) (Outcome, error) {
	change := models.ExportChange{Op: models.ExportUpsert, Flow: rec.Flow()}
	switch rec.Flow() {
	case models.FlowWork:
		wr, err := rec.WorkReport()
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
		id, err := e.reports.InsertWorkReport(t.ctx, wr)
		if err != nil {
			return Outcome{}, fmt.Errorf("persist work report: %w", err)
		}
		change.RecordID, change.WorkDate = id, wr.WorkDate
	case models.FlowForeman:
		fr, err := rec.ForemanReport()
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
		id, err := e.reports.InsertForemanReport(t.ctx, fr)
		if err != nil {
			return Outcome{}, fmt.Errorf("persist foreman report: %w", err)
		}
		change.RecordID, change.WorkDate = id, fr.WorkDate
	default:
		return Outcome{}, fmt.Errorf("%w: no persistence for flow %q", ErrContractViolation, rec.Flow())
	}
	t.log.Info("Engine.persist: record saved", "flow", rec.Flow(), "recordID", change.RecordID, "date", change.WorkDate)
	e.notify(t, change)
	return Complete(textSaved), nil
}

// pickOrReprompt is the common shape of catalog-driven menu handlers.
func pickOrReprompt(t *turn, in Input, next models.StepID, key models.DataKey) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	return Advance(next, session.Buffer{key: c.Label}), nil
}
