package flow

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/report"
	"github.com/BTreeMap/WorkLog/internal/session"
)

const (
	editWindow = 24 * time.Hour
	editLimit  = 10

	editChangeHours = "hours"
	editDelete      = "delete"
	deleteYes       = "yes"
	deleteNo        = "no"
)

func (e *Engine) editSteps() []*Step {
	return []*Step{
		{ID: models.StepEditPick, Flow: models.FlowEdit, Kind: KindMenu, Returnable: true,
			Render: e.renderEditPick, Handle: e.handleEditPick},
		{ID: models.StepEditAction, Flow: models.FlowEdit, Kind: KindMenu, Returnable: true,
			Render: e.renderEditAction, Handle: e.handleEditAction},
		{ID: models.StepEditHours, Flow: models.FlowEdit, Kind: KindCapture,
			Render: staticPrompt(textEditHours), Handle: e.handleEditHours},
		{ID: models.StepEditDelete, Flow: models.FlowEdit, Kind: KindConfirm,
			Render: e.renderEditDelete, Handle: e.handleEditDelete},
	}
}

func (e *Engine) recentReports(t *turn) ([]models.WorkReport, error) {
	reports, err := e.reports.RecentWorkReports(t.ctx, t.userID, e.now().Add(-editWindow), editLimit)
	if err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}
	return reports, nil
}

// openEdit starts the edit flow when the user has something to edit.
// From the More menu it advances so "back" returns there.
func (e *Engine) openEdit(t *turn, fromMore bool) (Outcome, error) {
	reports, err := e.recentReports(t)
	if err != nil {
		return Outcome{}, err
	}
	if len(reports) == 0 {
		return Reprompt(textEditNone), nil
	}
	values := session.Buffer{models.KeyFlow: string(models.FlowEdit)}
	if fromMore {
		return Advance(models.StepEditPick, values), nil
	}
	return Restart(models.StepEditPick, values), nil
}

func (e *Engine) renderEditPick(t *turn) (Prompt, error) {
	reports, err := e.recentReports(t)
	if err != nil {
		return Prompt{}, err
	}
	choices := make([]Choice, len(reports))
	for i, r := range reports {
		choices[i] = Choice{ID: r.ID, Label: describeWork(r)}
	}
	text := textEditPick
	if len(reports) == 0 {
		text = textEditNone
	}
	return Prompt{Text: text, Choices: choices}, nil
}

func (e *Engine) handleEditPick(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	return Advance(models.StepEditAction, session.Buffer{models.KeyRecordID: c.ID}), nil
}

// ownedReport loads the record being edited. It returns nil when the record
// is gone or belongs to someone else.
func (e *Engine) ownedReport(t *turn) (*models.WorkReport, error) {
	r, err := e.reports.GetWorkReport(t.ctx, t.get(models.KeyRecordID))
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if r == nil || r.UserID != t.userID {
		return nil, nil
	}
	return r, nil
}

func (e *Engine) renderEditAction(t *turn) (Prompt, error) {
	r, err := e.ownedReport(t)
	if err != nil {
		return Prompt{}, err
	}
	text := textEditGone
	if r != nil {
		text = describeWork(*r) + "\n" + textEditAction
	}
	return Prompt{Text: text, Choices: []Choice{
		{ID: editChangeHours, Label: "Change hours"},
		{ID: editDelete, Label: "Delete"},
	}}, nil
}

func (e *Engine) handleEditAction(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	r, err := e.ownedReport(t)
	if err != nil {
		return Outcome{}, err
	}
	if r == nil {
		return Complete(textEditGone), nil
	}
	if c.ID == editDelete {
		return Advance(models.StepEditDelete, nil), nil
	}
	return Advance(models.StepEditHours, nil), nil
}

// workBuffer rebuilds the buffer a record was committed from.
func workBuffer(r models.WorkReport) session.Buffer {
	buf := session.Buffer{
		models.KeyFlow:          string(models.FlowWork),
		models.KeyDate:          r.WorkDate,
		models.KeyCategory:      string(r.Category),
		models.KeyActivity:      r.Activity,
		models.KeyLocationGroup: string(r.LocationGroup),
		models.KeyLocation:      r.Location,
		models.KeyHours:         strconv.Itoa(r.Hours),
	}
	if r.Machinery != "" {
		buf[models.KeyMachinery] = r.Machinery
	}
	if r.Crop != "" {
		buf[models.KeyCrop] = r.Crop
	}
	if r.Trips > 0 {
		buf[models.KeyTrips] = strconv.Itoa(r.Trips)
	}
	return buf
}

// handleEditHours runs the changed record through the assembler with the
// record itself excluded from the day's total, then updates it.
func (e *Engine) handleEditHours(t *turn, in Input) (Outcome, error) {
	hours, err := budget.ParseHours(in.Text)
	if err != nil {
		return Reprompt(textHoursInvalid), nil
	}
	r, err := e.ownedReport(t)
	if err != nil {
		return Outcome{}, err
	}
	if r == nil {
		return Complete(textEditGone), nil
	}

	buf := workBuffer(*r)
	buf[models.KeyHours] = strconv.Itoa(hours)
	if _, err := e.assembler.TryCommit(t.ctx, report.CommitRequest{
		Flow:            models.FlowWork,
		UserID:          t.userID,
		Roles:           t.roles,
		Buffer:          buf,
		ExcludeRecordID: r.ID,
	}); err != nil {
		var exceeded *budget.ExceededError
		if errors.As(err, &exceeded) {
			return Reprompt(budgetMessage(r.WorkDate, exceeded.Decision)), nil
		}
		return Outcome{}, err
	}

	ok, err := e.reports.UpdateWorkReportHours(t.ctx, r.ID, t.userID, hours)
	if err != nil {
		return Outcome{}, fmt.Errorf("update hours: %w", err)
	}
	if !ok {
		return Complete(textEditGone), nil
	}
	t.log.Info("Engine.handleEditHours: hours updated", "recordID", r.ID, "from", r.Hours, "to", hours)
	e.notify(t, models.ExportChange{Op: models.ExportUpsert, Flow: models.FlowWork, RecordID: r.ID, WorkDate: r.WorkDate})
	return Complete(textHoursUpdated), nil
}

func (e *Engine) renderEditDelete(t *turn) (Prompt, error) {
	r, err := e.ownedReport(t)
	if err != nil {
		return Prompt{}, err
	}
	text := textEditGone
	if r != nil {
		text = describeWork(*r) + "\n" + textEditDelete
	}
	return Prompt{Text: text, Choices: []Choice{
		{ID: deleteYes, Label: "Yes, delete"},
		{ID: deleteNo, Label: "No, keep it"},
	}}, nil
}

func (e *Engine) handleEditDelete(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	if c.ID == deleteNo {
		return Back(), nil
	}
	id := t.get(models.KeyRecordID)
	r, err := e.ownedReport(t)
	if err != nil {
		return Outcome{}, err
	}
	if r == nil {
		return Complete(textEditGone), nil
	}
	ok, err = e.reports.DeleteWorkReport(t.ctx, id, t.userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("delete report: %w", err)
	}
	if !ok {
		return Complete(textEditGone), nil
	}
	t.log.Info("Engine.handleEditDelete: report deleted", "recordID", id)
	e.notify(t, models.ExportChange{Op: models.ExportDelete, Flow: models.FlowWork, RecordID: id, WorkDate: r.WorkDate})
	return Complete(textDeleted), nil
}
