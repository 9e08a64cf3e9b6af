package flow

import (
	"fmt"
	"strconv"

	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

func (e *Engine) foremanSteps() []*Step {
	return []*Step{
		{ID: models.StepForemanDate, Flow: models.FlowForeman, Kind: KindMenu, Returnable: true,
			Render: e.renderForemanDate, Handle: e.handleForemanDate},
		{ID: models.StepForemanWorkType, Flow: models.FlowForeman, Kind: KindMenu, Returnable: true,
			Render: e.renderWorkType, Handle: func(t *turn, in Input) (Outcome, error) {
				return pickOrReprompt(t, in, models.StepForemanCrop, models.KeyWorkType)
			}},
		{ID: models.StepForemanCrop, Flow: models.FlowForeman, Kind: KindMenu, Returnable: true,
			Render: e.renderCrop, Handle: func(t *turn, in Input) (Outcome, error) {
				return pickOrReprompt(t, in, models.StepForemanRows, models.KeyCrop)
			}},
		{ID: models.StepForemanRows, Flow: models.FlowForeman, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textRows), Handle: boundedCapture(models.KeyRows, 1, 1000, textRowsInvalid, models.StepForemanField)},
		{ID: models.StepForemanField, Flow: models.FlowForeman, Kind: KindMenu, Returnable: true,
			Render: e.renderField, Handle: func(t *turn, in Input) (Outcome, error) {
				return pickOrReprompt(t, in, models.StepForemanWorkers, models.KeyField)
			}},
		{ID: models.StepForemanWorkers, Flow: models.FlowForeman, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textWorkers), Handle: e.handleWorkers},
		{ID: models.StepForemanBags, Flow: models.FlowForeman, Kind: KindCapture, Returnable: true,
			Render: staticPrompt(textBags), Handle: boundedCapture(models.KeyBags, 1, 10000, textBagsInvalid, models.StepForemanConfirm)},
		{ID: models.StepForemanConfirm, Flow: models.FlowForeman, Kind: KindConfirm,
			Render: e.renderConfirm, Handle: e.handleConfirm},
	}
}

// boundedCapture builds a handler that stores an integer in [lo, hi] under key.
func boundedCapture(key models.DataKey, lo, hi int, invalid string, next models.StepID) func(*turn, Input) (Outcome, error) {
	return func(t *turn, in Input) (Outcome, error) {
		n, ok := parseBounded(in.Text, lo, hi)
		if !ok {
			return Reprompt(invalid), nil
		}
		return Advance(next, session.Buffer{key: strconv.Itoa(n)}), nil
	}
}

func (e *Engine) renderForemanDate(t *turn) (Prompt, error) {
	if !t.roles.Has(models.RoleForeman) {
		return Prompt{}, fmt.Errorf("%w: foreman flow entered without the foreman role", ErrContractViolation)
	}
	return e.renderDate(t)
}

func (e *Engine) handleForemanDate(t *turn, in Input) (Outcome, error) {
	date, msg := t.resolveDate(in)
	if msg != "" {
		return Reprompt(msg), nil
	}
	return Advance(models.StepForemanWorkType, session.Buffer{models.KeyDate: date}), nil
}

func (e *Engine) renderWorkType(t *turn) (Prompt, error) {
	cands, err := e.catalog.WorkTypes(t.ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("work types: %w", err)
	}
	return Prompt{Text: textWorkType, Choices: toChoices(cands)}, nil
}

func (e *Engine) renderField(t *turn) (Prompt, error) {
	cands, err := e.catalog.Locations(t.ctx, models.GroupFields)
	if err != nil {
		return Prompt{}, fmt.Errorf("field list: %w", err)
	}
	return Prompt{Text: textField, Choices: toChoices(cands)}, nil
}

// handleWorkers asks for bags only for crops that are counted in bags.
func (e *Engine) handleWorkers(t *turn, in Input) (Outcome, error) {
	n, ok := parseBounded(in.Text, 1, 200)
	if !ok {
		return Reprompt(textWorkersInvalid), nil
	}
	values := session.Buffer{models.KeyWorkers: strconv.Itoa(n)}
	if e.catalog.CropRequiresBags(t.get(models.KeyCrop)) {
		return Advance(models.StepForemanBags, values), nil
	}
	return Advance(models.StepForemanConfirm, values), nil
}
