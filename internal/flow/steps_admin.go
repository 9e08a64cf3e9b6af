package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

const (
	opAdd       = "add"
	opRemove    = "remove"
	adminExport = "export"
)

func (e *Engine) adminSteps() []*Step {
	return []*Step{
		{ID: models.StepAdminPanel, Flow: models.FlowAdmin, Kind: KindMenu, Returnable: true,
			Render: e.renderAdminPanel, Handle: e.handleAdminPanel},
		{ID: models.StepAdminGroup, Flow: models.FlowAdmin, Kind: KindMenu, Returnable: true,
			Render: e.renderAdminGroup, Handle: e.handleAdminGroup},
		{ID: models.StepAdminName, Flow: models.FlowAdmin, Kind: KindCapture,
			Render: staticPrompt(textAdminName), Handle: e.handleAdminName},
		{ID: models.StepAdminRemove, Flow: models.FlowAdmin, Kind: KindMenu,
			Render: e.renderAdminRemove, Handle: e.handleAdminRemove},
	}
}

func (e *Engine) requireAdmin(t *turn) error {
	if !t.roles.Has(models.RoleAdmin) {
		return fmt.Errorf("%w: admin step reached without the admin role", ErrContractViolation)
	}
	return nil
}

func (e *Engine) renderAdminPanel(t *turn) (Prompt, error) {
	if err := e.requireAdmin(t); err != nil {
		return Prompt{}, err
	}
	return Prompt{Text: textAdminPanel, Choices: []Choice{
		{ID: opAdd + ":" + string(models.KindLocation), Label: "Add location"},
		{ID: opRemove + ":" + string(models.KindLocation), Label: "Remove location"},
		{ID: opAdd + ":" + string(models.KindActivity), Label: "Add activity"},
		{ID: opRemove + ":" + string(models.KindActivity), Label: "Remove activity"},
		{ID: adminExport, Label: "Export now"},
	}}, nil
}

func (e *Engine) handleAdminPanel(t *turn, in Input) (Outcome, error) {
	if err := e.requireAdmin(t); err != nil {
		return Outcome{}, err
	}
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	if c.ID == adminExport {
		month := e.today().Format("2006-01")
		if e.export == nil {
			return Reprompt(textExportBlocked), nil
		}
		if err := e.export.RequestSweep(t.ctx, month); err != nil {
			t.log.Warn("Engine.handleAdminPanel: export request failed", "month", month, "error", err)
			return Reprompt(textExportBlocked), nil
		}
		return Complete(fmt.Sprintf(textExportQueued, month)), nil
	}
	op, kind, found := strings.Cut(c.ID, ":")
	if !found {
		return Reprompt(textPickOption), nil
	}
	return Advance(models.StepAdminGroup, session.Buffer{
		models.KeyCatalogOp:   op,
		models.KeyCatalogKind: kind,
	}), nil
}

func adminGroups(kind models.CatalogKind) []Choice {
	if kind == models.KindLocation {
		return []Choice{
			{ID: string(models.GroupFields), Label: "Fields"},
			{ID: string(models.GroupWarehouse), Label: "Warehouse"},
			{ID: string(models.GroupOffice), Label: "Office"},
		}
	}
	return []Choice{
		{ID: string(models.CategoryMachinery), Label: "Machinery"},
		{ID: string(models.CategoryManual), Label: "Manual work"},
		{ID: string(models.CategoryAdministrative), Label: "Administrative"},
		{ID: string(models.CategoryIT), Label: "IT"},
	}
}

func (e *Engine) renderAdminGroup(t *turn) (Prompt, error) {
	if err := e.requireAdmin(t); err != nil {
		return Prompt{}, err
	}
	return Prompt{Text: textAdminGroup, Choices: adminGroups(models.CatalogKind(t.get(models.KeyCatalogKind)))}, nil
}

// catalogItems lists the current items of a kind and group.
func (e *Engine) catalogItems(t *turn, kind models.CatalogKind, group string) ([]fuzzy.Candidate, error) {
	var (
		items []fuzzy.Candidate
		err   error
	)
	if kind == models.KindLocation {
		items, err = e.catalog.Locations(t.ctx, models.LocationGroup(group))
	} else {
		items, err = e.catalog.Activities(t.ctx, models.Category(group))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog %s/%s: %w", kind, group, err)
	}
	return items, nil
}

func (e *Engine) handleAdminGroup(t *turn, in Input) (Outcome, error) {
	if err := e.requireAdmin(t); err != nil {
		return Outcome{}, err
	}
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	values := session.Buffer{models.KeyCatalogGroup: c.ID}
	if t.get(models.KeyCatalogOp) == opAdd {
		return Advance(models.StepAdminName, values), nil
	}
	items, err := e.catalogItems(t, models.CatalogKind(t.get(models.KeyCatalogKind)), c.ID)
	if err != nil {
		return Outcome{}, err
	}
	if len(items) == 0 {
		return Reprompt(textAdminEmpty), nil
	}
	return Advance(models.StepAdminRemove, values), nil
}

func (e *Engine) handleAdminName(t *turn, in Input) (Outcome, error) {
	if err := e.requireAdmin(t); err != nil {
		return Outcome{}, err
	}
	name, ok := textInRange(in.Text, 2, 50)
	if !ok {
		return Reprompt(textAdminLength), nil
	}
	kind := models.CatalogKind(t.get(models.KeyCatalogKind))
	added, err := e.catalog.Add(t.ctx, kind, t.get(models.KeyCatalogGroup), name)
	if err != nil {
		return Outcome{}, fmt.Errorf("catalog add: %w", err)
	}
	if !added {
		return Complete(fmt.Sprintf(textAdminExists, name)), nil
	}
	return Complete(fmt.Sprintf(textAdminAdded, name)), nil
}

func (e *Engine) renderAdminRemove(t *turn) (Prompt, error) {
	if err := e.requireAdmin(t); err != nil {
		return Prompt{}, err
	}
	items, err := e.catalogItems(t, models.CatalogKind(t.get(models.KeyCatalogKind)), t.get(models.KeyCatalogGroup))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Text: textAdminRemove, Choices: toChoices(items)}, nil
}

func (e *Engine) handleAdminRemove(t *turn, in Input) (Outcome, error) {
	if err := e.requireAdmin(t); err != nil {
		return Outcome{}, err
	}
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	kind := models.CatalogKind(t.get(models.KeyCatalogKind))
	removed, err := e.catalog.Remove(t.ctx, kind, t.get(models.KeyCatalogGroup), c.Label)
	if err != nil {
		return Outcome{}, fmt.Errorf("catalog remove: %w", err)
	}
	if !removed {
		return Complete(fmt.Sprintf(textAdminMissing, c.Label)), nil
	}
	return Complete(fmt.Sprintf(textAdminRemoved, c.Label)), nil
}
