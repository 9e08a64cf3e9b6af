package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

const (
	rootWork    = "work"
	rootForeman = "foreman"
	rootStats   = "stats"
	rootMore    = "more"

	moreEdit  = "edit"
	moreName  = "name"
	moreAdmin = "admin"
	moreHelp  = "help"
)

func (e *Engine) rootSteps() []*Step {
	return []*Step{
		{
			ID:     models.StepIdle,
			Kind:   KindMenu,
			Render: e.renderRoot,
			Handle: e.handleRoot,
		},
		{
			ID:         models.StepMore,
			Flow:       models.FlowMore,
			Kind:       KindMenu,
			Returnable: true,
			Render:     e.renderMore,
			Handle:     e.handleMore,
		},
		{
			ID:     models.StepRegisterName,
			Flow:   models.FlowRegister,
			Kind:   KindCapture,
			Render: func(*turn) (Prompt, error) { return Prompt{Text: textRegisterName}, nil },
			Handle: e.handleRegisterName,
		},
	}
}

func (e *Engine) rootChoices(t *turn) []Choice {
	out := []Choice{{ID: rootWork, Label: "Log work"}}
	if t.roles.Has(models.RoleForeman) {
		out = append(out, Choice{ID: rootForeman, Label: "Foreman report"})
	}
	return append(out, Choice{ID: rootStats, Label: "My stats"}, Choice{ID: rootMore, Label: "More"})
}

func (e *Engine) renderRoot(t *turn) (Prompt, error) {
	u, err := e.users.GetUser(t.ctx, t.userID)
	if err != nil {
		return Prompt{}, fmt.Errorf("get user: %w", err)
	}
	name := t.userID
	if u != nil {
		name = u.Name
	}
	return Prompt{Text: fmt.Sprintf(textRootMenu, name), Choices: e.rootChoices(t)}, nil
}

func (e *Engine) handleRoot(t *turn, in Input) (Outcome, error) {
	u, err := e.users.GetUser(t.ctx, t.userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return Restart(models.StepRegisterName, session.Buffer{models.KeyFlow: string(models.FlowRegister)}), nil
	}

	if in.Selection == "" {
		switch fuzzy.Normalize(in.Text) {
		case "menu", "меню", "start", "старт", "/start":
			return Reprompt(""), nil
		case "help", "помощь", "/help":
			return Reprompt(textHelp), nil
		case "today", "сегодня":
			msg, err := e.todayStats(t)
			if err != nil {
				return Outcome{}, err
			}
			return Reprompt(msg), nil
		case "my", "мои":
			return e.openEdit(t, false)
		}
	}

	c, ok := t.pick(in, toCandidates(e.rootChoices(t)))
	if !ok {
		return Reprompt(textNotUnderstood), nil
	}
	switch c.ID {
	case rootWork:
		return Restart(models.StepWorkDate, session.Buffer{models.KeyFlow: string(models.FlowWork)}), nil
	case rootForeman:
		return Restart(models.StepForemanDate, session.Buffer{models.KeyFlow: string(models.FlowForeman)}), nil
	case rootStats:
		msg, err := e.weekStats(t)
		if err != nil {
			return Outcome{}, err
		}
		return Reprompt(msg), nil
	case rootMore:
		return Restart(models.StepMore, session.Buffer{models.KeyFlow: string(models.FlowMore)}), nil
	}
	return Reprompt(textNotUnderstood), nil
}

func (e *Engine) moreChoices(t *turn) []Choice {
	out := []Choice{
		{ID: moreEdit, Label: "Edit recent reports"},
		{ID: moreName, Label: "Change name"},
	}
	if t.roles.Has(models.RoleAdmin) {
		out = append(out, Choice{ID: moreAdmin, Label: "Admin panel"})
	}
	return append(out, Choice{ID: moreHelp, Label: "Help"})
}

func (e *Engine) renderMore(t *turn) (Prompt, error) {
	return Prompt{Text: textMore, Choices: e.moreChoices(t)}, nil
}

func (e *Engine) handleMore(t *turn, in Input) (Outcome, error) {
	c, ok := t.choice(in)
	if !ok {
		return Reprompt(textPickOption), nil
	}
	switch c.ID {
	case moreEdit:
		return e.openEdit(t, true)
	case moreName:
		return Advance(models.StepRegisterName, session.Buffer{models.KeyFlow: string(models.FlowRegister)}), nil
	case moreAdmin:
		if !t.roles.Has(models.RoleAdmin) {
			return Reprompt(textNoAdminRole), nil
		}
		return Advance(models.StepAdminPanel, session.Buffer{models.KeyFlow: string(models.FlowAdmin)}), nil
	case moreHelp:
		return Reprompt(textHelp), nil
	}
	return Reprompt(textPickOption), nil
}

func (e *Engine) handleRegisterName(t *turn, in Input) (Outcome, error) {
	name, ok := textInRange(in.Text, 3, 50)
	if !ok {
		return Reprompt(textNameLength), nil
	}
	existing, err := e.users.GetUser(t.ctx, t.userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get user: %w", err)
	}
	if err := e.users.SaveUser(t.ctx, models.User{ID: t.userID, Name: name}); err != nil {
		return Outcome{}, fmt.Errorf("save user: %w", err)
	}
	t.log.Info("Engine.handleRegisterName: user saved", "new", existing == nil)
	if existing == nil {
		return Complete(fmt.Sprintf(textNameSaved, name)), nil
	}
	return Complete(fmt.Sprintf(textNameChanged, name)), nil
}

func (e *Engine) todayStats(t *turn) (string, error) {
	date := e.today().Format(models.DateLayout)
	reports, err := e.reports.DayReports(t.ctx, t.userID, date)
	if err != nil {
		return "", fmt.Errorf("day reports: %w", err)
	}
	if len(reports) == 0 {
		return textStatsEmpty, nil
	}
	total := 0
	lines := make([]string, 0, len(reports)+1)
	for _, r := range reports {
		total += r.Hours
		lines = append(lines, "• "+describeWork(r))
	}
	head := fmt.Sprintf(textStatsToday, displayDate(date), total)
	return head + "\n" + strings.Join(lines, "\n"), nil
}

func (e *Engine) weekStats(t *turn) (string, error) {
	today, err := e.todayStats(t)
	if err != nil {
		return "", err
	}
	week := 0
	for i := 0; i < dateChoiceDays; i++ {
		date := e.today().AddDate(0, 0, -i).Format(models.DateLayout)
		n, err := e.reports.CommittedHours(t.ctx, budgetFilter(t.userID, date))
		if err != nil {
			return "", fmt.Errorf("committed hours: %w", err)
		}
		week += n
	}
	return today + "\n" + fmt.Sprintf(textStatsWeek, week), nil
}
