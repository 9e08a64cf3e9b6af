// Package flow implements the WorkLog conversation engine: a table of steps,
// the per-turn transition algorithm, and the work, foreman, edit, admin and
// registration flows built on top of it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/report"
	"github.com/BTreeMap/WorkLog/internal/session"
)

var (
	// ErrContractViolation marks a step graph bug: a commit with missing
	// fields or a session found in an undeclared step.
	ErrContractViolation = errors.New("flow contract violation")
	// ErrCollaborator marks a failed read or write of a collaborator.
	ErrCollaborator = errors.New("flow collaborator failure")
)

// CancelToken at any step goes back one screen.
const CancelToken = "0"

// RoleSource answers which roles a user has.
type RoleSource interface {
	RolesOf(userID string) models.Roles
}

// Users reads and writes registered users.
type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u models.User) error
}

// Catalog provides candidate lists and static attributes.
type Catalog interface {
	report.Attributes
	Locations(ctx context.Context, group models.LocationGroup) ([]fuzzy.Candidate, error)
	Activities(ctx context.Context, cat models.Category) ([]fuzzy.Candidate, error)
	Machinery(ctx context.Context) ([]fuzzy.Candidate, error)
	Crops(ctx context.Context) ([]fuzzy.Candidate, error)
	WorkTypes(ctx context.Context) ([]fuzzy.Candidate, error)
	Add(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
	Remove(ctx context.Context, kind models.CatalogKind, group, name string) (bool, error)
}

// Reports persists finished records and answers ledger queries.
type Reports interface {
	budget.Ledger
	InsertWorkReport(ctx context.Context, r models.WorkReport) (string, error)
	InsertForemanReport(ctx context.Context, r models.ForemanReport) (string, error)
	GetWorkReport(ctx context.Context, id string) (*models.WorkReport, error)
	UpdateWorkReportHours(ctx context.Context, id, userID string, hours int) (bool, error)
	DeleteWorkReport(ctx context.Context, id, userID string) (bool, error)
	RecentWorkReports(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkReport, error)
}

// ExportNotifier mirrors record changes into the export sheets. Failures are
// logged by the engine and never fail a turn.
type ExportNotifier interface {
	NotifyExport(ctx context.Context, change models.ExportChange) error
	RequestSweep(ctx context.Context, month string) error
}

// Deps are the collaborators of an Engine. Export and Validator are optional.
type Deps struct {
	Sessions  *session.Store
	Roles     RoleSource
	Users     Users
	Catalog   Catalog
	Reports   Reports
	Export    ExportNotifier
	Validator *budget.Validator
}

// Opts holds engine options.
type Opts struct {
	Now      func() time.Time
	Location *time.Location
	Cutoff   float64
}

// Option configures an Engine.
type Option func(*Opts)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithCutoff sets the fuzzy match cutoff.
func WithCutoff(cutoff float64) Option {
	return func(o *Opts) { o.Cutoff = cutoff }
}

// Engine runs turns against the step table.
type Engine struct {
	sessions  *session.Store
	roles     RoleSource
	users     Users
	catalog   Catalog
	reports   Reports
	export    ExportNotifier
	validator *budget.Validator
	assembler *report.Assembler
	resolver  *fuzzy.Resolver
	steps     map[models.StepID]*Step
	now       func() time.Time
	loc       *time.Location
}

// NewEngine builds an engine and checks its step table.
func NewEngine(deps Deps, opts ...Option) (*Engine, error) {
	cfg := Opts{Now: time.Now, Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("flow: session store is required")
	case deps.Roles == nil:
		return nil, errors.New("flow: role source is required")
	case deps.Users == nil:
		return nil, errors.New("flow: user repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("flow: catalog is required")
	case deps.Reports == nil:
		return nil, errors.New("flow: report repository is required")
	}
	if deps.Validator == nil {
		deps.Validator = budget.NewValidator(deps.Reports, budget.DefaultPolicy())
	}
	var resolverOpts []fuzzy.Option
	if cfg.Cutoff > 0 {
		resolverOpts = append(resolverOpts, fuzzy.WithCutoff(cfg.Cutoff))
	}

	e := &Engine{
		sessions:  deps.Sessions,
		roles:     deps.Roles,
		users:     deps.Users,
		catalog:   deps.Catalog,
		reports:   deps.Reports,
		export:    deps.Export,
		validator: deps.Validator,
		assembler: report.NewAssembler(deps.Validator, deps.Catalog),
		resolver:  fuzzy.NewResolver(resolverOpts...),
		steps:     make(map[models.StepID]*Step),
		now:       cfg.Now,
		loc:       cfg.Location,
	}

	var all []*Step
	all = append(all, e.rootSteps()...)
	all = append(all, e.workSteps()...)
	all = append(all, e.foremanSteps()...)
	all = append(all, e.editSteps()...)
	all = append(all, e.adminSteps()...)
	for _, s := range all {
		if s.Render == nil || s.Handle == nil {
			return nil, fmt.Errorf("flow: step %q lacks a render or handle function", s.ID)
		}
		if _, dup := e.steps[s.ID]; dup {
			return nil, fmt.Errorf("flow: step %q declared twice", s.ID)
		}
		e.steps[s.ID] = s
	}
	if err := checkGraph(all); err != nil {
		return nil, err
	}
	slog.Debug("Engine.NewEngine: step table ready", "steps", len(e.steps))
	return e, nil
}

// checkGraph verifies that every flow with a report schema can reach a
// confirm step, the only place a record is committed.
func checkGraph(steps []*Step) error {
	confirms := make(map[models.FlowType]int)
	for _, s := range steps {
		if s.Kind == KindConfirm {
			if s.Flow == "" {
				return fmt.Errorf("flow: confirm step %q belongs to no flow", s.ID)
			}
			confirms[s.Flow]++
		}
	}
	for _, s := range steps {
		if _, committable := report.SchemaFor(s.Flow); committable && confirms[s.Flow] == 0 {
			return fmt.Errorf("flow: flow %q has a report schema but no confirm step", s.Flow)
		}
	}
	return nil
}

// Step returns the descriptor of id.
func (e *Engine) Step(id models.StepID) (*Step, bool) {
	s, ok := e.steps[id]
	return s, ok
}

// turn carries the state of one HandleTurn call.
type turn struct {
	ctx    context.Context
	e      *Engine
	userID string
	roles  models.Roles
	sess   session.Session
	log    *slog.Logger
}

func (t *turn) refresh() {
	t.sess = t.e.sessions.Get(t.userID)
}

func (t *turn) get(k models.DataKey) string {
	return t.sess.Buffer[k]
}

// choice resolves in against the choices shown by the last prompt.
func (t *turn) choice(in Input) (fuzzy.Candidate, bool) {
	return t.pick(in, t.sess.Choices)
}

func (t *turn) pick(in Input, cands []fuzzy.Candidate) (fuzzy.Candidate, bool) {
	if in.Selection != "" {
		for _, c := range cands {
			if c.ID == in.Selection {
				return c, true
			}
		}
		return t.e.resolver.Resolve(in.Selection, cands)
	}
	return t.e.resolver.Resolve(in.Text, cands)
}

// HandleTurn processes one inbound turn for userID and returns the reply.
// Turns of the same user are serialized. On error the session has been
// cleared and the returned prompt carries a generic failure text.
func (e *Engine) HandleTurn(ctx context.Context, userID string, in Input) (Prompt, error) {
	unlock := e.sessions.Lock(userID)
	defer unlock()

	t := &turn{
		ctx:    ctx,
		e:      e,
		userID: userID,
		roles:  e.roles.RolesOf(userID),
		log:    slog.With("turnID", uuid.NewString(), "userID", userID),
	}
	t.refresh()
	t.log.Debug("Engine.HandleTurn: received", "step", t.sess.Step, "text", in.Text, "selection", in.Selection)

	p, err := e.dispatch(t, in)
	if err != nil {
		return e.fail(t, err)
	}
	t.log.Debug("Engine.HandleTurn: replied", "step", e.sessions.Get(userID).Step, "choices", len(p.Choices))
	return p, nil
}

func (e *Engine) dispatch(t *turn, in Input) (Prompt, error) {
	text := strings.TrimSpace(in.Text)
	if in.Selection == "" && isResetToken(text) {
		t.log.Info("Engine.dispatch: hard reset", "step", t.sess.Step)
		return e.home(t, "")
	}
	step, ok := e.steps[t.sess.Step]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: session in undeclared step %q", ErrContractViolation, t.sess.Step)
	}
	if in.Selection == "" && text == CancelToken {
		return e.back(t)
	}
	t.log.Debug("Engine.dispatch: handling", "step", step.ID, "flow", step.Flow, "kind", step.Kind)
	out, err := step.Handle(t, in)
	if err != nil {
		return Prompt{}, err
	}
	return e.apply(t, step, out)
}

func (e *Engine) apply(t *turn, step *Step, out Outcome) (Prompt, error) {
	switch out.kind {
	case outReprompt:
		t.log.Debug("Engine.apply: reprompt", "step", step.ID, "message", out.message)
		p, err := e.show(t, step)
		if err != nil {
			return Prompt{}, err
		}
		return withMessage(out.message, p), nil
	case outAdvance:
		if step.Returnable {
			e.sessions.Push(t.userID, session.Entry{Step: step.ID, Buffer: t.sess.Buffer, Resume: step.ID})
		}
		e.sessions.Merge(t.userID, out.values)
		return e.enter(t, out.next, nil)
	case outComplete:
		return e.home(t, out.message)
	case outRestart:
		e.sessions.ClearHistory(t.userID)
		buf := out.values.Clone()
		return e.enter(t, out.next, buf)
	case outBack:
		return e.back(t)
	default:
		return Prompt{}, fmt.Errorf("%w: unknown outcome from step %q", ErrContractViolation, step.ID)
	}
}

// enter moves the session to id and renders it. A non-nil buf replaces the buffer.
func (e *Engine) enter(t *turn, id models.StepID, buf session.Buffer) (Prompt, error) {
	step, ok := e.steps[id]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: transition to undeclared step %q", ErrContractViolation, id)
	}
	e.sessions.SetStep(t.userID, id, buf)
	return e.show(t, step)
}

// show renders step against the current session and records its choices.
func (e *Engine) show(t *turn, step *Step) (Prompt, error) {
	t.refresh()
	p, err := step.Render(t)
	if err != nil {
		return Prompt{}, err
	}
	e.sessions.SetChoices(t.userID, toCandidates(p.Choices))
	if step.ID != models.StepIdle {
		p.Text += "\n\n" + textBackHint
	}
	return p, nil
}

// back restores the newest history entry, or shows the root menu.
func (e *Engine) back(t *turn) (Prompt, error) {
	var p Prompt
	restored, err := e.sessions.Restore(t.userID, func(en session.Entry) error {
		step, ok := e.steps[en.Resume]
		if !ok {
			return fmt.Errorf("%w: history resumes undeclared step %q", ErrContractViolation, en.Resume)
		}
		var err error
		p, err = e.show(t, step)
		return err
	})
	if err != nil {
		return Prompt{}, err
	}
	if !restored {
		return e.home(t, "")
	}
	t.log.Debug("Engine.back: restored", "step", e.sessions.Get(t.userID).Step)
	return p, nil
}

// home clears the session and shows the root menu, or the registration
// prompt for unknown users.
func (e *Engine) home(t *turn, msg string) (Prompt, error) {
	e.sessions.Clear(t.userID)
	u, err := e.users.GetUser(t.ctx, t.userID)
	if err != nil {
		return Prompt{}, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		p, err := e.enter(t, models.StepRegisterName, session.Buffer{models.KeyFlow: string(models.FlowRegister)})
		if err != nil {
			return Prompt{}, err
		}
		return withMessage(textWelcome, p), nil
	}
	p, err := e.show(t, e.steps[models.StepIdle])
	if err != nil {
		return Prompt{}, err
	}
	return withMessage(msg, p), nil
}

func (e *Engine) fail(t *turn, err error) (Prompt, error) {
	kind := ErrCollaborator
	var ce *report.ContractError
	if errors.Is(err, ErrContractViolation) || errors.As(err, &ce) {
		kind = ErrContractViolation
	}
	t.log.Error("Engine.HandleTurn: turn failed, session cleared", "kind", kind, "step", t.sess.Step, "error", err)
	e.sessions.Clear(t.userID)
	if !errors.Is(err, kind) {
		err = fmt.Errorf("%w: %w", kind, err)
	}
	return Prompt{Text: textFailure}, err
}

// notify hands a change to the export collaborator and only logs failures.
func (e *Engine) notify(t *turn, change models.ExportChange) {
	if e.export == nil {
		return
	}
	if err := e.export.NotifyExport(t.ctx, change); err != nil {
		t.log.Warn("Engine.notify: export notification failed", "recordID", change.RecordID, "op", change.Op, "error", err)
	}
}

func withMessage(msg string, p Prompt) Prompt {
	if msg != "" {
		p.Text = msg + "\n\n" + p.Text
	}
	return p
}

func isResetToken(s string) bool {
	switch strings.ToLower(s) {
	case "reset", "/reset", "сброс":
		return true
	}
	return false
}
