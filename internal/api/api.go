// Package api provides the WorkLog HTTP server and the process wiring that
// connects the store, the conversation engine, the export pipeline and the
// messaging transport.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/catalog"
	"github.com/BTreeMap/WorkLog/internal/export"
	"github.com/BTreeMap/WorkLog/internal/flow"
	"github.com/BTreeMap/WorkLog/internal/lockfile"
	"github.com/BTreeMap/WorkLog/internal/messaging"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/roles"
	"github.com/BTreeMap/WorkLog/internal/scheduler"
	"github.com/BTreeMap/WorkLog/internal/session"
	"github.com/BTreeMap/WorkLog/internal/store"
	"github.com/BTreeMap/WorkLog/internal/twiliowhatsapp"
	"github.com/BTreeMap/WorkLog/internal/whatsapp"
)

// Transport names accepted by WithTransport.
const (
	TransportNone     = "none"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultExportCron runs the export sweep every Monday at 09:00.
	DefaultExportCron = "0 9 * * 1"
	// DedupRetention is how long processed inbound message ids are kept.
	DedupRetention = 7 * 24 * time.Hour

	workerPollInterval = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Opts holds configuration options for the API server and its wiring.
type Opts struct {
	Addr             string
	StateDir         string
	Transport        string
	TwilioWebhookURL string
	TwilioAuthToken  string
	Admins           []string
	Foremen          []string
	ITStaff          []string
	ExportCron       string
	ExportDir        string
	Location         *time.Location
	MaxChoices       int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStateDir sets the directory holding the lock file and default exports.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithTransport selects the messaging transport.
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithTwilioWebhook enables signature validation of the Twilio webhook.
func WithTwilioWebhook(publicURL, authToken string) Option {
	return func(o *Opts) {
		o.TwilioWebhookURL = publicURL
		o.TwilioAuthToken = authToken
	}
}

// WithRoles sets the admin, foreman and IT user id lists.
func WithRoles(admins, foremen, itStaff []string) Option {
	return func(o *Opts) {
		o.Admins, o.Foremen, o.ITStaff = admins, foremen, itStaff
	}
}

// WithExportCron sets the schedule of the automatic export sweep. An empty
// expression keeps the default.
func WithExportCron(expr string) Option {
	return func(o *Opts) { o.ExportCron = expr }
}

// WithExportDir sets the directory of the exported sheets.
func WithExportDir(dir string) Option {
	return func(o *Opts) { o.ExportDir = dir }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithMaxChoices clamps the number of choices rendered per prompt.
func WithMaxChoices(n int) Option {
	return func(o *Opts) { o.MaxChoices = n }
}

func resolveOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:       DefaultAddr,
		StateDir:   "/var/lib/worklog",
		Transport:  TransportNone,
		ExportCron: DefaultExportCron,
		Location:   time.Local,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ExportCron == "" {
		cfg.ExportCron = DefaultExportCron
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.StateDir, "exports")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// TurnRunner runs one conversation turn.
type TurnRunner = messaging.TurnHandler

// SessionCounter reports the number of in-progress sessions.
type SessionCounter interface {
	ActiveCount() int
}

// ReportLister lists stored work reports.
type ReportLister interface {
	ListWorkReports(ctx context.Context, q store.ReportQuery) ([]models.WorkReport, error)
}

// SweepRequester queues an export sweep of one month.
type SweepRequester interface {
	RequestSweep(ctx context.Context, month string) error
}

// ServerDeps are the collaborators of a Server. Webhook is optional.
type ServerDeps struct {
	Turns     TurnRunner
	Sessions  SessionCounter
	Reports   ReportLister
	Sweeps    SweepRequester
	Webhook   http.HandlerFunc
	Transport string
	Location  *time.Location
	Now       func() time.Time
}

// Server serves the WorkLog HTTP API.
type Server struct {
	turns     TurnRunner
	sessions  SessionCounter
	reports   ReportLister
	sweeps    SweepRequester
	webhook   http.HandlerFunc
	transport string
	loc       *time.Location
	now       func() time.Time
}

// NewServer creates a Server.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		turns:     deps.Turns,
		sessions:  deps.Sessions,
		reports:   deps.Reports,
		sweeps:    deps.Sweeps,
		webhook:   deps.Webhook,
		transport: deps.Transport,
		loc:       deps.Location,
		now:       deps.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.transport == "" {
		s.transport = TransportNone
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/turn", s.turnHandler)
	mux.HandleFunc("/reports", s.reportsHandler)
	mux.HandleFunc("/export", s.exportHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.webhook != nil {
		mux.HandleFunc("/webhook/twilio", func(w http.ResponseWriter, r *http.Request) {
			if allowMethod(w, r, http.MethodPost) {
				s.webhook(w, r)
			}
		})
	}
	return mux
}

// core is the transport-independent part of the service.
type core struct {
	store    store.Store
	sessions *session.Store
	catalog  *catalog.Service
	notifier *export.Notifier
	exporter *export.Exporter
	engine   *flow.Engine
}

// newCore seeds the catalog and builds the engine and export pipeline over st.
func newCore(ctx context.Context, cfg Opts, st store.Store, fs afero.Fs) (*core, error) {
	defaults, err := catalog.LoadDefaults()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog defaults: %w", err)
	}
	cat := catalog.NewService(st, defaults)
	if err := cat.Seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	dir := roles.NewDirectory(
		roles.WithAdmins(cfg.Admins...),
		roles.WithForemen(cfg.Foremen...),
		roles.WithITStaff(cfg.ITStaff...),
	)
	sessions := session.NewStore()
	notifier := export.NewNotifier(st, st)
	exporter := export.NewExporter(st, export.NewSheets(fs, cfg.ExportDir))

	engine, err := flow.NewEngine(flow.Deps{
		Sessions:  sessions,
		Roles:     dir,
		Users:     st,
		Catalog:   cat,
		Reports:   st,
		Export:    notifier,
		Validator: budget.NewValidator(st, budget.DefaultPolicy()),
	}, flow.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation engine: %w", err)
	}
	return &core{
		store:    st,
		sessions: sessions,
		catalog:  cat,
		notifier: notifier,
		exporter: exporter,
		engine:   engine,
	}, nil
}

// startWorkers launches the outbox sender and the job runner. They stop when
// ctx is cancelled.
func (c *core) startWorkers(ctx context.Context) {
	sender := store.NewOutboxSender(c.store, c.exporter.Deliver, workerPollInterval)
	if err := sender.RecoverStaleMessages(ctx); err != nil {
		slog.Warn("core.startWorkers: failed to recover stale outbox messages", "error", err)
	}
	runner := store.NewJobRunner(c.store, workerPollInterval)
	export.RegisterJobHandlers(runner, c.exporter)
	if err := runner.RecoverStaleJobs(ctx); err != nil {
		slog.Warn("core.startWorkers: failed to recover stale jobs", "error", err)
	}
	go sender.Run(ctx)
	go runner.Run(ctx)
}

// schedule registers the periodic export sweep and the dedup purge.
func (c *core) schedule(sched *scheduler.Scheduler, cfg Opts) error {
	err := sched.Add("export sweep", cfg.ExportCron, func(ctx context.Context) {
		month := time.Now().In(cfg.Location).Format(export.MonthLayout)
		if err := c.notifier.RequestSweep(ctx, month); err != nil {
			slog.Error("core.schedule: failed to request export sweep", "error", err, "month", month)
		}
	})
	if err != nil {
		return err
	}
	return sched.Add("dedup purge", "30 3 * * *", func(ctx context.Context) {
		n, err := c.store.PurgeInbound(ctx, time.Now().Add(-DedupRetention))
		if err != nil {
			slog.Error("core.schedule: failed to purge inbound dedup records", "error", err)
			return
		}
		slog.Debug("core.schedule: purged inbound dedup records", "count", n)
	})
}

// newTransport builds the configured messaging service. It returns nil for
// TransportNone.
func newTransport(ctx context.Context, cfg Opts, waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option) (messaging.Service, error) {
	switch cfg.Transport {
	case TransportNone, "":
		return nil, nil
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var svcOpts []messaging.TwilioOption
		if cfg.TwilioWebhookURL != "" {
			svcOpts = append(svcOpts, messaging.WithWebhookValidation(cfg.TwilioWebhookURL, cfg.TwilioAuthToken))
		}
		return messaging.NewTwilioService(client, svcOpts...), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Run wires every component and serves until SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, twOpts []twiliowhatsapp.Option, apiOpts []Option) error {
	cfg := resolveOpts(apiOpts)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.Acquire(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	c, err := newCore(ctx, cfg, st, afero.NewOsFs())
	if err != nil {
		return err
	}
	c.startWorkers(ctx)

	sched := scheduler.New(scheduler.WithLocation(cfg.Location))
	if err := c.schedule(sched, cfg); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			slog.Warn("api.Run: scheduler did not stop in time", "error", err)
		}
	}()

	svc, err := newTransport(ctx, cfg, waOpts, twOpts)
	if err != nil {
		return err
	}
	deps := ServerDeps{
		Turns:     c.engine,
		Sessions:  c.sessions,
		Reports:   st,
		Sweeps:    c.notifier,
		Transport: cfg.Transport,
		Location:  cfg.Location,
	}
	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer svc.Stop()
		handler := messaging.NewResponseHandler(svc, c.engine,
			messaging.WithRenderer(messaging.NewRenderer(cfg.MaxChoices)),
			messaging.WithDedup(st))
		handler.Start(ctx)
		if tw, ok := svc.(*messaging.TwilioService); ok {
			deps.Webhook = tw.WebhookHandler
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Run: WorkLog API listening", "addr", cfg.Addr, "transport", cfg.Transport)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("api.Run: shutdown signal received")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}
