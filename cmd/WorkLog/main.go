package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/WorkLog/internal/api"
	"github.com/BTreeMap/WorkLog/internal/store"
	"github.com/BTreeMap/WorkLog/internal/twiliowhatsapp"
	"github.com/BTreeMap/WorkLog/internal/util"
	"github.com/BTreeMap/WorkLog/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for WorkLog state data
	DefaultStateDir = "/var/lib/worklog"
	// DefaultAppDBFileName is the default SQLite database filename
	DefaultAppDBFileName = "worklog.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		slog.Error("Invalid time zone", "error", err, "tz", *flags.timezone)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	twOpts := buildTwilioOptions(config)
	apiOpts := buildAPIOptions(flags, config, loc)

	slog.Info("Bootstrapping WorkLog", "transport", *flags.transport, "state_dir", *flags.stateDir, "api_addr", *flags.apiAddr)
	if err := api.Run(waOpts, storeOpts, twOpts, apiOpts); err != nil {
		slog.Error("WorkLog failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("WorkLog exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	AppDBDSN         string
	WhatsAppDBDSN    string
	APIAddr          string
	Transport        string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string
	Admins           []string
	Foremen          []string
	ITStaff          []string
	ExportCron       string
	ExportDir        string
	Timezone         string
	MaxChoices       int
	NumericCode      bool
	LogLevel         string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput   *string
	numeric    *bool
	stateDir   *string
	appDSN     *string
	waDSN      *string
	apiAddr    *string
	transport  *string
	exportCron *string
	exportDir  *string
	timezone   *string
	maxChoices *int
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:         os.Getenv("WORKLOG_STATE_DIR"),
		AppDBDSN:         os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Transport:        os.Getenv("WORKLOG_TRANSPORT"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		Admins:           util.ParseListEnv("ADMIN_IDS"),
		Foremen:          util.ParseListEnv("FOREMAN_IDS"),
		ITStaff:          util.ParseListEnv("IT_IDS"),
		ExportCron:       os.Getenv("AUTO_EXPORT_CRON"),
		ExportDir:        os.Getenv("EXPORT_DIR"),
		Timezone:         os.Getenv("WORKLOG_TZ"),
		MaxChoices:       util.ParseIntEnv("MAX_CHOICES", 0),
		NumericCode:      util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		LogLevel:         os.Getenv("WORKLOG_LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.AppDBDSN == "" {
		config.AppDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Transport == "" {
		config.Transport = api.TransportNone
	}
	if config.ExportCron == "" {
		config.ExportCron = api.DefaultExportCron
	}
	if config.Timezone == "" {
		config.Timezone = "Local"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args with environment defaults. A custom
// --state-dir also moves the default database files.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:   fs.String("qr-output", "", "path to write login QR code"),
		numeric:    fs.Bool("numeric-code", config.NumericCode, "print the raw login code instead of a QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:   fs.String("state-dir", config.StateDir, "state directory for WorkLog data (overrides $WORKLOG_STATE_DIR)"),
		appDSN:     fs.String("db-dsn", config.AppDBDSN, "application database DSN (overrides $DATABASE_URL)"),
		waDSN:      fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:    fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport:  fs.String("transport", config.Transport, "messaging transport: whatsapp, twilio or none (overrides $WORKLOG_TRANSPORT)"),
		exportCron: fs.String("export-cron", config.ExportCron, "cron schedule of the automatic export (overrides $AUTO_EXPORT_CRON)"),
		exportDir:  fs.String("export-dir", config.ExportDir, "directory of exported sheets (overrides $EXPORT_DIR)"),
		timezone:   fs.String("tz", config.Timezone, "time zone that defines calendar days (overrides $WORKLOG_TZ)"),
		maxChoices: fs.Int("max-choices", config.MaxChoices, "maximum choices rendered per message, 0 for all (overrides $MAX_CHOICES)"),
	}
	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	if *flags.stateDir != config.StateDir {
		if *flags.appDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.appDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.waDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
	}
	switch *flags.transport {
	case api.TransportNone, api.TransportWhatsApp, api.TransportTwilio:
	default:
		return flags, fmt.Errorf("unknown transport %q", *flags.transport)
	}
	return flags, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.appDSN
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(config.TwilioSID),
		twiliowhatsapp.WithAuthToken(config.TwilioToken),
		twiliowhatsapp.WithFromNumber(config.TwilioFrom),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config, loc *time.Location) []api.Option {
	apiOpts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithStateDir(*flags.stateDir),
		api.WithTransport(*flags.transport),
		api.WithRoles(config.Admins, config.Foremen, config.ITStaff),
		api.WithExportCron(*flags.exportCron),
		api.WithLocation(loc),
		api.WithMaxChoices(*flags.maxChoices),
	}
	if *flags.exportDir != "" {
		apiOpts = append(apiOpts, api.WithExportDir(*flags.exportDir))
	}
	if config.TwilioWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(config.TwilioWebhookURL, config.TwilioToken))
	}
	return apiOpts
}
