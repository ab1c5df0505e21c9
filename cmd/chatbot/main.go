package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aftorrescurrea/chatbot-sub000/internal/bot"
	"github.com/aftorrescurrea/chatbot-sub000/internal/nlu"
	"github.com/aftorrescurrea/chatbot-sub000/internal/store"
	"github.com/aftorrescurrea/chatbot-sub000/internal/twiliowhatsapp"
	"github.com/aftorrescurrea/chatbot-sub000/internal/util"
	"github.com/aftorrescurrea/chatbot-sub000/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for chatbot state data
	DefaultStateDir = "/var/lib/chatbot"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the whatsmeow session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the default SQLite database filename for application data
	DefaultAppDBFileName = "chatbot.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	nluOpts := buildNLUOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	botOpts := buildBotOptions(flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping chatbot with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"transport", *flags.transport,
		"app_dsn_set", *flags.appDBDSN != "",
		"whatsapp_dsn_set", *flags.waDBDSN != "")
	if err := bot.Run(ctx, waOpts, storeOpts, nluOpts, twilioOpts, botOpts); err != nil {
		slog.Error("Chatbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Chatbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	OpenAIKey        string
	Transport        string
	WebhookAddr      string
	SessionTimeout   time.Duration
	FlowTimeout      time.Duration
	SweepSchedule    string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	waDBDSN        *string
	appDBDSN       *string
	openaiKey      *string
	transport      *string
	webhookAddr    *string
	sessionTimeout *time.Duration
	flowTimeout    *time.Duration
	sweepSchedule  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("CHATBOT_STATE_DIR"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		Transport:        os.Getenv("CHATBOT_TRANSPORT"),
		WebhookAddr:      os.Getenv("WEBHOOK_ADDR"),
		SessionTimeout:   util.ParseDurationEnv("SESSION_TIMEOUT", 0),
		FlowTimeout:      util.ParseDurationEnv("FLOW_TIMEOUT", 0),
		SweepSchedule:    os.Getenv("FLOW_SWEEP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CHATBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Whatsmeow strongly recommends foreign keys for its SQLite session store
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDBDSN)
	}

	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No application database DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	slog.Debug("environment variables loaded",
		"CHATBOT_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_URL_SET", config.ApplicationDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"CHATBOT_TRANSPORT", config.Transport,
		"WEBHOOK_ADDR", config.WebhookAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for chatbot data (overrides $CHATBOT_STATE_DIR)"),
		waDBDSN:        flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:       flag.String("db-dsn", config.ApplicationDBDSN, "database DSN for application data (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		transport:      flag.String("transport", config.Transport, "WhatsApp transport: whatsmeow or twilio (overrides $CHATBOT_TRANSPORT)"),
		webhookAddr:    flag.String("webhook-addr", config.WebhookAddr, "listen address for the Twilio inbound webhook (overrides $WEBHOOK_ADDR)"),
		sessionTimeout: flag.Duration("session-timeout", config.SessionTimeout, "inactivity timeout for conversation sessions (overrides $SESSION_TIMEOUT)"),
		flowTimeout:    flag.Duration("flow-timeout", config.FlowTimeout, "idle timeout for active flows (overrides $FLOW_TIMEOUT)"),
		sweepSchedule:  flag.String("flow-sweep-schedule", config.SweepSchedule, "cron expression for the flow expiry sweep (overrides $FLOW_SWEEP_SCHEDULE)"),
	}

	flag.Parse()

	// Follow a moved state directory for DSNs the user did not set explicitly
	if *flags.stateDir != config.StateDir {
		if *flags.appDBDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.appDBDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDBDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			*flags.waDBDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.appDBDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.appDBDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, 0755)
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDBDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.appDBDSN != "" {
		storeOpts = append(storeOpts, store.WithDSN(*flags.appDBDSN))
	}
	return storeOpts
}

// buildNLUOptions constructs NLU configuration options
func buildNLUOptions(flags Flags) []nlu.Option {
	var nluOpts []nlu.Option
	if *flags.openaiKey != "" {
		nluOpts = append(nluOpts, nlu.WithAPIKey(*flags.openaiKey))
	}
	return nluOpts
}

// buildTwilioOptions constructs Twilio client options from the environment.
// Credentials stay in env vars; the twiliowhatsapp package reads them itself.
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	return nil
}

// buildBotOptions constructs bot service configuration options
func buildBotOptions(flags Flags) []bot.Option {
	botOpts := []bot.Option{bot.WithStateDir(*flags.stateDir)}
	if *flags.transport != "" {
		botOpts = append(botOpts, bot.WithTransport(*flags.transport))
	}
	if *flags.webhookAddr != "" {
		botOpts = append(botOpts, bot.WithWebhookAddr(*flags.webhookAddr))
	}
	if *flags.sessionTimeout > 0 {
		botOpts = append(botOpts, bot.WithSessionTimeout(*flags.sessionTimeout))
	}
	if *flags.flowTimeout > 0 {
		botOpts = append(botOpts, bot.WithFlowTimeout(*flags.flowTimeout))
	}
	if *flags.sweepSchedule != "" {
		botOpts = append(botOpts, bot.WithSweepSchedule(*flags.sweepSchedule))
	}
	return botOpts
}
