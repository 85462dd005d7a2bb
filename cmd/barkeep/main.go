package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/canmore-mixology/barkeep/internal/api"
	"github.com/canmore-mixology/barkeep/internal/archive"
	"github.com/canmore-mixology/barkeep/internal/concierge"
	"github.com/canmore-mixology/barkeep/internal/contact"
	"github.com/canmore-mixology/barkeep/internal/flow"
	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/lockfile"
	"github.com/canmore-mixology/barkeep/internal/messaging"
	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/scheduler"
	"github.com/canmore-mixology/barkeep/internal/store"
	"github.com/canmore-mixology/barkeep/internal/twilio"
	"github.com/canmore-mixology/barkeep/internal/util"
	"github.com/canmore-mixology/barkeep/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for barkeep state data
	DefaultStateDir = "/var/lib/barkeep"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "barkeep.db"
	// DefaultPollInterval is how often the job runner and outbox sender poll.
	DefaultPollInterval = 2 * time.Second
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping barkeep", "state_dir", flags.StateDir, "api_addr", flags.APIAddr, "provider", flags.Provider, "channels", flags.NotifyChannels)
	if err := run(ctx, config, flags); err != nil {
		slog.Error("barkeep failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("barkeep exited successfully")
}

// Config holds environment configuration
type Config struct {
	LogLevel     string
	StateDir     string
	DatabaseURL  string
	APIAddr      string
	Provider     string
	OpenAIKey    string
	GeminiKey    string
	Model        string
	ImageModel   string
	GenAIDebug   bool
	GenAITimeout time.Duration
	PromptsFile  string

	ImageConcurrency int
	ImageTimeout     time.Duration
	SessionTTL       time.Duration
	SessionSweepSpec string

	ContactDelay   time.Duration
	ReminderLead   time.Duration
	DedupWindow    time.Duration
	DedupKeyTTL    time.Duration
	DedupPurgeSpec string
	PollInterval   time.Duration

	NotifyChannels string
	NotifyEmailTo  string
	NotifyPhone    string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPSenderName string
	WhatsAppDSN    string

	S3Bucket        string
	S3Region        string
	S3Prefix        string
	S3PublicBaseURL string
	AWSAccessKeyID  string
	AWSSecretKey    string

	CORSAllowedOrigins  string
	RateLimitRPM        int
	RateLimitBurst      int
	ImageRateLimitRPM   int
	ImageRateLimitBurst int
	TrustProxy          bool
}

// Flags holds the values that can be overridden on the command line.
type Flags struct {
	StateDir       string
	DBDSN          string
	APIAddr        string
	Provider       string
	OpenAIKey      string
	GeminiKey      string
	Model          string
	ImageModel     string
	GenAIDebug     bool
	PromptsFile    string
	NotifyChannels string
	QROutput       string
	NumericCode    bool
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		LogLevel:     os.Getenv("LOG_LEVEL"),
		StateDir:     os.Getenv("BARKEEP_STATE_DIR"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		APIAddr:      os.Getenv("API_ADDR"),
		Provider:     os.Getenv("GENAI_PROVIDER"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		Model:        os.Getenv("GENAI_MODEL"),
		ImageModel:   os.Getenv("GENAI_IMAGE_MODEL"),
		GenAIDebug:   util.ParseBoolEnv("GENAI_DEBUG", false),
		GenAITimeout: util.ParseDurationEnv("GENAI_TIMEOUT", 0),
		PromptsFile:  os.Getenv("PROMPTS_FILE"),

		ImageConcurrency: util.ParseIntEnv("IMAGE_CONCURRENCY", concierge.DefaultImageConcurrency),
		ImageTimeout:     util.ParseDurationEnv("IMAGE_TIMEOUT", 0),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", concierge.DefaultSessionTTL),
		SessionSweepSpec: os.Getenv("SESSION_SWEEP_SCHEDULE"),

		ContactDelay:   util.ParseDurationEnv("CONTACT_DELAY", contact.DefaultDelay),
		ReminderLead:   util.ParseDurationEnv("REMINDER_LEAD", contact.DefaultReminderLead),
		DedupWindow:    util.ParseDurationEnv("CONTACT_DEDUP_WINDOW", contact.DefaultDedupWindow),
		DedupKeyTTL:    util.ParseDurationEnv("IDEMPOTENCY_KEY_TTL", contact.DefaultKeyTTL),
		DedupPurgeSpec: os.Getenv("DEDUP_PURGE_SCHEDULE"),
		PollInterval:   util.ParseDurationEnv("JOB_POLL_INTERVAL", DefaultPollInterval),

		NotifyChannels: os.Getenv("NOTIFY_CHANNELS"),
		NotifyEmailTo:  os.Getenv("NOTIFY_EMAIL_TO"),
		NotifyPhone:    os.Getenv("NOTIFY_PHONE"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       util.ParseIntEnv("SMTP_PORT", 587),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:       os.Getenv("SMTP_FROM"),
		SMTPSenderName: os.Getenv("SMTP_SENDER_NAME"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),

		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        os.Getenv("S3_REGION"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		AWSAccessKeyID:  os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),

		CORSAllowedOrigins:  os.Getenv("CORS_ALLOWED_ORIGINS"),
		RateLimitRPM:        util.ParseIntEnv("RATE_LIMIT_RPM", api.DefaultRateLimitRPM),
		RateLimitBurst:      util.ParseIntEnv("RATE_LIMIT_BURST", api.DefaultRateLimitBurst),
		ImageRateLimitRPM:   util.ParseIntEnv("IMAGE_RATE_LIMIT_RPM", api.DefaultImageRateLimitRPM),
		ImageRateLimitBurst: util.ParseIntEnv("IMAGE_RATE_LIMIT_BURST", api.DefaultImageRateLimitBurst),
		TrustProxy:          util.ParseBoolEnv("TRUST_PROXY", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Provider == "" {
		config.Provider = string(genai.ProviderOpenAI)
	}
	if config.NotifyChannels == "" {
		config.NotifyChannels = models.ChannelLog
	}
	if config.SessionSweepSpec == "" {
		config.SessionSweepSpec = scheduler.DefaultSessionSweepSpec
	}
	if config.DedupPurgeSpec == "" {
		config.DedupPurgeSpec = scheduler.DefaultDedupPurgeSpec
	}

	slog.Debug("environment variables loaded",
		"BARKEEP_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"GENAI_PROVIDER", config.Provider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"NOTIFY_CHANNELS", config.NotifyChannels,
		"S3_BUCKET", config.S3Bucket)

	return config
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("barkeep", flag.ContinueOnError)
	fs.StringVar(&f.StateDir, "state-dir", config.StateDir, "state directory for barkeep data (overrides $BARKEEP_STATE_DIR)")
	fs.StringVar(&f.DBDSN, "db-dsn", config.DatabaseURL, "Postgres DSN, SQLite path or \"memory\" (overrides $DATABASE_URL; default <state-dir>/"+DefaultDBFileName+")")
	fs.StringVar(&f.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.Provider, "genai-provider", config.Provider, "genai provider, openai or gemini (overrides $GENAI_PROVIDER)")
	fs.StringVar(&f.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.GeminiKey, "gemini-api-key", config.GeminiKey, "Gemini API key (overrides $GEMINI_API_KEY)")
	fs.StringVar(&f.Model, "genai-model", config.Model, "model for suggestions (overrides $GENAI_MODEL)")
	fs.StringVar(&f.ImageModel, "genai-image-model", config.ImageModel, "model for images (overrides $GENAI_IMAGE_MODEL)")
	fs.BoolVar(&f.GenAIDebug, "genai-debug", config.GenAIDebug, "write every genai call to <state-dir>/debug (overrides $GENAI_DEBUG)")
	fs.StringVar(&f.PromptsFile, "prompts-file", config.PromptsFile, "YAML prompt template overrides (overrides $PROMPTS_FILE)")
	fs.StringVar(&f.NotifyChannels, "notify-channels", config.NotifyChannels, "comma-separated notification channels (overrides $NOTIFY_CHANNELS)")
	fs.StringVar(&f.QROutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&f.NumericCode, "numeric-code", false, "print the WhatsApp pairing code instead of a QR code")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if f.DBDSN == "" {
		f.DBDSN = filepath.Join(f.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", f.DBDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", f.StateDir,
		"dbDSN_type", store.DetectDSNType(f.DBDSN),
		"apiAddr", f.APIAddr,
		"provider", f.Provider,
		"genaiDebug", f.GenAIDebug,
		"notifyChannels", f.NotifyChannels)
	return f, nil
}

// run wires every module and serves until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(flags.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()
	slog.Debug("run: state directory locked", "lock_path", lock.Path())

	st, err := store.New(flags.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	gaClient, err := genai.NewClient(buildGenAIOptions(config, flags)...)
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}

	prompts := flow.DefaultPrompts()
	if flags.PromptsFile != "" {
		if prompts, err = flow.LoadPrompts(flags.PromptsFile); err != nil {
			return err
		}
	}

	conciergeOpts, err := buildConciergeOptions(ctx, config)
	if err != nil {
		return err
	}
	svc := concierge.NewService(flow.NewDefaultRegistry(gaClient, prompts), flow.NewImageFlow(gaClient, prompts), conciergeOpts...)
	sessions := concierge.NewSessions(config.SessionTTL)

	dispatcher, err := buildDispatcher(ctx, config, flags, st)
	if err != nil {
		return err
	}
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer dispatcher.Stop()
	channels := dispatcher.Channels()

	runner := store.NewJobRunner(st, config.PollInterval)
	contact.RegisterJobHandlers(runner, st, channels)
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("Failed to recover stale jobs", "error", err)
	}
	go runner.Run(ctx)

	outbox := store.NewOutboxSender(st, dispatcher.Send, config.PollInterval)
	if err := outbox.RecoverStaleMessages(); err != nil {
		slog.Warn("Failed to recover stale outbox messages", "error", err)
	}
	go outbox.Run(ctx)

	contactSvc := contact.NewService(st, buildContactOptions(config, channels)...)

	sched, err := buildScheduler(config, sessions, contactSvc)
	if err != nil {
		return err
	}
	go sched.Run(ctx)

	server := api.NewServer(svc, sessions, contactSvc, buildAPIOptions(config, flags)...)
	return server.Run(ctx)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config, flags Flags) []genai.Option {
	provider := genai.Provider(strings.ToLower(flags.Provider))
	key := flags.OpenAIKey
	if provider == genai.ProviderGemini {
		key = flags.GeminiKey
	}
	opts := []genai.Option{
		genai.WithProvider(provider),
		genai.WithAPIKey(key),
		genai.WithStateDir(flags.StateDir),
		genai.WithDebugMode(flags.GenAIDebug),
	}
	if flags.Model != "" {
		opts = append(opts, genai.WithModel(flags.Model))
	}
	if flags.ImageModel != "" {
		opts = append(opts, genai.WithImageModel(flags.ImageModel))
	}
	if config.GenAITimeout > 0 {
		opts = append(opts, genai.WithTimeout(config.GenAITimeout))
	}
	return opts
}

// buildConciergeOptions constructs the fan-out options and, when S3_BUCKET
// is set, the image archive.
func buildConciergeOptions(ctx context.Context, config Config) ([]concierge.Option, error) {
	opts := []concierge.Option{concierge.WithImageConcurrency(config.ImageConcurrency)}
	if config.ImageTimeout > 0 {
		opts = append(opts, concierge.WithImageTimeout(config.ImageTimeout))
	}
	if config.S3Bucket == "" {
		return opts, nil
	}

	archiveOpts := []archive.Option{
		archive.WithBucket(config.S3Bucket),
		archive.WithRegion(config.S3Region),
		archive.WithPrefix(config.S3Prefix),
		archive.WithPublicBaseURL(config.S3PublicBaseURL),
	}
	if config.AWSAccessKeyID != "" && config.AWSSecretKey != "" {
		archiveOpts = append(archiveOpts, archive.WithStaticCredentials(config.AWSAccessKeyID, config.AWSSecretKey))
	}
	archiver, err := archive.New(ctx, archiveOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure image archive: %w", err)
	}
	return append(opts, concierge.WithArchiver(archiver)), nil
}

// buildScheduler registers the housekeeping jobs: the idle session sweep and
// the purge of expired contact dedup records.
func buildScheduler(config Config, sessions *concierge.Sessions, contactSvc *contact.Service) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if err := sched.AddJob("session-sweep", config.SessionSweepSpec, func() { sessions.Sweep() }); err != nil {
		return nil, err
	}
	purge := func() {
		n, err := contactSvc.PurgeExpiredSubmissions()
		if err != nil {
			slog.Error("dedup-purge failed", "error", err)
			return
		}
		slog.Debug("dedup-purge finished", "removed", n)
	}
	if err := sched.AddJob("dedup-purge", config.DedupPurgeSpec, purge); err != nil {
		return nil, err
	}
	return sched, nil
}

// buildContactOptions constructs contact service options
func buildContactOptions(config Config, channels []string) []contact.Option {
	return []contact.Option{
		contact.WithDelay(config.ContactDelay),
		contact.WithReminderLead(config.ReminderLead),
		contact.WithChannels(channels),
		contact.WithDedupWindow(config.DedupWindow),
		contact.WithKeyTTL(config.DedupKeyTTL),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	return []api.Option{
		api.WithAddr(flags.APIAddr),
		api.WithAllowedOrigins(util.SplitList(config.CORSAllowedOrigins)),
		api.WithRateLimit(config.RateLimitRPM, config.RateLimitBurst),
		api.WithImageRateLimit(config.ImageRateLimitRPM, config.ImageRateLimitBurst),
		api.WithTrustProxy(config.TrustProxy),
	}
}

var errNoChannels = errors.New("no notification channels configured")

// buildDispatcher creates and registers one messaging service per
// configured channel. The Twilio client is shared by sms and
// twilio-whatsapp.
func buildDispatcher(ctx context.Context, config Config, flags Flags, st store.Store) (*messaging.Dispatcher, error) {
	channels := util.SplitList(flags.NotifyChannels)
	if len(channels) == 0 {
		return nil, errNoChannels
	}
	d := messaging.NewDispatcher(st)

	var twilioClient *twilio.Client
	twilioSender := func() (*twilio.Client, error) {
		if twilioClient != nil {
			return twilioClient, nil
		}
		c, err := twilio.NewClient()
		if err != nil {
			return nil, err
		}
		twilioClient = c
		return c, nil
	}

	for _, ch := range channels {
		if !models.IsValidChannel(ch) {
			return nil, fmt.Errorf("unknown notification channel %q", ch)
		}
		var (
			svc       messaging.Service
			recipient string
		)
		switch ch {
		case models.ChannelLog:
			svc = messaging.NewLogService()
		case models.ChannelEmail:
			email, err := messaging.NewEmailService(messaging.EmailOpts{
				Host:       config.SMTPHost,
				Port:       config.SMTPPort,
				Username:   config.SMTPUsername,
				Password:   config.SMTPPassword,
				From:       config.SMTPFrom,
				SenderName: config.SMTPSenderName,
			})
			if err != nil {
				return nil, fmt.Errorf("email channel: %w", err)
			}
			svc, recipient = email, config.NotifyEmailTo
		case models.ChannelSMS, models.ChannelTwilioWhatsApp:
			c, err := twilioSender()
			if err != nil {
				return nil, fmt.Errorf("%s channel: %w", ch, err)
			}
			if ch == models.ChannelSMS {
				svc = messaging.NewTwilioSMSService(c)
			} else {
				svc = messaging.NewTwilioWhatsAppService(c)
			}
			recipient = config.NotifyPhone
		case models.ChannelWhatsApp:
			waOpts := []whatsapp.Option{whatsapp.WithStateDir(flags.StateDir)}
			if config.WhatsAppDSN != "" {
				waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
			}
			if flags.QROutput != "" {
				waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.QROutput))
			}
			if flags.NumericCode {
				waOpts = append(waOpts, whatsapp.WithNumericCode())
			}
			c, err := whatsapp.NewClient(ctx, waOpts...)
			if err != nil {
				return nil, fmt.Errorf("whatsapp channel: %w", err)
			}
			svc, recipient = messaging.NewWhatsAppService(c), config.NotifyPhone
		}
		if err := d.Register(svc, recipient); err != nil {
			return nil, err
		}
	}
	return d, nil
}
