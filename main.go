package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vpn-assistant/internal/database"
	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/handler"
	"vpn-assistant/internal/logger"
	"vpn-assistant/internal/qr"
	"vpn-assistant/internal/remnawave"
	"vpn-assistant/internal/repository"
	"vpn-assistant/internal/services"
	"vpn-assistant/internal/telegram"
	"vpn-assistant/internal/xui"

	"github.com/dustin/go-humanize"
	"github.com/gookit/event"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Supported panel backends
const (
	BackendXUI       = "xui"
	BackendRemnawave = "remnawave"
)

type Config struct {
	TelegramToken       string
	Backend             string
	PanelBaseURL        string
	PanelUsername       string
	PanelPassword       string
	PanelInboundID      int
	SubscriptionBaseURL string
	RemnawaveToken      string
	PanelTimeout        time.Duration
	DatabaseDSN         string
	SessionTTL          time.Duration
	SweepSchedule       string
	QRWidth             int
	QRTempDir           string
	LogLevel            string
	LogFile             string
	SendRate            int
}

type Application struct {
	logger       domain.Logger
	db           database.DB
	config       *Config
	services     *Services
	handlers     *Handlers
	eventManager *event.Manager
}

type Services struct {
	Backend     domain.ProvisioningBackend
	Accounts    domain.AccountBackend
	Panel       *services.ProvisioningService
	Sessions    domain.SessionStore
	Enrollments *repository.EnrollmentRepository
	Locker      *services.ChatLocker
	Sweeper     *services.Sweeper
	Renderer    *qr.Renderer
}

type Handlers struct {
	Message *handler.MessageHandler
}

var envFile string

// main runs the command line entry point
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vpn-assistant",
		Short:         "Telegram assistant that provisions VPN access on a 3x-ui or Remnawave panel",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf("Warning: env file %s not loaded: %v", envFile, err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the environment file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the Telegram bot (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot()
			},
		},
		newCheckPanelCommand(),
		newHistoryCommand(),
	)

	return root
}

func newCheckPanelCommand() *cobra.Command {
	var telegramID int64

	cmd := &cobra.Command{
		Use:   "check-panel",
		Short: "Verify that the configured panel is reachable with the given credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckPanel(cmd.Context(), telegramID)
		},
	}

	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "also report whether this telegram user already has clients")

	return cmd
}

func newHistoryCommand() *cobra.Command {
	var userID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the clients recently created for a Telegram user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), userID, limit)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "telegram user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// runBot initializes the application and serves updates until interrupted
func runBot() error {
	app, err := NewApplication()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	if err := app.Run(); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

// runCheckPanel logs in once and reports what the panel returned. A non-zero
// telegramID is looked up as well.
func runCheckPanel(ctx context.Context, telegramID int64) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initializeLogger(config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(contextOrBackground(ctx), config.PanelTimeout)
	defer cancel()

	switch config.Backend {
	case BackendRemnawave:
		api, err := newRemnawaveClient(config, logger)
		if err != nil {
			return err
		}
		_, err = api.UserByTelegramID(ctx, telegramID)
		if err != nil && !domain.IsNotFound(err) {
			logger.Failure("Remnawave check failed: " + err.Error())
			return err
		}
		logger.Success("Remnawave API reachable at " + config.PanelBaseURL)
		if telegramID != 0 {
			logger.Info(fmt.Sprintf("User %d has a subscription: %t", telegramID, err == nil))
		}

	default:
		panel, err := newPanelClient(config, logger)
		if err != nil {
			return err
		}
		service := services.NewProvisioningService(panel, config.PanelInboundID, config.SubscriptionBaseURL, nil, logger)
		count, err := service.Check(ctx)
		if err != nil {
			logger.Failure("Panel check failed: " + err.Error())
			return err
		}
		logger.Success(fmt.Sprintf("Panel reachable at %s, inbound %d has %d client(s)", config.PanelBaseURL, config.PanelInboundID, count))

		if telegramID != 0 {
			owned, err := service.HasClients(ctx, telegramID)
			if err != nil {
				logger.Failure("Client lookup failed: " + err.Error())
				return err
			}
			logger.Info(fmt.Sprintf("User %d has clients on inbound %d: %t", telegramID, config.PanelInboundID, owned))
		}
	}

	return nil
}

// runHistory prints the audit trail of one user
func runHistory(ctx context.Context, userID int64, limit int) error {
	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		return errors.New("history requires DATABASE_URL")
	}

	ctx = contextOrBackground(ctx)

	db, err := database.NewPostgres(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	entries, err := repository.NewEnrollmentRepository(db).RecentByUser(ctx, userID, limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Printf("No clients recorded for user %d\n", userID)
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%-10s %-36s %-16s %s\n", entry.Platform, entry.ClientID, humanize.Time(entry.CreatedAt), entry.SubURL)
	}
	return nil
}

// NewApplication creates a new application instance with all dependencies
func NewApplication() (*Application, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var db database.DB
	if config.DatabaseDSN != "" {
		db, err = initializeDatabase(config.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	eventManager := event.NewManager("app")

	services, err := initializeServices(config, db, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	handlers := initializeHandlers(services, logger, eventManager)

	app := &Application{
		config:       config,
		logger:       logger,
		db:           db,
		services:     services,
		handlers:     handlers,
		eventManager: eventManager,
	}

	return app, nil
}

// Run starts the application and handles graceful shutdown
func (app *Application) Run() error {
	app.handlers.Message.RegisterEventListeners()

	telegramBot, err := telegram.NewTelegram(app.config.TelegramToken, app.config.SendRate, app.logger, app.eventManager)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.services.Sweeper.Start()
	defer app.services.Sweeper.Stop()

	app.logStartupMessages()

	telegramBot.Start(ctx)

	app.logger.Info("Bot stopped")
	return nil
}

// Close performs cleanup operations
func (app *Application) Close() {
	if app.db != nil {
		app.db.Close()
	}
}

// logStartupMessages displays startup information
func (app *Application) logStartupMessages() {
	app.logger.Info("🤖 Bot started")
	app.logger.Info("📡 Using " + app.config.Backend + " panel at " + app.config.PanelBaseURL)
	if app.db != nil {
		app.logger.Info("🗄️ Sessions stored in PostgreSQL")
	} else {
		app.logger.Info("🗄️ Sessions kept in memory")
	}
	app.logger.Info("✅ Ready to provision devices")
}

// loadConfig loads configuration from environment variables
func loadConfig() (*Config, error) {
	config := &Config{
		TelegramToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		Backend:             strings.ToLower(getEnv("BACKEND", BackendXUI)),
		PanelBaseURL:        getEnv("PANEL_BASE_URL", ""),
		PanelUsername:       getEnv("PANEL_USERNAME", ""),
		PanelPassword:       getEnv("PANEL_PASSWORD", ""),
		PanelInboundID:      getEnvAsInt("PANEL_INBOUND_ID", 1),
		SubscriptionBaseURL: getEnv("SUBSCRIPTION_BASE_URL", ""),
		RemnawaveToken:      getEnv("REMNAWAVE_API_TOKEN", ""),
		PanelTimeout:        time.Duration(getEnvAsInt("PANEL_TIMEOUT", 30)) * time.Second,
		DatabaseDSN:         getEnv("DATABASE_URL", ""),
		SessionTTL:          time.Duration(getEnvAsInt("SESSION_TTL", 30)) * time.Minute,
		SweepSchedule:       getEnv("SESSION_SWEEP_SCHEDULE", services.DefaultSweepSchedule),
		QRWidth:             getEnvAsInt("QR_WIDTH", qr.DefaultWidth),
		QRTempDir:           getEnv("QR_TEMP_DIR", ""),
		LogLevel:            getEnv("LOG_LEVEL", "debug"),
		LogFile:             getEnv("LOG_FILE", ""),
		SendRate:            getEnvAsInt("SEND_RATE", telegram.DefaultSendRate),
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig ensures all required configuration values are present
func validateConfig(config *Config) error {
	required := map[string]string{
		"TELEGRAM_BOT_TOKEN": config.TelegramToken,
		"PANEL_BASE_URL":     config.PanelBaseURL,
	}

	switch config.Backend {
	case BackendXUI:
		required["PANEL_USERNAME"] = config.PanelUsername
		required["PANEL_PASSWORD"] = config.PanelPassword
		required["SUBSCRIPTION_BASE_URL"] = config.SubscriptionBaseURL
	case BackendRemnawave:
		required["REMNAWAVE_API_TOKEN"] = config.RemnawaveToken
	default:
		return fmt.Errorf("unsupported BACKEND %q, expected %s or %s", config.Backend, BackendXUI, BackendRemnawave)
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("required environment variable %s is not set", key)
		}
	}

	if config.Backend == BackendXUI && config.PanelInboundID <= 0 {
		return fmt.Errorf("PANEL_INBOUND_ID must be positive, got %d", config.PanelInboundID)
	}
	if config.PanelTimeout <= 0 {
		return errors.New("PANEL_TIMEOUT must be positive")
	}
	if config.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}

	return nil
}

// initializeLogger creates and configures the application logger
func initializeLogger(config *Config) (*logger.ZLogXAdapter, error) {
	logConfig := &logger.Config{
		Level:          config.LogLevel,
		DateTimeLayout: "02/01/2006 15:04:05",
		Colored:        true,
		JSONFormat:     false,
		UseEmoji:       true,
		FilePath:       config.LogFile,
		FileMaxSizeMB:  10,
		FileMaxAge:     30,
		FileBackups:    5,
	}

	log, err := logger.New(logConfig)
	if err != nil {
		return nil, err
	}

	return &logger.ZLogXAdapter{ZLogX: log}, nil
}

// initializeDatabase connects to PostgreSQL and creates the tables
func initializeDatabase(dsn string) (database.DB, error) {
	ctx := context.Background()

	db, err := database.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := repository.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initializeServices creates all application services with their dependencies
func initializeServices(config *Config, db database.DB, logger *logger.ZLogXAdapter) (*Services, error) {
	svc := &Services{
		Locker:   services.NewChatLocker(),
		Renderer: qr.NewRenderer(config.QRWidth, config.QRTempDir, logger),
	}

	var sweepable services.Sweepable
	if db != nil {
		sessions := repository.NewSessionRepository(db, config.SessionTTL)
		svc.Sessions = sessions
		svc.Enrollments = repository.NewEnrollmentRepository(db)
		sweepable = sessions
	} else {
		sessions := services.NewSessionService(config.SessionTTL)
		svc.Sessions = sessions
		sweepable = sessions
	}

	sweeper, err := services.NewSweeper(config.SweepSchedule, sweepable, logger)
	if err != nil {
		return nil, err
	}
	svc.Sweeper = sweeper

	switch config.Backend {
	case BackendRemnawave:
		api, err := newRemnawaveClient(config, logger)
		if err != nil {
			return nil, err
		}
		accounts := services.NewAccountService(api, logger)
		svc.Backend = accounts
		svc.Accounts = accounts

	default:
		panel, err := newPanelClient(config, logger)
		if err != nil {
			return nil, err
		}

		var recorder domain.EnrollmentRecorder
		if svc.Enrollments != nil {
			recorder = svc.Enrollments
		}
		svc.Panel = services.NewProvisioningService(panel, config.PanelInboundID, config.SubscriptionBaseURL, recorder, logger)
		svc.Backend = svc.Panel
	}

	return svc, nil
}

// initializeHandlers creates all application handlers with shared event manager
func initializeHandlers(services *Services, logger *logger.ZLogXAdapter, eventManager *event.Manager) *Handlers {
	return &Handlers{
		Message: handler.NewMessageHandler(
			eventManager,
			services.Backend,
			services.Accounts,
			services.Sessions,
			services.Locker,
			services.Renderer,
			logger,
		),
	}
}

func newPanelClient(config *Config, logger domain.Logger) (*xui.Client, error) {
	return xui.New(config.PanelBaseURL, config.PanelUsername, config.PanelPassword, &http.Client{Timeout: config.PanelTimeout}, logger)
}

func newRemnawaveClient(config *Config, logger domain.Logger) (*remnawave.Client, error) {
	return remnawave.New(config.PanelBaseURL, config.RemnawaveToken, &http.Client{Timeout: config.PanelTimeout}, logger)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves environment variable as integer with fallback
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
