package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/gatehouse/internal/auth/http"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	// BuildVersion is reported by the health endpoints and in every log line.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the account service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	mailer  notify.Mailer
	closers []io.Closer
	secrets Secrets

	// Services
	userService          *service.UserService
	sessionService       *service.SessionService
	passwordResetService *service.PasswordResetService
	adminService         *service.AdminService
	bootstrapService     *service.BootstrapService
	housekeepingService  *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	secrets, err := LoadSecrets(cfg.SecretsDir, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	app.secrets = secrets

	db, err := OpenStore(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	mailer, closer, err := NewMailer(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}
	app.mailer = mailer
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.logger.Info("mail driver ready", "driver", cfg.MailDriver)

	app.initServices()

	if err := app.ensureAdmin(context.Background()); err != nil {
		_ = app.close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("gatehouse starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"session_backend", app.cfg.SessionBackend,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			app.housekeepingService.Stop()
			_ = app.close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.close(); err != nil {
		app.logger.Error("error closing resources", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

func (app *Application) close() error {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Warn("error closing notifier", "error", err)
		}
	}
	return app.db.Close()
}

// OpenStore opens the SQLite database, applies migrations and, when
// SESSION_BACKEND=redis, moves sessions onto Redis.
func OpenStore(cfg Config, logger *slog.Logger) (store.Store, error) {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info("database migrations applied successfully")

	if cfg.SessionBackend != "redis" {
		return db, nil
	}

	rdb := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	st := redis.NewStore(db, rdb, "gatehouse")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to reach session backend: %w", err)
	}
	logger.Info("sessions stored in redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return st, nil
}

// NewMailer builds the transport selected by MAIL_DRIVER. The closer is
// non-nil when the transport holds a connection.
func NewMailer(cfg Config) (notify.Mailer, io.Closer, error) {
	from := fmt.Sprintf("%s <%s>", cfg.MailFromName, cfg.MailFrom)

	switch cfg.MailDriver {
	case "smtp":
		m, err := notify.NewSMTPMailer(cfg.SMTPURL, from, cfg.SMTPSkipVerify)
		return m, nil, err
	case "mailgun":
		return notify.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, from), nil, nil
	case "queue":
		q, err := notify.NewQueueMailer(cfg.RabbitMQURL, cfg.EmailQueue)
		if err != nil {
			return nil, nil, err
		}
		return q, q, nil
	default:
		return &notify.ConsoleMailer{Out: os.Stdout}, nil, nil
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.userService = &service.UserService{Store: app.db}
	app.sessionService = &service.SessionService{
		Store:       app.db,
		SessionTTL:  app.cfg.SessionTTL,
		RememberTTL: app.cfg.RememberTTL,
	}
	notifier := &notify.AsyncNotifier{
		Next: &notify.MailNotifier{
			Mailer:   app.mailer,
			BaseURL:  app.cfg.BaseURL,
			ResetTTL: app.cfg.ResetTokenTTL,
		},
	}
	// Drain pending deliveries before the mailer's connection closes.
	app.closers = append([]io.Closer{notifier}, app.closers...)

	app.passwordResetService = &service.PasswordResetService{
		Store:    app.db,
		Notifier: notifier,
		ResetTTL: app.cfg.ResetTokenTTL,
	}
	app.adminService = &service.AdminService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Users: app.userService,
		Token: app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// ensureAdmin creates the configured administrator on an empty database.
func (app *Application) ensureAdmin(ctx context.Context) error {
	if app.cfg.AdminUsername == "" {
		return nil
	}
	created, err := app.bootstrapService.EnsureAdmin(slogx.WithContext(ctx, app.logger), service.AdminAccount{
		Username: app.cfg.AdminUsername,
		Email:    app.cfg.AdminEmail,
		Password: app.cfg.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if created {
		app.logger.Info("admin user created", "username", app.cfg.AdminUsername)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, app.logger, httpapi.Options{
		BuildVersion:   BuildVersion,
		SessionBackend: app.cfg.SessionBackend,
		CookieHashKey:  app.secrets.CookieHashKey,
		CookieBlockKey: app.secrets.CookieBlockKey,
		CSRFKey:        app.secrets.CSRFKey,
		CookieSecure:   app.cfg.CookieSecure,
		RateLimits:     &app.cfg.RateLimits,
	})

	// Wire services to router
	router.UserService = app.userService
	router.SessionService = app.sessionService
	router.PasswordResetService = app.passwordResetService
	router.AdminService = app.adminService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
