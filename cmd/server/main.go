package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/db"
	"lex_dossier_app_go/handlers"
	"lex_dossier_app_go/logger"
	"lex_dossier_app_go/middleware"
	"lex_dossier_app_go/models"
	"lex_dossier_app_go/services"
	"lex_dossier_app_go/services/jobs"
)

const (
	bodyLimit        = "12M" // uploads are capped at 10MB
	shutdownTimeout  = 15 * time.Second
	maintenanceEvery = time.Hour
	alertPruneEvery  = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.Environment)

	// Initialize database
	if err := db.Initialize(cfg); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	services.InitializeStorage(cfg)
	services.PDF = services.NewChromePDFRenderer(cfg.ChromePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Share rate limits across instances when Redis is configured
	if cfg.RedisURL != "" {
		store, err := middleware.NewRedisRateLimitStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(err, "Redis unavailable, rate limits stay in memory")
		} else {
			middleware.UseRateLimitStore(store)
			logger.Infof("Rate limits backed by Redis")
		}
	}

	e := newServer(cfg)
	startBackgroundJobs(ctx, cfg)

	go func() {
		logger.Infof("Server starting on port %s", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Graceful shutdown failed")
	}
}

// newServer builds the echo instance with middleware and routes.
func newServer(cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	e.Validator = handlers.NewRequestValidator()

	// Middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(middleware.ConfigContext(cfg))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Metrics())

	registerRoutes(e)
	return e
}

// startBackgroundJobs runs the outbox dispatcher and periodic maintenance until ctx ends.
func startBackgroundJobs(ctx context.Context, cfg *config.Config) {
	opts := services.DefaultOutboxOptions()
	opts.PollInterval = cfg.OutboxPollInterval
	if cfg.NotifyByEmail {
		opts.Mailer = services.NewResendMailer(cfg)
	}
	go services.NewOutboxDispatcher(db.DB, opts).Run(ctx)
	go services.Monitor.RunPruner(ctx, alertPruneEvery)

	go func() {
		ticker := time.NewTicker(maintenanceEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runMaintenance(cfg, now)
			}
		}
	}()
}

// runMaintenance purges expired reset tokens and sends appointment
// reminders. Reminders are sent once per appointment, so running it
// hourly is safe.
func runMaintenance(cfg *config.Config, now time.Time) {
	if n, err := services.CleanupExpiredResetTokens(db.DB, now); err != nil {
		logger.Error(err, "Error cleaning up expired reset tokens")
	} else if n > 0 {
		logger.Debugf("Removed %d expired reset tokens", n)
	}

	result, err := jobs.SendAppointmentReminders(db.DB, cfg, now)
	if err != nil {
		logger.Error(err, "Error sending appointment reminders")
		return
	}
	if result.Notified+result.Emailed+result.Failed > 0 {
		logger.WithFields(logrus.Fields{
			"notified": result.Notified,
			"emailed":  result.Emailed,
			"failed":   result.Failed,
		}).Info("[REMINDERS] appointment reminders sent")
	}
}
