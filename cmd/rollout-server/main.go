// Package main is the entrypoint for the rollout server.
//
// @title           contributor.info Rollout API
// @version         1.0
// @description     Feature rollout control plane for contributor.info data processing. Gradual percentage-based rollouts with repository whitelists, category caps, health monitoring, and automatic rollback.
//
// @contact.name   contributor.info
// @contact.url    https://github.com/contributor-info
//
// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT
//
// @host      localhost:8090
// @BasePath  /api/v1
//
// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name Authorization
// @description API key authentication. Use format: Bearer cin_xxx
//
// @tag.name Features
// @tag.description Feature rollout configuration and control actions
// @tag.name Categories
// @tag.description Repository category caps
// @tag.name Repositories
// @tag.description Tracked repository management
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/contributor-info/rollout/internal/api"
	"github.com/contributor-info/rollout/internal/api/handlers"
	"github.com/contributor-info/rollout/internal/backfill"
	"github.com/contributor-info/rollout/internal/config"
	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/export"
	"github.com/contributor-info/rollout/internal/metrics"
	"github.com/contributor-info/rollout/internal/monitoring"
	"github.com/contributor-info/rollout/internal/notifications"
	"github.com/contributor-info/rollout/internal/rollout"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting rollout server")

	// Load configuration
	cfg := config.LoadServerConfig()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Rollout controller
	manager := rollout.NewManager(database, logger)

	// Prometheus registry
	registry := metrics.NewRegistry()

	// Notification channels (optional)
	var notifier *notifications.Service
	notifyCfg := notifications.Config{
		SlackWebhookURL: cfg.SlackWebhookURL,
		WebhookURL:      cfg.WebhookURL,
		WebhookSecret:   cfg.WebhookSecret,
	}
	if notifyCfg.Enabled() {
		notifier = notifications.NewService(notifyCfg, logger)
	}

	// Health monitor with auto-rollback
	monitorCfg := monitoring.Config{
		CheckInterval: cfg.MonitorInterval,
		MinSampleSize: cfg.MonitorMinSamples,
	}
	var monitorNotifier monitoring.Notifier
	if notifier != nil {
		monitorNotifier = notifier
	}
	monitor := monitoring.NewMonitor(database, manager, monitorNotifier, registry, monitorCfg, logger)

	// Build API router
	allowedOrigins := strings.Split(os.Getenv("CORS_ORIGINS"), ",")
	if os.Getenv("CORS_ORIGINS") == "" {
		allowedOrigins = []string{}
	}

	routerCfg := api.Config{
		Environment:    cfg.Environment,
		AllowedOrigins: allowedOrigins,
		RateLimit:      cfg.RateLimit,
		RedisURL:       cfg.RedisURL,
		SwaggerEnabled: cfg.SwaggerEnabled,
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
	}

	var handlerNotifier handlers.Notifier
	if notifier != nil {
		handlerNotifier = notifier
	}
	router, err := api.NewRouter(routerCfg, database, manager, registry, handlerNotifier, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start health monitor
	monitor.Start(ctx)
	defer monitor.Stop()

	// Start events backfill scheduler when configured
	if cfg.BackfillSchedule != "" {
		backfillCfg := backfill.DefaultConfig()
		backfillCfg.BackfillDays = cfg.BackfillDays
		worker := backfill.NewWorker(database, manager, backfill.NewGitHubClient(cfg.GitHubToken), backfillCfg, logger)
		backfillScheduler := backfill.NewScheduler(worker, cfg.BackfillSchedule, logger)
		if err := backfillScheduler.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to start backfill scheduler")
		}
		defer backfillScheduler.Stop()
	} else {
		logger.Info().Msg("BACKFILL_SCHEDULE not set, events backfill disabled")
	}

	// Start history archive scheduler when configured
	if cfg.ArchiveEnabled() {
		s3cfg := export.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}
		s3Client, err := export.NewS3Client(ctx, s3cfg)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize S3 client, history archival disabled")
		} else {
			archiveCfg := export.DefaultConfig()
			archiveCfg.RetentionDays = cfg.ArchiveRetentionDays
			archiver := export.NewArchiver(database, s3Client, s3cfg, archiveCfg, logger)
			archiveScheduler := export.NewScheduler(archiver, cfg.ArchiveSchedule, logger)
			if err := archiveScheduler.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to start archive scheduler")
			}
			defer archiveScheduler.Stop()
		}
	} else {
		logger.Info().Msg("History archival not configured")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
