package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/metriq-ai/metriq/internal/activity"
	"github.com/metriq-ai/metriq/internal/assembly"
	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/config"
	"github.com/metriq-ai/metriq/internal/jobs"
	"github.com/metriq-ai/metriq/internal/passport"
	"github.com/metriq-ai/metriq/internal/providers"
	"github.com/metriq-ai/metriq/internal/psychometrics"
	"github.com/metriq-ai/metriq/internal/scoring"
	"github.com/metriq-ai/metriq/internal/server"
	"github.com/metriq-ai/metriq/internal/session"
	"github.com/metriq-ai/metriq/internal/storage"
	"github.com/metriq-ai/metriq/internal/telemetry"
	"github.com/metriq-ai/metriq/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

const (
	activityBufferSize   = 1000
	activityFlushTimeout = 5 * time.Second
)

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("METRIQ_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("metriq starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// External profile providers, shared by session start and scoring.
	onet := providers.NewONetClient(cfg.ONetBaseURL, cfg.ProviderTimeout)
	teams := providers.NewTeamsClient(cfg.TeamsBaseURL, cfg.ProviderTimeout)

	// Assembly pipeline.
	selector := assembly.NewSelector(db, int(cfg.InventoryFloor))
	engine := assembly.NewEngine(selector, db, logger)
	resolver := assembly.NewResolver(cfg.DeltaSkipThreshold)

	// Activity sink.
	sink := activity.NewSink(db, logger, activityBufferSize, activityFlushTimeout)
	sink.Start(ctx)

	// Session service and scoring orchestrator reference each other at
	// runtime; the scorer is injected after construction.
	sessions := session.New(db, resolver, engine, sink, onet, teams, session.Config{
		StaleAfter:       cfg.StaleAfter,
		AnonymousIPLimit: cfg.AnonymousIPLimit,
		AnonymousWindow:  cfg.AnonymousIPWindow,
		AnonymousBlock:   cfg.AnonymousIPBlock,
	}, logger)

	scorer := scoring.NewOrchestrator(db, onet, teams, scoring.Config{
		RetryAttempts: cfg.ScoringRetryAttempts,
		RetryBase:     cfg.ScoringRetryBase,
	}, logger)
	sessions.SetScorer(scorer)

	// Background jobs: sweep ticker and the psychometric cron.
	analyzer := psychometrics.NewAnalyzer(db, psychometrics.Config{
		MinItemResponses:     cfg.MinItemResponses,
		MinReliabilitySample: cfg.MinReliabilitySample,
		ReviewDwell:          cfg.ReviewDwell,
		Concurrency:          cfg.AnalysisConcurrency,
	}, logger)
	runner := jobs.New(db, sessions, analyzer, jobs.Config{
		SweepInterval: cfg.SweepInterval,
		AnalysisCron:  cfg.AnalysisCron,
	}, logger)
	if err := runner.Start(); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Sessions:            sessions,
		Passports:           passport.New(db),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting requests and drain in-flight ones
	// first (they may still emit activity), then stop the jobs, then flush
	// the activity buffer.
	slog.Info("metriq shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	runner.Stop()

	sinkCtx, sinkCancel := context.WithTimeout(context.Background(), 10*time.Second)
	sink.Drain(sinkCtx)
	sinkCancel()

	slog.Info("metriq stopped")
	return nil
}
