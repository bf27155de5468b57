// Package jobs runs the background work: the timeout/staleness sweep on a
// fixed ticker and the psychometric analysis on a cron schedule. The cron
// job takes a database lease so only one replica runs it.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/metriq-ai/metriq/internal/psychometrics"
	"github.com/metriq-ai/metriq/internal/session"
	"github.com/metriq-ai/metriq/internal/storage"
)

const (
	analysisLockName = "psychometric_analysis"
	analysisLease    = 2 * time.Hour

	// Blocked-IP rows older than this are pruned during the sweep.
	anonRateRetention = 48 * time.Hour
)

// Config holds the background job settings.
type Config struct {
	SweepInterval time.Duration
	AnalysisCron  string
}

// Runner owns the cron scheduler and the sweep ticker.
type Runner struct {
	db       *storage.DB
	sessions *session.Service
	analyzer *psychometrics.Analyzer
	cfg      Config
	logger   *slog.Logger

	cron   *cron.Cron
	holder string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(db *storage.DB, sessions *session.Service, analyzer *psychometrics.Analyzer, cfg Config, logger *slog.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		db:       db,
		sessions: sessions,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		cron:     cron.New(),
		holder:   fmt.Sprintf("%s-%d", host, os.Getpid()),
		done:     make(chan struct{}),
	}
}

// Start schedules the analysis cron and launches the sweep loop.
func (r *Runner) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if _, err := r.cron.AddFunc(r.cfg.AnalysisCron, func() { r.runAnalysis(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("jobs: schedule analysis: %w", err)
	}
	r.cron.Start()

	go r.sweepLoop(ctx)
	return nil
}

// Stop halts the cron scheduler and waits for the sweep loop to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.cron.Stop().Done()
	<-r.done
}

func (r *Runner) sweepLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sessions.Tick(ctx)
			r.pruneAnonRates(ctx)
		}
	}
}

func (r *Runner) pruneAnonRates(ctx context.Context) {
	pruned, err := r.db.PruneAnonRates(ctx, time.Now().UTC().Add(-anonRateRetention))
	if err != nil {
		r.logger.Error("jobs: prune anonymous rate rows", "error", err)
		return
	}
	if pruned > 0 {
		r.logger.Debug("jobs: pruned anonymous rate rows", slog.Int64("count", pruned))
	}
}

// runAnalysis executes one psychometric run under the scheduler lock.
// Losing the lease race is normal in multi-replica deployments.
func (r *Runner) runAnalysis(ctx context.Context) {
	now := time.Now().UTC()
	acquired, err := r.db.AcquireJobLock(ctx, analysisLockName, r.holder, now, now.Add(analysisLease))
	if err != nil {
		r.logger.Error("jobs: acquire analysis lock", "error", err)
		return
	}
	if !acquired {
		r.logger.Info("jobs: analysis lock held elsewhere, skipping run")
		return
	}
	defer func() {
		if err := r.db.ReleaseJobLock(ctx, analysisLockName, r.holder); err != nil {
			r.logger.Error("jobs: release analysis lock", "error", err)
		}
	}()

	if err := r.analyzer.Run(ctx); err != nil {
		r.logger.Error("jobs: psychometric analysis failed", "error", err)
	}
}
