package usecase

import (
	"context"
	"log/slog"
	"time"

	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/tracker"
)

// Runner wires the interval driver with autonomous batch sweeps.
type Runner struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	monitor      *tracker.Monitor
	logger       *slog.Logger
}

// NewRunner returns a helper to start/stop recurring sweeps.
func NewRunner(driver ports.Scheduler, orchestrator *Orchestrator, monitor *tracker.Monitor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		driver:       driver,
		orchestrator: orchestrator,
		monitor:      monitor,
		logger:       logger,
	}
}

// Start registers the sweep job with the provided driver. Each tick
// checks pipeline health, runs one batch, and trims the activity log.
func (r *Runner) Start(ctx context.Context) error {
	if r.driver == nil || r.orchestrator == nil {
		return nil
	}

	job := func(tick time.Time) {
		if r.monitor != nil {
			healthy, err := r.monitor.Healthy(ctx)
			if err != nil {
				r.logger.Error("health check", "error", err)
				return
			}
			if !healthy {
				r.logger.Warn("skipping sweep: too many recent failures")
				return
			}
		}

		result, err := r.orchestrator.RunBatch(ctx)
		if err != nil {
			r.logger.Error("batch sweep", "error", err)
		}
		r.logger.Info("batch sweep finished",
			"tick", tick.Format(time.RFC3339),
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"skipped", result.Skipped)

		if r.monitor != nil {
			if err := r.monitor.Sweep(ctx); err != nil {
				r.logger.Error("retention sweep", "error", err)
			}
		}
	}

	return r.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (r *Runner) Stop(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Stop(ctx)
}
