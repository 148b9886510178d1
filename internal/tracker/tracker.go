package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Monitor wraps the append-only activity log with bounded retention
// and a failure-rate health check for the scheduler.
type Monitor struct {
	store         ports.ActivityStore
	maxAge        time.Duration
	failureWindow time.Duration
	maxFailures   int
	logger        *slog.Logger
}

// NewMonitor configures retention and health thresholds.
func NewMonitor(store ports.ActivityStore, maxAge, failureWindow time.Duration, maxFailures int, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:         store,
		maxAge:        maxAge,
		failureWindow: failureWindow,
		maxFailures:   maxFailures,
		logger:        logger,
	}
}

// Record appends one activity entry. Tracking is observational, so a
// write failure is logged and swallowed rather than failing the stage
// that produced it.
func (m *Monitor) Record(ctx context.Context, entry domain.ActivityEntry) {
	if m.store == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := m.store.InsertActivity(ctx, entry); err != nil {
		m.logger.Error("record activity",
			"content_id", entry.ContentID,
			"stage", entry.Stage,
			"error", err)
	}
}

// Sweep trims entries older than the retention window.
func (m *Monitor) Sweep(ctx context.Context) error {
	if m.store == nil || m.maxAge <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-m.maxAge)
	trimmed, err := m.store.TrimActivityBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("trim activity log: %w", err)
	}
	if trimmed > 0 {
		m.logger.Debug("trimmed activity log", "rows", trimmed)
	}
	return nil
}

// Healthy reports whether recent failures stay under the configured
// ceiling. An unhealthy pipeline skips autonomous sweeps so a degraded
// dependency is not hammered on every tick.
func (m *Monitor) Healthy(ctx context.Context) (bool, error) {
	if m.store == nil || m.maxFailures <= 0 {
		return true, nil
	}
	since := time.Now().UTC().Add(-m.failureWindow)
	failures, err := m.store.CountFailedSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("count recent failures: %w", err)
	}
	return failures < m.maxFailures, nil
}
