package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Policy configures one retried call.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	AttemptTimeout    time.Duration
}

// CallContext identifies the call for stage records and breaker keys.
type CallContext struct {
	ContentID string
	Agent     string
	Stage     domain.Stage
}

func (c CallContext) key() string {
	return c.Agent + "/" + string(c.Stage)
}

// Retrier executes operations with exponential backoff, a per-attempt
// timeout, breaker protection, and a stage record per attempt.
type Retrier struct {
	recorder ports.StageRecorder
	breaker  *Breaker
	logger   *slog.Logger
}

// NewRetrier wires the attempt recorder and breaker.
func NewRetrier(recorder ports.StageRecorder, breaker *Breaker, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{recorder: recorder, breaker: breaker, logger: logger}
}

// Execute runs op up to pol.MaxRetries times. Each attempt runs under
// its own timeout and is recorded as a PipelineStageRecord before any
// backoff sleep, so diagnostic history survives a crash mid-retry.
// Non-retryable errors short-circuit; exhaustion returns
// *ExhaustedError carrying the last error and the attempt count.
func (r *Retrier) Execute(ctx context.Context, call CallContext, pol Policy, op func(context.Context) error) error {
	if pol.MaxRetries < 1 {
		pol.MaxRetries = 1
	}
	if pol.BackoffMultiplier <= 0 {
		pol.BackoffMultiplier = 2
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pol.InitialDelay
	bo.Multiplier = pol.BackoffMultiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempt := 0
	permanent := false
	var lastErr error

	run := func() error {
		attempt++

		if r.breaker != nil {
			if err := r.breaker.Allow(call.key()); err != nil {
				permanent = true
				lastErr = err
				r.logger.Warn("call rejected by circuit breaker",
					"content_id", call.ContentID,
					"agent", call.Agent,
					"stage", call.Stage)
				return backoff.Permanent(err)
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if pol.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, pol.AttemptTimeout)
		}
		started := time.Now()
		err := op(attemptCtx)
		cancel()

		record := domain.PipelineStageRecord{
			ContentID: call.ContentID,
			Stage:     call.Stage,
			Agent:     call.Agent,
			Attempt:   attempt,
			StartedAt: started,
		}
		completed := time.Now()
		record.CompletedAt = &completed

		if err == nil {
			record.Status = domain.AttemptCompleted
			r.record(ctx, record)
			if r.breaker != nil {
				r.breaker.OnSuccess(call.key())
			}
			return nil
		}

		lastErr = err
		record.Status = domain.AttemptFailed
		record.ErrorMessage = err.Error()
		r.record(ctx, record)
		if r.breaker != nil {
			r.breaker.OnFailure(call.key())
		}

		r.logger.Error("stage attempt failed",
			"content_id", call.ContentID,
			"agent", call.Agent,
			"stage", call.Stage,
			"attempt", attempt,
			"error", err)

		if !IsRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(pol.MaxRetries-1)), ctx)
	if err := backoff.Retry(run, wrapped); err != nil {
		if permanent {
			return lastErr
		}
		if lastErr == nil {
			lastErr = err
		}
		return &ExhaustedError{Attempts: attempt, Last: lastErr}
	}
	return nil
}

func (r *Retrier) record(ctx context.Context, record domain.PipelineStageRecord) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordStageAttempt(ctx, record); err != nil {
		r.logger.Error("record stage attempt",
			"content_id", record.ContentID,
			"stage", record.Stage,
			"error", err)
	}
}
