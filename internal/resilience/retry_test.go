package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ContentPipeline/internal/domain"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []domain.PipelineStageRecord
}

func (m *memoryRecorder) RecordStageAttempt(_ context.Context, record domain.PipelineStageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func testCall() CallContext {
	return CallContext{ContentID: "c-1", Agent: "classifier", Stage: domain.StageClassification}
}

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2,
		AttemptTimeout:    time.Second,
	}
}

func TestExecuteFailTwiceThenSucceed(t *testing.T) {
	t.Parallel()

	recorder := &memoryRecorder{}
	retrier := NewRetrier(recorder, nil, nil)

	calls := 0
	err := retrier.Execute(context.Background(), testCall(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("upstream hiccup")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}

	if len(recorder.records) != 3 {
		t.Fatalf("expected 3 stage records, got %d", len(recorder.records))
	}
	failed, completed := 0, 0
	for _, record := range recorder.records {
		switch record.Status {
		case domain.AttemptFailed:
			failed++
		case domain.AttemptCompleted:
			completed++
		}
	}
	if failed != 2 || completed != 1 {
		t.Fatalf("expected 2 failed + 1 completed, got %d/%d", failed, completed)
	}
}

func TestExecuteExhaustion(t *testing.T) {
	t.Parallel()

	recorder := &memoryRecorder{}
	retrier := NewRetrier(recorder, nil, nil)

	underlying := errors.New("still broken")
	err := retrier.Execute(context.Background(), testCall(), fastPolicy(3), func(context.Context) error {
		return underlying
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, underlying) {
		t.Fatal("exhausted error must wrap the last underlying error")
	}
	if len(recorder.records) != 3 {
		t.Fatalf("expected 3 stage records, got %d", len(recorder.records))
	}
}

func TestExecuteValidationErrorShortCircuits(t *testing.T) {
	t.Parallel()

	recorder := &memoryRecorder{}
	retrier := NewRetrier(recorder, nil, nil)

	calls := 0
	err := retrier.Execute(context.Background(), testCall(), fastPolicy(5), func(context.Context) error {
		calls++
		return NewValidationError("payload missing title")
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("validation error must not retry, got %d calls", calls)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 stage record, got %d", len(recorder.records))
	}
}

func TestExecuteAttemptTimeout(t *testing.T) {
	t.Parallel()

	retrier := NewRetrier(&memoryRecorder{}, nil, nil)

	pol := fastPolicy(2)
	pol.AttemptTimeout = 10 * time.Millisecond

	calls := 0
	err := retrier.Execute(context.Background(), testCall(), pol, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error after timed-out attempts")
	}
	if calls != 2 {
		t.Fatalf("timeout must fail the attempt, not the caller: got %d calls", calls)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", errors.New("connection reset"), true},
		{"timeout", context.DeadlineExceeded, true},
		{"validation", NewValidationError("bad input"), false},
		{"circuit", ErrCircuitOpen, false},
		{"unauthorized", errors.New("agent returned 401 Unauthorized"), false},
		{"not found", errors.New("resource not found"), false},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
