package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCircuitOpen is returned when a call is rejected fail-fast because
// the breaker for its (agent, stage) key is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ValidationError marks malformed or missing input. Validation errors
// never enter backoff; the first occurrence fails the call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// NewValidationError builds a non-retryable input error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExhaustedError is raised when every retry attempt failed. It carries
// the attempt count and the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// permanentMarkers are message fragments that identify 4xx-shaped
// failures from agents that only surface strings.
var permanentMarkers = []string{
	"unauthorized",
	"forbidden",
	"not found",
	"invalid request",
	"bad request",
}

// IsRetryable classifies an error for the retry loop. Validation
// errors, open circuits, and 4xx-shaped messages are permanent;
// everything else is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	return true
}
