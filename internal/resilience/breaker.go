package resilience

import (
	"sync"
	"time"
)

// Breaker is a fail-fast guard keyed by (agent, stage). Once a key
// accumulates Threshold failures inside the cooldown window, further
// calls are rejected until the cooldown elapses since the last
// failure. Any success resets the key. State is in-memory and only
// protects the owning process instance.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	states    map[string]*breakerState
	now       func() time.Time
}

type breakerState struct {
	failures    int
	lastFailure time.Time
}

// NewBreaker builds a breaker tripping after threshold failures and
// staying open for cooldown after the most recent failure.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		states:    map[string]*breakerState{},
		now:       time.Now,
	}
}

// Allow reports whether a call for key may proceed. Returns
// ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[key]
	if !ok || state.failures < b.threshold {
		return nil
	}
	if b.now().Sub(state.lastFailure) >= b.cooldown {
		// Cooldown elapsed: let one call probe the dependency.
		return nil
	}
	return ErrCircuitOpen
}

// OnSuccess resets the failure count for key.
func (b *Breaker) OnSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}

// OnFailure records a failure for key.
func (b *Breaker) OnFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[key]
	if !ok {
		state = &breakerState{}
		b.states[key] = state
	}
	if state.failures > 0 && b.now().Sub(state.lastFailure) >= b.cooldown {
		// Stale window: start counting fresh.
		state.failures = 0
	}
	state.failures++
	state.lastFailure = b.now()
}

// Failures returns the current failure count for key, for health
// reporting and tests.
func (b *Breaker) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.states[key]; ok {
		return state.failures
	}
	return 0
}
