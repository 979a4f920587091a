package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker shields the request path from a sick optional dependency.
// The API key service wraps every Redis cache access in one, so a dead
// cache degrades key validation to database lookups instead of stalling
// each request on a connection timeout.
type CircuitBreaker struct {
	mu sync.RWMutex

	state       State
	failures    int
	probeWins   int
	lastFailure time.Time

	maxFailures int
	cooldown    time.Duration
	probeQuota  int
	isFailure   func(error) bool
}

type Config struct {
	// Consecutive failures before the breaker opens. Default: 5.
	MaxFailures int
	// How long the breaker stays open before probing again. Default: 30s.
	Timeout time.Duration
	// Successful probes required to close again. Default: 1.
	HalfOpenSuccess int
	// Classifies an error as a real failure. Expected error values (a
	// cache miss reported as an error) must not count against the
	// breaker. Default: any non-nil error.
	IsFailure func(error) bool
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		state:       StateClosed,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Timeout,
		probeQuota:  cfg.HalfOpenSuccess,
		isFailure:   cfg.IsFailure,
	}
}

// Call runs fn unless the breaker is open. fn's error is always handed
// back to the caller; whether it counts against the breaker is decided by
// the configured classifier.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) <= cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		// Cooldown elapsed: admit probes.
		cb.state = StateHalfOpen
		cb.probeWins = 0
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.isFailure(err) {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}

	return err
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch {
	case cb.state == StateHalfOpen:
		// A failed probe reopens immediately.
		cb.state = StateOpen
		cb.probeWins = 0
	case cb.failures >= cb.maxFailures:
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.probeWins++
		if cb.probeWins >= cb.probeQuota {
			cb.state = StateClosed
			cb.failures = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset force-closes the breaker, discarding failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probeWins = 0
}
