package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned when the breaker rejects a call outright.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open", e.Name)
}

// CircuitBreaker sheds load to a failing transport: it opens after a run of
// consecutive failures, rejects calls while open, and probes with a limited
// number of half-open calls after a cool-down.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	openedAt         time.Time

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	halfOpenMax      int
}

// CircuitBreakerOption configures the circuit breaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithName sets the breaker name used in errors.
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.name = name }
}

// WithFailureThreshold sets the consecutive failures that open the breaker.
func WithFailureThreshold(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.failureThreshold = n }
}

// WithSuccessThreshold sets the half-open successes that close the breaker.
func WithSuccessThreshold(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.successThreshold = n }
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.cooldown = d }
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             "default",
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         30 * time.Second,
		halfOpenMax:      3,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state, applying the open→half-open transition
// if the cool-down has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Execute runs fn under breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		cb.record(ctx.Err())
		return ctx.Err()
	default:
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()

	switch cb.state {
	case StateOpen:
		return &CircuitOpenError{Name: cb.name}
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenMax {
			return &CircuitOpenError{Name: cb.name}
		}
		cb.halfOpenInFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.failureThreshold) {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = StateClosed
			cb.successes = 0
		}
	}
}

// maybeHalfOpen transitions open→half-open after the cool-down. Caller holds
// the lock.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.halfOpenInFlight = 0
	}
}
