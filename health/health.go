package health

import (
	"context"
	"sync"
	"time"

	"github.com/kioskly/kioskbus-go/messaging"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the report produced by one checker.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// BrokerChecker reports the broker connection state of a transport.
type BrokerChecker struct {
	transport messaging.Transport
}

// NewBrokerChecker creates a checker over the given transport.
func NewBrokerChecker(transport messaging.Transport) *BrokerChecker {
	return &BrokerChecker{transport: transport}
}

// Name implements Checker.
func (c *BrokerChecker) Name() string { return "broker" }

// Check implements Checker. The mapping follows the client state machine:
// Connected is healthy, Degraded (transport reconnecting) is degraded,
// anything else is unhealthy.
func (c *BrokerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	state := c.transport.State()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]any{"state": state.String()},
	}

	switch state {
	case messaging.Connected:
		result.Status = StatusHealthy
		result.Message = "connected"
	case messaging.Degraded:
		result.Status = StatusDegraded
		result.Message = "connection lost, transport is reconnecting"
	default:
		result.Status = StatusUnhealthy
		result.Message = "not connected"
	}

	result.Duration = time.Since(start)
	return result
}

// Registry aggregates checkers into one overall status.
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker.
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

// Check runs every checker and returns the individual results with the
// worst status observed: any unhealthy wins over degraded, degraded over
// healthy.
func (r *Registry) Check(ctx context.Context) (Status, []CheckResult) {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.RUnlock()

	overall := StatusHealthy
	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		result := c.Check(ctx)
		results = append(results, result)
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}
