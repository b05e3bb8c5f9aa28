package kioskbus

import (
	"log/slog"
	"time"

	"github.com/kioskly/kioskbus-go/interceptors"
	"github.com/kioskly/kioskbus-go/internal/reliability"
)

type clientConfig struct {
	logger         *slog.Logger
	retryPolicy    reliability.RetryPolicy
	circuitBreaker *reliability.CircuitBreaker
	interceptors   []interceptors.Interceptor
}

func newClientConfig(options []ClientOption) *clientConfig {
	c := &clientConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by every component of the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithPublishRetryPolicy retries transient publish failures under the given
// policy. The default publishes exactly once.
func WithPublishRetryPolicy(policy reliability.RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.retryPolicy = policy
	}
}

// WithPublishBackoff is shorthand for an exponential backoff publish retry
// policy with jitter.
func WithPublishBackoff(maxRetries int) ClientOption {
	return WithPublishRetryPolicy(reliability.NewExponentialBackoff(
		100*time.Millisecond,
		2*time.Second,
		2.0,
		maxRetries,
	))
}

// WithCircuitBreaker protects the publish path with a circuit breaker.
func WithCircuitBreaker(cb *reliability.CircuitBreaker) ClientOption {
	return func(c *clientConfig) {
		c.circuitBreaker = cb
	}
}

// WithInterceptors appends interceptors to the subscriber's dispatch chain.
func WithInterceptors(ics ...interceptors.Interceptor) ClientOption {
	return func(c *clientConfig) {
		c.interceptors = append(c.interceptors, ics...)
	}
}
