package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/internal/reliability"
)

// EnvelopePublisher publishes envelopes on concrete subjects. Sends are fire
// and forget: at most once from the caller's perspective, with optional
// retry and circuit breaking around transient transport failures.
type EnvelopePublisher struct {
	transport      Transport
	logger         *slog.Logger
	retryPolicy    reliability.RetryPolicy
	circuitBreaker *reliability.CircuitBreaker
}

// PublisherOption configures the EnvelopePublisher.
type PublisherOption func(*EnvelopePublisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *EnvelopePublisher) {
		p.logger = logger
	}
}

// WithPublishRetryPolicy sets the retry policy for transient send failures.
func WithPublishRetryPolicy(policy reliability.RetryPolicy) PublisherOption {
	return func(p *EnvelopePublisher) {
		p.retryPolicy = policy
	}
}

// WithCircuitBreaker protects the transport with a circuit breaker.
func WithCircuitBreaker(cb *reliability.CircuitBreaker) PublisherOption {
	return func(p *EnvelopePublisher) {
		p.circuitBreaker = cb
	}
}

// NewEnvelopePublisher creates a publisher over the given transport.
func NewEnvelopePublisher(transport Transport, options ...PublisherOption) *EnvelopePublisher {
	p := &EnvelopePublisher{
		transport:   transport,
		logger:      slog.Default(),
		retryPolicy: reliability.NewFixedDelay(0, 0),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish encodes and sends an envelope. Subjects must be concrete:
// wildcards are rejected here, they are only meaningful when subscribing.
func (p *EnvelopePublisher) Publish(ctx context.Context, subject string, env *contracts.Envelope) error {
	if env == nil {
		return fmt.Errorf("envelope cannot be nil")
	}
	if err := contracts.ValidateSubject(subject); err != nil {
		return err
	}

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	send := func() error {
		return p.transport.Publish(ctx, subject, data)
	}
	if p.circuitBreaker != nil {
		inner := send
		send = func() error {
			return p.circuitBreaker.Execute(ctx, inner)
		}
	}

	if err := reliability.Retry(ctx, p.retryPolicy, send); err != nil {
		p.logger.Error("publish failed",
			"subject", subject,
			"msgId", env.MsgID,
			"error", err,
		)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published",
		"subject", subject,
		"msgId", env.MsgID,
		"traceId", env.TraceID,
	)
	return nil
}

// PublishEvent builds an event envelope for kiosk.<source>.<event> and
// publishes it. It returns the envelope so the caller keeps the trace ID.
func (p *EnvelopePublisher) PublishEvent(ctx context.Context, source, eventType string, payload map[string]any, sessionID string) (*contracts.Envelope, error) {
	env := contracts.NewEvent(eventType, payload, sessionID)
	if err := p.Publish(ctx, contracts.EventSubject(source, eventType), env); err != nil {
		return nil, err
	}
	return env, nil
}
