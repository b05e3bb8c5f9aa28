package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/interceptors"
)

// EnvelopeSubscriber manages plain subscriptions: it decodes inbound bytes
// into envelopes and dispatches them through an interceptor chain.
//
// Failure isolation: an undecodable message is logged and dropped, and a
// failing or panicking handler is logged; neither terminates the
// subscription. Deliveries within one subscription run serialized in arrival
// order (a transport guarantee); different subscriptions run independently.
type EnvelopeSubscriber struct {
	transport Transport
	logger    *slog.Logger
	chain     *interceptors.Chain

	mu     sync.Mutex
	subs   []Subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// SubscriberOption configures the EnvelopeSubscriber.
type SubscriberOption func(*EnvelopeSubscriber)

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *EnvelopeSubscriber) {
		s.logger = logger
	}
}

// WithInterceptors appends interceptors to the dispatch chain, after the
// always-installed recovery interceptor.
func WithInterceptors(ics ...interceptors.Interceptor) SubscriberOption {
	return func(s *EnvelopeSubscriber) {
		for _, ic := range ics {
			s.chain.Add(ic)
		}
	}
}

// NewEnvelopeSubscriber creates a subscriber over the given transport.
func NewEnvelopeSubscriber(transport Transport, options ...SubscriberOption) *EnvelopeSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &EnvelopeSubscriber{
		transport: transport,
		logger:    slog.Default(),
		chain:     interceptors.NewChain(interceptors.NewRecoveryInterceptor()),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Subscribe registers a handler for subjects matching pattern. Use
// WithQueueGroup to load-balance the subscription across identical
// instances; without it, every subscriber receives every matching message.
func (s *EnvelopeSubscriber) Subscribe(pattern string, handler EnvelopeHandler, options ...SubscriptionOption) (Subscription, error) {
	if err := contracts.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	opts := SubscriptionOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	sub, err := s.transport.Subscribe(pattern, opts.Queue, func(d Delivery) {
		s.dispatch(d, handler)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.logger.Info("subscribed", "pattern", pattern, "queue", opts.Queue)
	return sub, nil
}

func (s *EnvelopeSubscriber) dispatch(d Delivery, handler EnvelopeHandler) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	env, err := contracts.Decode(d.Data())
	if err != nil {
		s.logger.Warn("dropping undecodable message",
			"subject", d.Subject(),
			"error", err,
		)
		return
	}

	final := interceptors.HandlerFunc(func(ctx context.Context, subject string, env *contracts.Envelope) error {
		return handler.Handle(ctx, subject, env)
	})
	if err := s.chain.Execute(s.ctx, d.Subject(), env, final); err != nil {
		s.logger.Error("handler failed",
			"subject", d.Subject(),
			"msgId", env.MsgID,
			"traceId", env.TraceID,
			"error", err,
		)
	}
}

// Close tears down all subscriptions and stops dispatching. Idempotent.
func (s *EnvelopeSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	return firstErr
}
