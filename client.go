package kioskbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/messaging"
	"github.com/kioskly/kioskbus-go/transports/natsbroker"
)

// Config is the broker connection configuration, consumed once at Connect
// and immutable afterwards.
type Config struct {
	// URL of the broker, e.g. nats://localhost:4222.
	URL string

	// Name is the client display name reported to the broker.
	Name string

	// ReconnectWait is the pause between transport reconnect attempts.
	ReconnectWait time.Duration

	// MaxReconnects bounds transport reconnect attempts; negative means
	// unbounded.
	MaxReconnects int
}

// DefaultConfig returns the local development configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "kiosk-client",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client is the messaging client every kiosk component talks through. One
// client owns one broker connection and the subscriptions registered on it;
// clients are not shared across components.
//
// Lifecycle: Connect, operations, Disconnect. There is no ambient global
// connection; the caller owns the client.
type Client struct {
	transport  messaging.Transport
	publisher  *messaging.EnvelopePublisher
	subscriber *messaging.EnvelopeSubscriber
	requester  *messaging.Requester
	replies    *messaging.ReplyService
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect establishes a broker connection and returns a ready client. It
// fails with a *contracts.ConnectionError when the broker is unreachable;
// transient connectivity after that point is handled by the transport's own
// reconnect policy, configured through cfg.
func Connect(cfg Config, options ...ClientOption) (*Client, error) {
	c := newClientConfig(options)

	transport, err := natsbroker.Connect(natsbroker.Config{
		URL:           cfg.URL,
		Name:          cfg.Name,
		ReconnectWait: cfg.ReconnectWait,
		MaxReconnects: cfg.MaxReconnects,
	}, natsbroker.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	return newClient(transport, c), nil
}

// NewClient builds a client over an existing transport. Use this with the
// inmem transport in tests, or to supply a custom-configured broker
// transport.
func NewClient(transport messaging.Transport, options ...ClientOption) *Client {
	return newClient(transport, newClientConfig(options))
}

func newClient(transport messaging.Transport, c *clientConfig) *Client {
	pubOpts := []messaging.PublisherOption{messaging.WithPublisherLogger(c.logger)}
	if c.retryPolicy != nil {
		pubOpts = append(pubOpts, messaging.WithPublishRetryPolicy(c.retryPolicy))
	}
	if c.circuitBreaker != nil {
		pubOpts = append(pubOpts, messaging.WithCircuitBreaker(c.circuitBreaker))
	}

	subOpts := []messaging.SubscriberOption{messaging.WithSubscriberLogger(c.logger)}
	if len(c.interceptors) > 0 {
		subOpts = append(subOpts, messaging.WithInterceptors(c.interceptors...))
	}

	return &Client{
		transport:  transport,
		publisher:  messaging.NewEnvelopePublisher(transport, pubOpts...),
		subscriber: messaging.NewEnvelopeSubscriber(transport, subOpts...),
		requester:  messaging.NewRequester(transport, messaging.WithRequesterLogger(c.logger)),
		replies:    messaging.NewReplyService(transport, messaging.WithReplyLogger(c.logger)),
		logger:     c.logger,
	}
}

// Publish sends an envelope on a concrete subject, fire and forget.
func (c *Client) Publish(ctx context.Context, subject string, env *contracts.Envelope) error {
	return c.publisher.Publish(ctx, subject, env)
}

// PublishEvent builds and publishes an event envelope on
// kiosk.<source>.<event>, returning the envelope so the caller keeps the
// trace ID.
func (c *Client) PublishEvent(ctx context.Context, source, eventType string, payload map[string]any, sessionID string) (*contracts.Envelope, error) {
	return c.publisher.PublishEvent(ctx, source, eventType, payload, sessionID)
}

// Subscribe registers a handler for subjects matching pattern. Use
// messaging.WithQueueGroup to load-balance identical instances.
func (c *Client) Subscribe(pattern string, handler messaging.EnvelopeHandler, options ...messaging.SubscriptionOption) (messaging.Subscription, error) {
	return c.subscriber.Subscribe(pattern, handler, options...)
}

// Request sends an envelope and waits for its correlated reply. The calling
// goroutine blocks; the client keeps servicing subscriptions and other
// requests meanwhile.
func (c *Client) Request(ctx context.Context, subject string, env *contracts.Envelope, timeout time.Duration) (*contracts.Envelope, error) {
	return c.requester.Request(ctx, subject, env, timeout)
}

// ReplyHandler registers a callback that answers requests on subjects
// matching pattern. A failing handler is answered with a synthesized error
// response instead of leaving the requester to time out.
func (c *Client) ReplyHandler(pattern string, handler messaging.RequestHandler, options ...messaging.SubscriptionOption) (messaging.Subscription, error) {
	return c.replies.Register(pattern, handler, options...)
}

// EnsureStream idempotently declares a durable stream capturing the given
// subjects.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	return c.transport.EnsureStream(ctx, name, subjects)
}

// State reports the connection state as observed from transport callbacks.
func (c *Client) State() messaging.ConnState {
	return c.transport.State()
}

// Transport exposes the underlying transport.
func (c *Client) Transport() messaging.Transport {
	return c.transport
}

// Disconnect drains in-flight deliveries, releases all subscriptions, and
// closes the connection. Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var firstErr error
	if err := c.subscriber.Close(); err != nil {
		firstErr = err
	}
	if err := c.replies.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.transport.Drain(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.logger.Info("disconnected")
	return firstErr
}
