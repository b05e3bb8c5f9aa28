package messaging

import (
	"context"

	"github.com/kioskly/kioskbus-go/contracts"
)

// ConnState is the observable connection state of a transport. Transitions
// are driven by the transport's own lifecycle callbacks, never by timers in
// this layer.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	// Degraded means the transport lost its connection and is reconnecting
	// on its own; operations attempted now may fail until it recovers.
	Degraded
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Delivery is one inbound message handed to a subscription callback.
type Delivery interface {
	// Subject is the concrete subject the message was published on.
	Subject() string

	// Data is the raw message body.
	Data() []byte

	// Respond sends a reply to the requester, if the delivery carries a
	// reply address. Responding to a request whose caller already timed
	// out is a silent no-op at the broker.
	Respond(data []byte) error

	// CanRespond reports whether the delivery carries a reply address.
	CanRespond() bool
}

// Subscription is an active registration on the transport.
type Subscription interface {
	Subject() string
	Queue() string
	Unsubscribe() error
}

// Transport is the broker-facing surface the messaging layer is built on.
// Implementations must invoke each subscription's callback serially and in
// the order messages arrive from the broker; deliveries across different
// subscriptions may run concurrently.
type Transport interface {
	// Publish sends data on a concrete subject, fire and forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a callback for subjects matching pattern. If
	// queue is non-empty, the broker delivers each message to exactly one
	// member of that queue group.
	Subscribe(pattern, queue string, handler func(Delivery)) (Subscription, error)

	// Request sends data and waits for the single correlated reply. The
	// deadline comes from ctx; implementations return a
	// *contracts.TimeoutError when it expires without a reply and drop
	// any reply arriving later.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// EnsureStream idempotently declares a durable stream capturing the
	// given subjects. An already existing stream is success.
	EnsureStream(ctx context.Context, name string, subjects []string) error

	// State returns the current connection state.
	State() ConnState

	// Drain stops inbound delivery, waits for in-flight handlers, and
	// closes the connection. Idempotent.
	Drain() error
}

// EnvelopeHandler processes one decoded envelope from a subscription.
type EnvelopeHandler interface {
	Handle(ctx context.Context, subject string, env *contracts.Envelope) error
}

// EnvelopeHandlerFunc adapts a function to EnvelopeHandler.
type EnvelopeHandlerFunc func(ctx context.Context, subject string, env *contracts.Envelope) error

// Handle implements EnvelopeHandler.
func (f EnvelopeHandlerFunc) Handle(ctx context.Context, subject string, env *contracts.Envelope) error {
	return f(ctx, subject, env)
}

// RequestHandler computes a response envelope for a decoded request.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error)

// HandleRequest implements RequestHandler.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
	return f(ctx, req)
}

// SubscriptionOptions configures a single subscription.
type SubscriptionOptions struct {
	Queue string
}

// SubscriptionOption configures subscription behavior.
type SubscriptionOption func(*SubscriptionOptions)

// WithQueueGroup places the subscription in a named queue group so the
// broker load-balances matching messages across the group's members.
func WithQueueGroup(name string) SubscriptionOption {
	return func(o *SubscriptionOptions) {
		o.Queue = name
	}
}
