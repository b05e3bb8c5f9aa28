package natsbroker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/messaging"
)

// Config is the broker connection configuration, consumed once at Connect.
type Config struct {
	// URL of the NATS server, e.g. nats://localhost:4222.
	URL string

	// Name is the client display name shown in broker monitoring.
	Name string

	// ReconnectWait is the pause between the transport's own reconnect
	// attempts after a lost connection.
	ReconnectWait time.Duration

	// MaxReconnects bounds reconnect attempts; negative means unbounded.
	MaxReconnects int
}

// Transport is the NATS-backed broker transport. All reconnection is owned
// by the nats.go client; this layer only observes lifecycle callbacks and
// exposes them as connection state.
//
// nats.go dispatches each subscription's callback from a dedicated goroutine,
// so deliveries within one subscription are serialized in arrival order,
// which is exactly the messaging.Transport contract.
type Transport struct {
	nc     *nats.Conn
	logger *slog.Logger
	state  atomic.Int32

	drainTimeout time.Duration
	closedCh     chan struct{}
	drainOnce    sync.Once
	drainErr     error
}

// Option configures the transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithDrainTimeout bounds how long Drain waits for in-flight deliveries.
func WithDrainTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.drainTimeout = d
	}
}

// Connect establishes the broker connection. It fails with a
// *contracts.ConnectionError if the server is unreachable; transient
// failures after a successful connect are handled by the nats.go reconnect
// machinery configured through cfg.
func Connect(cfg Config, options ...Option) (*Transport, error) {
	t := &Transport{
		logger:       slog.Default(),
		drainTimeout: 10 * time.Second,
		closedCh:     make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	t.setState(messaging.Connecting)

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.setState(messaging.Degraded)
			t.logger.Warn("broker connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.setState(messaging.Connected)
			t.logger.Info("broker reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			t.setState(messaging.Disconnected)
			close(t.closedCh)
			t.logger.Info("broker connection closed")
		}),
	)
	if err != nil {
		t.setState(messaging.Disconnected)
		return nil, &contracts.ConnectionError{URL: cfg.URL, Err: err}
	}

	t.nc = nc
	t.setState(messaging.Connected)
	t.logger.Info("connected to broker", "url", cfg.URL, "name", cfg.Name)
	return t, nil
}

// Publish implements messaging.Transport.
func (t *Transport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.nc.Publish(subject, data)
}

// Subscribe implements messaging.Transport.
func (t *Transport) Subscribe(pattern, queue string, handler func(messaging.Delivery)) (messaging.Subscription, error) {
	cb := func(m *nats.Msg) {
		handler(&delivery{msg: m})
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = t.nc.Subscribe(pattern, cb)
	} else {
		sub, err = t.nc.QueueSubscribe(pattern, queue, cb)
	}
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

// Request implements messaging.Transport. Correlation runs over a nats.go
// inbox, so a reply arriving after the deadline is dropped by the client,
// never handed to a later caller.
func (t *Transport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := t.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, nats.ErrTimeout) ||
			errors.Is(err, nats.ErrNoResponders) {
			return nil, &contracts.TimeoutError{Subject: subject}
		}
		return nil, err
	}
	return msg.Data, nil
}

// State implements messaging.Transport.
func (t *Transport) State() messaging.ConnState {
	return messaging.ConnState(t.state.Load())
}

// Drain stops new inbound delivery, lets in-flight handlers finish, and
// closes the connection. Safe to call more than once.
func (t *Transport) Drain() error {
	t.drainOnce.Do(func() {
		if t.nc.IsClosed() {
			return
		}
		if err := t.nc.Drain(); err != nil {
			t.drainErr = err
			return
		}
		select {
		case <-t.closedCh:
		case <-time.After(t.drainTimeout):
			t.nc.Close()
			t.drainErr = errors.New("drain timed out, connection force closed")
		}
	})
	return t.drainErr
}

func (t *Transport) setState(s messaging.ConnState) {
	t.state.Store(int32(s))
}

type delivery struct {
	msg *nats.Msg
}

func (d *delivery) Subject() string { return d.msg.Subject }
func (d *delivery) Data() []byte    { return d.msg.Data }

func (d *delivery) Respond(data []byte) error {
	return d.msg.Respond(data)
}

func (d *delivery) CanRespond() bool { return d.msg.Reply != "" }

type subscription struct {
	sub *nats.Subscription
}

func (s *subscription) Subject() string { return s.sub.Subject }
func (s *subscription) Queue() string   { return s.sub.Queue }

func (s *subscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
