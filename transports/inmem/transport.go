package inmem

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kioskly/kioskbus-go/contracts"
	"github.com/kioskly/kioskbus-go/messaging"
)

// ErrClosed is returned for operations on a drained transport.
var ErrClosed = errors.New("inmem transport is closed")

// Transport is an in-process implementation of messaging.Transport with the
// same observable semantics as the NATS transport: wildcard subject
// matching, fan-out to plain subscriptions, delivery to exactly one member
// per queue group, inbox-correlated request/reply with late replies dropped,
// and serialized in-order dispatch per subscription.
//
// Queue-group members are chosen round-robin; the broker contract only
// promises "one member per message", so callers must not rely on the choice.
type Transport struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    []*subscription
	rr      map[string]int
	pending map[string]chan []byte
	streams map[string][]string
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures the transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New creates a connected in-process transport.
func New(options ...Option) *Transport {
	t := &Transport{
		logger:  slog.Default(),
		rr:      make(map[string]int),
		pending: make(map[string]chan []byte),
		streams: make(map[string][]string),
		done:    make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Publish implements messaging.Transport.
func (t *Transport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.route(subject, data, nil)
}

// Subscribe implements messaging.Transport. Each subscription gets its own
// dispatch goroutine fed from an ordered channel, so deliveries to one
// handler registration never run concurrently with each other.
func (t *Transport) Subscribe(pattern, queue string, handler func(messaging.Delivery)) (messaging.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		transport: t,
		pattern:   pattern,
		queue:     queue,
		handler:   handler,
		ch:        make(chan messaging.Delivery, 256),
	}
	t.subs = append(t.subs, sub)

	t.wg.Add(1)
	go sub.run()

	return sub, nil
}

// Request implements messaging.Transport.
func (t *Transport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	inbox := uuid.New().String()
	replyCh := make(chan []byte, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &contracts.ConnectionError{Err: ErrClosed}
	}
	t.pending[inbox] = replyCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, inbox)
		t.mu.Unlock()
	}()

	respond := func(reply []byte) error {
		t.mu.Lock()
		ch, ok := t.pending[inbox]
		t.mu.Unlock()
		if !ok {
			// Requester gave up; the reply is dropped, never
			// handed to a different caller.
			return nil
		}
		select {
		case ch <- reply:
		default:
		}
		return nil
	}

	if err := t.route(subject, data, respond); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, &contracts.TimeoutError{Subject: subject}
	case <-t.done:
		return nil, &contracts.ConnectionError{Err: ErrClosed}
	}
}

// EnsureStream implements messaging.Transport. Streams are a name to subject
// table here; redeclaring an existing name is success.
func (t *Transport) EnsureStream(_ context.Context, name string, subjects []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &contracts.StreamProvisionError{Stream: name, Err: ErrClosed}
	}
	if _, ok := t.streams[name]; ok {
		return nil
	}
	t.streams[name] = append([]string(nil), subjects...)
	return nil
}

// StreamSubjects returns the subjects captured by a declared stream, for
// consumers that want to inspect provisioning in tests.
func (t *Transport) StreamSubjects(name string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subjects, ok := t.streams[name]
	return subjects, ok
}

// State implements messaging.Transport.
func (t *Transport) State() messaging.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return messaging.Disconnected
	}
	return messaging.Connected
}

// Drain stops inbound delivery, waits for in-flight handlers, and fails all
// outstanding requests with a connection-closed error. Idempotent.
func (t *Transport) Drain() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	close(t.done)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	t.wg.Wait()
	return nil
}

// route matches a subject against all subscriptions: every plain
// subscription receives the message, and each queue group with at least one
// matching member receives it on exactly one member.
func (t *Transport) route(subject string, data []byte, respond func([]byte) error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &contracts.ConnectionError{Err: ErrClosed}
	}

	var targets []*subscription
	groups := make(map[string][]*subscription)
	for _, sub := range t.subs {
		if !contracts.MatchSubject(sub.pattern, subject) {
			continue
		}
		if sub.queue == "" {
			targets = append(targets, sub)
		} else {
			groups[sub.queue] = append(groups[sub.queue], sub)
		}
	}
	for queue, members := range groups {
		winner := members[t.rr[queue]%len(members)]
		t.rr[queue]++
		targets = append(targets, winner)
	}
	t.mu.Unlock()

	d := &delivery{subject: subject, data: data, respond: respond}
	for _, sub := range targets {
		sub.enqueue(d)
	}
	return nil
}

type subscription struct {
	transport *Transport
	pattern   string
	queue     string
	handler   func(messaging.Delivery)

	mu     sync.Mutex
	ch     chan messaging.Delivery
	closed bool
}

func (s *subscription) Subject() string { return s.pattern }
func (s *subscription) Queue() string   { return s.queue }

// Unsubscribe removes the subscription; queued deliveries are still drained
// by the dispatch goroutine before it exits.
func (s *subscription) Unsubscribe() error {
	t := s.transport
	t.mu.Lock()
	for i, sub := range t.subs {
		if sub == s {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	s.close()
	return nil
}

func (s *subscription) run() {
	defer s.transport.wg.Done()
	for d := range s.ch {
		s.handler(d)
	}
}

func (s *subscription) enqueue(d messaging.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- d:
	default:
		s.transport.logger.Warn("slow consumer, dropping delivery",
			"pattern", s.pattern,
			"queue", s.queue,
			"subject", d.Subject(),
		)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type delivery struct {
	subject string
	data    []byte
	respond func([]byte) error
}

func (d *delivery) Subject() string { return d.subject }
func (d *delivery) Data() []byte    { return d.data }

func (d *delivery) Respond(data []byte) error {
	if d.respond == nil {
		return errors.New("delivery has no reply address")
	}
	return d.respond(data)
}

func (d *delivery) CanRespond() bool { return d.respond != nil }
