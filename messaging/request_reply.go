package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kioskly/kioskbus-go/contracts"
)

// Requester issues point-to-point requests and waits for the single
// correlated reply. Correlation is the transport's inbox mechanism, not the
// envelope trace ID; concurrent requests from one client resolve
// independently and may complete out of order.
type Requester struct {
	transport Transport
	logger    *slog.Logger
}

// RequesterOption configures the Requester.
type RequesterOption func(*Requester)

// WithRequesterLogger sets the logger.
func WithRequesterLogger(logger *slog.Logger) RequesterOption {
	return func(r *Requester) {
		r.logger = logger
	}
}

// NewRequester creates a requester over the given transport.
func NewRequester(transport Transport, options ...RequesterOption) *Requester {
	r := &Requester{
		transport: transport,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Request sends an envelope and blocks the calling goroutine until the reply
// arrives or timeout elapses. It fails with *contracts.TimeoutError when no
// reply arrives in time and with *contracts.DecodeError when the reply is
// malformed. A reply arriving after the timeout is dropped, never delivered.
func (r *Requester) Request(ctx context.Context, subject string, env *contracts.Envelope, timeout time.Duration) (*contracts.Envelope, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}
	if err := contracts.ValidateSubject(subject); err != nil {
		return nil, err
	}

	data, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Debug("request", "subject", subject, "command", env.Command(), "traceId", env.TraceID)

	replyData, err := r.transport.Request(reqCtx, subject, data)
	if err != nil {
		var timeoutErr *contracts.TimeoutError
		if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &contracts.TimeoutError{Subject: subject, Timeout: timeout}
		}
		return nil, fmt.Errorf("request on %s failed: %w", subject, err)
	}

	reply, err := contracts.Decode(replyData)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("reply", "subject", subject, "status", reply.Status(), "traceId", reply.TraceID)
	return reply, nil
}

// ReplyService registers reply handlers: callbacks that turn a decoded
// request envelope into a response envelope sent back to the requester. A
// handler failure or panic is answered with a synthesized error response
// carrying the request's session and trace IDs, so the requester never has
// to time out on a handler bug.
type ReplyService struct {
	transport Transport
	logger    *slog.Logger

	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// ReplyServiceOption configures the ReplyService.
type ReplyServiceOption func(*ReplyService)

// WithReplyLogger sets the logger.
func WithReplyLogger(logger *slog.Logger) ReplyServiceOption {
	return func(s *ReplyService) {
		s.logger = logger
	}
}

// NewReplyService creates a reply service over the given transport.
func NewReplyService(transport Transport, options ...ReplyServiceOption) *ReplyService {
	s := &ReplyService{
		transport: transport,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Register installs a handler answering requests on subjects matching
// pattern. Queue-group semantics match Subscribe: with WithQueueGroup each
// request reaches exactly one member of the group.
func (s *ReplyService) Register(pattern string, handler RequestHandler, options ...SubscriptionOption) (Subscription, error) {
	if err := contracts.ValidatePattern(pattern); err != nil {
		return nil, err
	}

	opts := SubscriptionOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	sub, err := s.transport.Subscribe(pattern, opts.Queue, func(d Delivery) {
		s.serve(d, handler)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.logger.Info("reply handler registered", "pattern", pattern, "queue", opts.Queue)
	return sub, nil
}

func (s *ReplyService) serve(d Delivery, handler RequestHandler) {
	req, err := contracts.Decode(d.Data())
	if err != nil {
		// No envelope means no session or trace to answer with.
		s.logger.Warn("dropping undecodable request",
			"subject", d.Subject(),
			"error", err,
		)
		return
	}

	resp, err := s.invoke(d.Subject(), handler, req)
	if err != nil {
		s.logger.Error("request handler failed",
			"subject", d.Subject(),
			"msgId", req.MsgID,
			"traceId", req.TraceID,
			"error", err,
		)
		resp = contracts.NewErrorResponse(req, contracts.ErrCodeHandler, err.Error())
	} else if resp.TraceID != req.TraceID || resp.SessionID != req.SessionID {
		// A response must answer with the request's correlation IDs.
		s.logger.Warn("handler response lost correlation, rebuilding",
			"subject", d.Subject(),
			"traceId", req.TraceID,
		)
		resp = contracts.New(resp.Payload, req.SessionID, contracts.WithTraceID(req.TraceID))
	}

	data, err := resp.Encode()
	if err != nil {
		s.logger.Error("failed to encode response", "subject", d.Subject(), "error", err)
		return
	}
	if err := d.Respond(data); err != nil {
		s.logger.Error("failed to send response",
			"subject", d.Subject(),
			"traceId", req.TraceID,
			"error", err,
		)
	}
}

// invoke runs the handler, converting a panic or a nil response into an
// error so serve always has something to answer with.
func (s *ReplyService) invoke(subject string, handler RequestHandler, req *contracts.Envelope) (resp *contracts.Envelope, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = &contracts.HandlerError{Subject: subject, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	resp, err = handler.HandleRequest(context.Background(), req)
	if err != nil {
		return nil, &contracts.HandlerError{Subject: subject, Err: err}
	}
	if resp == nil {
		return nil, &contracts.HandlerError{Subject: subject, Err: errors.New("handler returned nil response")}
	}
	return resp, nil
}

// Close tears down all reply handler registrations. Idempotent.
func (s *ReplyService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	return firstErr
}
