package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kioskly/kioskbus-go/contracts"
)

func TestRequester(t *testing.T) {
	t.Run("returns the decoded reply", func(t *testing.T) {
		transport := &mockTransport{}
		req := contracts.NewRequest("search", map[string]any{"query": "burger"}, "s1")
		reply := contracts.NewResponse("success", map[string]any{"total_matches": 0.0}, req)
		replyData, err := reply.Encode()
		require.NoError(t, err)

		transport.On("Request", mock.Anything, "kiosk.agent.menu.search", mock.Anything).
			Return(replyData, nil)

		r := NewRequester(transport)
		got, err := r.Request(context.Background(), "kiosk.agent.menu.search", req, time.Second)
		require.NoError(t, err)
		assert.Equal(t, reply, got)
	})

	t.Run("maps transport timeout to TimeoutError with the configured duration", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Request", mock.Anything, "kiosk.agent.menu.search", mock.Anything).
			Return(nil, &contracts.TimeoutError{Subject: "kiosk.agent.menu.search"})

		r := NewRequester(transport)
		_, err := r.Request(context.Background(), "kiosk.agent.menu.search",
			contracts.NewRequest("search", nil, ""), 250*time.Millisecond)

		var timeoutErr *contracts.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, 250*time.Millisecond, timeoutErr.Timeout)
	})

	t.Run("maps context deadline to TimeoutError", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Request", mock.Anything, "kiosk.agent.menu.search", mock.Anything).
			Return(nil, context.DeadlineExceeded)

		r := NewRequester(transport)
		_, err := r.Request(context.Background(), "kiosk.agent.menu.search",
			contracts.NewRequest("search", nil, ""), time.Millisecond)

		var timeoutErr *contracts.TimeoutError
		assert.ErrorAs(t, err, &timeoutErr)
	})

	t.Run("fails with DecodeError on a malformed reply", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("Request", mock.Anything, "kiosk.agent.menu.search", mock.Anything).
			Return([]byte("not an envelope"), nil)

		r := NewRequester(transport)
		_, err := r.Request(context.Background(), "kiosk.agent.menu.search",
			contracts.NewRequest("search", nil, ""), time.Second)

		var decErr *contracts.DecodeError
		assert.ErrorAs(t, err, &decErr)
	})

	t.Run("rejects wildcard subjects", func(t *testing.T) {
		r := NewRequester(&mockTransport{})
		_, err := r.Request(context.Background(), "kiosk.agent.>",
			contracts.NewRequest("search", nil, ""), time.Second)
		var subjErr *contracts.SubjectError
		assert.ErrorAs(t, err, &subjErr)
	})
}

func TestReplyService(t *testing.T) {
	capture := func(transport *mockTransport, pattern, queue string) *func(Delivery) {
		var handler func(Delivery)
		transport.On("Subscribe", pattern, queue, mock.Anything).
			Run(func(args mock.Arguments) {
				handler = args.Get(2).(func(Delivery))
			}).
			Return(&mockSubscription{subject: pattern, queue: queue}, nil)
		return &handler
	}

	t.Run("answers with the handler's response", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.menu.search", "")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				return contracts.NewResponse("success", map[string]any{"total_matches": 1.0}, req), nil
			}))
		require.NoError(t, err)

		req := contracts.NewRequest("search", map[string]any{"query": "burger"}, "session-7")
		data, err := req.Encode()
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.menu.search", data: data}
		(*serve)(d)

		reply, err := contracts.Decode(d.lastReply())
		require.NoError(t, err)
		assert.Equal(t, "success", reply.Status())
		assert.Equal(t, req.TraceID, reply.TraceID)
		assert.Equal(t, "session-7", reply.SessionID)
	})

	t.Run("handler error becomes a synthesized error response", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.menu.search", "")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				return nil, errors.New("menu database unavailable")
			}))
		require.NoError(t, err)

		req := contracts.NewRequest("search", nil, "session-7")
		data, err := req.Encode()
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.menu.search", data: data}
		(*serve)(d)

		reply, err := contracts.Decode(d.lastReply())
		require.NoError(t, err)
		assert.Equal(t, "error", reply.Status())
		assert.Equal(t, contracts.ErrCodeHandler, reply.Payload["error_code"])
		assert.Contains(t, reply.Payload["error_message"], "menu database unavailable")
		assert.Equal(t, req.TraceID, reply.TraceID)
		assert.Equal(t, req.SessionID, reply.SessionID)
	})

	t.Run("handler panic becomes a synthesized error response", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.recsys.suggest", "")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.recsys.suggest", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				panic("model blew up")
			}))
		require.NoError(t, err)

		req := contracts.NewRequest("suggest", nil, "")
		data, err := req.Encode()
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.recsys.suggest", data: data}
		assert.NotPanics(t, func() { (*serve)(d) })

		reply, err := contracts.Decode(d.lastReply())
		require.NoError(t, err)
		assert.Equal(t, "error", reply.Status())
		assert.Equal(t, req.TraceID, reply.TraceID)
	})

	t.Run("nil handler response becomes an error response", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.menu.search", "")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				return nil, nil
			}))
		require.NoError(t, err)

		req := contracts.NewRequest("search", nil, "")
		data, err := req.Encode()
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.menu.search", data: data}
		(*serve)(d)

		reply, err := contracts.Decode(d.lastReply())
		require.NoError(t, err)
		assert.Equal(t, "error", reply.Status())
	})

	t.Run("response with lost correlation is rebuilt with the request ids", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.menu.search", "")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				// handler builds a response from scratch, dropping correlation
				return contracts.New(map[string]any{"status": "success"}, "other-session"), nil
			}))
		require.NoError(t, err)

		req := contracts.NewRequest("search", nil, "session-1")
		data, err := req.Encode()
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.menu.search", data: data}
		(*serve)(d)

		reply, err := contracts.Decode(d.lastReply())
		require.NoError(t, err)
		assert.Equal(t, req.TraceID, reply.TraceID)
		assert.Equal(t, "session-1", reply.SessionID)
	})

	t.Run("undecodable request is dropped without a reply", func(t *testing.T) {
		transport := &mockTransport{}
		serve := capture(transport, "kiosk.agent.menu.search", "")

		s := NewReplyService(transport)
		invoked := false
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				invoked = true
				return contracts.NewResponse("success", nil, req), nil
			}))
		require.NoError(t, err)

		d := &fakeDelivery{subject: "kiosk.agent.menu.search", data: []byte("junk")}
		(*serve)(d)

		assert.False(t, invoked)
		assert.Nil(t, d.lastReply())
	})

	t.Run("queue group reaches the transport", func(t *testing.T) {
		transport := &mockTransport{}
		capture(transport, "kiosk.agent.menu.search", "menu-workers")

		s := NewReplyService(transport)
		_, err := s.Register("kiosk.agent.menu.search", RequestHandlerFunc(
			func(ctx context.Context, req *contracts.Envelope) (*contracts.Envelope, error) {
				return contracts.NewResponse("success", nil, req), nil
			}),
			WithQueueGroup("menu-workers"))
		require.NoError(t, err)
		transport.AssertExpectations(t)
	})
}
