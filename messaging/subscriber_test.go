package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kioskly/kioskbus-go/contracts"
)

func TestEnvelopeSubscriber(t *testing.T) {
	capture := func(transport *mockTransport, sub *mockSubscription, pattern, queue string) *func(Delivery) {
		var handler func(Delivery)
		transport.On("Subscribe", pattern, queue, mock.Anything).
			Run(func(args mock.Arguments) {
				handler = args.Get(2).(func(Delivery))
			}).
			Return(sub, nil)
		return &handler
	}

	t.Run("decodes and dispatches matching messages", func(t *testing.T) {
		transport := &mockTransport{}
		sub := &mockSubscription{subject: "kiosk.vision.>"}
		handler := capture(transport, sub, "kiosk.vision.>", "")

		s := NewEnvelopeSubscriber(transport)
		var got *contracts.Envelope
		var gotSubject string
		_, err := s.Subscribe("kiosk.vision.>", EnvelopeHandlerFunc(
			func(ctx context.Context, subject string, env *contracts.Envelope) error {
				gotSubject = subject
				got = env
				return nil
			}))
		require.NoError(t, err)

		env := contracts.NewEvent("person_detected", map[string]any{"confidence": 0.97}, "s1")
		data, err := env.Encode()
		require.NoError(t, err)
		(*handler)(&fakeDelivery{subject: "kiosk.vision.person_detected", data: data})

		require.NotNil(t, got)
		assert.Equal(t, "kiosk.vision.person_detected", gotSubject)
		assert.Equal(t, env, got)
	})

	t.Run("passes the queue group through to the transport", func(t *testing.T) {
		transport := &mockTransport{}
		sub := &mockSubscription{subject: "kiosk.agent.menu.search", queue: "menu-workers"}
		capture(transport, sub, "kiosk.agent.menu.search", "menu-workers")

		s := NewEnvelopeSubscriber(transport)
		_, err := s.Subscribe("kiosk.agent.menu.search",
			EnvelopeHandlerFunc(func(ctx context.Context, subject string, env *contracts.Envelope) error {
				return nil
			}),
			WithQueueGroup("menu-workers"))
		require.NoError(t, err)
		transport.AssertExpectations(t)
	})

	t.Run("rejects invalid patterns", func(t *testing.T) {
		s := NewEnvelopeSubscriber(&mockTransport{})
		_, err := s.Subscribe("kiosk.>.bad", EnvelopeHandlerFunc(
			func(ctx context.Context, subject string, env *contracts.Envelope) error { return nil }))
		var subjErr *contracts.SubjectError
		assert.ErrorAs(t, err, &subjErr)
	})

	t.Run("drops undecodable messages without invoking the handler", func(t *testing.T) {
		transport := &mockTransport{}
		sub := &mockSubscription{subject: "kiosk.vision.>"}
		handler := capture(transport, sub, "kiosk.vision.>", "")

		s := NewEnvelopeSubscriber(transport)
		invoked := 0
		_, err := s.Subscribe("kiosk.vision.>", EnvelopeHandlerFunc(
			func(ctx context.Context, subject string, env *contracts.Envelope) error {
				invoked++
				return nil
			}))
		require.NoError(t, err)

		(*handler)(&fakeDelivery{subject: "kiosk.vision.x", data: []byte("garbage")})
		assert.Equal(t, 0, invoked)

		// the subscription still works for the next valid message
		data, err := contracts.New(map[string]any{"event": "ok"}, "").Encode()
		require.NoError(t, err)
		(*handler)(&fakeDelivery{subject: "kiosk.vision.x", data: data})
		assert.Equal(t, 1, invoked)
	})

	t.Run("handler errors and panics are contained", func(t *testing.T) {
		transport := &mockTransport{}
		sub := &mockSubscription{subject: "kiosk.vision.>"}
		handler := capture(transport, sub, "kiosk.vision.>", "")

		s := NewEnvelopeSubscriber(transport)
		calls := 0
		_, err := s.Subscribe("kiosk.vision.>", EnvelopeHandlerFunc(
			func(ctx context.Context, subject string, env *contracts.Envelope) error {
				calls++
				if calls == 1 {
					panic("first delivery explodes")
				}
				return errors.New("second delivery fails politely")
			}))
		require.NoError(t, err)

		data, err := contracts.New(nil, "").Encode()
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			(*handler)(&fakeDelivery{subject: "kiosk.vision.x", data: data})
			(*handler)(&fakeDelivery{subject: "kiosk.vision.x", data: data})
		})
		assert.Equal(t, 2, calls)
	})

	t.Run("close unsubscribes everything once", func(t *testing.T) {
		transport := &mockTransport{}
		sub := &mockSubscription{subject: "kiosk.vision.>"}
		capture(transport, sub, "kiosk.vision.>", "")
		sub.On("Unsubscribe").Return(nil).Once()

		s := NewEnvelopeSubscriber(transport)
		_, err := s.Subscribe("kiosk.vision.>", EnvelopeHandlerFunc(
			func(ctx context.Context, subject string, env *contracts.Envelope) error { return nil }))
		require.NoError(t, err)

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		sub.AssertExpectations(t)
	})
}
