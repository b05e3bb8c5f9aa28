package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker(t *testing.T) {
	failing := func() error { return errors.New("boom") }
	succeeding := func() error { return nil }

	t.Run("starts closed and passes calls through", func(t *testing.T) {
		cb := NewCircuitBreaker()
		assert.Equal(t, StateClosed, cb.State())
		assert.NoError(t, cb.Execute(context.Background(), succeeding))
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(3), WithName("pub"))
		for i := 0; i < 3; i++ {
			require.Error(t, cb.Execute(context.Background(), failing))
		}
		assert.Equal(t, StateOpen, cb.State())

		err := cb.Execute(context.Background(), succeeding)
		var openErr *CircuitOpenError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, "pub", openErr.Name)
	})

	t.Run("success resets the failure run", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(3))
		require.Error(t, cb.Execute(context.Background(), failing))
		require.Error(t, cb.Execute(context.Background(), failing))
		require.NoError(t, cb.Execute(context.Background(), succeeding))
		require.Error(t, cb.Execute(context.Background(), failing))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("half-opens after cooldown and closes on successes", func(t *testing.T) {
		cb := NewCircuitBreaker(
			WithFailureThreshold(1),
			WithSuccessThreshold(2),
			WithCooldown(10*time.Millisecond),
		)
		require.Error(t, cb.Execute(context.Background(), failing))
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(15 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		require.NoError(t, cb.Execute(context.Background(), succeeding))
		require.NoError(t, cb.Execute(context.Background(), succeeding))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure in half-open reopens immediately", func(t *testing.T) {
		cb := NewCircuitBreaker(WithFailureThreshold(1), WithCooldown(5*time.Millisecond))
		require.Error(t, cb.Execute(context.Background(), failing))
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, StateHalfOpen, cb.State())

		require.Error(t, cb.Execute(context.Background(), failing))
		assert.Equal(t, StateOpen, cb.State())
	})
}
