package health_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioskly/kioskbus-go/health"
	"github.com/kioskly/kioskbus-go/messaging"
	"github.com/kioskly/kioskbus-go/transports/inmem"
)

type staticChecker struct {
	name   string
	status health.Status
}

func (c staticChecker) Name() string { return c.name }

func (c staticChecker) Check(ctx context.Context) health.CheckResult {
	return health.CheckResult{Name: c.name, Status: c.status}
}

func TestBrokerChecker(t *testing.T) {
	t.Run("connected transport is healthy", func(t *testing.T) {
		tr := inmem.New()
		defer tr.Drain()

		result := health.NewBrokerChecker(tr).Check(context.Background())
		assert.Equal(t, health.StatusHealthy, result.Status)
		assert.Equal(t, "broker", result.Name)
		assert.Equal(t, messaging.Connected.String(), result.Details["state"])
	})

	t.Run("drained transport is unhealthy", func(t *testing.T) {
		tr := inmem.New()
		require.NoError(t, tr.Drain())

		result := health.NewBrokerChecker(tr).Check(context.Background())
		assert.Equal(t, health.StatusUnhealthy, result.Status)
	})
}

func TestRegistryOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []health.Status
		want     health.Status
	}{
		{"empty registry is healthy", nil, health.StatusHealthy},
		{"all healthy", []health.Status{health.StatusHealthy, health.StatusHealthy}, health.StatusHealthy},
		{"degraded wins over healthy", []health.Status{health.StatusHealthy, health.StatusDegraded}, health.StatusDegraded},
		{"unhealthy wins over degraded", []health.Status{health.StatusDegraded, health.StatusUnhealthy, health.StatusHealthy}, health.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := health.NewRegistry()
			for i, status := range tt.statuses {
				r.Register(staticChecker{name: string(rune('a' + i)), status: status})
			}

			overall, results := r.Check(context.Background())
			assert.Equal(t, tt.want, overall)
			assert.Len(t, results, len(tt.statuses))
		})
	}
}
