package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := NewHealthy("bus", "connected")
		assert.True(t, s.Healthy)
		assert.True(t, s.IsHealthy())
		assert.False(t, s.IsDegraded())
		assert.Equal(t, StateHealthy, s.Status)
		assert.Equal(t, "bus", s.Component)
		assert.False(t, s.Timestamp.IsZero())
	})

	t.Run("degraded", func(t *testing.T) {
		s := NewDegraded("store", "bucket rebind in progress")
		assert.False(t, s.Healthy)
		assert.True(t, s.IsDegraded())
		assert.Equal(t, StateDegraded, s.Status)
	})

	t.Run("unhealthy", func(t *testing.T) {
		s := NewUnhealthy("gateway", "listener closed")
		assert.False(t, s.Healthy)
		assert.False(t, s.IsHealthy())
		assert.Equal(t, StateUnhealthy, s.Status)
	})
}

func TestWithDetails(t *testing.T) {
	details := map[string]any{"rtt_ms": 3}
	s := NewHealthy("bus", "connected").WithDetails(details)
	assert.Equal(t, details, s.Details)

	// Original constructors leave details empty.
	assert.Nil(t, NewHealthy("bus", "connected").Details)
}

func TestFromComponent(t *testing.T) {
	t.Run("running component is healthy with details", func(t *testing.T) {
		report := map[string]any{"connected": true}
		s := FromComponent("bus", true, report)
		assert.True(t, s.IsHealthy())
		assert.Equal(t, report, s.Details)
	})

	t.Run("stopped component is unhealthy", func(t *testing.T) {
		s := FromComponent("bus", false, nil)
		assert.Equal(t, StateUnhealthy, s.Status)
		assert.False(t, s.Healthy)
	})
}
