package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/config"
)

func TestWrapper_OpensAfterFailures(t *testing.T) {
	w := NewWrapper(FromConfig("test-open", config.CircuitBreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2}))
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := w.Do(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())
	err := w.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapper_CancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := w.Do(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFromConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	cfg := FromConfig("defaults", config.CircuitBreakerConfig{})
	def := DefaultConfig("defaults")
	assert.Equal(t, def.MaxRequests, cfg.MaxRequests)
	assert.Equal(t, def.Interval, cfg.Interval)
	assert.Equal(t, def.Timeout, cfg.Timeout)
}
