package deduplication

import (
	"context"
	"fmt"
	"time"

	"otprelay/internal/config"
	"otprelay/pkg/circuitbreaker"
)

// CircuitBreakerCache fails fast once the wrapped cache keeps erroring.
type CircuitBreakerCache struct {
	cache Cache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerCache(cache Cache, cfg config.CircuitBreakerConfig) *CircuitBreakerCache {
	if !cfg.Enabled {
		return &CircuitBreakerCache{cache: cache}
	}

	return &CircuitBreakerCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(circuitbreaker.FromConfig("redis-dedup", cfg)),
	}
}

func (c *CircuitBreakerCache) WasRecentlyPosted(ctx context.Context, key string) (bool, error) {
	var recent bool
	err := c.do(ctx, func() error {
		var err error
		recent, err = c.cache.WasRecentlyPosted(ctx, key)
		return err
	})
	return recent, err
}

func (c *CircuitBreakerCache) MarkPosted(ctx context.Context, key string, now time.Time) error {
	return c.do(ctx, func() error {
		return c.cache.MarkPosted(ctx, key, now)
	})
}

func (c *CircuitBreakerCache) Remove(ctx context.Context, key string) error {
	return c.do(ctx, func() error {
		return c.cache.Remove(ctx, key)
	})
}

func (c *CircuitBreakerCache) Claim(ctx context.Context, key string, now time.Time) (bool, error) {
	var claimed bool
	err := c.do(ctx, func() error {
		var err error
		claimed, err = c.cache.Claim(ctx, key, now)
		return err
	})
	return claimed, err
}

func (c *CircuitBreakerCache) Size(ctx context.Context) (int, error) {
	var size int
	err := c.do(ctx, func() error {
		var err error
		size, err = c.cache.Size(ctx)
		return err
	})
	return size, err
}

func (c *CircuitBreakerCache) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}

func (c *CircuitBreakerCache) IsOpen() bool {
	if c.cb == nil {
		return false
	}
	return c.cb.IsOpen()
}

func (c *CircuitBreakerCache) do(ctx context.Context, fn func() error) error {
	if c.cb == nil {
		return fn()
	}

	err := c.cb.Do(ctx, fn)
	if err != nil && c.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
	}
	return err
}
