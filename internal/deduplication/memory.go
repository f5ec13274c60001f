package deduplication

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCache keeps claims in process. Entries older than twice the window are
// swept on every read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	window  time.Duration
	clock   Clock
}

func NewMemoryCache(window time.Duration, clock Clock) *MemoryCache {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]time.Time),
		window:  window,
		clock:   clock,
	}
}

func (c *MemoryCache) WasRecentlyPosted(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.sweepLocked(now)
	return c.recentLocked(key, now), nil
}

func (c *MemoryCache) MarkPosted(_ context.Context, key string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = now
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Claim(_ context.Context, key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(now)
	if c.recentLocked(key, now) {
		return false, nil
	}
	c.entries[key] = now
	return true, nil
}

func (c *MemoryCache) Size(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), nil
}

// Snapshot returns the live entries ordered by insertion time.
func (c *MemoryCache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	out := make([]Entry, 0, len(c.entries))
	for k, at := range c.entries {
		if now.Sub(at) < c.window {
			out = append(out, Entry{Key: k, InsertedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InsertedAt.Before(out[j].InsertedAt)
	})
	return out
}

// Restore loads entries that are still inside the window. Existing claims win.
func (c *MemoryCache) Restore(entries []Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	restored := 0
	for _, e := range entries {
		if now.Sub(e.InsertedAt) >= c.window {
			continue
		}
		if _, ok := c.entries[e.Key]; ok {
			continue
		}
		c.entries[e.Key] = e.InsertedAt
		restored++
	}
	return restored
}

func (c *MemoryCache) recentLocked(key string, now time.Time) bool {
	at, ok := c.entries[key]
	return ok && now.Sub(at) < c.window
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	limit := 2 * c.window
	for k, at := range c.entries {
		if now.Sub(at) > limit {
			delete(c.entries, k)
		}
	}
}
