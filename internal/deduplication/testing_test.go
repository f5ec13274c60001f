package deduplication

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) WasRecentlyPosted(context.Context, string) (bool, error) { return false, errCacheDown }
func (failingCache) MarkPosted(context.Context, string, time.Time) error     { return errCacheDown }
func (failingCache) Remove(context.Context, string) error                    { return errCacheDown }
func (failingCache) Claim(context.Context, string, time.Time) (bool, error)  { return false, errCacheDown }
func (failingCache) Size(context.Context) (int, error)                       { return 0, errCacheDown }

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = value
	return nil
}
