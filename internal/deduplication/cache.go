package deduplication

import (
	"context"
	"time"
)

// Cache is the time-windowed at-most-once gate shared by every detection path.
type Cache interface {
	WasRecentlyPosted(ctx context.Context, key string) (bool, error)
	MarkPosted(ctx context.Context, key string, now time.Time) error
	Remove(ctx context.Context, key string) error
	// Claim inserts key unless it was recently posted, as one atomic step.
	Claim(ctx context.Context, key string, now time.Time) (bool, error)
	Size(ctx context.Context) (int, error)
}
