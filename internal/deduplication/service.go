package deduplication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"otprelay/internal/constants"
	"otprelay/internal/logger"
	"otprelay/pkg/metrics"
	"otprelay/pkg/tracing"
)

// Claim is the outcome of gating one OTP.
type Claim struct {
	Key     string
	Claimed bool
	// Fallback is set when the cache failed and on_cache_error let the OTP through.
	Fallback bool
}

// Snapshotter is implemented by caches whose content can be persisted.
type Snapshotter interface {
	Snapshot() []Entry
	Restore(entries []Entry) int
}

// SnapshotStore is the key/value contract used to persist a snapshot.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Service gates OTPs through a Cache. It checks the previous bucket as well as
// the current one so detections straddling a bucket boundary still collapse.
type Service struct {
	cache  Cache
	cfg    Config
	clock  Clock
	logger logger.Logger
	mu     sync.Mutex
}

func NewService(cache Cache, cfg Config, clock Clock, log logger.Logger) *Service {
	if cfg.Window <= 0 {
		cfg.Window = constants.DefaultDedupWindow
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = constants.DefaultDedupBucket
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		cache:  cache,
		cfg:    cfg,
		clock:  clock,
		logger: log,
	}
}

func (s *Service) Window() time.Duration {
	return s.cfg.Window
}

// Claim reserves the slot for (otp, sender) before delivery starts.
func (s *Service) Claim(ctx context.Context, otp, sender string) (Claim, error) {
	ctx, span := tracing.GetTracer("relay-dedup").Start(ctx, "deduplication.claim")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Claim{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	key := Key(otp, sender, now, s.cfg.Bucket)
	prev := Key(otp, sender, now.Add(-s.cfg.Bucket), s.cfg.Bucket)

	start := time.Now()
	recent, err := s.cache.WasRecentlyPosted(ctx, prev)
	if err != nil {
		return s.handleCacheError(ctx, key, err, time.Since(start))
	}
	if recent {
		s.recordMetrics(time.Since(start), "duplicate")
		return Claim{Key: prev}, nil
	}

	claimed, err := s.cache.Claim(ctx, key, now)
	if err != nil {
		return s.handleCacheError(ctx, key, err, time.Since(start))
	}

	status := "duplicate"
	if claimed {
		status = "unique"
	}
	s.recordMetrics(time.Since(start), status)
	return Claim{Key: key, Claimed: claimed}, nil
}

// Release rolls back a claim so a later detection can retry delivery.
func (s *Service) Release(ctx context.Context, key string) error {
	metrics.DedupReleasesTotal.Inc()
	if err := s.cache.Remove(ctx, key); err != nil {
		return fmt.Errorf("release dedup key %s: %w", key, err)
	}
	return nil
}

func (s *Service) handleCacheError(ctx context.Context, key string, err error, duration time.Duration) (Claim, error) {
	s.recordMetrics(duration, "error")

	if s.cfg.OnCacheError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error").Inc()
		s.logger.WarnwCtx(ctx, "Dedup cache error, allowing OTP (fallback: allow)",
			"error", err,
			"key", key,
		)
		return Claim{Key: key, Claimed: true, Fallback: true}, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error").Inc()
	return Claim{Key: key}, fmt.Errorf("dedup cache error for key %s: %w", key, err)
}

func (s *Service) recordMetrics(duration time.Duration, status string) {
	metrics.DedupClaimsTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(duration, status)
}

// SaveSnapshot persists the cache content when the cache supports it.
func (s *Service) SaveSnapshot(ctx context.Context, store SnapshotStore) error {
	snap, ok := s.cache.(Snapshotter)
	if !ok {
		return nil
	}

	body, err := json.Marshal(snap.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal dedup snapshot: %w", err)
	}
	return store.Set(ctx, constants.StateKeyDedupSnapshot, string(body))
}

// LoadSnapshot restores a persisted snapshot and returns how many entries were still live.
func (s *Service) LoadSnapshot(ctx context.Context, store SnapshotStore) (int, error) {
	snap, ok := s.cache.(Snapshotter)
	if !ok {
		return 0, nil
	}

	raw, found, err := store.Get(ctx, constants.StateKeyDedupSnapshot)
	if err != nil || !found {
		return 0, err
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0, fmt.Errorf("unmarshal dedup snapshot: %w", err)
	}
	return snap.Restore(entries), nil
}

// RunCacheMetrics refreshes the cache size gauge until ctx ends.
func (s *Service) RunCacheMetrics(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, err := s.cache.Size(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get cache size for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetDedupCacheSize(size)
		case <-ctx.Done():
			return
		}
	}
}
