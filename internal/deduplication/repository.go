package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares claims between relay instances. Expiry is delegated to key TTLs.
type RedisCache struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, window time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, window: window}
}

func (r *RedisCache) WasRecentlyPosted(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisCache) MarkPosted(ctx context.Context, key string, now time.Time) error {
	if err := r.client.Set(ctx, r.prefix+key, now.UnixMilli(), r.window).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Claim(ctx context.Context, key string, now time.Time) (bool, error) {
	success, err := r.client.SetNX(ctx, r.prefix+key, now.UnixMilli(), r.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return success, nil
}

func (r *RedisCache) Size(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}
