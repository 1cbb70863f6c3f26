package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix namespaces limiter keys in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimitStore is the Redis-backed counter store for fixed-window
// rate limiting. Window expiry is server-side: the key's TTL is the window
// boundary, so multiple instances sharing one Redis see one window.
type RedisRateLimitStore struct {
	client *redis.Client
	logger *log.Helper
}

// NewRedisRateLimitStore creates the store. The client may come back nil
// from NewRedisClient when Redis is not configured; callers should fall
// back to the memory store in that case.
func NewRedisRateLimitStore(client *redis.Client, logger log.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		logger: log.NewHelper(logger),
	}
}

// Hit increments the window counter for key, starting the window TTL on
// first increment.
func (s *RedisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int32, time.Time, error) {
	if s.client == nil {
		return 0, time.Time{}, fmt.Errorf("redis client is nil")
	}

	rkey := rateLimitKeyPrefix + key
	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment %s: %w", rkey, err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set expiry on %s: %w", rkey, err)
		}
		// #nosec G115 -- window counters stay far below int32 range
		return int32(count), time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read TTL of %s: %w", rkey, err)
	}
	if ttl < 0 {
		// Expiry was lost (e.g. INCR raced a flush). Restore it so the
		// key cannot live forever.
		_ = s.client.PExpire(ctx, rkey, window).Err()
		ttl = window
	}

	// #nosec G115 -- window counters stay far below int32 range
	return int32(count), time.Now().Add(ttl), nil
}

// Reset deletes the window counter for key.
func (s *RedisRateLimitStore) Reset(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := s.client.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires window keys server-side.
func (s *RedisRateLimitStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
