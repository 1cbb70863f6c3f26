package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func newTestRedisStore(t *testing.T) (*RedisRateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	rdb, mr := setupTestRedis(t)
	return NewRedisRateLimitStore(rdb, log.NewStdLogger(os.Stdout)), mr
}

func TestRedisStore_FirstHitStartsWindow(t *testing.T) {
	store, mr := newTestRedisStore(t)

	count, reset, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.WithinDuration(t, time.Now().Add(time.Minute), reset, 2*time.Second)

	ttl := mr.TTL(rateLimitKeyPrefix + "send-mail:u1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_SubsequentHitsCount(t *testing.T) {
	store, _ := newTestRedisStore(t)

	for want := int32(1); want <= 3; want++ {
		count, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
}

func TestRedisStore_WindowExpiryResetsCount(t *testing.T) {
	store, mr := newTestRedisStore(t)

	_, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	_, _, err = store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	count, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "expired window restarts at 1")
}

func TestRedisStore_KeysIsolated(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)

	count, _, err := store.Hit(context.Background(), "search:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRedisStore_Reset(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background(), "send-mail:u1"))

	count, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRedisStore_RestoresLostExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)

	// Simulate a counter whose TTL was lost.
	mr.Set(rateLimitKeyPrefix+"send-mail:u1", "5")

	count, _, err := store.Hit(context.Background(), "send-mail:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 6, count)

	ttl := mr.TTL(rateLimitKeyPrefix + "send-mail:u1")
	assert.Greater(t, ttl, time.Duration(0), "expiry must be restored")
}

func TestRedisStore_NilClientErrors(t *testing.T) {
	store := NewRedisRateLimitStore(nil, log.NewStdLogger(os.Stdout))

	_, _, err := store.Hit(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.Error(t, store.Reset(context.Background(), "k"))
}

func TestRedisStore_ServerDownErrors(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	store := NewRedisRateLimitStore(rdb, log.NewStdLogger(os.Stdout))
	mr.Close()

	_, _, err := store.Hit(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestRedisStore_SweepIsNoop(t *testing.T) {
	store, _ := newTestRedisStore(t)

	removed, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
