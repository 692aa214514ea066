package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupTestRedis(t)
	store := NewRedisIdempotencyStore(rdb, time.Minute)

	_, ok, err := store.Recall(ctx, "u1", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := store.TryLock(ctx, "u1", "k")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = store.TryLock(ctx, "u1", "k")
	require.NoError(t, err)
	assert.False(t, locked, "second lock on the same key")

	locked, err = store.TryLock(ctx, "u2", "k")
	require.NoError(t, err)
	assert.True(t, locked, "keys are scoped per user")

	require.NoError(t, store.Remember(ctx, "u1", "k", "cart-1"))
	v, ok, err := store.Recall(ctx, "u1", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cart-1", v)

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Recall(ctx, "u1", "k")
	require.NoError(t, err)
	assert.False(t, ok, "remembered value expires with the ttl")
}

func TestIdempotencyStore_Release(t *testing.T) {
	ctx := context.Background()
	_, rdb := setupTestRedis(t)
	store := NewRedisIdempotencyStore(rdb, time.Minute)

	locked, err := store.TryLock(ctx, "u1", "k")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, store.Release(ctx, "u1", "k"))

	locked, err = store.TryLock(ctx, "u1", "k")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestIdempotencyStore_RedisDown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	store := NewRedisIdempotencyStore(rdb, time.Minute)
	mr.Close()

	_, _, err := store.Recall(context.Background(), "u1", "k")
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupTestRedis(t)
	locker := NewRedisLocker(rdb)

	release, ok, err := locker.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("lock:sweep"))

	_, ok, err = locker.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupTestRedis(t)
	locker := NewRedisLocker(rdb)

	stale, ok, err := locker.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("lock:sweep"))
}
