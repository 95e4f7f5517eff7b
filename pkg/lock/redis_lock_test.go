package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_LockUnlock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "lock:stock:1:1", "owner-a", time.Minute)

	require.NoError(t, l.Lock(ctx))

	// A second owner cannot take the same key.
	other := NewRedisLock(client, "lock:stock:1:1", "owner-b", time.Minute)
	assert.Equal(t, ErrLockFailed, other.Lock(ctx))

	require.NoError(t, l.Unlock(ctx))
	assert.NoError(t, other.Lock(ctx))
}

func TestRedisLock_UnlockNotHeld(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "lock:stock:2:1", "owner-a", time.Minute)
	assert.Equal(t, ErrLockNotHeld, l.Unlock(ctx))
}

func TestRedisLock_UnlockWrongOwner(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	held := NewRedisLock(client, "lock:stock:3:1", "owner-a", time.Minute)
	require.NoError(t, held.Lock(ctx))

	// Another value must not release somebody else's lock.
	impostor := NewRedisLock(client, "lock:stock:3:1", "owner-b", time.Minute)
	assert.Equal(t, ErrLockNotHeld, impostor.Unlock(ctx))

	assert.NoError(t, held.Unlock(ctx))
}

func TestRedisLock_TryLockRetries(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	held := NewRedisLock(client, "lock:stock:4:1", "owner-a", time.Minute)
	require.NoError(t, held.Lock(ctx))

	waiter := NewRedisLock(client, "lock:stock:4:1", "owner-b", time.Minute)

	done := make(chan error, 1)
	go func() {
		done <- waiter.TryLock(ctx, 20, 10*time.Millisecond)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, held.Unlock(ctx))

	assert.NoError(t, <-done)
}

func TestMultiLock_SortedAcquisition(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	ml := NewMultiLock(client, []string{"lock:stock:9:2", "lock:stock:1:1", "lock:stock:5:1"}, "rsv-1", time.Minute)
	require.NoError(t, ml.Lock(ctx, 1, time.Millisecond))

	// Every key is held regardless of the order it was given in.
	for _, key := range []string{"lock:stock:1:1", "lock:stock:5:1", "lock:stock:9:2"} {
		val, err := client.Get(ctx, key).Result()
		require.NoError(t, err)
		assert.Equal(t, "rsv-1", val)
	}

	require.NoError(t, ml.Unlock(ctx))
	for _, key := range []string{"lock:stock:1:1", "lock:stock:5:1", "lock:stock:9:2"} {
		err := client.Get(ctx, key).Err()
		assert.Equal(t, redis.Nil, err)
	}
}

func TestMultiLock_UnlockReportsLostLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	ml := NewMultiLock(client, []string{"lock:stock:1:1", "lock:stock:5:1", "lock:stock:9:2"}, "rsv-3", time.Minute)
	require.NoError(t, ml.Lock(ctx, 1, time.Millisecond))

	// One key expired and was taken by another owner.
	require.NoError(t, client.Set(ctx, "lock:stock:5:1", "other", time.Minute).Err())

	assert.Equal(t, ErrLockNotHeld, ml.Unlock(ctx))

	// The remaining keys were still released.
	assert.Equal(t, redis.Nil, client.Get(ctx, "lock:stock:1:1").Err())
	assert.Equal(t, redis.Nil, client.Get(ctx, "lock:stock:9:2").Err())

	// The stolen key stays with its new owner.
	val, err := client.Get(ctx, "lock:stock:5:1").Result()
	require.NoError(t, err)
	assert.Equal(t, "other", val)
}

func TestMultiLock_ReleasesOnPartialFailure(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	// Hold the middle key under a different owner.
	blocker := NewRedisLock(client, "lock:stock:5:1", "other", time.Minute)
	require.NoError(t, blocker.Lock(ctx))

	ml := NewMultiLock(client, []string{"lock:stock:1:1", "lock:stock:5:1", "lock:stock:9:2"}, "rsv-2", time.Minute)
	err := ml.Lock(ctx, 1, time.Millisecond)
	assert.Equal(t, ErrLockFailed, err)

	// Nothing is left held by the failed batch.
	err = client.Get(ctx, "lock:stock:1:1").Err()
	assert.Equal(t, redis.Nil, err)
	err = client.Get(ctx, "lock:stock:9:2").Err()
	assert.Equal(t, redis.Nil, err)
}
