package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestGuardWithoutRedisRunsDirectly(t *testing.T) {
	var g *Guard
	called := false
	err := g.Do(context.Background(), OrderKey(1), func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	boom := errors.New("boom")
	g = NewGuard(nil, 0)
	assert.ErrorIs(t, g.Do(context.Background(), OrderKey(2), func() error { return boom }), boom)
}

func TestNewGuardRetriesAtLeastOnce(t *testing.T) {
	assert.Equal(t, 1, NewGuard(nil, 0).maxRetries)
	assert.Equal(t, 1, NewGuard(nil, 50*time.Millisecond).maxRetries)
	assert.Equal(t, 300, NewGuard(nil, 30*time.Second).maxRetries)
}

func TestGuardHoldsRedisLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, 50 * time.Millisecond, time.Second} {
		g := NewGuard(client, ttl)
		called := false
		err := g.Do(ctx, OrderKey(7), func() error {
			called = true
			assert.True(t, mr.Exists(OrderKey(7)))
			return nil
		})
		require.NoError(t, err, "ttl=%v", ttl)
		assert.True(t, called)
		assert.False(t, mr.Exists(OrderKey(7)), "锁在执行完后释放")
	}
}

func TestGuardBusyKey(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, OrderKey(8), "holder", time.Minute)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	g := NewGuard(client, 200*time.Millisecond)
	called := false
	err = g.Do(ctx, OrderKey(8), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockFailed)
	assert.False(t, called)

	// 别人的锁不受影响
	v, err := mr.Get(OrderKey(8))
	require.NoError(t, err)
	assert.Equal(t, "holder", v)

	require.NoError(t, holder.Unlock(ctx))
	assert.NoError(t, g.Do(ctx, OrderKey(8), func() error { return nil }))
}

func TestUnlockOnlyReleasesOwnLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	owner := NewDistributedLock(client, OrderKey(9), "owner", time.Minute)
	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	other := NewDistributedLock(client, OrderKey(9), "other", time.Minute)
	ok, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, other.Unlock(ctx))
	assert.True(t, mr.Exists(OrderKey(9)))

	require.NoError(t, owner.Unlock(ctx))
	assert.False(t, mr.Exists(OrderKey(9)))
}

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "order:lock:42", OrderKey(42))
}
