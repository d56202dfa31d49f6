package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestFixedWindow(t *testing.T) {
	rdb, mr := newRedis(t)
	m := NewManager(rdb, &FixedWindowStrategy{}, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := m.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	mr.FastForward(time.Minute + time.Second)
	ok, err = m.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "window reset")
}

func TestTokenBucket(t *testing.T) {
	rdb, _ := newRedis(t)
	now := time.Unix(1_700_000_000, 0)
	s := &TokenBucketStrategy{Now: func() time.Time { return now }}
	m := NewManager(rdb, s, 2, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := m.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(5 * time.Second)
	ok, err = m.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "one token refilled")
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("")
	require.NoError(t, err)
	assert.IsType(t, &FixedWindowStrategy{}, s)

	s, err = NewStrategy(StrategyTokenBucket)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucketStrategy{}, s)

	_, err = NewStrategy("leaky")
	assert.Error(t, err)
}

func TestAllow_RedisDown(t *testing.T) {
	rdb, mr := newRedis(t)
	mr.Close()
	m := NewManager(rdb, &FixedWindowStrategy{}, 1, time.Minute)

	_, err := m.Allow(context.Background(), "u1")
	assert.Error(t, err)
}
