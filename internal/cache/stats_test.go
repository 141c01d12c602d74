package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/store"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *StatsCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStatsCache(client, 5*time.Second, zap.NewNop())
}

func countingLoader(calls *int, st store.Stats) StatsLoader {
	return func(context.Context) (store.Stats, error) {
		*calls++
		return st, nil
	}
}

func TestStatsCache_HitAfterFirstLoad(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	calls := 0
	want := store.Stats{TotalActive: 5, UrgentAlarms: 2, OngoingCalls: 1, RecentlyCleared: 3}

	got, err := c.Get(ctx, countingLoader(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = c.Get(ctx, countingLoader(&calls, store.Stats{}))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists(statsKey))
}

func TestStatsCache_ExpiresAndInvalidates(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	calls := 0

	_, err := c.Get(ctx, countingLoader(&calls, store.Stats{TotalActive: 1}))
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)
	_, err = c.Get(ctx, countingLoader(&calls, store.Stats{TotalActive: 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(statsKey))
	got, err := c.Get(ctx, countingLoader(&calls, store.Stats{TotalActive: 3}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TotalActive)
}

func TestStatsCache_RedisDownFallsBackToLoader(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	calls := 0
	got, err := c.Get(context.Background(), countingLoader(&calls, store.Stats{OngoingCalls: 4}))
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.OngoingCalls)
}

func TestStatsCache_NilClientAndLoaderError(t *testing.T) {
	c := NewStatsCache(nil, 0, zap.NewNop())
	_, err := c.Get(context.Background(), func(context.Context) (store.Stats, error) {
		return store.Stats{}, errors.New("db down")
	})
	assert.Error(t, err)
	assert.NoError(t, c.Invalidate(context.Background()))
	assert.NoError(t, c.Ping(context.Background()))
}
