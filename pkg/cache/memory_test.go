package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

func TestMemoryCache_RoundTripsStructs(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	in := []point{{Date: "2024-01-01", Values: map[string]float64{"BTC": 42000}}}
	require.NoError(t, mc.Set(ctx, "series:prices", in, time.Minute))

	// Mutating the original must not leak into the cache.
	in[0].Values["BTC"] = 0

	var out []point
	require.NoError(t, mc.Get(ctx, "series:prices", &out))
	assert.Equal(t, 42000.0, out[0].Values["BTC"])
}

func TestMemoryCache_StringsStayRaw(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", `[{"id":"1"}]`, 0))
	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, `[{"id":"1"}]`, s)

	got, err := mc.MGet(ctx, "k", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": `[{"id":"1"}]`}, got)
}

func TestMemoryCache_ExpirationAndMiss(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", 1, time.Millisecond))
	require.NoError(t, mc.Set(ctx, "forever", 2, 0))
	time.Sleep(5 * time.Millisecond)

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "short", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "forever", &v))
	assert.Equal(t, 2, v)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for _, k := range []string{"eval:a", "eval:b", "series:prices:x", "customMetrics"} {
		require.NoError(t, mc.Set(ctx, k, "v", 0))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("eval:")))

	ok, _ := mc.Exists(ctx, "eval:a", "eval:b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "series:prices:x")
	assert.True(t, ok)
	ok, _ = mc.Exists(ctx, "customMetrics")
	assert.True(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
}

func TestMemoryCache_IncrementAndLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	n, err := mc.Increment(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, _ = mc.Increment(ctx, "n")
	assert.Equal(t, int64(2), n)

	ok, _ := mc.TryLock(ctx, "warm", time.Minute)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "warm", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "warm"))
	ok, _ = mc.TryLock(ctx, "warm", time.Minute)
	assert.True(t, ok)
}

func TestMGetTyped(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "p1", point{Date: "2024-01-01"}, 0))
	require.NoError(t, mc.Set(ctx, "bad", "not json", 0))

	got, err := MGetTyped[point](ctx, mc, "p1", "bad")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "2024-01-01", got["p1"].Date)
}
