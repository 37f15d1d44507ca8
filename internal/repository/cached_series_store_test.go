package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinDash/internal/domain/models"
	"CoinDash/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu      sync.Mutex
	calls   map[string]int
	points  []models.TimePoint
	coins   []string
	failing error
}

func (c *countingStore) hit(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[op]++
}

func (c *countingStore) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingStore) GetSeries(context.Context, models.SeriesKind, string, string, []string) ([]models.TimePoint, error) {
	c.hit("series")
	return c.points, c.failing
}

func (c *countingStore) GetIndicator(context.Context, string, string, string, []string) ([]models.TimePoint, error) {
	c.hit("indicator")
	return c.points, c.failing
}

func (c *countingStore) ListCoins(context.Context, models.CoinScope) ([]string, error) {
	c.hit("coins")
	return c.coins, c.failing
}

func (c *countingStore) ListIndicators(context.Context) (models.IndicatorCatalog, error) {
	c.hit("indicators")
	return models.IndicatorCatalog{Indicators: []string{"rsi"}}, c.failing
}

func (c *countingStore) Health(context.Context) error { return nil }
func (c *countingStore) Close() error                 { return nil }

// brokenCache fails every call.
type brokenCache struct{ cache.Service }

func (brokenCache) Get(context.Context, string, interface{}) error { return errors.New("down") }
func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("down")
}

func TestSeriesKey_SortsSymbols(t *testing.T) {
	a := SeriesKey(models.SeriesPrices, "2024-01-01", "2024-02-01", []string{"SOL", "BTC"})
	b := SeriesKey(models.SeriesPrices, "2024-01-01", "2024-02-01", []string{"BTC", "SOL"})
	assert.Equal(t, a, b)
	assert.Equal(t, "series:prices:2024-01-01:2024-02-01:BTC,SOL", a)
}

func TestCachedSeriesStore_ReadThrough(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	next := &countingStore{points: []models.TimePoint{{Date: "2024-01-01", Values: map[string]float64{"BTC": 1}}}}
	s := NewCachedSeriesStore(next, mc, time.Minute, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := s.GetSeries(ctx, models.SeriesPrices, "2024-01-01", "2024-01-01", []string{"BTC"})
		require.NoError(t, err)
		assert.Equal(t, next.points, got)
	}
	assert.Equal(t, 1, next.count("series"))

	_, err := s.GetSeries(ctx, models.SeriesVolumes, "2024-01-01", "2024-01-01", []string{"BTC"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.count("series"))
}

func TestCachedSeriesStore_ErrorsAreNotCached(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	next := &countingStore{failing: errors.New("boom")}
	s := NewCachedSeriesStore(next, mc, time.Minute, time.Minute, nil)

	_, err := s.ListCoins(context.Background(), models.ScopeCurrent)
	assert.Error(t, err)
	_, err = s.ListCoins(context.Background(), models.ScopeCurrent)
	assert.Error(t, err)
	assert.Equal(t, 2, next.count("coins"))
}

func TestCachedSeriesStore_BypassesBrokenCache(t *testing.T) {
	next := &countingStore{coins: []string{"BTC"}}
	s := NewCachedSeriesStore(next, brokenCache{}, time.Minute, time.Minute, nil)

	got, err := s.ListCoins(context.Background(), models.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC"}, got)
}

func TestCachedSeriesStore_WarmAndRefresh(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	next := &countingStore{coins: []string{"BTC", "ETH"}}
	s := NewCachedSeriesStore(next, mc, time.Minute, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, s.WarmCoins(ctx, models.ScopeCurrent))
	got, err := s.ListCoins(ctx, models.ScopeCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, got)
	assert.Equal(t, 1, next.count("coins"))

	require.NoError(t, s.Refresh(ctx))
	_, err = s.ListCoins(ctx, models.ScopeCurrent)
	require.NoError(t, err)
	assert.Equal(t, 2, next.count("coins"))
}
