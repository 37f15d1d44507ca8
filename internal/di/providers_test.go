package di

import (
	"strings"
	"testing"
	"time"

	internalrepo "CoinDash/internal/repository"
	"CoinDash/pkg/config"
	"CoinDash/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("postgres:\n  dsn: postgres://localhost/coindash\n"))
	require.NoError(t, err)
	return cfg
}

func TestProvideDashboardConfig(t *testing.T) {
	cfg := testConfig(t)
	dc, err := ProvideDashboardConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), dc.DefaultStart)
	assert.Equal(t, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), dc.Earliest)
	assert.Equal(t, cfg.Dashboard.DefaultCoins, dc.DefaultCoins)
	assert.Equal(t, 50, dc.MaxCoins)
}

func TestConsumerGroup_IsPerInstance(t *testing.T) {
	a, b := consumerGroup("coindash"), consumerGroup("coindash")
	assert.True(t, strings.HasPrefix(a, "coindash-"))
	assert.NotEqual(t, a, b)
}

func TestProvideRateLimiter_Disabled(t *testing.T) {
	cfg := testConfig(t)
	assert.NotNil(t, ProvideRateLimiter(cfg))
	cfg.RateLimit.Enabled = false
	assert.Nil(t, ProvideRateLimiter(cfg))
}

func TestProvideMetricEvents_LocalWithoutKafka(t *testing.T) {
	cfg := testConfig(t)
	hub, cleanup := ProvideHub(nil)
	defer cleanup()

	pub := ProvideMetricEvents(cfg, nil, hub, metrics.Nop{})
	_, ok := pub.(*internalrepo.LocalMetricEvents)
	assert.True(t, ok)
}

func TestProvideCache_MemoryWhenRedisDisabled(t *testing.T) {
	cfg := testConfig(t)
	l, err := ProvideLogger(cfg)
	require.NoError(t, err)

	c, cleanup, err := ProvideCache(cfg, l)
	require.NoError(t, err)
	defer cleanup()
	assert.NoError(t, c.Ping(t.Context()))
}

func TestProvideSeriesStore_PostgREST(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "postgrest"
	cfg.PostgREST.URL = "http://localhost:3000"
	l, err := ProvideLogger(cfg)
	require.NoError(t, err)

	store, cleanup, err := ProvideSeriesStore(cfg, metrics.Nop{}, l)
	require.NoError(t, err)
	defer cleanup()
	_, ok := store.(*internalrepo.RESTSeriesStore)
	assert.True(t, ok)
}
