package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricsFixture struct {
	uc      *MetricsUseCase
	store   *memMetricStore
	series  *memSeries
	events  *recordingPublisher
	cache   *cache.MemoryCache
	metrics *recordingMetrics
}

func newMetricsFixture(t *testing.T) *metricsFixture {
	f := &metricsFixture{
		store:   &memMetricStore{},
		series:  &memSeries{series: marketData(31)},
		events:  &recordingPublisher{},
		cache:   cache.NewMemoryCache(),
		metrics: &recordingMetrics{},
	}
	t.Cleanup(func() { _ = f.cache.Close() })

	f.uc = NewMetricsUseCase(f.store, f.series, newDashboard(f.series), f.events, f.cache, 0, f.metrics, nil)
	f.uc.now = func() time.Time { return fixedNow }
	n := 0
	f.uc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return f
}

func (f *metricsFixture) create(t *testing.T, name, src string) *models.MetricDefinition {
	t.Helper()
	m, err := f.uc.Create(context.Background(), CreateMetricParams{Name: name, Formula: src})
	require.NoError(t, err)
	return m
}

func TestMetrics_CreateAssignsIDAndPublishes(t *testing.T) {
	f := newMetricsFixture(t)

	m := f.create(t, "  Double Price ", " price * 2 ")
	assert.Equal(t, "id-1", m.ID)
	assert.Equal(t, "Double Price", m.Name)
	assert.Equal(t, "price * 2", m.Formula)
	assert.Equal(t, fixedNow, m.CreatedAt)

	saved, err := f.uc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.MetricCreated, f.events.events[0].Type)
	assert.Equal(t, "id-1", f.events.events[0].Metric.ID)
}

func TestMetrics_CreateRejects(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "NVT", "marketCap / volume")

	cases := []struct {
		name, src string
		want      error
	}{
		{"", "price", domrepo.ErrInvalidMetric},
		{"x", "   ", domrepo.ErrInvalidFormula},
		{"nvt", "price", domrepo.ErrDuplicateMetricName},
		{"bad", "(price * 2", domrepo.ErrInvalidFormula},
		{"unknown", "price * bogus", domrepo.ErrInvalidFormula},
		{"missing ref", "custom_nope + 1", domrepo.ErrInvalidFormula},
		{"loop", "custom_loop + 1", domrepo.ErrInvalidFormula},
		{"bad call", "sqrt(1, 2)", domrepo.ErrInvalidFormula},
	}
	for _, tc := range cases {
		t.Run(tc.name+"/"+tc.src, func(t *testing.T) {
			_, err := f.uc.Create(context.Background(), CreateMetricParams{Name: tc.name, Formula: tc.src})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	saved, _ := f.uc.List(context.Background())
	assert.Len(t, saved, 1)
	assert.Len(t, f.events.events, 1)
}

func TestMetrics_CreateRejectsSlugCollision(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "a b", "price")

	_, err := f.uc.Create(context.Background(), CreateMetricParams{Name: "a_b", Formula: "price"})
	assert.ErrorIs(t, err, domrepo.ErrDuplicateMetricName)
}

func TestMetrics_CreateAllowsReferenceToSaved(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")
	m := f.create(t, "quad", "custom_double * 2")
	assert.Equal(t, "quad", m.Name)
}

func TestMetrics_Delete(t *testing.T) {
	f := newMetricsFixture(t)
	m := f.create(t, "double", "price * 2")
	f.create(t, "triple", "price * 3")

	require.NoError(t, f.uc.Delete(context.Background(), m.ID))
	saved, _ := f.uc.List(context.Background())
	require.Len(t, saved, 1)
	assert.Equal(t, "triple", saved[0].Name)
	assert.Equal(t, models.MetricDeleted, f.events.events[2].Type)

	assert.ErrorIs(t, f.uc.Delete(context.Background(), m.ID), domrepo.ErrMetricNotFound)
	_, err := f.uc.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, domrepo.ErrMetricNotFound)
}

func TestMetrics_DeleteRejectsReferencedMetric(t *testing.T) {
	f := newMetricsFixture(t)
	base := f.create(t, "base", "price * 2")
	f.create(t, "derived", "custom_base + 1")
	f.create(t, "other", "custom_base * volume")

	err := f.uc.Delete(context.Background(), base.ID)
	require.ErrorIs(t, err, domrepo.ErrMetricInUse)
	assert.Contains(t, err.Error(), "derived, other")

	saved, _ := f.uc.List(context.Background())
	assert.Len(t, saved, 3)
	assert.Len(t, f.events.events, 3, "no event for a rejected delete")
}

func TestMetrics_EvaluateAllSaved(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")
	f.create(t, "turnover", "volume / marketCap")

	res, err := f.uc.Evaluate(context.Background(), EvaluateParams{Coins: []string{"BTC", "ETH"}})
	require.NoError(t, err)

	assert.Equal(t, models.DateRange{Start: "2024-01-01", End: "2024-01-31"}, res.Range)
	require.Len(t, res.Metrics["double"], 31)
	v, _ := res.Metrics["double"][0].Value("BTC")
	require.NotNil(t, v)
	assert.Equal(t, 200.0, *v)

	v, _ = res.Metrics["turnover"][0].Value("ETH")
	require.NotNil(t, v)
	assert.Equal(t, 0.0, *v)

	assert.Equal(t, 2*31*2, f.metrics.cells)
	assert.Equal(t, 0, f.metrics.failed)
	assert.Equal(t, 1, f.metrics.evaluations)
}

func TestMetrics_EvaluateSelectionAndInline(t *testing.T) {
	f := newMetricsFixture(t)
	double := f.create(t, "double", "price * 2")
	f.create(t, "unused", "price")

	res, err := f.uc.Evaluate(context.Background(), EvaluateParams{
		Range:    RangeParams{Start: "2024-01-30"},
		Coins:    []string{"BTC"},
		Metrics:  []string{double.ID},
		Formulas: []InlineFormula{{Name: "ratio", Formula: "custom_double / price"}, {Name: "broken", Formula: "price +"}},
	})
	require.NoError(t, err)

	assert.Len(t, res.Metrics, 3)
	assert.NotContains(t, res.Metrics, "unused")
	v, _ := res.Metrics["ratio"][1].Value("BTC")
	require.NotNil(t, v)
	assert.Equal(t, 2.0, *v)

	require.Contains(t, res.Errors, "broken")
	v, ok := res.Metrics["broken"][0].Value("BTC")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 2, f.metrics.failed)
}

func TestMetrics_EvaluateUnknownSelection(t *testing.T) {
	f := newMetricsFixture(t)
	_, err := f.uc.Evaluate(context.Background(), EvaluateParams{Metrics: []string{"ghost"}})
	assert.ErrorIs(t, err, domrepo.ErrMetricNotFound)
}

func TestMetrics_EvaluateInlineNameClash(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")
	_, err := f.uc.Evaluate(context.Background(), EvaluateParams{
		Formulas: []InlineFormula{{Name: "Double", Formula: "price"}},
	})
	assert.ErrorIs(t, err, domrepo.ErrDuplicateMetricName)
}

func TestMetrics_EvaluateIsCachedUntilMetricsChange(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")
	ctx := context.Background()
	params := EvaluateParams{Coins: []string{"BTC"}}

	first, err := f.uc.Evaluate(ctx, params)
	require.NoError(t, err)
	calls := f.series.callCount()
	assert.Equal(t, 3, calls)

	second, err := f.uc.Evaluate(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, calls, f.series.callCount())
	assert.Equal(t, len(first.Metrics["double"]), len(second.Metrics["double"]))
	assert.Equal(t, 1, f.metrics.cacheHits["evaluation"])

	f.create(t, "triple", "price * 3")
	_, err = f.uc.Evaluate(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, calls+3, f.series.callCount())
}

func TestMetrics_EvaluateUpstreamError(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")
	f.series.err = fmt.Errorf("query: %w", domrepo.ErrUpstream)

	_, err := f.uc.Evaluate(context.Background(), EvaluateParams{})
	assert.True(t, errors.Is(err, domrepo.ErrUpstream))
}

func TestMetrics_Preview(t *testing.T) {
	f := newMetricsFixture(t)
	f.create(t, "double", "price * 2")

	res, err := f.uc.Preview(context.Background(), PreviewParams{
		Formula: "custom_double - prev(1)",
		Coin:    "eth",
		Range:   RangeParams{Start: "2024-01-01", End: "2024-01-03"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ETH", res.Coin)
	assert.Empty(t, res.Error)
	require.Len(t, res.Points, 3)
	assert.Equal(t, "2024-01-02", res.Points[1].Date)
	require.NotNil(t, res.Points[1].Value)
	// 2*11 - 10
	assert.Equal(t, 12.0, *res.Points[1].Value)
}

func TestMetrics_PreviewReportsProblems(t *testing.T) {
	f := newMetricsFixture(t)

	res, err := f.uc.Preview(context.Background(), PreviewParams{Formula: "price *", Coin: "BTC"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Points)
	assert.Equal(t, 0, f.series.callCount())

	res, err = f.uc.Preview(context.Background(), PreviewParams{Formula: "price * whatever", Coin: "BTC"})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "whatever")
	require.NotEmpty(t, res.Points)
	assert.Nil(t, res.Points[0].Value)
}
