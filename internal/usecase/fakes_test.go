package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
)

// memSeries serves fixed series keyed by kind, filtered like a real store.
type memSeries struct {
	mu         sync.Mutex
	series     map[models.SeriesKind][]models.TimePoint
	indicators map[string][]models.TimePoint
	catalog    models.IndicatorCatalog
	coins      []string
	err        error
	calls      int
}

func (m *memSeries) GetSeries(_ context.Context, kind models.SeriesKind, from, to string, symbols []string) ([]models.TimePoint, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return filterPoints(m.series[kind], from, to, symbols), nil
}

func (m *memSeries) GetIndicator(_ context.Context, name, from, to string, symbols []string) ([]models.TimePoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	return filterPoints(m.indicators[name], from, to, symbols), nil
}

func filterPoints(in []models.TimePoint, from, to string, symbols []string) []models.TimePoint {
	out := make([]models.TimePoint, 0, len(in))
	for _, p := range in {
		if p.Date < from || p.Date > to {
			continue
		}
		vals := make(map[string]float64)
		for _, s := range symbols {
			if v, ok := p.Values[s]; ok {
				vals[s] = v
			}
		}
		out = append(out, models.TimePoint{Date: p.Date, Values: vals})
	}
	return out
}

func (m *memSeries) ListCoins(context.Context, models.CoinScope) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.coins) == 0 {
		return nil, domrepo.ErrNoData
	}
	return m.coins, nil
}

func (m *memSeries) ListIndicators(context.Context) (models.IndicatorCatalog, error) {
	return m.catalog, m.err
}

func (m *memSeries) Health(context.Context) error { return m.err }
func (m *memSeries) Close() error                 { return nil }

func (m *memSeries) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memMetricStore struct {
	mu      sync.Mutex
	metrics []models.MetricDefinition
	saves   int
}

func (s *memMetricStore) Load(context.Context) ([]models.MetricDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MetricDefinition{}, s.metrics...), nil
}

func (s *memMetricStore) Save(_ context.Context, ms []models.MetricDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append([]models.MetricDefinition{}, ms...)
	s.saves++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.MetricEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.MetricEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Broadcast(ev models.MetricEvent) {
	_ = p.Publish(context.Background(), ev)
}

type recordingMetrics struct {
	mu          sync.Mutex
	cells       int
	failed      int
	evaluations int
	cacheHits   map[string]int
	errors      map[string]int
}

func (r *recordingMetrics) RecordCells(total, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells += total
	r.failed += failed
}

func (r *recordingMetrics) RecordEvaluation(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations++
}

func (r *recordingMetrics) RecordStoreQuery(string, string, float64, error) {}

func (r *recordingMetrics) RecordCache(op string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cacheHits == nil {
		r.cacheHits = make(map[string]int)
	}
	if hit {
		r.cacheHits[op]++
	}
}

func (r *recordingMetrics) RecordError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errors == nil {
		r.errors = make(map[string]int)
	}
	r.errors[kind]++
}

func (r *recordingMetrics) RecordEvent(string) {}

// marketData builds n consecutive days of prices, caps and volumes for BTC
// and ETH starting 2024-01-01.
func marketData(n int) map[models.SeriesKind][]models.TimePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := map[models.SeriesKind][]models.TimePoint{}
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		out[models.SeriesPrices] = append(out[models.SeriesPrices], models.TimePoint{Date: d, Values: map[string]float64{"BTC": float64(100 + i), "ETH": float64(10 + i)}})
		out[models.SeriesMarketCaps] = append(out[models.SeriesMarketCaps], models.TimePoint{Date: d, Values: map[string]float64{"BTC": 1000, "ETH": 500}})
		out[models.SeriesVolumes] = append(out[models.SeriesVolumes], models.TimePoint{Date: d, Values: map[string]float64{"BTC": 10, "ETH": 0}})
	}
	return out
}

func sortedNames(ms []models.MetricDefinition) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	sort.Strings(out)
	return out
}

var fixedNow = time.Date(2024, 1, 31, 15, 0, 0, 0, time.UTC)

func newDashboard(store domrepo.SeriesStore) *DashboardUseCase {
	uc := NewDashboardUseCase(store, DashboardConfig{
		DefaultCoins: []string{"BTC", "ETH", "SOL", "BNB"},
		DefaultStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Earliest:     time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxRangeDays: 1500,
		MaxCoins:     5,
	})
	uc.now = func() time.Time { return fixedNow }
	return uc
}
