package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/pkg/cache"
	applogger "CoinDash/pkg/logger"
)

// CachedSeriesStore decorates a SeriesStore with a read-through cache.
// Cache failures are logged and bypassed; they never fail a read.
type CachedSeriesStore struct {
	next      domrepo.SeriesStore
	cache     cache.Service
	seriesTTL time.Duration
	coinsTTL  time.Duration
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewCachedSeriesStore(next domrepo.SeriesStore, c cache.Service, seriesTTL, coinsTTL time.Duration, m domrepo.Metrics) *CachedSeriesStore {
	return &CachedSeriesStore{
		next:      next,
		cache:     c,
		seriesTTL: seriesTTL,
		coinsTTL:  coinsTTL,
		metrics:   m,
		l:         applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *CachedSeriesStore) SetLogger(l *applogger.Logger) { s.l = l }

// SeriesKey is the cache key of one series window.
func SeriesKey(kind models.SeriesKind, from, to string, symbols []string) string {
	return cache.GenerateKeyWithParams("series", string(kind), from, to, symbolKey(symbols))
}

func symbolKey(symbols []string) string {
	if len(symbols) == 0 {
		return "*all"
	}
	s := append([]string(nil), symbols...)
	sort.Strings(s)
	return strings.Join(s, ",")
}

func (s *CachedSeriesStore) GetSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) ([]models.TimePoint, error) {
	return readThrough(ctx, s, "series", SeriesKey(kind, from, to, symbols), s.seriesTTL, func() ([]models.TimePoint, error) {
		return s.next.GetSeries(ctx, kind, from, to, symbols)
	})
}

func (s *CachedSeriesStore) GetIndicator(ctx context.Context, name, from, to string, symbols []string) ([]models.TimePoint, error) {
	key := cache.GenerateKeyWithParams("indicator", name, from, to, symbolKey(symbols))
	return readThrough(ctx, s, "indicator", key, s.seriesTTL, func() ([]models.TimePoint, error) {
		return s.next.GetIndicator(ctx, name, from, to, symbols)
	})
}

func (s *CachedSeriesStore) ListCoins(ctx context.Context, scope models.CoinScope) ([]string, error) {
	return readThrough(ctx, s, "coins", cache.GenerateKey("coins", string(scope)), s.coinsTTL, func() ([]string, error) {
		return s.next.ListCoins(ctx, scope)
	})
}

func (s *CachedSeriesStore) ListIndicators(ctx context.Context) (models.IndicatorCatalog, error) {
	return readThrough(ctx, s, "indicators", "indicators:catalog", s.coinsTTL, func() (models.IndicatorCatalog, error) {
		return s.next.ListIndicators(ctx)
	})
}

// WarmSeries reloads one series window from the backing store and overwrites
// the cached copy.
func (s *CachedSeriesStore) WarmSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) error {
	v, err := s.next.GetSeries(ctx, kind, from, to, symbols)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, SeriesKey(kind, from, to, symbols), v, s.seriesTTL)
}

// WarmCoins reloads one coin list and overwrites the cached copy.
func (s *CachedSeriesStore) WarmCoins(ctx context.Context, scope models.CoinScope) error {
	v, err := s.next.ListCoins(ctx, scope)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, cache.GenerateKey("coins", string(scope)), v, s.coinsTTL)
}

// Refresh drops every cached series and coin list.
func (s *CachedSeriesStore) Refresh(ctx context.Context) error {
	var errs []error
	for _, prefix := range []string{"series:", "coins:", "indicator:", "indicators:"} {
		if err := s.cache.DeleteByPattern(ctx, cache.BuildPattern(prefix)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *CachedSeriesStore) Health(ctx context.Context) error {
	return s.next.Health(ctx)
}

func (s *CachedSeriesStore) Close() error {
	return s.next.Close()
}

func readThrough[T any](ctx context.Context, s *CachedSeriesStore, op, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var cached T
	err := s.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		s.recordCache(op, true)
		return cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.l.Warn("series cache get error", applogger.String("key", key), applogger.Error(err))
	}
	s.recordCache(op, false)

	v, err := load()
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v, ttl); err != nil {
		s.l.Warn("series cache set error", applogger.String("key", key), applogger.Error(err))
	}
	return v, nil
}

func (s *CachedSeriesStore) recordCache(op string, hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCache(op, hit)
	}
}
