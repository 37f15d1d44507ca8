package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	applogger "CoinDash/pkg/logger"
	pkgpg "CoinDash/pkg/postgres"
	"CoinDash/pkg/util"
)

// PGSeriesStore implements SeriesStore on the Supabase Postgres schema, where
// each series table holds one jsonb {symbol: value} object per date.
type PGSeriesStore struct {
	db  *sql.DB
	obs storeObserver
	now func() time.Time
}

func NewPGSeriesStore(pg *pkgpg.Client, m domrepo.Metrics) *PGSeriesStore {
	return &PGSeriesStore{
		db:  pg.DB(),
		obs: storeObserver{backend: "postgres", metrics: m},
		now: time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *PGSeriesStore) SetLogger(l *applogger.Logger) { s.obs.l = l }

func (s *PGSeriesStore) GetSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	table := kind.Table()
	defer func() {
		s.obs.done("get_series", start, err, applogger.String("table", table), applogger.Int("rows", len(out)))
	}()

	q := fmt.Sprintf(`SELECT date, prices FROM %s WHERE date >= $1 AND date <= $2 ORDER BY date ASC`, table)
	return s.queryPoints(ctx, q, from, to, func(raw []byte) (map[string]float64, error) {
		return decodeValues(raw, symbols)
	})
}

func (s *PGSeriesStore) GetIndicator(ctx context.Context, name, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("get_indicator", start, err, applogger.String("indicator", name), applogger.Int("rows", len(out)))
	}()

	const q = `SELECT date, data FROM indicators WHERE date >= $1 AND date <= $2 ORDER BY date ASC`
	return s.queryPoints(ctx, q, from, to, func(raw []byte) (map[string]float64, error) {
		return decodeIndicatorValues(raw, name, symbols)
	})
}

func (s *PGSeriesStore) queryPoints(ctx context.Context, q, from, to string, decode func([]byte) (map[string]float64, error)) ([]models.TimePoint, error) {
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, upstream("query", err)
	}
	defer rows.Close()

	out := make([]models.TimePoint, 0, 256)
	for rows.Next() {
		var (
			date time.Time
			raw  []byte
		)
		if err := rows.Scan(&date, &raw); err != nil {
			return nil, upstream("scan", err)
		}
		values, err := decode(raw)
		if err != nil {
			return nil, upstream("decode", err)
		}
		out = append(out, models.TimePoint{Date: util.FormatDate(date), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("rows", err)
	}
	return out, nil
}

func (s *PGSeriesStore) ListCoins(ctx context.Context, scope models.CoinScope) (out []string, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_coins", start, err, applogger.String("scope", string(scope)), applogger.Int("coins", len(out)))
	}()

	if scope == models.ScopeAll {
		return s.trackedCoins(ctx)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT rankings FROM crypto_rankings ORDER BY date DESC LIMIT 1`).Scan(&raw)
	switch {
	case err == nil:
		out, err = rankedSymbols(raw)
		if err != nil {
			return nil, upstream("rankings", err)
		}
		return out, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, upstream("rankings", err)
	}

	// No rankings yet: fall back to whatever the latest price row carries.
	err = s.db.QueryRowContext(ctx, `SELECT prices FROM crypto_prices ORDER BY date DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNoData
	}
	if err != nil {
		return nil, upstream("latest prices", err)
	}
	out, err = sortedKeys(raw)
	if err != nil {
		return nil, upstream("latest prices", err)
	}
	return out, nil
}

func (s *PGSeriesStore) trackedCoins(ctx context.Context) ([]string, error) {
	cutoff := util.FormatDate(s.now().Add(-trackedCoinWindow))
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM tracked_coins WHERE last_in_top100 >= $1 ORDER BY symbol`, cutoff)
	if err != nil {
		return nil, upstream("tracked coins", err)
	}
	defer rows.Close()

	out := make([]string, 0, 128)
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, upstream("tracked coins scan", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("tracked coins rows", err)
	}
	return out, nil
}

func (s *PGSeriesStore) ListIndicators(ctx context.Context) (cat models.IndicatorCatalog, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_indicators", start, err, applogger.Int("indicators", len(cat.Indicators)))
	}()

	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM indicators ORDER BY date DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return catalogFromSnapshot(nil)
	}
	if err != nil {
		return cat, upstream("latest indicators", err)
	}
	cat, err = catalogFromSnapshot(raw)
	if err != nil {
		return cat, upstream("latest indicators", err)
	}
	return cat, nil
}

func (s *PGSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGSeriesStore) Close() error {
	return s.db.Close()
}
