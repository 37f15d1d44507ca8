package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	pkgch "CoinDash/pkg/clickhouse"
	applogger "CoinDash/pkg/logger"
	"CoinDash/pkg/util"
)

// CHSchema is the DDL for the long-format ClickHouse tables. Every statement
// is idempotent.
var CHSchema = []string{
	seriesDDL("crypto_prices"),
	seriesDDL("crypto_market_caps"),
	seriesDDL("crypto_volumes"),
	`CREATE TABLE IF NOT EXISTS crypto_rankings (
        date Date,
        symbol LowCardinality(String),
        rank UInt32
    ) ENGINE = ReplacingMergeTree ORDER BY (date, symbol)`,
	`CREATE TABLE IF NOT EXISTS tracked_coins (
        symbol String,
        last_in_top100 Date
    ) ENGINE = ReplacingMergeTree(last_in_top100) ORDER BY symbol`,
	`CREATE TABLE IF NOT EXISTS indicators (
        date Date,
        symbol LowCardinality(String),
        name LowCardinality(String),
        value Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (name, date, symbol)`,
}

func seriesDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        date Date,
        symbol LowCardinality(String),
        value Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (date, symbol)`, table)
}

// CHSeriesStore implements SeriesStore backed by ClickHouse.
type CHSeriesStore struct {
	db  *sql.DB
	obs storeObserver
	now func() time.Time
}

func NewCHSeriesStore(ch *pkgch.Client, m domrepo.Metrics) *CHSeriesStore {
	return &CHSeriesStore{
		db:  ch.DB(),
		obs: storeObserver{backend: "clickhouse", metrics: m},
		now: time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *CHSeriesStore) SetLogger(l *applogger.Logger) { s.obs.l = l }

func (s *CHSeriesStore) GetSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	table := kind.Table()
	defer func() {
		s.obs.done("get_series", start, err, applogger.String("table", table), applogger.Int("rows", len(out)))
	}()

	q, args := seriesPivotQuery(table, from, to, symbols)
	return s.queryPivot(ctx, q, args...)
}

func (s *CHSeriesStore) GetIndicator(ctx context.Context, name, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("get_indicator", start, err, applogger.String("indicator", name), applogger.Int("rows", len(out)))
	}()

	q, args := indicatorPivotQuery(name, from, to, symbols)
	return s.queryPivot(ctx, q, args...)
}

// seriesPivotQuery selects one (date, symbols[], values[]) row per date.
// FINAL collapses unmerged ReplacingMergeTree parts so each symbol appears
// once per date.
func seriesPivotQuery(table, from, to string, symbols []string) (string, []any) {
	if len(symbols) == 0 {
		const qtpl = `
        SELECT toString(date), groupArray(symbol), groupArray(value)
        FROM %s FINAL
        WHERE date >= toDate(?) AND date <= toDate(?)
        GROUP BY date
        ORDER BY date ASC
    `
		return fmt.Sprintf(qtpl, table), []any{from, to}
	}
	// groupArrayIf keeps dates where none of the symbols traded.
	const qtpl = `
        SELECT toString(date), groupArrayIf(symbol, has(?, symbol)), groupArrayIf(value, has(?, symbol))
        FROM %s FINAL
        WHERE date >= toDate(?) AND date <= toDate(?)
        GROUP BY date
        ORDER BY date ASC
    `
	return fmt.Sprintf(qtpl, table), []any{symbols, symbols, from, to}
}

func indicatorPivotQuery(name, from, to string, symbols []string) (string, []any) {
	if len(symbols) == 0 {
		return `
        SELECT toString(date), groupArrayIf(symbol, name = ?), groupArrayIf(value, name = ?)
        FROM indicators FINAL
        WHERE date >= toDate(?) AND date <= toDate(?)
        GROUP BY date
        ORDER BY date ASC
    `, []any{name, name, from, to}
	}
	return `
        SELECT toString(date),
               groupArrayIf(symbol, name = ? AND has(?, symbol)),
               groupArrayIf(value, name = ? AND has(?, symbol))
        FROM indicators FINAL
        WHERE date >= toDate(?) AND date <= toDate(?)
        GROUP BY date
        ORDER BY date ASC
    `, []any{name, symbols, name, symbols, from, to}
}

// queryPivot scans (date, symbols[], values[]) rows into TimePoints.
func (s *CHSeriesStore) queryPivot(ctx context.Context, q string, args ...any) ([]models.TimePoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, upstream("query", err)
	}
	defer rows.Close()

	out := make([]models.TimePoint, 0, 256)
	for rows.Next() {
		var (
			date   string
			syms   []string
			values []float64
		)
		if err := rows.Scan(&date, &syms, &values); err != nil {
			return nil, upstream("scan", err)
		}
		out = append(out, models.TimePoint{Date: date, Values: pivot(syms, values)})
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("rows", err)
	}
	return out, nil
}

func pivot(syms []string, values []float64) map[string]float64 {
	m := make(map[string]float64, len(syms))
	for i, sym := range syms {
		if i >= len(values) {
			break
		}
		m[sym] = values[i]
	}
	return m
}

func (s *CHSeriesStore) ListCoins(ctx context.Context, scope models.CoinScope) (out []string, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_coins", start, err, applogger.String("scope", string(scope)), applogger.Int("coins", len(out)))
	}()

	if scope == models.ScopeAll {
		cutoff := util.FormatDate(s.now().Add(-trackedCoinWindow))
		return s.querySymbols(ctx, `
        SELECT symbol
        FROM tracked_coins FINAL
        WHERE last_in_top100 >= toDate(?)
        ORDER BY symbol ASC
    `, cutoff)
	}

	out, err = s.querySymbols(ctx, `
        SELECT symbol
        FROM crypto_rankings FINAL
        WHERE date = (SELECT max(date) FROM crypto_rankings)
        ORDER BY rank ASC, symbol ASC
    `)
	if err != nil || len(out) > 0 {
		return out, err
	}

	// No rankings yet: fall back to the symbols of the latest price date.
	out, err = s.querySymbols(ctx, `
        SELECT DISTINCT symbol
        FROM crypto_prices
        WHERE date = (SELECT max(date) FROM crypto_prices)
        ORDER BY symbol ASC
    `)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domrepo.ErrNoData
	}
	return out, nil
}

func (s *CHSeriesStore) querySymbols(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, upstream("query", err)
	}
	defer rows.Close()

	out := make([]string, 0, 128)
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, upstream("scan", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("rows", err)
	}
	return out, nil
}

func (s *CHSeriesStore) ListIndicators(ctx context.Context) (cat models.IndicatorCatalog, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_indicators", start, err, applogger.Int("indicators", len(cat.Indicators)))
	}()

	const q = `
        SELECT symbol, groupUniqArray(name)
        FROM indicators
        WHERE date = (SELECT max(date) FROM indicators)
        GROUP BY symbol
    `
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return cat, upstream("query", err)
	}
	defer rows.Close()

	pairs := make(map[string][]string)
	for rows.Next() {
		var (
			sym   string
			names []string
		)
		if err := rows.Scan(&sym, &names); err != nil {
			return cat, upstream("scan", err)
		}
		pairs[sym] = names
	}
	if err := rows.Err(); err != nil {
		return cat, upstream("rows", err)
	}
	return catalogFromPairs(pairs), nil
}

func (s *CHSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSeriesStore) Close() error {
	return s.db.Close()
}
