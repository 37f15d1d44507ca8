package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"
	"CoinDash/pkg/util"
)

// restPageSize matches PostgREST's default max-rows on Supabase. A server
// with a lower max-rows returns shorter pages; paging follows the rows
// actually returned.
const restPageSize = 1000

// RESTSeriesStore implements SeriesStore through Supabase's PostgREST API.
type RESTSeriesStore struct {
	client *xhttp.Client
	obs    storeObserver
	now    func() time.Time
}

// NewRESTSeriesStore builds a store for the project at baseURL
// (https://<ref>.supabase.co) authenticated with apiKey.
func NewRESTSeriesStore(baseURL, apiKey string, timeout time.Duration, m domrepo.Metrics) *RESTSeriesStore {
	client := xhttp.NewClient(
		xhttp.WithBaseURL(strings.TrimRight(baseURL, "/")+"/rest/v1/"),
		xhttp.WithHeader("apikey", apiKey),
		xhttp.WithHeader("Authorization", "Bearer "+apiKey),
		xhttp.WithHeader("Accept", "application/json"),
		xhttp.WithTimeout(timeout),
	)
	return &RESTSeriesStore{
		client: client,
		obs:    storeObserver{backend: "postgrest", metrics: m},
		now:    time.Now,
	}
}

// SetLogger injects a structured logger.
func (s *RESTSeriesStore) SetLogger(l *applogger.Logger) { s.obs.l = l }

type restRow struct {
	Date     string          `json:"date"`
	Prices   json.RawMessage `json:"prices"`
	Data     json.RawMessage `json:"data"`
	Rankings json.RawMessage `json:"rankings"`
}

func (s *RESTSeriesStore) GetSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	table := kind.Table()
	defer func() {
		s.obs.done("get_series", start, err, applogger.String("table", table), applogger.Int("rows", len(out)))
	}()

	rows, err := s.fetchRange(ctx, table, "date,prices", from, to)
	if err != nil {
		return nil, err
	}
	out = make([]models.TimePoint, 0, len(rows))
	for _, r := range rows {
		values, err := decodeValues(r.Prices, symbols)
		if err != nil {
			return nil, upstream("decode", err)
		}
		out = append(out, models.TimePoint{Date: r.Date, Values: values})
	}
	return out, nil
}

func (s *RESTSeriesStore) GetIndicator(ctx context.Context, name, from, to string, symbols []string) (out []models.TimePoint, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("get_indicator", start, err, applogger.String("indicator", name), applogger.Int("rows", len(out)))
	}()

	rows, err := s.fetchRange(ctx, "indicators", "date,data", from, to)
	if err != nil {
		return nil, err
	}
	out = make([]models.TimePoint, 0, len(rows))
	for _, r := range rows {
		values, err := decodeIndicatorValues(r.Data, name, symbols)
		if err != nil {
			return nil, upstream("decode", err)
		}
		out = append(out, models.TimePoint{Date: r.Date, Values: values})
	}
	return out, nil
}

// fetchRange pages through table for dates in [from, to], ascending. The
// exact row count from Content-Range ends the walk; without one it stops at
// the first empty page.
func (s *RESTSeriesStore) fetchRange(ctx context.Context, table, columns, from, to string) ([]restRow, error) {
	var all []restRow
	total := -1
	for offset := 0; total < 0 || offset < total; {
		var page []restRow
		header, err := s.client.SendAndParseHeader(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodGet,
			URL:     table,
			Headers: map[string]string{"Prefer": "count=exact"},
			QueryParams: map[string][]string{
				"select": {columns},
				"date":   {"gte." + from, "lte." + to},
				"order":  {"date.asc"},
				"limit":  {strconv.Itoa(restPageSize)},
				"offset": {strconv.Itoa(offset)},
			},
		}, &page)
		if err != nil {
			return nil, upstream(table, err)
		}
		all = append(all, page...)
		if len(page) == 0 {
			break
		}
		offset += len(page)
		if n, ok := contentRangeTotal(header.Get("Content-Range")); ok {
			total = n
		}
	}
	return all, nil
}

// contentRangeTotal reads the total from a "0-999/2345" Content-Range.
// An unknown total ("*") reports false.
func contentRangeTotal(v string) (int, bool) {
	_, total, ok := strings.Cut(v, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// latest returns the newest row of table, or nil when the table is empty.
func (s *RESTSeriesStore) latest(ctx context.Context, table, columns string) (*restRow, error) {
	var rows []restRow
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    table,
		QueryParams: map[string][]string{
			"select": {columns},
			"order":  {"date.desc"},
			"limit":  {"1"},
		},
	}, &rows)
	if err != nil {
		return nil, upstream(table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *RESTSeriesStore) ListCoins(ctx context.Context, scope models.CoinScope) (out []string, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_coins", start, err, applogger.String("scope", string(scope)), applogger.Int("coins", len(out)))
	}()

	if scope == models.ScopeAll {
		var rows []struct {
			Symbol string `json:"symbol"`
		}
		err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    "tracked_coins",
			QueryParams: map[string][]string{
				"select":         {"symbol"},
				"last_in_top100": {"gte." + util.FormatDate(s.now().Add(-trackedCoinWindow))},
				"order":          {"symbol.asc"},
			},
		}, &rows)
		if err != nil {
			return nil, upstream("tracked_coins", err)
		}
		out = make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.Symbol)
		}
		return out, nil
	}

	row, err := s.latest(ctx, "crypto_rankings", "date,rankings")
	if err != nil {
		return nil, err
	}
	if row != nil {
		out, err = rankedSymbols(row.Rankings)
		if err != nil {
			return nil, upstream("rankings", err)
		}
		return out, nil
	}

	row, err = s.latest(ctx, "crypto_prices", "date,prices")
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domrepo.ErrNoData
	}
	out, err = sortedKeys(row.Prices)
	if err != nil {
		return nil, upstream("latest prices", err)
	}
	return out, nil
}

func (s *RESTSeriesStore) ListIndicators(ctx context.Context) (cat models.IndicatorCatalog, err error) {
	start := time.Now()
	defer func() {
		s.obs.done("list_indicators", start, err, applogger.Int("indicators", len(cat.Indicators)))
	}()

	row, err := s.latest(ctx, "indicators", "date,data")
	if err != nil {
		return cat, err
	}
	if row == nil {
		return catalogFromSnapshot(nil)
	}
	cat, err = catalogFromSnapshot(row.Data)
	if err != nil {
		return cat, upstream("latest indicators", err)
	}
	return cat, nil
}

// Health asks PostgREST for a single price date.
func (s *RESTSeriesStore) Health(ctx context.Context) error {
	_, err := s.latest(ctx, "crypto_prices", "date")
	return err
}

func (s *RESTSeriesStore) Close() error { return nil }
