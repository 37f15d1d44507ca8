package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/internal/repository"
	"CoinDash/internal/usecase"
	"CoinDash/pkg/cache"
	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"
	"CoinDash/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore serves three days of BTC and ETH data.
type stubStore struct {
	err error
}

func (s *stubStore) GetSeries(_ context.Context, kind models.SeriesKind, from, to string, symbols []string) ([]models.TimePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	base := map[models.SeriesKind]map[string]float64{
		models.SeriesPrices:     {"BTC": 100, "ETH": 10},
		models.SeriesMarketCaps: {"BTC": 1000, "ETH": 500},
		models.SeriesVolumes:    {"BTC": 7, "ETH": 3},
	}[kind]
	var out []models.TimePoint
	for i, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		if d < from || d > to {
			continue
		}
		vals := map[string]float64{}
		for _, sym := range symbols {
			if v, ok := base[sym]; ok {
				vals[sym] = v + float64(i)
			}
		}
		out = append(out, models.TimePoint{Date: d, Values: vals})
	}
	return out, nil
}

func (s *stubStore) ListCoins(context.Context, models.CoinScope) ([]string, error) {
	return []string{"BTC", "ETH"}, s.err
}

func (s *stubStore) ListIndicators(context.Context) (models.IndicatorCatalog, error) {
	return models.IndicatorCatalog{
		Indicators:   []string{"rsi"},
		Coins:        []string{"BTC"},
		Combinations: []models.IndicatorCombination{{Coin: "BTC", Indicators: []string{"rsi"}}},
	}, s.err
}

func (s *stubStore) GetIndicator(_ context.Context, name, from, to string, symbols []string) ([]models.TimePoint, error) {
	return []models.TimePoint{{Date: "2024-01-02", Values: map[string]float64{"BTC": 55}}}, s.err
}

func (s *stubStore) Health(context.Context) error { return s.err }
func (s *stubStore) Close() error                 { return nil }

type testServer struct {
	e     *echo.Echo
	store *stubStore
}

func newTestServer(t *testing.T, limiter echo.MiddlewareFunc) *testServer {
	t.Helper()
	store := &stubStore{}
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })

	dash := usecase.NewDashboardUseCase(store, usecase.DashboardConfig{
		DefaultCoins: []string{"BTC", "ETH"},
		DefaultStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Earliest:     time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxRangeDays: 1500,
		MaxCoins:     3,
	})
	m := metrics.Nop{}
	events := repository.NewLocalMetricEvents(nil, m)
	mu := usecase.NewMetricsUseCase(repository.NewCacheMetricStore(c), store, dash, events, c, time.Minute, m, nil)

	e := echo.New()
	NewRouter(
		NewDashboardEchoHandler(applogger.Nop(), dash),
		NewMetricsEchoHandler(applogger.Nop(), mu, limiter),
		NewHealthHandler(applogger.Nop(), map[string]HealthCheck{"store": store.Health}),
	).RegisterRoutes(e)
	return &testServer{e: e, store: store}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, rec.Code, env.Status)
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
}

func TestDashboard_PricesAreBareRows(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/api/crypto/prices?start=2024-01-01&end=2024-01-02&coins=btc,DOGE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get(echo.HeaderCacheControl))
	assert.JSONEq(t, `[{"date":"2024-01-01","BTC":100},{"date":"2024-01-02","BTC":101}]`, rec.Body.String())
}

func TestDashboard_InvalidQueryIsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodGet, "/api/crypto/volumes?range=2w", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/crypto/prices?start=2024-02-01&end=2024-01-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/crypto/prices?coins=A,B,C,D", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard_UpstreamFailureIs502(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.err = fmt.Errorf("%w: connection refused", domrepo.ErrUpstream)

	rec := s.do(http.MethodGet, "/api/crypto/coins", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDashboard_CoinsStatsAndIndicators(t *testing.T) {
	s := newTestServer(t, nil)

	var coins []string
	rec := s.do(http.MethodGet, "/api/crypto/coins?scope=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &coins)
	assert.Equal(t, []string{"BTC", "ETH"}, coins)

	var stats []models.CoinStats
	rec = s.do(http.MethodGet, "/api/crypto/stats?start=2024-01-01&end=2024-01-03&coins=ETH", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, "ETH", stats[0].Symbol)
	assert.InDelta(t, 2, stats[0].Change, 1e-9)
	assert.InDelta(t, 20, stats[0].ChangePercent, 1e-9)

	var cat models.IndicatorCatalog
	rec = s.do(http.MethodGet, "/api/indicators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cat)
	assert.Equal(t, []string{"rsi"}, cat.Indicators)

	rec = s.do(http.MethodGet, "/api/indicators/macd", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var rows []models.ChartRow
	rec = s.do(http.MethodGet, "/api/indicators/rsi?start=2024-01-01&end=2024-01-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &rows)
	require.Len(t, rows, 1)
	v, ok := rows[0].Value("BTC")
	require.True(t, ok)
	assert.Equal(t, 55.0, *v)
}

func TestMetrics_CRUD(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/metrics", `{"name":"Double","formula":"price * 2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.MetricDefinition
	decodeData(t, rec, &created)
	assert.Equal(t, "Double", created.Name)
	require.NotEmpty(t, created.ID)

	rec = s.do(http.MethodPost, "/api/metrics", `{"name":"double","formula":"price"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/metrics", `{"name":"broken","formula":"price +"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/metrics", `{"name":"","formula":"price"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var list xhttp.ListDataResponse
	rec = s.do(http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &list)
	assert.Equal(t, int64(1), list.Total)

	rec = s.do(http.MethodGet, "/api/metrics/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/api/metrics/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/api/metrics/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_EvaluateAndPreview(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/metrics", `{"name":"Double","formula":"price * 2"}`).Code)

	rec := s.do(http.MethodPost, "/api/metrics/evaluate",
		`{"start":"2024-01-01","end":"2024-01-02","coins":["BTC"],"metrics":["Double"],"formulas":[{"name":"ratio","formula":"custom_Double / volume"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.EvaluationResult
	decodeData(t, rec, &res)
	assert.Equal(t, models.DateRange{Start: "2024-01-01", End: "2024-01-02"}, res.Range)
	require.Len(t, res.Metrics["Double"], 2)
	v, _ := res.Metrics["Double"][1].Value("BTC")
	require.NotNil(t, v)
	assert.Equal(t, 202.0, *v)
	v, _ = res.Metrics["ratio"][0].Value("BTC")
	require.NotNil(t, v)
	assert.InDelta(t, 200.0/7, *v, 1e-9)

	rec = s.do(http.MethodPost, "/api/metrics/evaluate", `{"metrics":["missing"]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/metrics/preview", `{"start":"2024-01-01","end":"2024-01-03","formula":"price - 100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var prev models.PreviewResult
	decodeData(t, rec, &prev)
	assert.Equal(t, "BTC", prev.Coin)
	assert.Empty(t, prev.Error)
	require.Len(t, prev.Points, 3)
	require.NotNil(t, prev.Points[2].Value)
	assert.Equal(t, 2.0, *prev.Points[2].Value)

	rec = s.do(http.MethodPost, "/api/metrics/preview", `{"formula":"price *"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &prev)
	assert.NotEmpty(t, prev.Error)
	assert.Empty(t, prev.Points)
}

func TestMetrics_LimiterGuardsEvaluate(t *testing.T) {
	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return xhttp.TooManyRequestsResponse(c, "slow down")
		}
	}
	s := newTestServer(t, deny)

	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/metrics/evaluate", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/metrics/preview", `{"formula":"price"}`).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/metrics", "").Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	var status xhttp.HealthStatus
	rec := s.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &status)
	assert.Equal(t, "ok", status.Status)

	s.store.err = errors.New("down")
	rec = s.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decodeData(t, rec, &status)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Components["store"])
}

func TestAppError_Mapping(t *testing.T) {
	cases := map[error]int{
		domrepo.ErrNoData:              http.StatusNotFound,
		domrepo.ErrMetricNotFound:      http.StatusNotFound,
		domrepo.ErrIndicatorNotFound:   http.StatusNotFound,
		domrepo.ErrDuplicateMetricName: http.StatusConflict,
		domrepo.ErrMetricInUse:         http.StatusConflict,
		domrepo.ErrInvalidFormula:      http.StatusBadRequest,
		domrepo.ErrInvalidMetric:       http.StatusBadRequest,
		domrepo.ErrInvalidRange:        http.StatusBadRequest,
		domrepo.ErrTooManyCoins:        http.StatusBadRequest,
		domrepo.ErrUpstream:            http.StatusBadGateway,
	}
	for in, want := range cases {
		var ae *xhttp.AppError
		require.True(t, errors.As(appError(fmt.Errorf("op: %w", in)), &ae), in.Error())
		assert.Equal(t, want, ae.Status, in.Error())
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, appError(plain))
}
