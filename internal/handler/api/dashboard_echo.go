package api

import (
	"time"

	"CoinDash/internal/domain/models"
	"CoinDash/internal/usecase"
	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"
	"CoinDash/pkg/util"

	"github.com/labstack/echo/v4"
)

// DashboardEchoHandler serves market series, coin lists and indicators.
type DashboardEchoHandler struct {
	logger *applogger.Logger
	uc     *usecase.DashboardUseCase
}

func NewDashboardEchoHandler(logger *applogger.Logger, uc *usecase.DashboardUseCase) *DashboardEchoHandler {
	return &DashboardEchoHandler{logger: logger, uc: uc}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/crypto")
	g.GET("/prices", h.series(models.SeriesPrices))
	g.GET("/market-caps", h.series(models.SeriesMarketCaps))
	g.GET("/volumes", h.series(models.SeriesVolumes))
	g.GET("/coins", h.Coins)
	g.GET("/stats", h.Stats)

	ind := e.Group("/api/indicators")
	ind.GET("", h.Indicators)
	ind.GET("/:name", h.Indicator)
}

func rangeParams(q models.RangeQuery) usecase.RangeParams {
	return usecase.RangeParams{Start: q.Start, End: q.End, Range: q.Range}
}

// series answers with a bare JSON array of chart rows, the shape the charts
// consume directly.
func (h *DashboardEchoHandler) series(kind models.SeriesKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := &models.SeriesRequest{}
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}

		res, err := h.uc.Series(c.Request().Context(), usecase.SeriesParams{
			Kind:  kind,
			Range: rangeParams(req.RangeQuery),
			Coins: util.SplitCoins(req.Coins),
		})
		if err != nil {
			return h.fail(c, string(kind), err)
		}
		c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=60")
		return xhttp.RawResponse(c, res.Rows)
	}
}

func (h *DashboardEchoHandler) Coins(c echo.Context) error {
	req := &models.CoinsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	coins, err := h.uc.Coins(c.Request().Context(), models.CoinScope(req.Scope))
	if err != nil {
		return h.fail(c, "coins", err)
	}
	return xhttp.SuccessResponse(c, coins)
}

func (h *DashboardEchoHandler) Stats(c echo.Context) error {
	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	stats, err := h.uc.Stats(c.Request().Context(), usecase.SeriesParams{
		Kind:  models.SeriesKind(req.Type),
		Range: rangeParams(req.RangeQuery),
		Coins: util.SplitCoins(req.Coins),
	})
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *DashboardEchoHandler) Indicators(c echo.Context) error {
	cat, err := h.uc.Indicators(c.Request().Context())
	if err != nil {
		return h.fail(c, "indicators", err)
	}
	return xhttp.SuccessResponse(c, cat)
}

func (h *DashboardEchoHandler) Indicator(c echo.Context) error {
	start := time.Now()
	req := &models.IndicatorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Indicator(c.Request().Context(), req.Name, rangeParams(req.RangeQuery), util.SplitCoins(req.Coins))
	if err != nil {
		return h.fail(c, "indicator", err)
	}
	h.logger.Debug("indicator served",
		applogger.String("indicator", req.Name),
		applogger.Int("rows", len(res.Rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return xhttp.SuccessResponse(c, res.Rows)
}

func (h *DashboardEchoHandler) fail(c echo.Context, op string, err error) error {
	return errorResponse(c, h.logger, op, err)
}
