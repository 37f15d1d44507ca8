package api

import (
	"CoinDash/internal/domain/models"
	"CoinDash/internal/usecase"
	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MetricsEchoHandler serves the saved-metric CRUD, evaluation and preview.
type MetricsEchoHandler struct {
	logger  *applogger.Logger
	uc      *usecase.MetricsUseCase
	limiter echo.MiddlewareFunc
}

// NewMetricsEchoHandler builds the handler. limiter guards evaluate and
// preview; nil disables it.
func NewMetricsEchoHandler(logger *applogger.Logger, uc *usecase.MetricsUseCase, limiter echo.MiddlewareFunc) *MetricsEchoHandler {
	return &MetricsEchoHandler{logger: logger, uc: uc, limiter: limiter}
}

func (h *MetricsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/metrics")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)

	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, h.limiter)
	}
	g.POST("/evaluate", h.Evaluate, mw...)
	g.POST("/preview", h.Preview, mw...)
}

func (h *MetricsEchoHandler) List(c echo.Context) error {
	ms, err := h.uc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list metrics", err)
	}
	return xhttp.ListResponse(c, ms, int64(len(ms)))
}

func (h *MetricsEchoHandler) Get(c echo.Context) error {
	req := &models.MetricIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m, err := h.uc.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get metric", err)
	}
	return xhttp.SuccessResponse(c, m)
}

func (h *MetricsEchoHandler) Create(c echo.Context) error {
	req := &models.CreateMetricRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	m, err := h.uc.Create(c.Request().Context(), usecase.CreateMetricParams{
		Name:        req.Name,
		Formula:     req.Formula,
		Description: req.Description,
	})
	if err != nil {
		return h.fail(c, "create metric", err)
	}
	h.logger.Info("metric created", applogger.String("metric_id", m.ID), applogger.String("name", m.Name))
	return xhttp.CreatedResponse(c, m)
}

func (h *MetricsEchoHandler) Delete(c echo.Context) error {
	req := &models.MetricIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.uc.Delete(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "delete metric", err)
	}
	h.logger.Info("metric deleted", applogger.String("metric_id", req.ID))
	return xhttp.NoContentResponse(c)
}

func (h *MetricsEchoHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	inline := make([]usecase.InlineFormula, len(req.Formulas))
	for i, f := range req.Formulas {
		inline[i] = usecase.InlineFormula{Name: f.Name, Formula: f.Formula}
	}
	res, err := h.uc.Evaluate(c.Request().Context(), usecase.EvaluateParams{
		Range:    rangeParams(req.RangeQuery),
		Coins:    req.Coins,
		Metrics:  req.Metrics,
		Formulas: inline,
	})
	if err != nil {
		return h.fail(c, "evaluate", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MetricsEchoHandler) Preview(c echo.Context) error {
	req := &models.PreviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Preview(c.Request().Context(), usecase.PreviewParams{
		Range:   rangeParams(req.RangeQuery),
		Formula: req.Formula,
		Coin:    req.Coin,
	})
	if err != nil {
		return h.fail(c, "preview", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MetricsEchoHandler) fail(c echo.Context, op string, err error) error {
	return errorResponse(c, h.logger, op, err)
}
