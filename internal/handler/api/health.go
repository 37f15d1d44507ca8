package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports the state of the series store and the cache.
type HealthHandler struct {
	logger  *applogger.Logger
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthHandler(logger *applogger.Logger, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks, timeout: 3 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := xhttp.HealthStatus{Status: "ok", Components: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", applogger.String("component", name), applogger.Error(err))
			status.Status = "degraded"
			status.Components[name] = err.Error()
			continue
		}
		status.Components[name] = "ok"
	}

	if status.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}
