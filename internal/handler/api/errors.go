package api

import (
	"errors"

	domrepo "CoinDash/internal/domain/repository"
	xhttp "CoinDash/pkg/http"
	applogger "CoinDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// appError maps domain errors onto HTTP application errors. Anything
// unrecognised is left as is and renders as a 500.
func appError(err error) error {
	var ae *xhttp.AppError
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, domrepo.ErrNoData):
		return xhttp.NotFoundError("no data found").WithError(err)
	case errors.Is(err, domrepo.ErrMetricNotFound):
		return xhttp.NotFoundError("metric not found").WithError(err)
	case errors.Is(err, domrepo.ErrIndicatorNotFound):
		return xhttp.NotFoundError("indicator not found").WithError(err)
	case errors.Is(err, domrepo.ErrDuplicateMetricName), errors.Is(err, domrepo.ErrMetricInUse):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrInvalidFormula),
		errors.Is(err, domrepo.ErrInvalidMetric),
		errors.Is(err, domrepo.ErrInvalidRange),
		errors.Is(err, domrepo.ErrTooManyCoins):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrUpstream):
		return xhttp.UpstreamError("upstream data store unavailable").WithError(err)
	}
	return err
}

// errorResponse logs err at a level matching its cause and renders it.
func errorResponse(c echo.Context, l *applogger.Logger, op string, err error) error {
	err = appError(err)
	if isClientError(err) {
		l.Debug(op+" rejected", applogger.Error(err))
	} else {
		l.Error(op+" usecase error", applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err)
}

// isClientError reports whether err is the caller's fault and needs no
// error-level log.
func isClientError(err error) bool {
	var ae *xhttp.AppError
	return errors.As(err, &ae) && ae.Status < 500
}
