package middleware

import (
	"time"

	applogger "CoinDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests. 5xx responses are logged as errors and
// requests slower than slow as warnings; everything else at debug.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is the real one.
				c.Error(err)
			}

			latency := time.Since(start)
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeLabel(c)),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", latency),
				applogger.Int64("bytes", res.Size),
			}

			switch {
			case res.Status >= 500:
				if err != nil {
					fields = append(fields, applogger.Error(err))
				}
				l.Error("http request failed", fields...)
			case slow > 0 && latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}

			return nil
		}
	}
}
