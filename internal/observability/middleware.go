package observability

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Middleware returns an echo middleware recording per-request metrics:
// request counter with method/path/status-class labels and a duration
// histogram with method/path labels.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				// The error handler has not run yet; classify from the error
				// when possible so the counter does not under-report failures.
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}

			statusClass := strconv.Itoa(status/100) + "xx"
			RequestsTotal.WithLabelValues(c.Request().Method, path, statusClass).Inc()
			RequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
