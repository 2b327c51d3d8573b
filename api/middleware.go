package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// GzipRequestMiddleware inflates request bodies sent with
// Content-Encoding: gzip. A stream that fails before the handler runs is
// rejected with 400; decodeBody caps the inflated size.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	inflate := middleware.DecompressWithConfig(middleware.DecompressConfig{})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reached := false
			err := inflate(func(c echo.Context) error {
				reached = true
				return next(c)
			})(c)
			if err != nil && !reached {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			return err
		}
	}
}
