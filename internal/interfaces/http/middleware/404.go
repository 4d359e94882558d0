package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NoRouteMatched strip the framework's default body from unknown-path
// responses, clients get a bare 404
func NoRouteMatched() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if httpErr, ok := err.(*echo.HTTPError); ok && httpErr.Code == http.StatusNotFound {
				return c.NoContent(http.StatusNotFound)
			}
			return err
		}
	}
}
