package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderAPIKey carries the API key on HTTP requests.
const HeaderAPIKey = "X-API-Key"

// KeyChecker reports whether a token is an accepted API key.
type KeyChecker interface {
	Contains(token string) bool
}

// APIKey creates a middleware that protects routes behind a static API key,
// read from the X-API-Key header or, failing that, the "token" query parameter.
func APIKey(keys KeyChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(HeaderAPIKey)
			if token == "" {
				token = c.QueryParam("token")
			}

			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "missing API key",
				})
			}
			if !keys.Contains(token) {
				FromContext(c.Request().Context()).Warn("Rejected request with invalid API key", "path", c.Path())
				return c.JSON(http.StatusForbidden, map[string]any{
					"success": false,
					"error":   "invalid API key",
				})
			}
			return next(c)
		}
	}
}
