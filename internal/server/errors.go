package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// setupErrorHandling installs a central error handler. Errors that are not
// *echo.HTTPError are unexpected and are logged with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			slog.ErrorContext(c.Request().Context(), "Internal Server Error (Unhandled)",
				"error", err.Error(),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
			he = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}

		if c.Response().Committed {
			return
		}

		msg := he.Message
		if m, ok := msg.(string); ok {
			msg = map[string]any{"success": false, "error": m}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, msg)
		}
		if err != nil {
			slog.Error("Failed to write error response", "error", err)
		}
	}
}
