// Package handlers binds the engine services to the HTTP API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/logger"
)

// serviceError maps a service error onto the wire: not-found → 404,
// invalid-argument → 400, everything else → 500. The error message
// travels in the body so workers and the CLI can surface it as-is.
func serviceError(c echo.Context, log *logger.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		log.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": msg})
}
