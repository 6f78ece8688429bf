// Package routes binds the HTTP API surface to the engine services.
package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
)

// Register registers every API route plus the health probe.
func Register(e *echo.Echo, c *container.Container) {
	RegisterWorkflowRoutes(e, c)
	RegisterExecutionRoutes(e, c)
	RegisterTaskRoutes(e, c)
	RegisterApprovalRoutes(e, c)

	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": c.Components.Config.Service.Name,
		})
	})
}
