package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/handlers"
)

// RegisterExecutionRoutes registers execution lifecycle routes
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExecutionHandler(c)

	ex := e.Group("/api/v1/executions")
	{
		ex.POST("", h.StartExecution)                       // POST /api/v1/executions
		ex.GET("", h.ListExecutions)                        // GET /api/v1/executions?status=RUNNING
		ex.GET("/:execution_id", h.GetStatus)               // GET /api/v1/executions/exec-123
		ex.POST("/:execution_id/cancel", h.CancelExecution) // POST /api/v1/executions/exec-123/cancel
	}
}
