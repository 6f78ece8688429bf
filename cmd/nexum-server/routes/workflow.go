package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/handlers"
)

// RegisterWorkflowRoutes registers workflow registration and catalogue routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	wf := e.Group("/api/v1/workflows")
	{
		wf.POST("", h.RegisterWorkflow)                  // POST /api/v1/workflows
		wf.GET("/:workflow_id/versions", h.ListVersions) // GET /api/v1/workflows/order-flow/versions
	}
}
