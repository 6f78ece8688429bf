package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/handlers"
)

// RegisterTaskRoutes registers the worker-facing task queue routes
func RegisterTaskRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTaskHandler(c)

	tasks := e.Group("/api/v1/tasks")
	{
		tasks.POST("/poll", h.PollTask)                  // POST /api/v1/tasks/poll
		tasks.POST("/:task_id/complete", h.CompleteTask) // POST /api/v1/tasks/task-123/complete
		tasks.POST("/:task_id/fail", h.FailTask)         // POST /api/v1/tasks/task-123/fail
	}
}
