package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/bootstrap"
)

// TaskHandler handles the worker-facing task queue API
type TaskHandler struct {
	components *bootstrap.Components
	tasks      *service.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(c *container.Container) *TaskHandler {
	return &TaskHandler{
		components: c.Components,
		tasks:      c.TaskService,
	}
}

// PollTask leases one ready task for a worker
// POST /api/v1/tasks/poll
func (h *TaskHandler) PollTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.PollTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WorkerID == "" || req.VersionHash == "" {
		return badRequest(c, "worker_id and version_hash are required")
	}

	resp, err := h.tasks.Poll(ctx, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// CompleteTask reports a task's output and advances the execution
// POST /api/v1/tasks/:task_id/complete
func (h *TaskHandler) CompleteTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	var req models.CompleteTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := h.tasks.Complete(ctx, taskID, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// FailTask reports a task failure; the engine retries or fails the run
// POST /api/v1/tasks/:task_id/fail
func (h *TaskHandler) FailTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	var req models.FailTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := h.tasks.Fail(ctx, taskID, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}
