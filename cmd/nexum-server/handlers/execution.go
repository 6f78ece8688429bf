package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/bootstrap"
)

// ExecutionHandler handles execution lifecycle requests
type ExecutionHandler struct {
	components *bootstrap.Components
	executions *service.ExecutionService
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{
		components: c.Components,
		executions: c.ExecutionService,
	}
}

// StartExecution starts a run of a registered workflow version
// POST /api/v1/executions
func (h *ExecutionHandler) StartExecution(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.StartExecutionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WorkflowID == "" || req.VersionHash == "" {
		return badRequest(c, "workflow_id and version_hash are required")
	}

	resp, err := h.executions.Start(ctx, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// ListExecutions lists executions, newest first
// GET /api/v1/executions?workflow_id=&status=&limit=
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()

	workflowID := c.QueryParam("workflow_id")
	status := c.QueryParam("status")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	resp, err := h.executions.List(ctx, workflowID, status, limit)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// GetStatus returns an execution's status and per-node outputs
// GET /api/v1/executions/:execution_id
func (h *ExecutionHandler) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()
	executionID := c.Param("execution_id")

	resp, err := h.executions.GetStatus(ctx, executionID)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// CancelExecution cancels an execution and its live tasks
// POST /api/v1/executions/:execution_id/cancel
func (h *ExecutionHandler) CancelExecution(c echo.Context) error {
	ctx := c.Request().Context()
	executionID := c.Param("execution_id")

	resp, err := h.executions.Cancel(ctx, executionID)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}
