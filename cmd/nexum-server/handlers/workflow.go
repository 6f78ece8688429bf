package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/bootstrap"
)

// WorkflowHandler handles workflow registration and the version catalogue
type WorkflowHandler struct {
	components *bootstrap.Components
	workflows  *service.WorkflowService
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{
		components: c.Components,
		workflows:  c.WorkflowService,
	}
}

// RegisterWorkflow registers one immutable IR version
// POST /api/v1/workflows
func (h *WorkflowHandler) RegisterWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RegisterWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WorkflowID == "" || req.VersionHash == "" {
		return badRequest(c, "workflow_id and version_hash are required")
	}

	resp, err := h.workflows.Register(ctx, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// ListVersions lists the registered versions of one workflow
// GET /api/v1/workflows/:workflow_id/versions
func (h *WorkflowHandler) ListVersions(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflow_id")

	resp, err := h.workflows.ListVersions(ctx, workflowID)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}
