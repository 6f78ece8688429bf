package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/bootstrap"
)

// ApprovalHandler handles HUMAN_APPROVAL gate decisions
type ApprovalHandler struct {
	components *bootstrap.Components
	approvals  *service.ApprovalService
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(c *container.Container) *ApprovalHandler {
	return &ApprovalHandler{
		components: c.Components,
		approvals:  c.ApprovalService,
	}
}

// ApproveTask approves a pending gate and resumes the execution
// POST /api/v1/approvals/approve
func (h *ApprovalHandler) ApproveTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ApproveTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ExecutionID == "" || req.NodeID == "" {
		return badRequest(c, "execution_id and node_id are required")
	}

	resp, err := h.approvals.Approve(ctx, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// RejectTask rejects a pending gate and fails the execution
// POST /api/v1/approvals/reject
func (h *ApprovalHandler) RejectTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RejectTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ExecutionID == "" || req.NodeID == "" {
		return badRequest(c, "execution_id and node_id are required")
	}

	resp, err := h.approvals.Reject(ctx, &req)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// ListPendingApprovals lists gates awaiting a decision
// GET /api/v1/approvals
func (h *ApprovalHandler) ListPendingApprovals(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.approvals.Pending(ctx)
	if err != nil {
		return serviceError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, resp)
}
