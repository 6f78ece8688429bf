package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/handlers"
)

// RegisterApprovalRoutes registers HUMAN_APPROVAL decision routes
func RegisterApprovalRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewApprovalHandler(c)

	approvals := e.Group("/api/v1/approvals")
	{
		approvals.GET("", h.ListPendingApprovals) // GET /api/v1/approvals
		approvals.POST("/approve", h.ApproveTask) // POST /api/v1/approvals/approve
		approvals.POST("/reject", h.RejectTask)   // POST /api/v1/approvals/reject
	}
}
