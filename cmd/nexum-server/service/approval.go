package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/common/logger"
	"github.com/kuro6061/nexum/common/metrics"
)

// ApprovalService resolves HUMAN_APPROVAL gates. A gate is the RUNNING
// task for an (execution, node) pair with a PENDING approval status;
// claiming the decision is the race gate, so exactly one approver wins.
type ApprovalService struct {
	tasks      *repository.TaskRepository
	events     *repository.EventRepository
	executions *repository.ExecutionRepository
	scheduler  *Scheduler
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewApprovalService creates a new approval service.
func NewApprovalService(
	tasks *repository.TaskRepository,
	events *repository.EventRepository,
	executions *repository.ExecutionRepository,
	scheduler *Scheduler,
	m *metrics.Metrics,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		tasks:      tasks,
		events:     events,
		executions: executions,
		scheduler:  scheduler,
		metrics:    m,
		log:        log,
	}
}

// Approve resolves a gate positively: records the decision, synthesizes
// the node's output, appends NodeCompleted, marks the task DONE and
// advances the execution.
func (s *ApprovalService) Approve(ctx context.Context, req *models.ApproveTaskRequest) (*models.AckResponse, error) {
	task, err := s.claimDecision(ctx, req.ExecutionID, req.NodeID, models.ApprovalApproved, req.Approver, req.Comment)
	if err != nil {
		return nil, err
	}

	output := map[string]any{
		"approved": true,
		"approver": req.Approver,
		"comment":  req.Comment,
	}
	payload, err := json.Marshal(models.NodeCompletedPayload{NodeID: req.NodeID, Output: output})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approval payload: %w", err)
	}
	if _, err := s.events.Append(ctx, req.ExecutionID, models.EventNodeCompleted, string(payload)); err != nil {
		return nil, err
	}

	if _, err := s.tasks.MarkDoneIfRunning(ctx, task.TaskID); err != nil {
		return nil, err
	}

	exec, err := s.executions.Get(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s not found for approval", req.ExecutionID)
	}

	if err := s.scheduler.ScheduleReadyNodes(ctx, req.ExecutionID, exec.WorkflowID, exec.VersionHash); err != nil {
		return nil, err
	}
	if err := s.scheduler.CheckExecutionComplete(ctx, req.ExecutionID, exec.WorkflowID, exec.VersionHash); err != nil {
		return nil, err
	}

	s.log.Info("Task approved",
		"execution_id", req.ExecutionID,
		"node_id", req.NodeID,
		"approver", req.Approver)

	return &models.AckResponse{OK: true, Message: "Approved"}, nil
}

// Reject resolves a gate negatively: the task turns FAILED with a
// NodeFailed event naming the approver and reason, and the execution
// fails. Rejections spend no retry budget, so the event carries no
// final_retry.
func (s *ApprovalService) Reject(ctx context.Context, req *models.RejectTaskRequest) (*models.AckResponse, error) {
	task, err := s.claimDecision(ctx, req.ExecutionID, req.NodeID, models.ApprovalRejected, req.Approver, "")
	if err != nil {
		return nil, err
	}

	if err := s.tasks.MarkFailed(ctx, task.TaskID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(models.NodeFailedPayload{
		NodeID: req.NodeID,
		Error:  fmt.Sprintf("Rejected by %s: %s", req.Approver, req.Reason),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rejection payload: %w", err)
	}
	if _, err := s.events.Append(ctx, req.ExecutionID, models.EventNodeFailed, string(payload)); err != nil {
		return nil, err
	}

	transitioned, err := s.executions.UpdateStatusIfRunning(ctx, req.ExecutionID, models.ExecutionFailed)
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.metrics.ExecutionFailed()
	}

	s.log.Warn("Task rejected",
		"execution_id", req.ExecutionID,
		"node_id", req.NodeID,
		"reason", req.Reason)

	return &models.AckResponse{OK: true, Message: "Rejected"}, nil
}

// Pending lists every gate awaiting a decision.
func (s *ApprovalService) Pending(ctx context.Context) (*models.PendingApprovalsResponse, error) {
	approvals, err := s.tasks.PendingApprovals(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.PendingApprovalSummary, 0, len(approvals))
	for _, a := range approvals {
		summaries = append(summaries, models.PendingApprovalSummary{
			ExecutionID: a.ExecutionID,
			NodeID:      a.NodeID,
			WorkflowID:  a.WorkflowID,
			StartedAt:   a.StartedAt.Format(time.RFC3339),
		})
	}

	return &models.PendingApprovalsResponse{Approvals: summaries}, nil
}

// claimDecision finds the gate and records the decision. Both a missing
// gate and a lost claim race answer NotFound, so a second decision on
// the same gate cannot double-apply.
func (s *ApprovalService) claimDecision(ctx context.Context, executionID, nodeID string, decision models.ApprovalStatus, approver, comment string) (*models.Task, error) {
	task, err := s.tasks.FindRunningByNode(ctx, executionID, nodeID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NotFound("No pending approval task found")
	}

	claimed, err := s.tasks.ClaimApproval(ctx, task.TaskID, decision, approver, comment)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, NotFound("No pending approval task found")
	}

	return task, nil
}
