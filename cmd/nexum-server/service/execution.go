package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/registry"
	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
	"github.com/kuro6061/nexum/common/metrics"
)

// ExecutionService handles the lifecycle of workflow executions.
type ExecutionService struct {
	executions *repository.ExecutionRepository
	events     *repository.EventRepository
	tasks      *repository.TaskRepository
	registry   *registry.Registry
	scheduler  *Scheduler
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewExecutionService creates a new execution service.
func NewExecutionService(
	executions *repository.ExecutionRepository,
	events *repository.EventRepository,
	tasks *repository.TaskRepository,
	reg *registry.Registry,
	scheduler *Scheduler,
	m *metrics.Metrics,
	log *logger.Logger,
) *ExecutionService {
	return &ExecutionService{
		executions: executions,
		events:     events,
		tasks:      tasks,
		registry:   reg,
		scheduler:  scheduler,
		metrics:    m,
		log:        log,
	}
}

// Start begins a new execution of a registered version and schedules
// its root nodes. Unregistered versions are rejected before any row is
// written.
func (s *ExecutionService) Start(ctx context.Context, req *models.StartExecutionRequest) (*models.StartExecutionResponse, error) {
	if _, ok := s.registry.Get(req.WorkflowID, req.VersionHash); !ok {
		return nil, NotFound("Workflow not registered")
	}

	executionID := "exec-" + uuid.NewString()
	exec := &models.Execution{
		ExecutionID: executionID,
		WorkflowID:  req.WorkflowID,
		VersionHash: req.VersionHash,
		Status:      models.ExecutionRunning,
		InputJSON:   req.InputJSON,
		CreatedAt:   db.Now(),
	}
	if err := s.executions.Insert(ctx, exec); err != nil {
		return nil, err
	}

	s.metrics.ExecutionStarted()
	s.log.Info("Execution started",
		"execution_id", executionID,
		"workflow_id", req.WorkflowID,
		"version_hash", shortHash(req.VersionHash))

	if err := s.scheduler.ScheduleReadyNodes(ctx, executionID, req.WorkflowID, req.VersionHash); err != nil {
		return nil, err
	}

	return &models.StartExecutionResponse{ExecutionID: executionID}, nil
}

// List returns executions newest first, optionally filtered by workflow
// and status. A non-positive limit defaults to 20.
func (s *ExecutionService) List(ctx context.Context, workflowID, status string, limit int) (*models.ListExecutionsResponse, error) {
	if limit <= 0 {
		limit = 20
	}

	executions, err := s.executions.List(ctx, workflowID, status, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ExecutionSummary, 0, len(executions))
	for _, e := range executions {
		summaries = append(summaries, models.ExecutionSummary{
			ExecutionID: e.ExecutionID,
			WorkflowID:  e.WorkflowID,
			VersionHash: e.VersionHash,
			Status:      string(e.Status),
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	return &models.ListExecutionsResponse{Executions: summaries}, nil
}

// GetStatus returns the execution's status and a JSON object mapping
// each completed node to its recorded output. When a node completed
// more than once the latest event wins.
func (s *ExecutionService) GetStatus(ctx context.Context, executionID string) (*models.GetStatusResponse, error) {
	exec, err := s.executions.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, NotFound("Execution not found")
	}

	events, err := s.events.ListNodeCompleted(ctx, executionID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]any)
	for _, evt := range events {
		var payload models.NodeCompletedPayload
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			continue
		}
		if payload.NodeID == "" {
			continue
		}
		completed[payload.NodeID] = payload.Output
	}

	completedJSON, err := json.Marshal(completed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completed nodes: %w", err)
	}

	return &models.GetStatusResponse{
		Status:             string(exec.Status),
		CompletedNodesJSON: string(completedJSON),
	}, nil
}

// Cancel stops an execution: live tasks are cancelled and, if the
// execution was still running, it transitions to CANCELLED and an
// ExecutionCancelled event is appended. Cancelling an already terminal
// execution acknowledges without further effect.
func (s *ExecutionService) Cancel(ctx context.Context, executionID string) (*models.AckResponse, error) {
	exec, err := s.executions.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, NotFound("Execution not found")
	}

	cancelledTasks, err := s.tasks.CancelLive(ctx, executionID)
	if err != nil {
		return nil, err
	}

	transitioned, err := s.executions.UpdateStatusIfRunning(ctx, executionID, models.ExecutionCancelled)
	if err != nil {
		return nil, err
	}
	if transitioned {
		if _, err := s.events.Append(ctx, executionID, models.EventExecutionCancelled, "{}"); err != nil {
			return nil, err
		}
		s.log.Info("Execution cancelled",
			"execution_id", executionID,
			"cancelled_tasks", cancelledTasks)
	}

	return &models.AckResponse{OK: true, Message: "Execution cancelled"}, nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
