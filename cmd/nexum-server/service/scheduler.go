// Package service implements the control-plane operations of the engine
// on top of the repositories. Handlers stay thin; the state machine
// lives here.
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

// Scheduler advances executions: it enqueues tasks for nodes whose
// dependencies are satisfied and detects execution completion,
// including resuming a parent when a child execution finishes.
type Scheduler struct {
	tasks      *repository.TaskRepository
	events     *repository.EventRepository
	executions *repository.ExecutionRepository
	registry   *registry.Registry
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(
	tasks *repository.TaskRepository,
	events *repository.EventRepository,
	executions *repository.ExecutionRepository,
	reg *registry.Registry,
	m *metrics.Metrics,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		tasks:      tasks,
		events:     events,
		executions: executions,
		registry:   reg,
		metrics:    m,
		log:        log,
	}
}

// progress is the per-execution view the scheduler plans against:
// completed nodes, and nodes skipped because a router chose another
// branch. A skipped node counts as satisfied for dependency checks so
// joins below an exclusive branch still fire.
type progress struct {
	completed map[string]bool
	skipped   map[string]bool
}

func (s *Scheduler) loadProgress(ctx context.Context, ir *models.WorkflowIR, executionID string) (*progress, error) {
	events, err := s.events.ListNodeCompleted(ctx, executionID)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	firstOutput := make(map[string]any)
	for _, evt := range events {
		var payload models.NodeCompletedPayload
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			continue
		}
		completed[payload.NodeID] = true
		if _, seen := firstOutput[payload.NodeID]; !seen {
			firstOutput[payload.NodeID] = payload.Output
		}
	}

	skipped := make(map[string]bool)
	for routerID, def := range ir.Nodes {
		if def.Type != models.NodeRouter || !completed[routerID] {
			continue
		}
		routedTo := ""
		if out, ok := firstOutput[routerID].(map[string]any); ok {
			if target, ok := out["routed_to"].(string); ok {
				routedTo = target
			}
		}
		for _, route := range def.Routes {
			if route.Target != routedTo {
				skipped[route.Target] = true
			}
		}
	}

	return &progress{completed: completed, skipped: skipped}, nil
}

func (s *Scheduler) lookupIR(workflowID, versionHash string) (*models.WorkflowIR, error) {
	ir, ok := s.registry.Get(workflowID, versionHash)
	if !ok {
		return nil, NotFound("Workflow not registered")
	}
	if ir.Nodes == nil {
		return nil, fmt.Errorf("invalid IR for %s:%s: missing nodes", workflowID, versionHash)
	}
	return ir, nil
}

// ScheduleReadyNodes enqueues one task per eligible node: not yet
// completed, scheduled or skipped, with every dependency completed or
// skipped. TIMER nodes are enqueued with scheduled_at pushed into the
// future by their delay; the poll path fires them when due.
func (s *Scheduler) ScheduleReadyNodes(ctx context.Context, executionID, workflowID, versionHash string) error {
	ir, err := s.lookupIR(workflowID, versionHash)
	if err != nil {
		return err
	}

	prog, err := s.loadProgress(ctx, ir, executionID)
	if err != nil {
		return err
	}

	scheduledNodes, err := s.tasks.NodeIDsByExecution(ctx, executionID)
	if err != nil {
		return err
	}
	scheduled := make(map[string]bool, len(scheduledNodes))
	for _, n := range scheduledNodes {
		scheduled[n] = true
	}

	for nodeID, def := range ir.Nodes {
		if prog.completed[nodeID] || scheduled[nodeID] || prog.skipped[nodeID] {
			continue
		}

		ready := true
		for _, dep := range def.Dependencies {
			if !prog.completed[dep] && !prog.skipped[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}

		nodeType := def.Type
		if nodeType == "" {
			nodeType = models.NodeCompute
		}

		task := &models.Task{
			TaskID:         "task-" + uuid.NewString(),
			ExecutionID:    executionID,
			NodeID:         nodeID,
			VersionHash:    versionHash,
			IdempotencyKey: fmt.Sprintf("%s:%s:%s", executionID, nodeID, versionHash),
			Status:         models.TaskReady,
			NodeType:       nodeType,
			ScheduledAt:    db.Now(),
		}

		if nodeType == models.NodeTimer {
			task.ScheduledAt = db.NewTime(time.Now().Add(time.Duration(def.DelaySeconds) * time.Second))
			inserted, err := s.tasks.Enqueue(ctx, task)
			if err != nil {
				return err
			}
			if inserted {
				s.log.Info("Scheduled TIMER task",
					"execution_id", executionID,
					"node_id", nodeID,
					"task_id", task.TaskID,
					"delay_seconds", def.DelaySeconds)
			}
			continue
		}

		inserted, err := s.tasks.Enqueue(ctx, task)
		if err != nil {
			return err
		}
		if inserted {
			s.log.Info("Scheduled task",
				"execution_id", executionID,
				"node_id", nodeID,
				"task_id", task.TaskID,
				"node_type", nodeType)
		}
	}

	return nil
}

// CheckExecutionComplete marks the execution COMPLETED once every node
// is completed or skipped. When a child execution completes, its final
// output is recorded as the parent SUBWORKFLOW node's completion and
// the parent resumes; the loop then re-checks the parent, walking up
// the chain as far as completions cascade.
func (s *Scheduler) CheckExecutionComplete(ctx context.Context, executionID, workflowID, versionHash string) error {
	for {
		ir, err := s.lookupIR(workflowID, versionHash)
		if err != nil {
			return err
		}

		prog, err := s.loadProgress(ctx, ir, executionID)
		if err != nil {
			return err
		}

		for nodeID := range ir.Nodes {
			if !prog.completed[nodeID] && !prog.skipped[nodeID] {
				return nil
			}
		}

		// The RUNNING guard makes the transition fire once; repeat
		// checks and already-cancelled executions fall through here.
		transitioned, err := s.executions.UpdateStatusIfRunning(ctx, executionID, models.ExecutionCompleted)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		s.metrics.ExecutionCompleted()
		s.log.Info("Execution completed", "execution_id", executionID)

		exec, err := s.executions.Get(ctx, executionID)
		if err != nil {
			return err
		}
		if exec == nil || exec.ParentExecutionID == "" || exec.ParentNodeID == "" {
			return nil
		}

		childOutput, err := s.finalOutput(ctx, executionID)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(models.NodeCompletedPayload{
			NodeID: exec.ParentNodeID,
			Output: childOutput,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal parent completion payload: %w", err)
		}
		if _, err := s.events.Append(ctx, exec.ParentExecutionID, models.EventNodeCompleted, string(payload)); err != nil {
			return err
		}

		if err := s.tasks.CompleteParentTask(ctx, exec.ParentExecutionID, exec.ParentNodeID); err != nil {
			return err
		}

		parent, err := s.executions.Get(ctx, exec.ParentExecutionID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("parent execution %s not found", exec.ParentExecutionID)
		}

		// A parent cancelled or failed while the child ran keeps its
		// terminal status; the child's result is recorded but no
		// downstream work is scheduled.
		if parent.Status != models.ExecutionRunning {
			s.log.Info("Child completed, parent no longer running",
				"child_execution_id", executionID,
				"parent_execution_id", parent.ExecutionID,
				"parent_status", parent.Status)
			return nil
		}

		s.log.Info("Child completed, resuming parent SUBWORKFLOW",
			"child_execution_id", executionID,
			"parent_execution_id", exec.ParentExecutionID,
			"parent_node_id", exec.ParentNodeID)

		if err := s.ScheduleReadyNodes(ctx, parent.ExecutionID, parent.WorkflowID, parent.VersionHash); err != nil {
			return err
		}

		executionID = parent.ExecutionID
		workflowID = parent.WorkflowID
		versionHash = parent.VersionHash
	}
}

// finalOutput returns the output of the execution's last NodeCompleted
// event, or nil when none was recorded or the payload is unreadable.
func (s *Scheduler) finalOutput(ctx context.Context, executionID string) (any, error) {
	last, err := s.events.LastNodeCompleted(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	var payload models.NodeCompletedPayload
	if err := json.Unmarshal([]byte(last.Payload), &payload); err != nil {
		return nil, nil
	}
	return payload.Output, nil
}
