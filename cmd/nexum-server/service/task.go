package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuro6061/nexum/cmd/nexum-server/claimcheck"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/registry"
	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
	"github.com/kuro6061/nexum/common/metrics"
	"github.com/kuro6061/nexum/common/ratelimit"
)

// TaskService handles the worker-facing task protocol: polling with
// input hydration, completion with its coordination branches, and
// failure with retry backoff.
type TaskService struct {
	tasks       *repository.TaskRepository
	events      *repository.EventRepository
	executions  *repository.ExecutionRepository
	versions    *repository.VersionRepository
	mapResults  *repository.MapResultRepository
	registry    *registry.Registry
	claimChecks *claimcheck.Offloader
	scheduler   *Scheduler
	limiter     *ratelimit.PollLimiter
	maxRetries  int
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// TaskServiceOpts contains options for creating a TaskService.
type TaskServiceOpts struct {
	Tasks       *repository.TaskRepository
	Events      *repository.EventRepository
	Executions  *repository.ExecutionRepository
	Versions    *repository.VersionRepository
	MapResults  *repository.MapResultRepository
	Registry    *registry.Registry
	ClaimChecks *claimcheck.Offloader
	Scheduler   *Scheduler
	Limiter     *ratelimit.PollLimiter
	MaxRetries  int
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// NewTaskService creates a new task service with options pattern.
func NewTaskService(opts *TaskServiceOpts) *TaskService {
	return &TaskService{
		tasks:       opts.Tasks,
		events:      opts.Events,
		executions:  opts.Executions,
		versions:    opts.Versions,
		mapResults:  opts.MapResults,
		registry:    opts.Registry,
		claimChecks: opts.ClaimChecks,
		scheduler:   opts.Scheduler,
		limiter:     opts.Limiter,
		maxRetries:  opts.MaxRetries,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
}

// Poll leases the oldest dispatchable task for the worker's version and
// returns it with hydrated input. TIMER tasks never reach a worker:
// when one comes due the server completes it in place and answers
// has_task=false. An empty response also covers rate-limited workers
// and lost lease races.
func (s *TaskService) Poll(ctx context.Context, req *models.PollTaskRequest) (*models.PollTaskResponse, error) {
	if !s.limiter.Allow(req.WorkerID) {
		return &models.PollTaskResponse{}, nil
	}

	task, err := s.tasks.NextReady(ctx, req.VersionHash, db.Now())
	if err != nil {
		return nil, err
	}
	if task == nil {
		return &models.PollTaskResponse{}, nil
	}

	exec, err := s.executions.Get(ctx, task.ExecutionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s not found for task %s", task.ExecutionID, task.TaskID)
	}

	ir, _ := s.registry.Get(exec.WorkflowID, task.VersionHash)

	isMapSubtask := task.NodeType == models.NodeMapSubtask
	responseNodeID := task.NodeID
	if isMapSubtask && task.MapParentNodeID != "" {
		responseNodeID = task.MapParentNodeID
	}

	// Node type: the queue row wins (set for MAP_SUBTASK and everything
	// the scheduler enqueued); router-inserted rows carry none and fall
	// back to the IR.
	nodeType := task.NodeType
	if nodeType == "" {
		nodeType = models.NodeEffect
		if ir != nil {
			if def, ok := ir.Nodes[task.NodeID]; ok && def.Type != "" {
				nodeType = def.Type
			}
		}
	}

	if nodeType == models.NodeTimer {
		return s.fireTimer(ctx, task, exec, ir, req.WorkerID)
	}

	leased, err := s.tasks.Lease(ctx, task.TaskID, req.WorkerID, db.Now(), nodeType == models.NodeHumanApproval)
	if err != nil {
		return nil, err
	}
	if !leased {
		return &models.PollTaskResponse{}, nil
	}

	// MAP subtasks hydrate against the logical MAP node's dependencies.
	irLookupNodeID := task.NodeID
	if isMapSubtask {
		irLookupNodeID = responseNodeID
	}

	deps, err := s.hydrateDeps(ctx, ir, task.ExecutionID, irLookupNodeID)
	if err != nil {
		return nil, err
	}

	var execInput any
	if exec.InputJSON != "" {
		if err := json.Unmarshal([]byte(exec.InputJSON), &execInput); err != nil {
			execInput = nil
		}
	}

	inputJSON, err := json.Marshal(map[string]any{"input": execInput, "deps": deps})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task input: %w", err)
	}

	s.log.Info("Task polled",
		"task_id", task.TaskID,
		"node_id", task.NodeID,
		"worker", req.WorkerID)

	return &models.PollTaskResponse{
		HasTask:        true,
		TaskID:         task.TaskID,
		ExecutionID:    task.ExecutionID,
		NodeID:         responseNodeID,
		InputJSON:      string(inputJSON),
		IdempotencyKey: task.IdempotencyKey,
		NodeType:       nodeType,
		MapItemJSON:    task.MapItemJSON,
		IsMapSubtask:   isMapSubtask,
		MapIndex:       task.MapIndex,
		MapTotal:       task.MapTotal,
		SubExecutionID: task.SubExecutionID,
		SubWorkflowID:  task.SubWorkflowID,
		SubInputJSON:   task.SubInputJSON,
	}, nil
}

// fireTimer completes a due TIMER task server-side: lease it, record a
// NodeCompleted with the waited-until timestamp, and advance the
// execution. The poller gets an empty response either way.
func (s *TaskService) fireTimer(ctx context.Context, task *models.Task, exec *models.Execution, ir *models.WorkflowIR, workerID string) (*models.PollTaskResponse, error) {
	leased, err := s.tasks.Lease(ctx, task.TaskID, workerID, db.Now(), false)
	if err != nil {
		return nil, err
	}
	if !leased {
		return &models.PollTaskResponse{}, nil
	}

	delaySeconds := 0
	if ir != nil {
		if def, ok := ir.Nodes[task.NodeID]; ok {
			delaySeconds = def.DelaySeconds
		}
	}

	done, err := s.tasks.MarkDoneIfRunning(ctx, task.TaskID)
	if err != nil {
		return nil, err
	}
	if done {
		s.metrics.TaskCompleted()
	}

	output := map[string]any{
		"waited_until":  time.Now().UTC().Format(time.RFC3339),
		"delay_seconds": delaySeconds,
	}
	payload, err := json.Marshal(models.NodeCompletedPayload{NodeID: task.NodeID, Output: output})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timer payload: %w", err)
	}
	if _, err := s.events.Append(ctx, task.ExecutionID, models.EventNodeCompleted, string(payload)); err != nil {
		return nil, err
	}

	s.log.Info("TIMER auto-completed",
		"execution_id", task.ExecutionID,
		"node_id", task.NodeID,
		"delay_seconds", delaySeconds)

	if err := s.scheduler.ScheduleReadyNodes(ctx, task.ExecutionID, exec.WorkflowID, task.VersionHash); err != nil {
		return nil, err
	}
	if err := s.scheduler.CheckExecutionComplete(ctx, task.ExecutionID, exec.WorkflowID, task.VersionHash); err != nil {
		return nil, err
	}

	return &models.PollTaskResponse{}, nil
}

// hydrateDeps collects the first recorded output of each dependency,
// dereferencing claim-check pointers. A dependency whose completion
// payload carries no output is omitted.
func (s *TaskService) hydrateDeps(ctx context.Context, ir *models.WorkflowIR, executionID, nodeID string) (map[string]any, error) {
	deps := make(map[string]any)
	if ir == nil {
		return deps, nil
	}
	def, ok := ir.Nodes[nodeID]
	if !ok || len(def.Dependencies) == 0 {
		return deps, nil
	}

	events, err := s.events.ListNodeCompleted(ctx, executionID)
	if err != nil {
		return nil, err
	}

	type completion struct {
		output    any
		hasOutput bool
	}
	first := make(map[string]completion)
	for _, evt := range events {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
			continue
		}
		completedNode, _ := payload["node_id"].(string)
		if completedNode == "" {
			continue
		}
		if _, seen := first[completedNode]; seen {
			continue
		}
		output, hasOutput := payload["output"]
		first[completedNode] = completion{output: output, hasOutput: hasOutput}
	}

	for _, depID := range def.Dependencies {
		c, ok := first[depID]
		if !ok || !c.hasOutput {
			continue
		}
		deps[depID] = s.claimChecks.Hydrate(ctx, c.output)
	}

	return deps, nil
}

// Complete records a worker's success. The coordination branch is
// picked by the task's queued node_type: SUBWORKFLOW starts a child
// execution, MAP fans out one sub-task per item, MAP_SUBTASK stages its
// result and fans in when the set is complete, and everything else
// appends NodeCompleted and advances the scheduler. Completing a task
// that is no longer RUNNING acknowledges without side effects.
func (s *TaskService) Complete(ctx context.Context, taskID string, req *models.CompleteTaskRequest) (*models.AckResponse, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NotFound("Task not found: %s", taskID)
	}

	s.log.Info("nexum.task.complete.start",
		"execution_id", task.ExecutionID,
		"node_id", task.NodeID)

	if task.NodeType == models.NodeSubWorkflow && task.SubExecutionID == "" {
		return s.startChildExecution(ctx, task, req.OutputJSON)
	}

	done, err := s.tasks.MarkDoneIfRunning(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !done {
		return &models.AckResponse{OK: true}, nil
	}
	s.metrics.TaskCompleted()

	exec, err := s.executions.Get(ctx, task.ExecutionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s not found for task %s", task.ExecutionID, taskID)
	}

	switch task.NodeType {
	case models.NodeMap:
		return s.fanOutMapItems(ctx, task, req.OutputJSON)
	case models.NodeMapSubtask:
		return s.stageMapResult(ctx, task, exec.WorkflowID, req.OutputJSON)
	}

	stored, err := s.claimChecks.Store(ctx, task.ExecutionID, task.NodeID, req.OutputJSON)
	if err != nil {
		return nil, err
	}
	var output any
	if err := json.Unmarshal([]byte(stored), &output); err != nil {
		output = nil
	}

	payload, err := json.Marshal(models.NodeCompletedPayload{NodeID: task.NodeID, Output: output})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion payload: %w", err)
	}
	if _, err := s.events.Append(ctx, task.ExecutionID, models.EventNodeCompleted, string(payload)); err != nil {
		return nil, err
	}

	s.log.Info("Task completed",
		"task_id", taskID,
		"node_id", task.NodeID,
		"execution_id", task.ExecutionID)

	nodeType := models.NodeCompute
	if ir, ok := s.registry.Get(exec.WorkflowID, task.VersionHash); ok {
		nodeType = ir.NodeType(task.NodeID)
	}

	if nodeType == models.NodeRouter {
		if err := s.scheduleRouterTarget(ctx, task, req.OutputJSON); err != nil {
			return nil, err
		}
	} else {
		if err := s.scheduler.ScheduleReadyNodes(ctx, task.ExecutionID, exec.WorkflowID, task.VersionHash); err != nil {
			return nil, err
		}
	}

	if err := s.scheduler.CheckExecutionComplete(ctx, task.ExecutionID, exec.WorkflowID, task.VersionHash); err != nil {
		return nil, err
	}

	return &models.AckResponse{OK: true}, nil
}

// startChildExecution is SUBWORKFLOW phase one: the coordinator's
// output names the child workflow and its input. The task is claimed
// before the child row is written so a duplicate completion cannot
// start a second child; the task stays RUNNING until the child
// finishes.
func (s *TaskService) startChildExecution(ctx context.Context, task *models.Task, outputJSON string) (*models.AckResponse, error) {
	var coordinatorOutput struct {
		SubWorkflowID string          `json:"subWorkflowId"`
		ChildInput    json.RawMessage `json:"childInput"`
	}
	if err := json.Unmarshal([]byte(outputJSON), &coordinatorOutput); err != nil {
		return nil, InvalidArgument("Invalid SUBWORKFLOW output: %v", err)
	}

	childVersion, err := s.versions.Latest(ctx, coordinatorOutput.SubWorkflowID)
	if err != nil {
		return nil, err
	}
	if childVersion == nil {
		return nil, NotFound("Child workflow not registered: %s", coordinatorOutput.SubWorkflowID)
	}

	childInput := string(coordinatorOutput.ChildInput)
	if childInput == "" {
		childInput = "null"
	}

	childExecID := "exec-" + uuid.NewString()
	claimed, err := s.tasks.ClaimSubWorkflow(ctx, task.TaskID, childExecID, coordinatorOutput.SubWorkflowID, childInput)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &models.AckResponse{OK: true}, nil
	}

	child := &models.Execution{
		ExecutionID:       childExecID,
		WorkflowID:        coordinatorOutput.SubWorkflowID,
		VersionHash:       childVersion.VersionHash,
		Status:            models.ExecutionRunning,
		InputJSON:         childInput,
		ParentExecutionID: task.ExecutionID,
		ParentNodeID:      task.NodeID,
		CreatedAt:         db.Now(),
	}
	if err := s.executions.Insert(ctx, child); err != nil {
		return nil, err
	}
	s.metrics.ExecutionStarted()

	s.log.Info("SUBWORKFLOW phase 2: child execution started",
		"execution_id", task.ExecutionID,
		"node_id", task.NodeID,
		"child_execution_id", childExecID,
		"child_workflow", coordinatorOutput.SubWorkflowID)

	// The parent's downstream nodes wait for the child to finish.
	if err := s.scheduler.ScheduleReadyNodes(ctx, childExecID, coordinatorOutput.SubWorkflowID, childVersion.VersionHash); err != nil {
		return nil, err
	}

	return &models.AckResponse{OK: true}, nil
}

// fanOutMapItems is MAP phase one: the coordinator's output array
// becomes one MAP_SUBTASK per item. The MAP node's own NodeCompleted
// waits for fan-in.
func (s *TaskService) fanOutMapItems(ctx context.Context, task *models.Task, outputJSON string) (*models.AckResponse, error) {
	var items []any
	if err := json.Unmarshal([]byte(outputJSON), &items); err != nil {
		return nil, InvalidArgument("MAP items not a JSON array: %v", err)
	}
	total := len(items)

	s.log.Info("MAP coordinator complete, fanning out sub-tasks",
		"execution_id", task.ExecutionID,
		"node_id", task.NodeID,
		"total", total)

	for index, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal MAP item %d: %w", index, err)
		}
		subNodeID := fmt.Sprintf("%s__%d", task.NodeID, index)
		subTask := &models.Task{
			TaskID:          "task-" + uuid.NewString(),
			ExecutionID:     task.ExecutionID,
			NodeID:          subNodeID,
			VersionHash:     task.VersionHash,
			IdempotencyKey:  fmt.Sprintf("%s:%s:%s", task.ExecutionID, subNodeID, task.VersionHash),
			Status:          models.TaskReady,
			NodeType:        models.NodeMapSubtask,
			MapItemJSON:     string(itemJSON),
			MapIndex:        index,
			MapTotal:        total,
			MapParentNodeID: task.NodeID,
			ScheduledAt:     db.Now(),
		}
		if _, err := s.tasks.Enqueue(ctx, subTask); err != nil {
			return nil, err
		}
	}

	return &models.AckResponse{OK: true}, nil
}

// stageMapResult is MAP phase two: stage this item's output, and if the
// set is now complete, claim the fan-in and emit the MAP node's
// NodeCompleted with the gathered array.
func (s *TaskService) stageMapResult(ctx context.Context, task *models.Task, workflowID, outputJSON string) (*models.AckResponse, error) {
	parentNodeID := task.MapParentNodeID

	if err := s.mapResults.Upsert(ctx, &models.MapResult{
		ExecutionID: task.ExecutionID,
		MapNodeID:   parentNodeID,
		ItemIndex:   task.MapIndex,
		ResultJSON:  outputJSON,
	}); err != nil {
		return nil, err
	}

	staged, err := s.mapResults.CountStaged(ctx, task.ExecutionID, parentNodeID)
	if err != nil {
		return nil, err
	}

	s.log.Info("MAP sub-task completed",
		"execution_id", task.ExecutionID,
		"map_node_id", parentNodeID,
		"completed", staged,
		"total", task.MapTotal)

	if staged < task.MapTotal {
		return &models.AckResponse{OK: true}, nil
	}

	claimed, err := s.mapResults.ClaimFanIn(ctx, task.ExecutionID, parentNodeID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &models.AckResponse{OK: true}, nil
	}

	results, err := s.mapResults.Gather(ctx, task.ExecutionID, parentNodeID)
	if err != nil {
		return nil, err
	}
	gathered := make([]any, 0, len(results))
	for _, raw := range results {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = nil
		}
		gathered = append(gathered, v)
	}

	outputArray, err := json.Marshal(gathered)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MAP results: %w", err)
	}
	stored, err := s.claimChecks.Store(ctx, task.ExecutionID, parentNodeID, string(outputArray))
	if err != nil {
		return nil, err
	}
	var output any
	if err := json.Unmarshal([]byte(stored), &output); err != nil {
		output = nil
	}

	payload, err := json.Marshal(models.NodeCompletedPayload{NodeID: parentNodeID, Output: output})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fan-in payload: %w", err)
	}
	if _, err := s.events.Append(ctx, task.ExecutionID, models.EventNodeCompleted, string(payload)); err != nil {
		return nil, err
	}

	s.log.Info("All MAP sub-tasks complete, scheduling downstream",
		"execution_id", task.ExecutionID,
		"node_id", parentNodeID,
		"total", task.MapTotal)

	if err := s.scheduler.ScheduleReadyNodes(ctx, task.ExecutionID, workflowID, task.VersionHash); err != nil {
		return nil, err
	}
	if err := s.scheduler.CheckExecutionComplete(ctx, task.ExecutionID, workflowID, task.VersionHash); err != nil {
		return nil, err
	}

	return &models.AckResponse{OK: true}, nil
}

// scheduleRouterTarget enqueues only the node named by routed_to in the
// router's raw output. Targets not taken are never enqueued; downstream
// scheduling treats them as skipped. A missing or empty routed_to
// schedules nothing.
func (s *TaskService) scheduleRouterTarget(ctx context.Context, task *models.Task, outputJSON string) error {
	var output map[string]any
	if err := json.Unmarshal([]byte(outputJSON), &output); err != nil {
		return nil
	}
	routedTo, _ := output["routed_to"].(string)
	if routedTo == "" {
		return nil
	}

	target := &models.Task{
		TaskID:         "task-" + uuid.NewString(),
		ExecutionID:    task.ExecutionID,
		NodeID:         routedTo,
		VersionHash:    task.VersionHash,
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", task.ExecutionID, routedTo, task.VersionHash),
		Status:         models.TaskReady,
		ScheduledAt:    db.Now(),
	}
	if _, err := s.tasks.Enqueue(ctx, target); err != nil {
		return err
	}

	s.log.Info("Router decision", "router", task.NodeID, "routed_to", routedTo)
	return nil
}

// Fail records a worker failure. Under the retry budget the task goes
// back to READY with exponential backoff; past it the task and its
// execution turn FAILED and a NodeFailed event is appended. Always
// acknowledges, so workers never treat a reported failure as an error.
func (s *TaskService) Fail(ctx context.Context, taskID string, req *models.FailTaskRequest) (*models.AckResponse, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NotFound("Task not found: %s", taskID)
	}

	willRetry := task.RetryCount < s.maxRetries
	s.log.Info("nexum.task.fail",
		"execution_id", task.ExecutionID,
		"node_id", task.NodeID,
		"retry_count", task.RetryCount,
		"will_retry", willRetry)

	// A task the reaper already reclaimed, or one cancelled under the
	// worker, needs no further bookkeeping.
	if task.Status != models.TaskRunning {
		return &models.AckResponse{OK: true}, nil
	}

	if willRetry {
		backoffSecs := int64(30)
		if task.RetryCount < 5 {
			backoffSecs = int64(1) << uint(task.RetryCount)
			if backoffSecs > 30 {
				backoffSecs = 30
			}
		}
		scheduledAt := db.NewTime(time.Now().Add(time.Duration(backoffSecs) * time.Second))
		if err := s.tasks.Requeue(ctx, taskID, scheduledAt); err != nil {
			return nil, err
		}
		s.metrics.TaskRetried()
		s.log.Warn("Task failed, scheduling retry",
			"task_id", taskID,
			"node_id", task.NodeID,
			"retry", task.RetryCount+1,
			"max", s.maxRetries)
		return &models.AckResponse{OK: true}, nil
	}

	if err := s.tasks.MarkFailed(ctx, taskID); err != nil {
		return nil, err
	}

	finalRetry := task.RetryCount
	payload, err := json.Marshal(models.NodeFailedPayload{
		NodeID:     task.NodeID,
		Error:      req.ErrorMessage,
		FinalRetry: &finalRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failure payload: %w", err)
	}
	if _, err := s.events.Append(ctx, task.ExecutionID, models.EventNodeFailed, string(payload)); err != nil {
		return nil, err
	}

	transitioned, err := s.executions.UpdateStatusIfRunning(ctx, task.ExecutionID, models.ExecutionFailed)
	if err != nil {
		return nil, err
	}

	s.metrics.TaskFailed()
	if transitioned {
		s.metrics.ExecutionFailed()
	}
	s.log.Error("Task failed after max retries",
		"task_id", taskID,
		"node_id", task.NodeID,
		"execution_id", task.ExecutionID)

	return &models.AckResponse{OK: true}, nil
}
