package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/db"
)

const taskColumns = `task_id, execution_id, node_id, version_hash, node_type, input_json,
	idempotency_key, status, locked_by, locked_at, retry_count, scheduled_at,
	approval_status, approver, approval_comment, sub_execution_id, sub_workflow_id,
	sub_input_json, map_item_json, map_index, map_total, map_parent_node_id`

// TaskRepository handles database operations for the task queue
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// Enqueue inserts a task. The idempotency key absorbs duplicate enqueues:
// re-scheduling an already-queued node is a no-op. Returns true when the
// row was actually inserted.
func (r *TaskRepository) Enqueue(ctx context.Context, t *models.Task) (bool, error) {
	query := `
		INSERT INTO task_queue (
			task_id, execution_id, node_id, version_hash, node_type, input_json,
			idempotency_key, status, locked_by, retry_count, scheduled_at,
			approval_status, approver, approval_comment, sub_execution_id,
			sub_workflow_id, sub_input_json, map_item_json, map_index, map_total,
			map_parent_node_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		t.TaskID,
		t.ExecutionID,
		t.NodeID,
		t.VersionHash,
		t.NodeType,
		t.InputJSON,
		t.IdempotencyKey,
		t.Status,
		t.LockedBy,
		t.RetryCount,
		t.ScheduledAt,
		t.ApprovalStatus,
		t.Approver,
		t.ApprovalComment,
		t.SubExecutionID,
		t.SubWorkflowID,
		t.SubInputJSON,
		t.MapItemJSON,
		t.MapIndex,
		t.MapTotal,
		t.MapParentNodeID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// Get retrieves a task by ID, or nil when it does not exist.
func (r *TaskRepository) Get(ctx context.Context, taskID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task_queue WHERE task_id = ?`

	task := &models.Task{}
	err := r.db.GetContext(ctx, task, r.db.Rebind(query), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// NextReady returns the oldest dispatchable task for a worker fleet pinned
// to a workflow version, or nil when the queue is drained. TIMER tasks
// surface only once their scheduled_at has passed.
func (r *TaskRepository) NextReady(ctx context.Context, versionHash string, now db.Time) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM task_queue
		WHERE version_hash = ? AND status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`

	task := &models.Task{}
	err := r.db.GetContext(ctx, task, r.db.Rebind(query), versionHash, models.TaskReady, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next ready task: %w", err)
	}

	return task, nil
}

// Lease transitions a READY task to RUNNING on behalf of a worker. The
// conditional update is the dispatch gate: with several pollers racing for
// the same task, exactly one sees a row change. HUMAN_APPROVAL tasks open
// their approval gate in the same statement.
func (r *TaskRepository) Lease(ctx context.Context, taskID, workerID string, now db.Time, pendingApproval bool) (bool, error) {
	query := `
		UPDATE task_queue
		SET status = ?, locked_by = ?, locked_at = ?
		WHERE task_id = ? AND status = ?
	`
	args := []any{models.TaskRunning, workerID, now, taskID, models.TaskReady}

	if pendingApproval {
		query = `
			UPDATE task_queue
			SET status = ?, locked_by = ?, locked_at = ?, approval_status = ?
			WHERE task_id = ? AND status = ?
		`
		args = []any{models.TaskRunning, workerID, now, models.ApprovalPending, taskID, models.TaskReady}
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to lease task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// MarkDoneIfRunning transitions a RUNNING task to DONE. Returns false when
// the task already left RUNNING, so completion side effects fire once.
func (r *TaskRepository) MarkDoneIfRunning(ctx context.Context, taskID string) (bool, error) {
	query := `UPDATE task_queue SET status = ? WHERE task_id = ? AND status = ?`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), models.TaskDone, taskID, models.TaskRunning)
	if err != nil {
		return false, fmt.Errorf("failed to mark task done: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// Requeue returns a failed task to READY with a cleared lease, a bumped
// retry count and a backoff-delayed scheduled_at.
func (r *TaskRepository) Requeue(ctx context.Context, taskID string, scheduledAt db.Time) error {
	query := `
		UPDATE task_queue
		SET status = ?, locked_by = '', locked_at = NULL,
		    retry_count = retry_count + 1, scheduled_at = ?
		WHERE task_id = ?
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), models.TaskReady, scheduledAt, taskID)
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}

	return nil
}

// MarkFailed transitions a task to FAILED after its retries are exhausted.
func (r *TaskRepository) MarkFailed(ctx context.Context, taskID string) error {
	query := `UPDATE task_queue SET status = ? WHERE task_id = ?`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), models.TaskFailed, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	return nil
}

// ClaimSubWorkflow records the child execution on a SUBWORKFLOW task. The
// sub_execution_id = '' guard makes the claim exclusive: a duplicate
// completion of the same coordinator task sees 0 rows and must not start a
// second child.
func (r *TaskRepository) ClaimSubWorkflow(ctx context.Context, taskID, subExecutionID, subWorkflowID, subInputJSON string) (bool, error) {
	query := `
		UPDATE task_queue
		SET sub_execution_id = ?, sub_workflow_id = ?, sub_input_json = ?
		WHERE task_id = ? AND status = ? AND sub_execution_id = ''
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		subExecutionID, subWorkflowID, subInputJSON, taskID, models.TaskRunning)
	if err != nil {
		return false, fmt.Errorf("failed to claim subworkflow task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// CompleteParentTask marks the waiting SUBWORKFLOW task DONE when its
// child execution completes.
func (r *TaskRepository) CompleteParentTask(ctx context.Context, executionID, nodeID string) error {
	query := `
		UPDATE task_queue
		SET status = ?
		WHERE execution_id = ? AND node_id = ? AND status = ?
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		models.TaskDone, executionID, nodeID, models.TaskRunning)
	if err != nil {
		return fmt.Errorf("failed to complete parent task: %w", err)
	}

	return nil
}

// ClaimApproval records an approval decision on a task whose gate is still
// open. Returns false when another decision got there first.
func (r *TaskRepository) ClaimApproval(ctx context.Context, taskID string, decision models.ApprovalStatus, approver, comment string) (bool, error) {
	query := `
		UPDATE task_queue
		SET approval_status = ?, approver = ?, approval_comment = ?
		WHERE task_id = ? AND status = ? AND approval_status = ?
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		decision, approver, comment, taskID, models.TaskRunning, models.ApprovalPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim approval: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// FindRunningByNode returns the RUNNING task for a node of an execution,
// or nil when there is none.
func (r *TaskRepository) FindRunningByNode(ctx context.Context, executionID, nodeID string) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM task_queue
		WHERE execution_id = ? AND node_id = ? AND status = ?
	`

	task := &models.Task{}
	err := r.db.GetContext(ctx, task, r.db.Rebind(query), executionID, nodeID, models.TaskRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find running task: %w", err)
	}

	return task, nil
}

// CancelLive transitions every READY or RUNNING task of an execution to
// CANCELLED and reports how many were affected.
func (r *TaskRepository) CancelLive(ctx context.Context, executionID string) (int64, error) {
	query := `
		UPDATE task_queue
		SET status = ?
		WHERE execution_id = ? AND status IN (?, ?)
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		models.TaskCancelled, executionID, models.TaskReady, models.TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel tasks: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows, nil
}

// ReapStale requeues RUNNING tasks whose lease expired before the cutoff.
// Approval gates wait on humans and SUBWORKFLOW coordinators wait on child
// executions; neither holds a worker, so neither is reaped.
func (r *TaskRepository) ReapStale(ctx context.Context, cutoff db.Time) (int64, error) {
	query := `
		UPDATE task_queue
		SET status = ?, locked_by = '', locked_at = NULL, retry_count = retry_count + 1
		WHERE status = ?
		  AND locked_at IS NOT NULL AND locked_at < ?
		  AND approval_status != ?
		  AND sub_execution_id = ''
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		models.TaskReady, models.TaskRunning, cutoff, models.ApprovalPending)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale tasks: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows, nil
}

// NodeIDsByExecution returns the node IDs of every task row of an
// execution, regardless of status. The scheduler treats any existing row
// as "already scheduled".
func (r *TaskRepository) NodeIDsByExecution(ctx context.Context, executionID string) ([]string, error) {
	query := `SELECT node_id FROM task_queue WHERE execution_id = ?`

	var nodeIDs []string
	if err := r.db.SelectContext(ctx, &nodeIDs, r.db.Rebind(query), executionID); err != nil {
		return nil, fmt.Errorf("failed to list scheduled nodes: %w", err)
	}

	return nodeIDs, nil
}

// PendingApprovals returns every open HUMAN_APPROVAL gate joined to its
// workflow.
func (r *TaskRepository) PendingApprovals(ctx context.Context) ([]*models.PendingApproval, error) {
	query := `
		SELECT tq.execution_id, tq.node_id, we.workflow_id, tq.scheduled_at AS started_at
		FROM task_queue tq
		JOIN workflow_executions we ON tq.execution_id = we.execution_id
		WHERE tq.status = ? AND tq.approval_status = ?
	`

	var approvals []*models.PendingApproval
	err := r.db.SelectContext(ctx, &approvals, r.db.Rebind(query), models.TaskRunning, models.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	return approvals, nil
}
