package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/db"
)

// ExecutionRepository handles database operations for workflow executions
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(database *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: database}
}

// Insert stores a new execution row.
func (r *ExecutionRepository) Insert(ctx context.Context, e *models.Execution) error {
	query := `
		INSERT INTO workflow_executions (
			execution_id, workflow_id, version_hash, status, input_json,
			parent_execution_id, parent_node_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		e.ExecutionID,
		e.WorkflowID,
		e.VersionHash,
		e.Status,
		e.InputJSON,
		e.ParentExecutionID,
		e.ParentNodeID,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

// Get retrieves an execution by ID, or nil when it does not exist.
func (r *ExecutionRepository) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	query := `
		SELECT execution_id, workflow_id, version_hash, status, input_json,
		       parent_execution_id, parent_node_id, created_at
		FROM workflow_executions
		WHERE execution_id = ?
	`

	execution := &models.Execution{}
	err := r.db.GetContext(ctx, execution, r.db.Rebind(query), executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return execution, nil
}

// List returns executions newest first, optionally filtered by workflow
// and status.
func (r *ExecutionRepository) List(ctx context.Context, workflowID, status string, limit int) ([]*models.Execution, error) {
	query := `
		SELECT execution_id, workflow_id, version_hash, status, input_json,
		       parent_execution_id, parent_node_id, created_at
		FROM workflow_executions
	`

	var conds []string
	var args []any
	if workflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, workflowID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var executions []*models.Execution
	if err := r.db.SelectContext(ctx, &executions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// UpdateStatusIfRunning transitions a RUNNING execution to a terminal
// status. Returns false when the execution already left RUNNING, so
// completion side effects fire exactly once.
func (r *ExecutionRepository) UpdateStatusIfRunning(ctx context.Context, executionID string, status models.ExecutionStatus) (bool, error) {
	query := `
		UPDATE workflow_executions
		SET status = ?
		WHERE execution_id = ? AND status = ?
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), status, executionID, models.ExecutionRunning)
	if err != nil {
		return false, fmt.Errorf("failed to update execution status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// CountRunningByVersion reports how many executions of a workflow version
// are still RUNNING.
func (r *ExecutionRepository) CountRunningByVersion(ctx context.Context, workflowID, versionHash string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM workflow_executions
		WHERE workflow_id = ? AND version_hash = ? AND status = ?
	`

	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), workflowID, versionHash, models.ExecutionRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions: %w", err)
	}

	return count, nil
}
