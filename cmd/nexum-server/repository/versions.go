package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/db"
)

// VersionRepository handles database operations for workflow versions
type VersionRepository struct {
	db *db.DB
}

// NewVersionRepository creates a new workflow version repository
func NewVersionRepository(database *db.DB) *VersionRepository {
	return &VersionRepository{db: database}
}

// Insert stores a workflow version. Re-registering an existing
// (workflow_id, version_hash) pair is a no-op.
func (r *VersionRepository) Insert(ctx context.Context, v *models.WorkflowVersion) error {
	query := `
		INSERT INTO workflow_versions (workflow_id, version_hash, ir_json, compatibility, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		v.WorkflowID,
		v.VersionHash,
		v.IRJSON,
		v.Compatibility,
		v.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow version: %w", err)
	}

	return nil
}

// Latest returns the most recently registered version of a workflow,
// or nil when the workflow has never been registered.
func (r *VersionRepository) Latest(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version_hash, ir_json, compatibility, registered_at
		FROM workflow_versions
		WHERE workflow_id = ?
		ORDER BY registered_at DESC
		LIMIT 1
	`

	version := &models.WorkflowVersion{}
	err := r.db.GetContext(ctx, version, r.db.Rebind(query), workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest workflow version: %w", err)
	}

	return version, nil
}

// ListByWorkflow returns every version of a workflow, newest first.
func (r *VersionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version_hash, ir_json, compatibility, registered_at
		FROM workflow_versions
		WHERE workflow_id = ?
		ORDER BY registered_at DESC
	`

	var versions []*models.WorkflowVersion
	if err := r.db.SelectContext(ctx, &versions, r.db.Rebind(query), workflowID); err != nil {
		return nil, fmt.Errorf("failed to list workflow versions: %w", err)
	}

	return versions, nil
}

// All returns every registered workflow version, for registry rehydration
// on startup.
func (r *VersionRepository) All(ctx context.Context) ([]*models.WorkflowVersion, error) {
	query := `
		SELECT workflow_id, version_hash, ir_json, compatibility, registered_at
		FROM workflow_versions
	`

	var versions []*models.WorkflowVersion
	if err := r.db.SelectContext(ctx, &versions, query); err != nil {
		return nil, fmt.Errorf("failed to load workflow versions: %w", err)
	}

	return versions, nil
}
