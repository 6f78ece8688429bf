package repository

import (
	"context"
	"fmt"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/db"
)

// Fan-in claim sentinel. Real item results use indexes >= 0; the claim row
// uses -1 so it never collides with a staged result.
const fanInSentinelIndex = -1

// MapResultRepository stages MAP sub-task results until fan-in
type MapResultRepository struct {
	db *db.DB
}

// NewMapResultRepository creates a new map result repository
func NewMapResultRepository(database *db.DB) *MapResultRepository {
	return &MapResultRepository{db: database}
}

// Upsert stages one sub-task result. A retried sub-task overwrites its own
// slot, so a slot is counted at most once.
func (r *MapResultRepository) Upsert(ctx context.Context, m *models.MapResult) error {
	query := `
		INSERT INTO map_results (execution_id, map_node_id, item_index, result_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (execution_id, map_node_id, item_index)
		DO UPDATE SET result_json = excluded.result_json
	`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		m.ExecutionID, m.MapNodeID, m.ItemIndex, m.ResultJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert map result: %w", err)
	}

	return nil
}

// CountStaged reports how many item slots have a result.
func (r *MapResultRepository) CountStaged(ctx context.Context, executionID, mapNodeID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM map_results
		WHERE execution_id = ? AND map_node_id = ? AND item_index >= 0
	`

	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), executionID, mapNodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to count map results: %w", err)
	}

	return count, nil
}

// ClaimFanIn elects the sub-task completion that gathers results and emits
// the MAP node's NodeCompleted event. The sentinel insert succeeds exactly
// once per (execution, map node); every later caller sees false.
func (r *MapResultRepository) ClaimFanIn(ctx context.Context, executionID, mapNodeID string) (bool, error) {
	query := `
		INSERT INTO map_results (execution_id, map_node_id, item_index, result_json)
		VALUES (?, ?, ?, '')
		ON CONFLICT (execution_id, map_node_id, item_index) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), executionID, mapNodeID, fanInSentinelIndex)
	if err != nil {
		return false, fmt.Errorf("failed to claim fan-in: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// Gather returns the staged results in item order.
func (r *MapResultRepository) Gather(ctx context.Context, executionID, mapNodeID string) ([]string, error) {
	query := `
		SELECT result_json
		FROM map_results
		WHERE execution_id = ? AND map_node_id = ? AND item_index >= 0
		ORDER BY item_index ASC
	`

	var results []string
	if err := r.db.SelectContext(ctx, &results, r.db.Rebind(query), executionID, mapNodeID); err != nil {
		return nil, fmt.Errorf("failed to gather map results: %w", err)
	}

	return results, nil
}
