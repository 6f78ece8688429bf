package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/common/db"
)

// Sequence numbers are assigned optimistically; concurrent appends to the
// same execution race on UNIQUE(execution_id, sequence_id) and the loser
// retries with a fresh number.
const maxSequenceRetries = 5

// EventRepository handles the append-only per-execution event log
type EventRepository struct {
	db *db.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(database *db.DB) *EventRepository {
	return &EventRepository{db: database}
}

// Append writes an event with the next sequence number for the execution.
func (r *EventRepository) Append(ctx context.Context, executionID, eventType, payload string) (*models.Event, error) {
	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		event := &models.Event{
			EventID:     "evt-" + uuid.NewString(),
			ExecutionID: executionID,
			EventType:   eventType,
			Payload:     payload,
			CreatedAt:   db.Now(),
		}

		err := r.tryAppend(ctx, event)
		if err == nil {
			return event, nil
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to append event after %d attempts: %w", maxSequenceRetries, lastErr)
}

func (r *EventRepository) tryAppend(ctx context.Context, event *models.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next := `SELECT COALESCE(MAX(sequence_id), 0) + 1 FROM events WHERE execution_id = ?`
	if err := tx.GetContext(ctx, &event.SequenceID, r.db.Rebind(next), event.ExecutionID); err != nil {
		return fmt.Errorf("failed to get next sequence id: %w", err)
	}

	insert := `
		INSERT INTO events (event_id, execution_id, sequence_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, r.db.Rebind(insert),
		event.EventID,
		event.ExecutionID,
		event.SequenceID,
		event.EventType,
		event.Payload,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return tx.Commit()
}

// ListByExecution returns every event of an execution in sequence order.
func (r *EventRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.Event, error) {
	query := `
		SELECT event_id, execution_id, sequence_id, event_type, payload, created_at
		FROM events
		WHERE execution_id = ?
		ORDER BY sequence_id ASC
	`

	var events []*models.Event
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), executionID); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}

// ListNodeCompleted returns the NodeCompleted events of an execution in
// sequence order. Node identity lives inside the JSON payload, so callers
// filter by node in application code; this keeps the SQL portable across
// dialects.
func (r *EventRepository) ListNodeCompleted(ctx context.Context, executionID string) ([]*models.Event, error) {
	query := `
		SELECT event_id, execution_id, sequence_id, event_type, payload, created_at
		FROM events
		WHERE execution_id = ? AND event_type = ?
		ORDER BY sequence_id ASC
	`

	var events []*models.Event
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), executionID, models.EventNodeCompleted); err != nil {
		return nil, fmt.Errorf("failed to list completed nodes: %w", err)
	}

	return events, nil
}

// LastNodeCompleted returns the most recent NodeCompleted event of an
// execution, or nil when none exists. Used to couple a child execution's
// final output back into its parent.
func (r *EventRepository) LastNodeCompleted(ctx context.Context, executionID string) (*models.Event, error) {
	query := `
		SELECT event_id, execution_id, sequence_id, event_type, payload, created_at
		FROM events
		WHERE execution_id = ? AND event_type = ?
		ORDER BY sequence_id DESC
		LIMIT 1
	`

	event := &models.Event{}
	err := r.db.GetContext(ctx, event, r.db.Rebind(query), executionID, models.EventNodeCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed node: %w", err)
	}

	return event, nil
}
