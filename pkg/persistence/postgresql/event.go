package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

// EventRepository handles the append-only agent event trail.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *EventRepository) Append(ctx context.Context, event *models.AgentEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO workflow_agent_events (id, workflow_id, session_id, enrollment_id, event_type, level, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.WorkflowID,
		nullString(event.SessionID),
		nullString(event.EnrollmentID),
		event.EventType,
		event.Level,
		event.Message,
		payloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

func (r *EventRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.AgentEvent, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , session_id
		  , enrollment_id
		  , event_type
		  , level
		  , message
		  , payload
		  , created_at
		FROM workflow_agent_events
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.AgentEvent, 0)

	for rows.Next() {
		var (
			event        models.AgentEvent
			sessionID    sql.NullString
			enrollmentID sql.NullString
			payloadJSON  []byte
		)

		err := rows.Scan(
			&event.ID,
			&event.WorkflowID,
			&sessionID,
			&enrollmentID,
			&event.EventType,
			&event.Level,
			&event.Message,
			&payloadJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.SessionID = sessionID.String
		event.EnrollmentID = enrollmentID.String

		if payloadJSON != nil {
			err := json.Unmarshal(payloadJSON, &event.Payload)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
