package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

// EnrollmentRepository handles enrollment-related database operations. The
// lead snapshot and the step list are stored as JSONB.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , location_id
		  , source
		  , lead
		  , status
		  , steps
		  , started_at
		  , completed_at
		FROM workflow_enrollments
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "enrollment", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Enrollment, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , location_id
		  , source
		  , lead
		  , status
		  , steps
		  , started_at
		  , completed_at
		FROM workflow_enrollments
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		return fmt.Errorf("enrollment id is required")
	}

	leadJSON, err := json.Marshal(enrollment.Lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	stepsJSON, err := json.Marshal(enrollment.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_enrollments (id, workflow_id, location_id, source, lead, status, steps, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.WorkflowID,
		enrollment.LocationID,
		enrollment.Source,
		leadJSON,
		enrollment.Status,
		stepsJSON,
		enrollment.StartedAt,
		enrollment.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	return nil
}

func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflow_enrollments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("Delete", "enrollment", id, persistence.ErrEnrollmentNotFound)
	}

	return nil
}

func scanEnrollment(scanner interface {
	Scan(dest ...any) error
}) (*models.Enrollment, error) {
	var (
		enrollment          models.Enrollment
		locationID          sql.NullString
		leadJSON, stepsJSON []byte
	)

	err := scanner.Scan(
		&enrollment.ID,
		&enrollment.WorkflowID,
		&locationID,
		&enrollment.Source,
		&leadJSON,
		&enrollment.Status,
		&stepsJSON,
		&enrollment.StartedAt,
		&enrollment.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	enrollment.LocationID = locationID.String

	if leadJSON != nil {
		err := json.Unmarshal(leadJSON, &enrollment.Lead)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
		}
	}

	if stepsJSON != nil {
		err := json.Unmarshal(stepsJSON, &enrollment.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}

	return &enrollment, nil
}
