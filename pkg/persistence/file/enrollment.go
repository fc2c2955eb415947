package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

const enrollmentKind = "enrollments"

// EnrollmentRepository stores one JSON file per enrollment, steps embedded.
type EnrollmentRepository struct {
	root string
}

func (r *EnrollmentRepository) GetByID(_ context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment

	found, err := readRecord(r.root, enrollmentKind, id, &enrollment)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("GetByID", "enrollment", id, persistence.ErrEnrollmentNotFound)
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Enrollment, error) {
	ids, err := listIDs(r.root, enrollmentKind)
	if err != nil {
		return nil, err
	}

	enrollments := make([]*models.Enrollment, 0)

	for _, id := range ids {
		enrollment, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if enrollment.WorkflowID == workflowID {
			enrollments = append(enrollments, enrollment)
		}
	}

	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].StartedAt.After(enrollments[j].StartedAt)
	})

	if limit > 0 && len(enrollments) > limit {
		enrollments = enrollments[:limit]
	}

	return enrollments, nil
}

func (r *EnrollmentRepository) Save(_ context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		return fmt.Errorf("enrollment id is required")
	}

	return writeRecord(r.root, enrollmentKind, enrollment.ID, enrollment)
}

func (r *EnrollmentRepository) Delete(_ context.Context, id string) error {
	found, err := deleteRecord(r.root, enrollmentKind, id)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewStoreError("Delete", "enrollment", id, persistence.ErrEnrollmentNotFound)
	}

	return nil
}
