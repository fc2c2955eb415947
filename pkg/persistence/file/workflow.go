package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

const workflowKind = "workflows"

// WorkflowRepository stores one JSON file per workflow.
type WorkflowRepository struct {
	root string
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := listIDs(r.root, workflowKind)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if workflow != nil {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := readRecord(r.root, workflowKind, id, &workflow)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("workflow id is required")
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeRecord(r.root, workflowKind, workflow.ID, workflow)
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	found, err := deleteRecord(r.root, workflowKind, id)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) ListActive(ctx context.Context) ([]*models.Workflow, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.Status == models.WorkflowStatusActive {
			active = append(active, workflow)
		}
	}

	return active, nil
}
