// Package workflow provides the service layer over workflow definitions
// and their enrollments.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thibo-redpepper/convoflow/pkg/definition"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

// Repository wraps the workflow store with the editor-facing rules:
// structural validation on every save, strict config validation before a
// workflow can go active.
type Repository struct {
	persistence persistence.Persistence
}

func NewRepository(persistence persistence.Persistence) *Repository {
	return &Repository{
		persistence: persistence,
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := r.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return make([]*models.Workflow, 0), err
	}

	return workflows, nil
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewStoreError("FetchByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *Repository) FetchActive(ctx context.Context) ([]*models.Workflow, error) {
	return r.persistence.WorkflowRepository().ListActive(ctx)
}

func (r *Repository) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := r.validateForStatus(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := r.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := r.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.CreatedAt = existing.CreatedAt

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	if err := r.validateForStatus(workflow); err != nil {
		return nil, err
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := r.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.FetchByID(ctx, id); err != nil {
		return err
	}

	return r.persistence.WorkflowRepository().Delete(ctx, id)
}

// validateForStatus blocks structurally broken definitions on every save,
// and additionally requires full node configuration before activation.
func (r *Repository) validateForStatus(workflow *models.Workflow) error {
	strict := workflow.Status == models.WorkflowStatusActive

	_, err := definition.Validate(&workflow.Definition, definition.Options{ValidateConfig: strict})
	if err != nil {
		return err
	}

	return nil
}
