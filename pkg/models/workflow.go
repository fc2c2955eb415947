package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not enrollable
	WorkflowStatusActive   WorkflowStatus = "active"   // Live, accepts enrollments
	WorkflowStatusInactive WorkflowStatus = "inactive" // Retired, kept for history
)

// Settings carries per-workflow execution settings.
type Settings struct {
	SendWindow *SendWindow `json:"sendWindow,omitempty"`
}

// Definition is the node/edge graph an operator draws in the editor. It is
// persisted and round-tripped verbatim; the validator derives the executable
// chain from it.
type Definition struct {
	Nodes    []*Node  `json:"nodes"`
	Edges    []*Edge  `json:"edges"`
	Settings Settings `json:"settings,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (d *Definition) NodeByID(id string) *Node {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// Workflow is a stored outreach sequence. It is never hard-deleted by the
// engine; retiring one moves it to inactive.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"      validate:"required"`
	Definition  Definition     `json:"definition"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
