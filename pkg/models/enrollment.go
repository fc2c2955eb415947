package models

import "time"

// EnrollmentStatus is the terminal outcome of one execution attempt.
type EnrollmentStatus string

const (
	EnrollmentStatusSuccess EnrollmentStatus = "success"
	EnrollmentStatusFailed  EnrollmentStatus = "failed"
)

// EnrollmentSource records what produced an enrollment.
type EnrollmentSource string

const (
	EnrollmentSourceTest      EnrollmentSource = "test"
	EnrollmentSourceVoicemail EnrollmentSource = "voicemail"
)

// Step output keys with engine-level meaning. Consumers treat skipped steps
// as deferred sends, and a paused wait step marks where a live enrollment
// resumes.
const (
	StepOutputSkipped = "skipped"
	StepOutputPaused  = "paused"
)

// StepStatus is the outcome of a single chain node.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

// Step records the outcome of one node within an enrollment. Steps are
// immutable once written, except for clearing the paused marker when a live
// enrollment advances past its wait node.
type Step struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"node_id"`
	NodeType  NodeType       `json:"node_type"`
	Status    StepStatus     `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Paused reports whether this step is a live enrollment's current wait
// position.
func (s *Step) Paused() bool {
	paused, _ := s.Output[StepOutputPaused].(bool)

	return paused
}

// Lead is the identity snapshot an enrollment or session was created for.
type Lead struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Enrollment is one concrete run of a chain for one lead, test or live.
// The record is append-only: steps accumulate and the row is never edited
// after completion.
type Enrollment struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	LocationID  string           `json:"location_id,omitempty"`
	Source      EnrollmentSource `json:"source"`
	Lead        Lead             `json:"lead"`
	Status      EnrollmentStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Steps       []*Step          `json:"steps"`
}

// PausedStep returns the step currently holding a live enrollment at a wait
// node, or nil.
func (e *Enrollment) PausedStep() *Step {
	for _, step := range e.Steps {
		if step.Paused() {
			return step
		}
	}

	return nil
}
