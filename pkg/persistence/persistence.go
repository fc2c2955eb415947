// Package persistence provides the storage abstraction for workflows,
// enrollments, agent sessions and agent events.
package persistence

import (
	"context"
	"time"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

// Persistence is the set of repositories a backing store must provide.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnrollmentRepository() EnrollmentRepository
	SessionRepository() SessionRepository
	EventRepository() EventRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow records. GetByID returns (nil, nil)
// when the workflow does not exist.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*models.Workflow, error)
}

// EnrollmentRepository stores execution histories. Enrollments are
// append-only except for explicit operator deletion.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Enrollment, error)
	Save(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

// SessionIdentityQuery narrows active sessions to one conversation slot.
// Exactly one of PhoneNorm/PhoneLast10 (SMS) or EmailNorm (EMAIL) is set.
type SessionIdentityQuery struct {
	WorkflowID  string
	AgentID     string
	Channel     models.Channel
	PhoneNorm   string
	PhoneLast10 string
	EmailNorm   string
	Limit       int
}

// SessionRepository stores agent conversation sessions and the queries the
// matcher and follow-up scheduler need.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*models.AgentSession, error)
	Save(ctx context.Context, session *models.AgentSession) error

	// ListActiveByIdentity returns active sessions matching the identity
	// query, most recently updated first, capped at q.Limit.
	ListActiveByIdentity(ctx context.Context, q SessionIdentityQuery) ([]*models.AgentSession, error)

	// ListActiveByPhone returns active SMS sessions whose lead phone
	// matches phoneNorm exactly or last10 on the suffix key, most recently
	// updated first.
	ListActiveByPhone(ctx context.Context, phoneNorm, last10 string, limit int) ([]*models.AgentSession, error)

	// ListDueFollowUps returns active sessions with a non-null
	// next_follow_up_at at or before now, oldest due first.
	ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.AgentSession, error)

	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.AgentSession, error)
	DeactivateByEnrollment(ctx context.Context, enrollmentID string) error
}

// EventRepository is the append-only diagnostic trail. The engine writes,
// the debug UI reads; nothing updates or deletes.
type EventRepository interface {
	Append(ctx context.Context, event *models.AgentEvent) error
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.AgentEvent, error)
}
