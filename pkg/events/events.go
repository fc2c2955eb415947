// Package events defines event types and structures for enrollment and
// session lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

type EventType string

// Topics.
const AgentEventsTopic = "convoflow.agent.events" // diagnostic trail, persisted by the recorder
const EnrollmentsTopic = "convoflow.enrollments"  // lifecycle notifications

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Enrollment lifecycle events.
	EnrollmentStartedEvent   EventType = "enrollment.started"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentFailedEvent    EventType = "enrollment.failed"
	EnrollmentDeletedEvent   EventType = "enrollment.deleted"

	// Agent session events.
	SessionActivatedEvent   EventType = "session.activated"
	FollowUpDispatchedEvent EventType = "session.followup.dispatched"
	FollowUpFailedEvent     EventType = "session.followup.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type EnrollmentStarted struct {
	BaseEvent

	EnrollmentID string                  `json:"enrollment_id"`
	Source       models.EnrollmentSource `json:"source"`
}

func (e EnrollmentStarted) GetType() EventType {
	return EnrollmentStartedEvent
}

type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	StepCount    int    `json:"step_count"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

type EnrollmentFailed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	NodeID       string `json:"node_id,omitempty"`
	Error        string `json:"error"`
}

func (e EnrollmentFailed) GetType() EventType {
	return EnrollmentFailedEvent
}

type EnrollmentDeleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
}

func (e EnrollmentDeleted) GetType() EventType {
	return EnrollmentDeletedEvent
}

type SessionActivated struct {
	BaseEvent

	SessionID string         `json:"session_id"`
	AgentID   string         `json:"agent_id"`
	Channel   models.Channel `json:"channel"`
}

func (e SessionActivated) GetType() EventType {
	return SessionActivatedEvent
}

type FollowUpDispatched struct {
	BaseEvent

	SessionID    string `json:"session_id"`
	FollowUpStep int    `json:"follow_up_step"`
}

func (e FollowUpDispatched) GetType() EventType {
	return FollowUpDispatchedEvent
}

type FollowUpFailed struct {
	BaseEvent

	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

func (e FollowUpFailed) GetType() EventType {
	return FollowUpFailedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}
