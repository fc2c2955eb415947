package models

import "time"

// EventLevel classifies an agent event for the debug panel.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// AgentEvent is one entry of the append-only diagnostic trail. The engine
// only writes these; the debug UI only reads them.
type AgentEvent struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	SessionID    string         `json:"session_id,omitempty"`
	EnrollmentID string         `json:"enrollment_id,omitempty"`
	EventType    string         `json:"event_type"`
	Level        EventLevel     `json:"level"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
