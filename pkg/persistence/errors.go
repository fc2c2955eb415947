package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEnrollmentNotFound indicates an enrollment was not found by the given identifier.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrSessionNotFound indicates an agent session was not found by the given identifier.
	ErrSessionNotFound = errors.New("agent session not found")
)

// StoreError wraps a storage failure with the operation and record context.
type StoreError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Save")
	Record   string // Record kind ("workflow", "enrollment", "session", "event")
	RecordID string
	Err      error
}

func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Record, e.RecordID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Record, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with record context.
func NewStoreError(op, record, recordID string, err error) *StoreError {
	return &StoreError{Op: op, Record: record, RecordID: recordID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsEnrollmentNotFound checks if an error indicates an enrollment was not found.
func IsEnrollmentNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound)
}

// IsSessionNotFound checks if an error indicates an agent session was not found.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
