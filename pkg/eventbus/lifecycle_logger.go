package eventbus

import (
	"context"
	"log/slog"

	"github.com/thibo-redpepper/convoflow/pkg/events"
)

// LifecycleLogger is the in-process consumer of the enrollment lifecycle
// topic. It turns every published event into a structured log line, so the
// stream stays observable until an external consumer is attached.
type LifecycleLogger struct {
	bus    EventSubscriber
	logger *slog.Logger
}

func NewLifecycleLogger(bus EventSubscriber, logger *slog.Logger) *LifecycleLogger {
	return &LifecycleLogger{
		bus:    bus,
		logger: logger.With("module", "lifecycle_logger"),
	}
}

// Run registers a handler for every lifecycle event type and starts
// consuming the topic.
func (l *LifecycleLogger) Run(ctx context.Context) error {
	eventTypes := []events.EventType{
		events.EnrollmentStartedEvent,
		events.EnrollmentCompletedEvent,
		events.EnrollmentFailedEvent,
		events.EnrollmentDeletedEvent,
		events.SessionActivatedEvent,
		events.FollowUpDispatchedEvent,
		events.FollowUpFailedEvent,
	}

	for _, eventType := range eventTypes {
		if err := l.bus.Handle(eventType, l.log); err != nil {
			return err
		}
	}

	return l.bus.Subscribe(ctx)
}

func (l *LifecycleLogger) log(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *events.EnrollmentStarted:
		l.logger.InfoContext(ctx, "Enrollment started",
			"workflow_id", e.WorkflowID, "enrollment_id", e.EnrollmentID, "source", e.Source)
	case *events.EnrollmentCompleted:
		l.logger.InfoContext(ctx, "Enrollment completed",
			"workflow_id", e.WorkflowID, "enrollment_id", e.EnrollmentID, "step_count", e.StepCount)
	case *events.EnrollmentFailed:
		l.logger.WarnContext(ctx, "Enrollment failed",
			"workflow_id", e.WorkflowID, "enrollment_id", e.EnrollmentID, "node_id", e.NodeID, "error", e.Error)
	case *events.EnrollmentDeleted:
		l.logger.InfoContext(ctx, "Enrollment deleted",
			"workflow_id", e.WorkflowID, "enrollment_id", e.EnrollmentID)
	case *events.SessionActivated:
		l.logger.InfoContext(ctx, "Session activated",
			"workflow_id", e.WorkflowID, "session_id", e.SessionID, "agent_id", e.AgentID, "channel", e.Channel)
	case *events.FollowUpDispatched:
		l.logger.InfoContext(ctx, "Follow-up dispatched",
			"workflow_id", e.WorkflowID, "session_id", e.SessionID, "follow_up_step", e.FollowUpStep)
	case *events.FollowUpFailed:
		l.logger.WarnContext(ctx, "Follow-up failed",
			"workflow_id", e.WorkflowID, "session_id", e.SessionID, "error", e.Error)
	}

	return nil
}
