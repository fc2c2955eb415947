package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
	"github.com/thibo-redpepper/convoflow/pkg/events"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
	"github.com/thibo-redpepper/convoflow/pkg/runner"
	"github.com/thibo-redpepper/convoflow/pkg/session"
)

// TestInput is one test-run request: the lead snapshot plus the overrides
// saying where sends actually go.
type TestInput struct {
	Lead       models.Lead
	Recipients runner.TestRecipients
}

// VoicemailSignal is one inbound voicemail-drop notification.
type VoicemailSignal struct {
	Lead       models.Lead
	LocationID string
}

// EnrollmentService runs chains and owns the resulting enrollment records:
// test runs, live voicemail enrollments, advancing paused enrollments and
// deletion.
type EnrollmentService struct {
	persistence   persistence.Persistence
	runner        *runner.Runner
	matcher       *session.Matcher
	bus           eventbus.EventPublisher
	eventWriter   *eventbus.AgentEventWriter
	collaborators runner.Collaborators
	logger        *slog.Logger
}

func NewEnrollmentService(
	p persistence.Persistence,
	r *runner.Runner,
	matcher *session.Matcher,
	bus eventbus.EventPublisher,
	eventWriter *eventbus.AgentEventWriter,
	collaborators runner.Collaborators,
	logger *slog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		persistence:   p,
		runner:        r,
		matcher:       matcher,
		bus:           bus,
		eventWriter:   eventWriter,
		collaborators: collaborators,
		logger:        logger.With("module", "enrollment_service"),
	}
}

// RunTest executes a workflow once against test recipients and records the
// enrollment. Test runs never pause at wait nodes; the wait is a logical
// marker.
func (s *EnrollmentService) RunTest(ctx context.Context, workflowID string, input TestInput) (*models.Enrollment, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewStoreError("RunTest", "workflow", workflowID, persistence.ErrWorkflowNotFound)
	}

	report := s.runner.Run(ctx, runner.Input{
		Definition:     &workflow.Definition,
		Lead:           input.Lead,
		TestRecipients: input.Recipients,
		Collaborators:  s.collaborators,
	})

	return s.recordRun(ctx, workflow, report, input.Lead, models.EnrollmentSourceTest, "")
}

// HandleVoicemail starts a live enrollment on every active workflow whose
// trigger is the voicemail drop. Live runs pause at wait nodes.
func (s *EnrollmentService) HandleVoicemail(ctx context.Context, signal VoicemailSignal) ([]*models.Enrollment, error) {
	active, err := s.persistence.WorkflowRepository().ListActive(ctx)
	if err != nil {
		return nil, err
	}

	enrollments := make([]*models.Enrollment, 0)

	for _, workflow := range active {
		if !hasTrigger(&workflow.Definition, models.NodeTypeTriggerVoicemail) {
			continue
		}

		report := s.runner.Run(ctx, runner.Input{
			Definition:    &workflow.Definition,
			Lead:          signal.Lead,
			Collaborators: s.collaborators,
			PauseAtWait:   true,
		})

		enrollment, err := s.recordRun(ctx, workflow, report, signal.Lead, models.EnrollmentSourceVoicemail, signal.LocationID)
		if err != nil {
			return enrollments, err
		}

		enrollments = append(enrollments, enrollment)
	}

	return enrollments, nil
}

// Advance resumes a live enrollment from its paused wait step: the marker
// is cleared and the chain continues from the following node, possibly
// pausing again at the next wait.
func (s *EnrollmentService) Advance(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	paused := enrollment.PausedStep()
	if paused == nil {
		return nil, fmt.Errorf("enrollment %s has no paused step to advance", enrollmentID)
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, enrollment.WorkflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, persistence.NewStoreError("Advance", "workflow", enrollment.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	delete(paused.Output, models.StepOutputPaused)

	report := s.runner.Run(ctx, runner.Input{
		Definition:    &workflow.Definition,
		Lead:          enrollment.Lead,
		Collaborators: s.collaborators,
		PauseAtWait:   true,
		ResumeAfter:   paused.NodeID,
	})

	enrollment.Steps = append(enrollment.Steps, report.Steps...)
	enrollment.Status = report.Status

	if !report.Paused {
		now := time.Now().UTC()
		enrollment.CompletedAt = &now
	}

	if err := s.persistence.EnrollmentRepository().Save(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to save advanced enrollment: %w", err)
	}

	s.activateSessions(ctx, workflow, enrollment, report.Steps)
	s.publishOutcome(ctx, workflow.ID, enrollment, report)

	return enrollment, nil
}

// Delete removes an enrollment and closes any sessions it activated.
func (s *EnrollmentService) Delete(ctx context.Context, enrollmentID string) error {
	enrollment, err := s.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if err := s.persistence.EnrollmentRepository().Delete(ctx, enrollmentID); err != nil {
		return err
	}

	if err := s.matcher.Deactivate(ctx, enrollmentID); err != nil {
		return err
	}

	s.publish(ctx, enrollment.WorkflowID, events.EnrollmentDeleted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentDeletedEvent, enrollment.WorkflowID),
		EnrollmentID: enrollmentID,
	})

	return nil
}

func (s *EnrollmentService) recordRun(
	ctx context.Context,
	workflow *models.Workflow,
	report *runner.Report,
	lead models.Lead,
	source models.EnrollmentSource,
	locationID string,
) (*models.Enrollment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate enrollment ID: %w", err)
	}

	now := time.Now().UTC()

	enrollment := &models.Enrollment{
		ID:         id.String(),
		WorkflowID: workflow.ID,
		LocationID: locationID,
		Source:     source,
		Lead:       lead,
		Status:     report.Status,
		StartedAt:  now,
		Steps:      report.Steps,
	}

	if !report.Paused {
		enrollment.CompletedAt = &now
	}

	if err := s.persistence.EnrollmentRepository().Save(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to save enrollment: %w", err)
	}

	s.publish(ctx, workflow.ID, events.EnrollmentStarted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentStartedEvent, workflow.ID),
		EnrollmentID: enrollment.ID,
		Source:       source,
	})

	s.activateSessions(ctx, workflow, enrollment, report.Steps)
	s.publishOutcome(ctx, workflow.ID, enrollment, report)

	return enrollment, nil
}

// activateSessions upserts an agent session for every successful agent
// handoff step in this run.
func (s *EnrollmentService) activateSessions(ctx context.Context, workflow *models.Workflow, enrollment *models.Enrollment, steps []*models.Step) {
	for _, step := range steps {
		if step.NodeType != models.NodeTypeActionAgent || step.Status != models.StepStatusSuccess {
			continue
		}

		agentID, _ := step.Output["agentId"].(string)
		channelStr, _ := step.Output["channel"].(string)
		channel := models.Channel(channelStr)

		agentSession, err := s.matcher.Upsert(ctx, session.UpsertInput{
			WorkflowID:   workflow.ID,
			EnrollmentID: enrollment.ID,
			LocationID:   enrollment.LocationID,
			AgentID:      agentID,
			Channel:      channel,
			Lead:         enrollment.Lead,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to activate agent session",
				"enrollment_id", enrollment.ID,
				"agent_id", agentID,
				"error", err)

			s.eventWriter.Write(ctx, &models.AgentEvent{
				ID:           uuid.New().String(),
				WorkflowID:   workflow.ID,
				EnrollmentID: enrollment.ID,
				EventType:    string(events.SessionActivatedEvent),
				Level:        models.EventLevelWarn,
				Message:      "session activation failed: " + err.Error(),
				CreatedAt:    time.Now().UTC(),
			})

			continue
		}

		s.publish(ctx, workflow.ID, events.SessionActivated{
			BaseEvent: events.NewBaseEvent(events.SessionActivatedEvent, workflow.ID),
			SessionID: agentSession.ID,
			AgentID:   agentID,
			Channel:   channel,
		})

		s.eventWriter.Write(ctx, &models.AgentEvent{
			ID:           uuid.New().String(),
			WorkflowID:   workflow.ID,
			SessionID:    agentSession.ID,
			EnrollmentID: enrollment.ID,
			EventType:    string(events.SessionActivatedEvent),
			Level:        models.EventLevelInfo,
			Message:      fmt.Sprintf("agent %s session activated on %s", agentID, channel),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func (s *EnrollmentService) publishOutcome(ctx context.Context, workflowID string, enrollment *models.Enrollment, report *runner.Report) {
	if report.Status == models.EnrollmentStatusFailed {
		message := "enrollment failed"
		nodeID := ""

		if report.Err != nil {
			message = report.Err.Message
			nodeID = report.Err.NodeID
		}

		s.publish(ctx, workflowID, events.EnrollmentFailed{
			BaseEvent:    events.NewBaseEvent(events.EnrollmentFailedEvent, workflowID),
			EnrollmentID: enrollment.ID,
			NodeID:       nodeID,
			Error:        message,
		})

		s.eventWriter.Write(ctx, &models.AgentEvent{
			ID:           uuid.New().String(),
			WorkflowID:   workflowID,
			EnrollmentID: enrollment.ID,
			EventType:    string(events.EnrollmentFailedEvent),
			Level:        models.EventLevelError,
			Message:      message,
			CreatedAt:    time.Now().UTC(),
		})

		return
	}

	if report.Paused {
		return
	}

	s.publish(ctx, workflowID, events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentCompletedEvent, workflowID),
		EnrollmentID: enrollment.ID,
		StepCount:    len(enrollment.Steps),
	})

	s.eventWriter.Write(ctx, &models.AgentEvent{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		EnrollmentID: enrollment.ID,
		EventType:    string(events.EnrollmentCompletedEvent),
		Level:        models.EventLevelInfo,
		Message:      fmt.Sprintf("enrollment completed with %d steps", len(enrollment.Steps)),
		CreatedAt:    time.Now().UTC(),
	})
}

func (s *EnrollmentService) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func hasTrigger(def *models.Definition, triggerType models.NodeType) bool {
	for _, node := range def.Nodes {
		if node.Type == triggerType {
			return true
		}
	}

	return false
}
