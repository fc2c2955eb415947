package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
	"github.com/thibo-redpepper/convoflow/pkg/events"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/session"
)

// DispatchFunc hands one due session to the agent-policy collaborator,
// which composes and sends the actual follow-up message.
type DispatchFunc func(ctx context.Context, s *models.AgentSession) error

// Config carries the tick cadence. MinDelay/MaxDelay bound the randomized
// gap until a session's next follow-up.
type Config struct {
	Interval   time.Duration
	BatchLimit int
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

// Ticker queries due sessions on a fixed interval and dispatches them.
// Dispatch failures are recorded and skipped; the tick keeps going.
type Ticker struct {
	config      Config
	followUps   *session.FollowUps
	lease       Lease
	dispatch    DispatchFunc
	eventWriter *eventbus.AgentEventWriter
	logger      *slog.Logger
	cron        *cron.Cron
}

func NewTicker(config Config, followUps *session.FollowUps, lease Lease, dispatch DispatchFunc, eventWriter *eventbus.AgentEventWriter, logger *slog.Logger) *Ticker {
	return &Ticker{
		config:      config,
		followUps:   followUps,
		lease:       lease,
		dispatch:    dispatch,
		eventWriter: eventWriter,
		logger:      logger.With("module", "follow_up_ticker"),
	}
}

// Start schedules the tick and returns immediately.
func (t *Ticker) Start(ctx context.Context) error {
	t.cron = cron.New()

	_, err := t.cron.AddFunc(fmt.Sprintf("@every %s", t.config.Interval), func() {
		t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	t.cron.Start()
	t.logger.InfoContext(ctx, "Follow-up ticker started", "interval", t.config.Interval)

	return nil
}

// Stop halts the tick schedule and waits for a running tick to finish.
func (t *Ticker) Stop() {
	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
}

// RunOnce executes a single tick.
func (t *Ticker) RunOnce(ctx context.Context) {
	acquired, err := t.lease.TryAcquire(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "Tick lease check failed", "error", err)

		return
	}

	if !acquired {
		t.logger.DebugContext(ctx, "Tick lease held elsewhere, skipping")

		return
	}

	now := time.Now().UTC()

	due, err := t.followUps.Due(ctx, now, t.config.BatchLimit)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to query due sessions", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	t.logger.InfoContext(ctx, "Dispatching due follow-ups", "count", len(due))

	for _, s := range due {
		t.dispatchSession(ctx, s, now)
	}
}

func (t *Ticker) dispatchSession(ctx context.Context, s *models.AgentSession, now time.Time) {
	err := t.dispatch(ctx, s)
	if err != nil {
		t.logger.WarnContext(ctx, "Follow-up dispatch failed",
			"session_id", s.ID,
			"workflow_id", s.WorkflowID,
			"error", err)

		t.eventWriter.Write(ctx, &models.AgentEvent{
			ID:         uuid.New().String(),
			WorkflowID: s.WorkflowID,
			SessionID:  s.ID,
			EventType:  string(events.FollowUpFailedEvent),
			Level:      models.EventLevelWarn,
			Message:    err.Error(),
			CreatedAt:  now,
		})

		return
	}

	step := s.FollowUpStep + 1
	nextAt := session.NextAt(now, t.config.MinDelay, t.config.MaxDelay)

	err = t.followUps.Advance(ctx, s.ID, session.Advancement{
		FollowUpStep:   &step,
		NextFollowUpAt: &nextAt,
		LastFollowUpAt: &now,
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to advance session after dispatch",
			"session_id", s.ID,
			"error", err)

		return
	}

	t.eventWriter.Write(ctx, &models.AgentEvent{
		ID:         uuid.New().String(),
		WorkflowID: s.WorkflowID,
		SessionID:  s.ID,
		EventType:  string(events.FollowUpDispatchedEvent),
		Level:      models.EventLevelInfo,
		Message:    fmt.Sprintf("follow-up %d dispatched", step),
		Payload:    map[string]any{"follow_up_step": step},
		CreatedAt:  now,
	})
}
