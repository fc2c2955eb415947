package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/thibo-redpepper/convoflow/pkg/events"
	"github.com/thibo-redpepper/convoflow/pkg/models"
	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

// AgentEventWriter publishes diagnostic AgentEvent records onto the bus.
// The engine writes through this instead of the store directly, so event
// persistence never blocks or fails an enrollment run.
type AgentEventWriter struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewAgentEventWriter(publisher message.Publisher, logger *slog.Logger) *AgentEventWriter {
	return &AgentEventWriter{
		publisher: publisher,
		logger:    logger.With("module", "agent_event_writer"),
	}
}

func (w *AgentEventWriter) Write(ctx context.Context, event *models.AgentEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to marshal agent event", "error", err)

		return
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)

	err = w.publisher.Publish(events.AgentEventsTopic, msg)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to publish agent event", "error", err)
	}
}

// Recorder consumes the agent event topic and persists each record through
// the event repository. Append failures nack the message so a persistent
// broker can redeliver.
type Recorder struct {
	subscriber message.Subscriber
	repository persistence.EventRepository
	logger     *slog.Logger
}

func NewRecorder(subscriber message.Subscriber, repository persistence.EventRepository, logger *slog.Logger) *Recorder {
	return &Recorder{
		subscriber: subscriber,
		repository: repository,
		logger:     logger.With("module", "agent_event_recorder"),
	}
}

func (r *Recorder) Run(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, events.AgentEventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event models.AgentEvent

			err := json.Unmarshal(msg.Payload, &event)
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to decode agent event", "error", err)
				msg.Nack()

				continue
			}

			err = r.repository.Append(ctx, &event)
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to persist agent event", "error", err, "event_id", event.ID)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}
