package cmd

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/thibo-redpepper/convoflow/pkg/eventbus"
)

// NewEventBus wires the in-process watermill channel shared by the API and
// the follow-up scheduler. It also returns the raw pub/sub pair for the
// agent event recorder, which works below the typed bus.
func NewEventBus(logger *slog.Logger) (eventbus.EventBus, message.Publisher, message.Subscriber) {
	pub, sub := eventbus.CreateChannel(watermill.NewSlogLogger(logger))

	return eventbus.NewWatermillEventBus(pub, sub), pub, sub
}
