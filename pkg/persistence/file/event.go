package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

const eventKind = "events"

// EventRepository stores one JSON file per agent event. Append-only: there
// is no update or delete path.
type EventRepository struct {
	root string
}

func (r *EventRepository) Append(_ context.Context, event *models.AgentEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}

	return writeRecord(r.root, eventKind, event.ID, event)
}

func (r *EventRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.AgentEvent, error) {
	ids, err := listIDs(r.root, eventKind)
	if err != nil {
		return nil, err
	}

	events := make([]*models.AgentEvent, 0)

	for _, id := range ids {
		var event models.AgentEvent

		found, err := readRecord(r.root, eventKind, id, &event)
		if err != nil {
			return nil, err
		}

		if found && event.WorkflowID == workflowID {
			events = append(events, &event)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}
