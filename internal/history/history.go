package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/lazyrestore/internal/tab"
)

// EventType defines the kind of restore lifecycle event.
type EventType string

const (
	EventRegistered       EventType = "registered"
	EventDiscardScheduled EventType = "discard_scheduled"
	EventDiscarded        EventType = "discarded"
	EventDiscardFailed    EventType = "discard_failed"
	EventActivated        EventType = "activated"
	EventRemoved          EventType = "removed"
	EventUnregistered     EventType = "unregistered"
	EventSwept            EventType = "swept"
)

// Event represents a lifecycle event exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	TabID      tab.ID    `json:"tab_id"`
	TargetURL  string    `json:"target_url"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent fills the id and timestamp of an event.
func NewEvent(t EventType, id tab.ID, targetURL, state string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		TabID:      id,
		TargetURL:  targetURL,
		State:      state,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
