package registry

import "time"

// DiscardState tracks the discard outcome of a lazily restored tab.
type DiscardState string

const (
	StatePending    DiscardState = "pending"
	StateDiscarding DiscardState = "discarding"
	StateDiscarded  DiscardState = "discarded"
	StateFailed     DiscardState = "failed"
)

// Terminal reports whether no further discard will be attempted.
func (s DiscardState) Terminal() bool {
	return s == StateDiscarded || s == StateFailed
}

// Entry is the pending-restore record for one placeholder tab. It exists only
// while the tab is reopened but not yet settled.
type Entry struct {
	TargetURL          string       `json:"target_url"`
	CreatedAt          time.Time    `json:"created_at"`
	DiscardScheduledAt *time.Time   `json:"discard_scheduled_at,omitempty"`
	DiscardState       DiscardState `json:"discard_state"`
}

// Scheduled reports whether a discard was already armed for this entry.
func (e Entry) Scheduled() bool { return e.DiscardScheduledAt != nil }
