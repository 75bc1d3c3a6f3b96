package bridge

import "github.com/loykin/lazyrestore/internal/tab"

// Message types.
const (
	TypeEvent    = "event"
	TypeRegister = "register"
	TypeResult   = "result"
	TypeCommand  = "command"
)

// Host notification kinds carried by TypeEvent messages.
const (
	EventUpdated   = "updated"
	EventActivated = "activated"
	EventRemoved   = "removed"
)

// Command operations carried by TypeCommand messages.
const (
	OpGet     = "get"
	OpUpdate  = "update"
	OpDiscard = "discard"
)

// Message is the single JSON frame exchanged in both directions.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Event     string          `json:"event,omitempty"`
	Op        string          `json:"op,omitempty"`
	TabID     tab.ID          `json:"tab_id"`
	URL       string          `json:"url,omitempty"`
	TargetURL string          `json:"target_url,omitempty"`
	Change    *tab.ChangeInfo `json:"change,omitempty"`
	Tab       *tab.Snapshot   `json:"tab,omitempty"`
	Error     string          `json:"error,omitempty"`
	Gone      bool            `json:"gone,omitempty"`
}
