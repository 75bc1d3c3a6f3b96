package client

import (
	"fmt"
	"time"
)

// RegisterRequest registers a placeholder tab
type RegisterRequest struct {
	TabID     int        `json:"tab_id"`
	TargetURL string     `json:"target_url"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ChangeInfo is the change part of a tab update notification
type ChangeInfo struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// TabSnapshot is the tab state carried by an update notification
type TabSnapshot struct {
	URL        string `json:"url"`
	PendingURL string `json:"pending_url,omitempty"`
	Active     bool   `json:"active"`
	Discarded  bool   `json:"discarded"`
}

// UpdatedRequest reports a tab update notification
type UpdatedRequest struct {
	TabID  int         `json:"tab_id"`
	Change ChangeInfo  `json:"change"`
	Tab    TabSnapshot `json:"tab"`
}

// Entry is a tracked placeholder tab
type Entry struct {
	TabID              int        `json:"tab_id"`
	TargetURL          string     `json:"target_url"`
	CreatedAt          time.Time  `json:"created_at"`
	DiscardScheduledAt *time.Time `json:"discard_scheduled_at,omitempty"`
	DiscardState       string     `json:"discard_state"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}
