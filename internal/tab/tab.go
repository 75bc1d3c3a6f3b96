package tab

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ID is the host-assigned tab identifier.
type ID int

func (id ID) String() string { return strconv.Itoa(int(id)) }

// ParseID parses a decimal tab id. Negative ids are rejected.
func ParseID(s string) (ID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("tab id must be non-negative")
	}
	return ID(n), nil
}

// StatusLoading is the change status reported when a tab starts a navigation.
const StatusLoading = "loading"

// StatusComplete is the change status reported when a load finished.
const StatusComplete = "complete"

// Snapshot is the host's view of a tab at notification time.
type Snapshot struct {
	URL        string `json:"url"`
	PendingURL string `json:"pending_url,omitempty"`
	Active     bool   `json:"active"`
	Discarded  bool   `json:"discarded"`
}

// ChangeInfo carries the fields that changed in a tab-updated notification.
type ChangeInfo struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// ErrTabGone is returned by a Controller when the tab no longer exists.
var ErrTabGone = errors.New("tab no longer exists")

// Controller issues tab-control operations against the host.
// Implementations must be safe for concurrent use.
type Controller interface {
	Get(ctx context.Context, id ID) (Snapshot, error)
	Update(ctx context.Context, id ID, url string) error
	Discard(ctx context.Context, id ID) error
}

// IsBlank reports whether url carries no navigation signal.
func IsBlank(url string) bool {
	u := strings.TrimSpace(url)
	return u == "" || u == "about:blank"
}
