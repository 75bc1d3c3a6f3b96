// Package decision holds the pure discard policy for lazily restored tabs.
package decision

import (
	"time"

	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/tab"
)

// DefaultBackstop is how long after registration weak signals are accepted.
const DefaultBackstop = 1500 * time.Millisecond

// Policy evaluates whether a placeholder tab may be discarded now.
type Policy struct {
	// Backstop bounds how long the policy waits for a strong navigation
	// signal. Zero means DefaultBackstop.
	Backstop time.Duration
}

// Default is the policy used by ShouldDiscardNow.
var Default = Policy{Backstop: DefaultBackstop}

// ShouldDiscardNow applies the default policy.
func ShouldDiscardNow(e registry.Entry, snap tab.Snapshot, change tab.ChangeInfo, now time.Time) bool {
	return Default.ShouldDiscardNow(e, snap, change, now)
}

// ShouldDiscardNow evaluates the rules in precedence order. It never
// discards the tab the user is looking at or a tab that is already discarded.
func (p Policy) ShouldDiscardNow(e registry.Entry, snap tab.Snapshot, change tab.ChangeInfo, now time.Time) bool {
	if e.TargetURL == "" {
		return false
	}
	if snap.Active || snap.Discarded {
		return false
	}

	// strong association with the restore target
	if snap.PendingURL == e.TargetURL || change.URL == e.TargetURL || snap.URL == e.TargetURL {
		return true
	}
	// the tab navigated somewhere else on its own
	if !tab.IsBlank(snap.PendingURL) || !tab.IsBlank(snap.URL) {
		return true
	}
	if change.Status == tab.StatusLoading && !tab.IsBlank(change.URL) {
		return true
	}

	backstop := p.Backstop
	if backstop <= 0 {
		backstop = DefaultBackstop
	}
	// Past the backstop the update notification itself is the remaining
	// signal; every URL field is blank, so nothing contradicts discarding.
	return now.Sub(e.CreatedAt) > backstop
}
