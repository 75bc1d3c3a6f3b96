// Package tabtest provides an in-memory tab.Controller for tests.
package tabtest

import (
	"context"
	"sync"

	"github.com/loykin/lazyrestore/internal/tab"
)

// Controller is a scripted tab.Controller. Tabs not present in the map are
// reported as gone.
type Controller struct {
	mu   sync.Mutex
	tabs map[tab.ID]tab.Snapshot

	// GetErr, when set, is returned by every Get call.
	GetErr error
	// DiscardErr, when set, is returned by every Discard call.
	DiscardErr error
	// UpdateErr, when set, is returned by every Update call.
	UpdateErr error

	Discards []tab.ID
	Updates  []Navigation
}

// Navigation records one Update call.
type Navigation struct {
	TabID tab.ID
	URL   string
}

func New() *Controller {
	return &Controller{tabs: make(map[tab.ID]tab.Snapshot)}
}

// Put sets the snapshot returned for id.
func (c *Controller) Put(id tab.ID, s tab.Snapshot) {
	c.mu.Lock()
	c.tabs[id] = s
	c.mu.Unlock()
}

// Close makes id unknown to the controller.
func (c *Controller) Close(id tab.ID) {
	c.mu.Lock()
	delete(c.tabs, id)
	c.mu.Unlock()
}

func (c *Controller) Get(_ context.Context, id tab.ID) (tab.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return tab.Snapshot{}, c.GetErr
	}
	s, ok := c.tabs[id]
	if !ok {
		return tab.Snapshot{}, tab.ErrTabGone
	}
	return s, nil
}

func (c *Controller) Update(_ context.Context, id tab.ID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Updates = append(c.Updates, Navigation{TabID: id, URL: url})
	if c.UpdateErr != nil {
		return c.UpdateErr
	}
	s, ok := c.tabs[id]
	if !ok {
		return tab.ErrTabGone
	}
	s.PendingURL = url
	c.tabs[id] = s
	return nil
}

func (c *Controller) Discard(_ context.Context, id tab.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Discards = append(c.Discards, id)
	if c.DiscardErr != nil {
		return c.DiscardErr
	}
	s, ok := c.tabs[id]
	if !ok {
		return tab.ErrTabGone
	}
	s.Discarded = true
	c.tabs[id] = s
	return nil
}

// DiscardCount returns how many Discard calls were made.
func (c *Controller) DiscardCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Discards)
}

// UpdateCalls returns a copy of the recorded Update calls.
func (c *Controller) UpdateCalls() []Navigation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Navigation(nil), c.Updates...)
}
