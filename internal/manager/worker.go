package manager

import (
	"context"
	"errors"

	"github.com/loykin/lazyrestore/internal/history"
	"github.com/loykin/lazyrestore/internal/metrics"
	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/scheduler"
	"github.com/loykin/lazyrestore/internal/tab"
)

type commandAction int

const (
	actionRegister commandAction = iota
	actionUnregister
	actionSweep
	actionUpdated
	actionActivated
	actionRemoved
	actionDiscardDue
	actionEntries
	actionGet
	actionShutdown
)

func (a commandAction) String() string {
	switch a {
	case actionRegister:
		return "register"
	case actionUnregister:
		return "unregister"
	case actionSweep:
		return "sweep"
	case actionUpdated:
		return "updated"
	case actionActivated:
		return "activated"
	case actionRemoved:
		return "removed"
	case actionDiscardDue:
		return "discard_due"
	case actionEntries:
		return "entries"
	case actionGet:
		return "get"
	case actionShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

type command struct {
	action commandAction
	id     tab.ID
	change tab.ChangeInfo
	snap   tab.Snapshot
	req    RegisterRequest
	due    scheduler.Due
	reply  chan result
}

type result struct {
	err     error
	found   bool
	entry   registry.Entry
	records []registry.Record
}

// run is the worker loop (single goroutine, sole owner of the registry).
func (m *Manager) run(parent context.Context) {
	defer close(m.doneChan)
	ctx := context.WithoutCancel(parent)

	m.reg.EnsureLoaded(ctx)
	m.sched.Resume(ctx)
	metrics.SetEntries(m.reg.Len())

	for {
		select {
		case cmd := <-m.cmdChan:
			if cmd.action == actionShutdown {
				m.drain(ctx)
				return
			}
			m.handleCommand(ctx, cmd)
		case <-parent.Done():
			m.drain(ctx)
			return
		}
	}
}

// drain handles commands already queued, then cancels armed timers.
func (m *Manager) drain(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	for {
		select {
		case cmd := <-m.cmdChan:
			if cmd.action == actionShutdown || cmd.action == actionDiscardDue {
				continue
			}
			m.handleCommand(ctx, cmd)
		default:
			m.sched.Stop()
			m.log.Debug("restore manager stopped", "entries", m.reg.Len())
			return
		}
	}
}

func (m *Manager) handleCommand(ctx context.Context, cmd command) {
	var r result
	switch cmd.action {
	case actionRegister:
		m.handleRegister(ctx, cmd.id, cmd.req)
	case actionUnregister:
		r.found = m.remove(ctx, cmd.id, "unregistered", history.EventUnregistered)
	case actionSweep:
		r.found = m.remove(ctx, cmd.id, "swept", history.EventSwept)
	case actionUpdated:
		m.handleUpdated(ctx, cmd.id, cmd.change, cmd.snap)
	case actionActivated:
		m.handleActivated(ctx, cmd.id)
	case actionRemoved:
		metrics.IncEvent("removed")
		m.remove(ctx, cmd.id, "closed", history.EventRemoved)
	case actionDiscardDue:
		m.handleDiscardDue(ctx, cmd.due)
	case actionEntries:
		r.records = m.reg.Entries()
	case actionGet:
		r.entry, r.found = m.reg.Get(cmd.id)
	default:
		r.err = errors.New("unknown command " + cmd.action.String())
	}
	if cmd.reply != nil {
		cmd.reply <- r
	}
}

func (m *Manager) handleRegister(ctx context.Context, id tab.ID, req RegisterRequest) {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.clk.Now()
	}
	e := registry.Entry{
		TargetURL:    req.TargetURL,
		CreatedAt:    createdAt,
		DiscardState: registry.StatePending,
	}
	m.sched.Cancel(id)
	m.reg.Register(ctx, id, e)
	metrics.IncRegistration()
	metrics.SetEntries(m.reg.Len())
	m.emit(history.EventRegistered, id, e, nil)
	m.log.Debug("tab registered", "tab_id", id, "target_url", e.TargetURL)
}

func (m *Manager) handleUpdated(ctx context.Context, id tab.ID, change tab.ChangeInfo, snap tab.Snapshot) {
	metrics.IncEvent("updated")
	e, ok := m.reg.Get(id)
	if !ok {
		return
	}
	if !m.policy.ShouldDiscardNow(e, snap, change, m.clk.Now()) {
		return
	}
	if m.sched.Schedule(ctx, id, e) {
		e, _ = m.reg.Get(id)
		m.emit(history.EventDiscardScheduled, id, e, nil)
	}
}

func (m *Manager) handleActivated(ctx context.Context, id tab.ID) {
	metrics.IncEvent("activated")
	e, ok := m.reg.Get(id)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, m.hostTimeout)
	defer cancel()
	snap, err := m.ctl.Get(cctx, id)
	switch {
	case errors.Is(err, tab.ErrTabGone):
		// The removed notification cleans up.
		m.log.Debug("activated tab is gone", "tab_id", id)
		return
	case err != nil:
		m.log.Warn("activated tab lookup failed", "tab_id", id, "error", err)
	case tab.IsBlank(snap.URL):
		metrics.IncNavigation()
		if err := m.ctl.Update(cctx, id, e.TargetURL); err != nil {
			m.log.Warn("navigate activated tab failed", "tab_id", id, "error", err)
		}
	}
	m.remove(ctx, id, "activated", history.EventActivated)
}

func (m *Manager) handleDiscardDue(ctx context.Context, due scheduler.Due) {
	res := m.sched.Execute(ctx, due)
	switch res.Outcome {
	case scheduler.OutcomeDiscarded:
		m.emit(history.EventDiscarded, due.TabID, res.Entry, nil)
	case scheduler.OutcomeFailed:
		m.emit(history.EventDiscardFailed, due.TabID, res.Entry, res.Err)
	}
}

func (m *Manager) remove(ctx context.Context, id tab.ID, reason string, t history.EventType) bool {
	e, ok := m.reg.Get(id)
	if !ok {
		return false
	}
	m.sched.Cancel(id)
	m.reg.Remove(ctx, id)
	metrics.IncRemoval(reason)
	metrics.SetEntries(m.reg.Len())
	m.emit(t, id, e, nil)
	m.log.Debug("tab entry removed", "tab_id", id, "reason", reason)
	return true
}

func (m *Manager) emit(t history.EventType, id tab.ID, e registry.Entry, err error) {
	if m.hist == nil {
		return
	}
	ev := history.NewEvent(t, id, e.TargetURL, string(e.DiscardState), m.clk.Now())
	if err != nil {
		ev.Error = err.Error()
	}
	m.hist.Emit(ev)
}
