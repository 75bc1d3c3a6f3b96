package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lazyrestore/internal/clock"
	"github.com/loykin/lazyrestore/internal/history"
	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/scheduler"
	"github.com/loykin/lazyrestore/internal/store"
	"github.com/loykin/lazyrestore/internal/store/memory"
	"github.com/loykin/lazyrestore/internal/tab"
	"github.com/loykin/lazyrestore/internal/tab/tabtest"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// recordingSink collects history events.
type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (s *recordingSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) types() []history.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	ctx context.Context
	m   *Manager
	ctl *tabtest.Controller
	clk *clock.Fake
	st  store.Store
}

func newHarness(t *testing.T, st store.Store, sinks ...history.Sink) *harness {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	h := &harness{
		ctx: context.Background(),
		ctl: tabtest.New(),
		clk: clock.NewFake(epoch),
		st:  st,
	}
	m, err := New(Options{
		Store:      st,
		Controller: h.ctl,
		Clock:      h.clk,
		History:    sinks,
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(h.ctx))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	h.m = m
	return h
}

func (h *harness) register(t *testing.T, id tab.ID, target string) {
	t.Helper()
	require.NoError(t, h.m.Register(h.ctx, id, RegisterRequest{TargetURL: target}))
}

func (h *harness) entry(t *testing.T, id tab.ID) (registry.Entry, bool) {
	t.Helper()
	e, ok, err := h.m.Get(h.ctx, id)
	require.NoError(t, err)
	return e, ok
}

func TestNewRequiresController(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, nil)

	err := h.m.Register(h.ctx, -1, RegisterRequest{TargetURL: "https://a"})
	assert.True(t, errors.Is(err, ErrInvalidTabID))

	err = h.m.Register(h.ctx, 1, RegisterRequest{TargetURL: "  "})
	assert.True(t, errors.Is(err, ErrMissingTargetURL))

	h.register(t, 1, "https://a")
	e, ok := h.entry(t, 1)
	require.True(t, ok)
	assert.Equal(t, "https://a", e.TargetURL)
	assert.Equal(t, registry.StatePending, e.DiscardState)
	assert.True(t, e.CreatedAt.Equal(epoch))
}

func TestActivationWithBlankURLNavigatesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 10, "https://example.com/a")
	h.ctl.Put(10, tab.Snapshot{URL: "about:blank", Active: true})

	require.NoError(t, h.m.TabActivated(h.ctx, 10))

	_, ok := h.entry(t, 10)
	assert.False(t, ok)
	assert.Equal(t, []tabtest.Navigation{{TabID: 10, URL: "https://example.com/a"}}, h.ctl.UpdateCalls())
}

func TestActivationWithLoadedURLSkipsNavigate(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 11, "https://example.com/b")
	h.ctl.Put(11, tab.Snapshot{URL: "https://example.com/b", Active: true})

	require.NoError(t, h.m.TabActivated(h.ctx, 11))

	_, ok := h.entry(t, 11)
	assert.False(t, ok)
	assert.Empty(t, h.ctl.UpdateCalls())
}

func TestActivationNavigateErrorStillRemoves(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.UpdateErr = errors.New("boom")
	h.register(t, 12, "https://example.com/c")
	h.ctl.Put(12, tab.Snapshot{URL: ""})

	require.NoError(t, h.m.TabActivated(h.ctx, 12))

	_, ok := h.entry(t, 12)
	assert.False(t, ok)
	assert.Len(t, h.ctl.UpdateCalls(), 1)
}

func TestActivationOfGoneTabKeepsEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 13, "https://example.com/d")

	require.NoError(t, h.m.TabActivated(h.ctx, 13))
	_, ok := h.entry(t, 13)
	assert.True(t, ok, "entry is left for the removed notification")

	require.NoError(t, h.m.TabRemoved(h.ctx, 13))
	_, ok = h.entry(t, 13)
	assert.False(t, ok)
}

func TestActivationLookupErrorStillRemoves(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.GetErr = errors.New("no host connected")
	h.register(t, 7, "https://x")
	h.ctl.Put(7, tab.Snapshot{URL: "https://x"})

	require.NoError(t, h.m.TabActivated(h.ctx, 7))
	require.NoError(t, h.m.TabUpdated(h.ctx, 7,
		tab.ChangeInfo{Status: tab.StatusComplete},
		tab.Snapshot{URL: "https://x"}))

	_, ok := h.entry(t, 7)
	assert.False(t, ok)
	assert.Empty(t, h.ctl.UpdateCalls())

	h.clk.Advance(scheduler.DefaultDelay)
	_, _ = h.m.Entries(h.ctx)
	assert.Equal(t, 0, h.ctl.DiscardCount())
	assert.Equal(t, 0, h.clk.Pending())
}

func TestActivationOfUnknownTabIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Put(14, tab.Snapshot{URL: "about:blank"})

	require.NoError(t, h.m.TabActivated(h.ctx, 14))
	entries, err := h.m.Entries(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.ctl.UpdateCalls())
}

func TestTabRemovedIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 20, "https://x")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.m.TabRemoved(h.ctx, 20))
	}
	require.NoError(t, h.m.TabRemoved(h.ctx, 99))

	entries, err := h.m.Entries(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdatedStrongMatchDiscardsAfterDelay(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 30, "https://example.com/e")
	h.ctl.Put(30, tab.Snapshot{URL: "about:blank"})

	require.NoError(t, h.m.TabUpdated(h.ctx, 30,
		tab.ChangeInfo{URL: "https://example.com/e"},
		tab.Snapshot{URL: "about:blank"}))

	e, ok := h.entry(t, 30)
	require.True(t, ok)
	assert.Equal(t, registry.StateDiscarding, e.DiscardState)
	assert.Equal(t, 0, h.ctl.DiscardCount())

	h.clk.Advance(scheduler.DefaultDelay)

	e, ok = h.entry(t, 30)
	require.True(t, ok)
	assert.Equal(t, registry.StateDiscarded, e.DiscardState)
	assert.Equal(t, 1, h.ctl.DiscardCount())
}

func TestUpdatedForUnknownTabIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.m.TabUpdated(h.ctx, 31, tab.ChangeInfo{URL: "https://x"}, tab.Snapshot{}))

	entries, err := h.m.Entries(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, h.clk.Pending())
}

func TestRepeatedUpdatesScheduleOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 32, "https://example.com/f")
	h.ctl.Put(32, tab.Snapshot{URL: "about:blank"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.m.TabUpdated(h.ctx, 32, tab.ChangeInfo{Status: tab.StatusLoading, URL: "https://example.com/f"}, tab.Snapshot{})
		}()
	}
	wg.Wait()
	_, _ = h.m.Entries(h.ctx)

	h.clk.Advance(scheduler.DefaultDelay)
	_, _ = h.m.Entries(h.ctx)
	assert.Equal(t, 1, h.ctl.DiscardCount())
}

func TestActivationBeforeTimerCancelsDiscard(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 33, "https://example.com/g")
	h.ctl.Put(33, tab.Snapshot{URL: "https://example.com/g"})

	require.NoError(t, h.m.TabUpdated(h.ctx, 33, tab.ChangeInfo{}, tab.Snapshot{URL: "https://example.com/g"}))
	require.NoError(t, h.m.TabActivated(h.ctx, 33))
	_, _ = h.m.Entries(h.ctx)

	h.clk.Advance(scheduler.DefaultDelay)
	_, ok := h.entry(t, 33)
	assert.False(t, ok)
	assert.Equal(t, 0, h.ctl.DiscardCount())
}

func TestDiscardFailureRetainsFailedEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 34, "https://example.com/h")
	// Tab not known to the controller: discard fails with ErrTabGone.
	require.NoError(t, h.m.TabUpdated(h.ctx, 34, tab.ChangeInfo{URL: "https://example.com/h"}, tab.Snapshot{}))
	_, _ = h.m.Entries(h.ctx)

	h.clk.Advance(scheduler.DefaultDelay)

	e, ok := h.entry(t, 34)
	require.True(t, ok)
	assert.Equal(t, registry.StateFailed, e.DiscardState)
}

func TestUnregisterAndSweep(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, 40, "https://a")
	h.register(t, 41, "https://b")

	found, err := h.m.Unregister(h.ctx, 40)
	require.NoError(t, err)
	assert.True(t, found)
	found, err = h.m.Unregister(h.ctx, 40)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = h.m.Sweep(h.ctx, 41)
	require.NoError(t, err)
	assert.True(t, found)

	entries, err := h.m.Entries(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStateSurvivesRestart(t *testing.T) {
	st := memory.New()
	first := newHarness(t, st)
	first.register(t, 50, "https://example.com/i")
	require.NoError(t, first.m.TabUpdated(first.ctx, 50, tab.ChangeInfo{URL: "https://example.com/i"}, tab.Snapshot{}))
	_, _ = first.m.Entries(first.ctx)
	require.NoError(t, first.m.Shutdown(context.Background()))
	assert.Equal(t, 0, first.clk.Pending(), "shutdown cancels armed timers")

	second := newHarness(t, st)
	second.ctl.Put(50, tab.Snapshot{URL: "about:blank"})
	e, ok := second.entry(t, 50)
	require.True(t, ok)
	assert.Equal(t, registry.StateDiscarding, e.DiscardState)

	second.clk.Advance(scheduler.DefaultDelay)
	e, _ = second.entry(t, 50)
	assert.Equal(t, registry.StateDiscarded, e.DiscardState)
	assert.Equal(t, 1, second.ctl.DiscardCount())
}

func TestHistoryEvents(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, nil, sink)
	h.register(t, 60, "https://example.com/j")
	h.ctl.Put(60, tab.Snapshot{URL: "about:blank"})
	require.NoError(t, h.m.TabUpdated(h.ctx, 60, tab.ChangeInfo{URL: "https://example.com/j"}, tab.Snapshot{}))
	_, _ = h.m.Entries(h.ctx)
	h.clk.Advance(scheduler.DefaultDelay)
	require.NoError(t, h.m.TabRemoved(h.ctx, 60))
	_, _ = h.m.Entries(h.ctx)

	require.NoError(t, h.m.Shutdown(context.Background()))
	assert.Equal(t, []history.EventType{
		history.EventRegistered,
		history.EventDiscardScheduled,
		history.EventDiscarded,
		history.EventRemoved,
	}, sink.types())
}

func TestShutdownRejectsCommands(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.m.Shutdown(context.Background()))
	<-h.m.Done()

	assert.True(t, errors.Is(h.m.TabRemoved(h.ctx, 1), ErrShuttingDown))
	_, err := h.m.Entries(h.ctx)
	assert.True(t, errors.Is(err, ErrShuttingDown))
	assert.True(t, errors.Is(h.m.Start(h.ctx), ErrShuttingDown))
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, errors.Is(h.m.Start(h.ctx), ErrAlreadyStarted))
}

func TestContextCancelStopsWorker(t *testing.T) {
	ctl := tabtest.New()
	m, err := New(Options{Controller: ctl, Clock: clock.NewFake(epoch)})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.NoError(t, m.Shutdown(context.Background()))
}
