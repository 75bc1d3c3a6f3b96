package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/lazyrestore/internal/clock"
	"github.com/loykin/lazyrestore/internal/metrics"
	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/tab"
)

const (
	DefaultDelay       = 300 * time.Millisecond
	DefaultHostTimeout = 5 * time.Second
)

// Outcome is the result of executing a due discard.
type Outcome string

const (
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeStale means the armed timer no longer matches a registry entry.
	OutcomeStale Outcome = "stale"
)

// Due identifies a fired discard timer. ArmedAt is the DiscardScheduledAt
// value the timer was armed with.
type Due struct {
	TabID   tab.ID
	ArmedAt time.Time
}

// Result reports what Execute did.
type Result struct {
	Outcome Outcome
	Entry   registry.Entry
	Err     error
}

// Options configures a Scheduler. Zero values take defaults.
type Options struct {
	Delay       time.Duration
	HostTimeout time.Duration
	Clock       clock.Clock
	// Dispatch receives fired timers. It runs on the timer goroutine and
	// must hand the Due to the goroutine that owns the registry, which then
	// calls Execute. When nil, Execute runs on the timer goroutine itself;
	// leave it nil only when nothing else reads or writes the registry
	// while timers are armed, since the Registry is not safe for
	// concurrent use.
	Dispatch func(Due)
	Logger   *slog.Logger
}

// Scheduler arms one delayed discard per registry entry and records the
// outcome back into the registry.
type Scheduler struct {
	reg         *registry.Registry
	ctl         tab.Controller
	clk         clock.Clock
	delay       time.Duration
	hostTimeout time.Duration
	dispatch    func(Due)
	log         *slog.Logger

	mu     sync.Mutex
	timers map[tab.ID]timer
}

type timer struct {
	armedAt time.Time
	stop    func() bool
}

func New(reg *registry.Registry, ctl tab.Controller, opts Options) *Scheduler {
	s := &Scheduler{
		reg:         reg,
		ctl:         ctl,
		clk:         opts.Clock,
		delay:       opts.Delay,
		hostTimeout: opts.HostTimeout,
		dispatch:    opts.Dispatch,
		log:         opts.Logger,
		timers:      make(map[tab.ID]timer),
	}
	if s.clk == nil {
		s.clk = clock.Real()
	}
	if s.delay <= 0 {
		s.delay = DefaultDelay
	}
	if s.hostTimeout <= 0 {
		s.hostTimeout = DefaultHostTimeout
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "scheduler")
	return s
}

// Delay returns the configured discard delay.
func (s *Scheduler) Delay() time.Duration { return s.delay }

// Schedule marks the entry as discarding, persists it and arms a one-shot
// timer. It returns false when a discard was already scheduled for the entry.
func (s *Scheduler) Schedule(ctx context.Context, id tab.ID, e registry.Entry) bool {
	if e.Scheduled() {
		return false
	}
	now := s.clk.Now()
	e.DiscardScheduledAt = &now
	e.DiscardState = registry.StateDiscarding
	if !s.reg.Update(ctx, id, e) {
		s.reg.Register(ctx, id, e)
	}
	s.arm(id, now, s.delay)
	metrics.IncDiscardScheduled()
	s.log.Debug("discard scheduled", "tab_id", id, "delay", s.delay)
	return true
}

func (s *Scheduler) arm(id tab.ID, armedAt time.Time, d time.Duration) {
	due := Due{TabID: id, ArmedAt: armedAt}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[id]; ok {
		prev.stop()
	}
	stop := s.clk.AfterFunc(d, func() {
		s.mu.Lock()
		if t, ok := s.timers[id]; ok && t.armedAt.Equal(armedAt) {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		if s.dispatch != nil {
			s.dispatch(due)
			return
		}
		s.Execute(context.Background(), due)
	})
	s.timers[id] = timer{armedAt: armedAt, stop: stop}
}

// Execute performs a due discard. A due whose entry was removed or
// rescheduled since arming is skipped.
func (s *Scheduler) Execute(ctx context.Context, due Due) Result {
	e, ok := s.reg.Get(due.TabID)
	if !ok || e.DiscardScheduledAt == nil || !e.DiscardScheduledAt.Equal(due.ArmedAt) {
		metrics.IncDiscardOutcome(string(OutcomeStale))
		s.log.Debug("skipping stale discard", "tab_id", due.TabID)
		return Result{Outcome: OutcomeStale, Entry: e}
	}

	cctx, cancel := context.WithTimeout(ctx, s.hostTimeout)
	err := s.ctl.Discard(cctx, due.TabID)
	cancel()

	res := Result{Outcome: OutcomeDiscarded, Err: err}
	if err != nil {
		res.Outcome = OutcomeFailed
		e.DiscardState = registry.StateFailed
		s.log.Warn("discard failed", "tab_id", due.TabID, "error", err)
	} else {
		e.DiscardState = registry.StateDiscarded
		s.log.Debug("tab discarded", "tab_id", due.TabID)
	}
	s.reg.Update(ctx, due.TabID, e)
	res.Entry = e

	metrics.IncDiscardOutcome(string(res.Outcome))
	metrics.ObserveDiscardLatency(s.clk.Now().Sub(due.ArmedAt).Seconds())
	return res
}

// Resume re-arms entries left in the discarding state by a previous run,
// with whatever remains of the delay. It returns the number re-armed.
func (s *Scheduler) Resume(ctx context.Context) int {
	s.reg.EnsureLoaded(ctx)
	now := s.clk.Now()
	n := 0
	for _, rec := range s.reg.Entries() {
		if rec.DiscardState != registry.StateDiscarding || rec.DiscardScheduledAt == nil {
			continue
		}
		remaining := s.delay - now.Sub(*rec.DiscardScheduledAt)
		if remaining < 0 {
			remaining = 0
		}
		s.arm(rec.TabID, *rec.DiscardScheduledAt, remaining)
		n++
	}
	if n > 0 {
		s.log.Info("re-armed pending discards", "count", n)
	}
	return n
}

// Cancel stops the armed timer for id, if any.
func (s *Scheduler) Cancel(id tab.ID) {
	s.mu.Lock()
	t, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if ok {
		t.stop()
	}
}

// Stop cancels every armed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[tab.ID]timer)
	s.mu.Unlock()
	for _, t := range timers {
		t.stop()
	}
}

// Armed returns the number of timers not yet fired.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
