// Package manager routes host tab notifications and restore operations
// through a single worker goroutine that owns the restore registry.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/lazyrestore/internal/clock"
	"github.com/loykin/lazyrestore/internal/decision"
	"github.com/loykin/lazyrestore/internal/history"
	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/scheduler"
	"github.com/loykin/lazyrestore/internal/store"
	"github.com/loykin/lazyrestore/internal/tab"
)

const DefaultQueueSize = 64

var (
	ErrInvalidTabID     = errors.New("invalid tab id")
	ErrMissingTargetURL = errors.New("missing target url")
	ErrShuttingDown     = errors.New("restore manager shutting down")
	ErrAlreadyStarted   = errors.New("restore manager already started")
)

// Options configures a Manager. Zero values take defaults.
type Options struct {
	Store      store.Store
	StoreKey   string
	Controller tab.Controller
	Clock      clock.Clock
	Policy     decision.Policy

	DiscardDelay time.Duration
	HostTimeout  time.Duration
	QueueSize    int

	History []history.Sink
	Logger  *slog.Logger
}

// RegisterRequest describes a placeholder tab to track.
type RegisterRequest struct {
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Manager is the event router. Every exported operation becomes a command
// on one buffered queue; the worker runs each command to completion before
// taking the next, so the registry is never touched concurrently.
type Manager struct {
	reg         *registry.Registry
	sched       *scheduler.Scheduler
	ctl         tab.Controller
	clk         clock.Clock
	policy      decision.Policy
	hist        *history.Dispatcher
	hostTimeout time.Duration
	log         *slog.Logger

	cmdChan  chan command
	doneChan chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

func New(opts Options) (*Manager, error) {
	if opts.Controller == nil {
		return nil, errors.New("restore manager requires a tab controller")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HostTimeout <= 0 {
		opts.HostTimeout = scheduler.DefaultHostTimeout
	}

	m := &Manager{
		ctl:         opts.Controller,
		clk:         opts.Clock,
		policy:      opts.Policy,
		hostTimeout: opts.HostTimeout,
		log:         opts.Logger.With("component", "manager"),
		cmdChan:     make(chan command, opts.QueueSize),
		doneChan:    make(chan struct{}),
	}
	if len(opts.History) > 0 {
		m.hist = history.NewDispatcher(opts.Logger, opts.History...)
	}
	m.reg = registry.New(opts.Store, opts.StoreKey, opts.Logger)
	m.sched = scheduler.New(m.reg, opts.Controller, scheduler.Options{
		Delay:       opts.DiscardDelay,
		HostTimeout: opts.HostTimeout,
		Clock:       opts.Clock,
		Dispatch:    m.enqueueDue,
		Logger:      opts.Logger,
	})
	return m, nil
}

// Start launches the worker. The worker loads the registry and re-arms
// discards interrupted by a previous run before serving commands. It stops
// when ctx is done or Shutdown is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrShuttingDown
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	go m.run(ctx)
	return nil
}

// Shutdown stops the worker after it has drained queued commands, cancels
// armed timers and flushes history sinks.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.stopped = true
	m.mu.Unlock()

	if started {
		select {
		case m.cmdChan <- command{action: actionShutdown}:
		case <-m.doneChan:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-m.doneChan:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		m.sched.Stop()
	}
	return m.hist.Close()
}

// Done is closed once the worker has exited.
func (m *Manager) Done() <-chan struct{} { return m.doneChan }

// Register starts tracking a placeholder tab, replacing any previous entry.
func (m *Manager) Register(ctx context.Context, id tab.ID, req RegisterRequest) error {
	if id < 0 {
		return fmt.Errorf("register tab %d: %w", id, ErrInvalidTabID)
	}
	req.TargetURL = strings.TrimSpace(req.TargetURL)
	if req.TargetURL == "" {
		return fmt.Errorf("register tab %d: %w", id, ErrMissingTargetURL)
	}
	_, err := m.call(ctx, command{action: actionRegister, id: id, req: req})
	return err
}

// Unregister stops tracking a tab. It reports whether an entry existed.
func (m *Manager) Unregister(ctx context.Context, id tab.ID) (bool, error) {
	r, err := m.call(ctx, command{action: actionUnregister, id: id})
	return r.found, err
}

// Sweep drops the entry of a tab known to be gone.
func (m *Manager) Sweep(ctx context.Context, id tab.ID) (bool, error) {
	r, err := m.call(ctx, command{action: actionSweep, id: id})
	return r.found, err
}

// TabUpdated queues an updated notification. It returns once the command
// is accepted, not when it has been handled.
func (m *Manager) TabUpdated(ctx context.Context, id tab.ID, change tab.ChangeInfo, snap tab.Snapshot) error {
	return m.send(ctx, command{action: actionUpdated, id: id, change: change, snap: snap})
}

// TabActivated queues an activated notification.
func (m *Manager) TabActivated(ctx context.Context, id tab.ID) error {
	return m.send(ctx, command{action: actionActivated, id: id})
}

// TabRemoved queues a removed notification.
func (m *Manager) TabRemoved(ctx context.Context, id tab.ID) error {
	return m.send(ctx, command{action: actionRemoved, id: id})
}

// Entries returns a snapshot of the registry ordered by tab id. Because it
// is served by the worker, it observes every command queued before it.
func (m *Manager) Entries(ctx context.Context) ([]registry.Record, error) {
	r, err := m.call(ctx, command{action: actionEntries})
	return r.records, err
}

// Get returns the entry for id.
func (m *Manager) Get(ctx context.Context, id tab.ID) (registry.Entry, bool, error) {
	r, err := m.call(ctx, command{action: actionGet, id: id})
	return r.entry, r.found, err
}

func (m *Manager) send(ctx context.Context, cmd command) error {
	select {
	case <-m.doneChan:
		return ErrShuttingDown
	default:
	}
	select {
	case m.cmdChan <- cmd:
		return nil
	case <-m.doneChan:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) call(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	if err := m.send(ctx, cmd); err != nil {
		return result{}, err
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-m.doneChan:
		// The worker may have answered just before exiting.
		select {
		case r := <-cmd.reply:
			return r, r.err
		default:
			return result{}, ErrShuttingDown
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// enqueueDue runs on timer goroutines. Dues arriving after shutdown are
// dropped.
func (m *Manager) enqueueDue(due scheduler.Due) {
	select {
	case m.cmdChan <- command{action: actionDiscardDue, due: due}:
	case <-m.doneChan:
	}
}
