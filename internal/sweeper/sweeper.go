// Package sweeper periodically drops registry entries whose tab no longer
// exists, in case the host missed a removed notification.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/tab"
)

const DefaultSchedule = "@every 1m"

// Target is the manager surface the sweeper needs.
type Target interface {
	Entries(ctx context.Context) ([]registry.Record, error)
	Sweep(ctx context.Context, id tab.ID) (bool, error)
}

// Sweeper runs a reconcile pass on a cron schedule. Overlapping runs are
// skipped.
type Sweeper struct {
	target      Target
	ctl         tab.Controller
	hostTimeout time.Duration
	log         *slog.Logger

	c       *cron.Cron
	running atomic.Bool
}

// ParseSchedule validates a cron expression (optional seconds field and
// descriptors such as "@every 30s" are accepted).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return s, nil
}

func New(target Target, ctl tab.Controller, schedule string, hostTimeout time.Duration, log *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if hostTimeout <= 0 {
		hostTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		target:      target,
		ctl:         ctl,
		hostTimeout: hostTimeout,
		log:         log.With("component", "sweeper"),
		c:           cron.New(),
	}
	s.c.Schedule(sched, cron.FuncJob(s.tick))
	return s, nil
}

func (s *Sweeper) Start() { s.c.Start() }

// Stop halts scheduling and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	<-s.c.Stop().Done()
}

func (s *Sweeper) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("previous sweep still running, skipping")
		return
	}
	defer s.running.Store(false)
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.log.Warn("sweep failed", "error", err)
	}
}

// RunOnce checks every entry against the host and removes those whose tab
// is gone. Other lookup errors leave the entry untouched. It returns the
// number of entries removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	records, err := s.target.Entries(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range records {
		cctx, cancel := context.WithTimeout(ctx, s.hostTimeout)
		_, err := s.ctl.Get(cctx, rec.TabID)
		cancel()
		if err == nil {
			continue
		}
		if !errors.Is(err, tab.ErrTabGone) {
			s.log.Debug("sweep lookup failed", "tab_id", rec.TabID, "error", err)
			continue
		}
		ok, err := s.target.Sweep(ctx, rec.TabID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			s.log.Info("swept entry for closed tab", "tab_id", rec.TabID)
		}
	}
	return removed, nil
}
