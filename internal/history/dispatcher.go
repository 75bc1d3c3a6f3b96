package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDispatchBuffer = 256

// Dispatcher fans events out to sinks from a background goroutine so slow
// sinks never stall the caller. When the buffer is full events are dropped.
type Dispatcher struct {
	sinks   []Sink
	ch      chan Event
	log     *slog.Logger
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		sinks:   append([]Sink(nil), sinks...),
		ch:      make(chan Event, defaultDispatchBuffer),
		log:     log.With("component", "history"),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues e for delivery. It never blocks.
func (d *Dispatcher) Emit(e Event) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("history buffer full, dropping event", "type", e.Type, "tab_id", e.TabID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.log.Warn("history sink send failed", "type", e.Type, "tab_id", e.TabID, "error", err)
			}
			cancel()
		}
	}
}

// Close flushes queued events and closes sinks that implement io.Closer.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		close(d.ch)
		<-d.done
		for _, s := range d.sinks {
			if c, ok := s.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	})
	return nil
}
