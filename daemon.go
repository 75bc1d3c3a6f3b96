package lazyrestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/lazyrestore/internal/bridge"
	"github.com/loykin/lazyrestore/internal/decision"
	"github.com/loykin/lazyrestore/internal/manager"
	"github.com/loykin/lazyrestore/internal/metrics"
	iapi "github.com/loykin/lazyrestore/internal/server"
	"github.com/loykin/lazyrestore/internal/sweeper"
	itls "github.com/loykin/lazyrestore/internal/tls"
)

// Daemon runs a manager behind the HTTP API and the host bridge, as
// configured by a Config.
type Daemon struct {
	cfg *Config
	log *slog.Logger

	st      Store
	bridge  *bridge.Bridge
	mgr     *manager.Manager
	sweeper *sweeper.Sweeper
	srv     *http.Server
	errChan chan error

	mu sync.Mutex
	ln net.Listener
}

// NewDaemon opens the store and history sinks and wires every component.
// Nothing runs until Start.
func NewDaemon(ctx context.Context, c *Config, log *slog.Logger) (*Daemon, error) {
	if c == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}
	tlsCfg, err := itls.Setup(c.Server.TLS)
	if err != nil {
		return nil, fmt.Errorf("setup tls: %w", err)
	}
	if c.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	st, err := OpenStore(ctx, c.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sinks, err := OpenHistorySinks(c.History.DSNs)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open history sinks: %w", err)
	}

	b := bridge.New(c.Server.AllowOrigins, log)
	mgr, err := manager.New(manager.Options{
		Store:        st,
		StoreKey:     c.Store.Key,
		Controller:   b,
		Policy:       decision.Policy{Backstop: c.Scheduler.BackstopDelay},
		DiscardDelay: c.Scheduler.DiscardDelay,
		HostTimeout:  c.Scheduler.HostTimeout,
		QueueSize:    c.Scheduler.QueueSize,
		History:      sinks,
		Logger:       log,
	})
	if err != nil {
		for _, s := range sinks {
			_ = s.Close()
		}
		_ = st.Close()
		return nil, err
	}
	b.SetRouter(mgr)

	d := &Daemon{
		cfg:     c,
		log:     log.With("component", "daemon"),
		st:      st,
		bridge:  b,
		mgr:     mgr,
		errChan: make(chan error, 1),
	}
	if c.Sweeper.Enabled {
		sw, err := sweeper.New(mgr, b, c.Sweeper.Schedule, c.Scheduler.HostTimeout, log)
		if err != nil {
			_ = mgr.Shutdown(ctx)
			_ = st.Close()
			return nil, err
		}
		d.sweeper = sw
	}

	router := iapi.NewRouter(mgr, c.Server.BasePath).WithBridge(b)
	if c.Metrics.Enabled {
		router = router.WithMetrics(metrics.Handler())
	}
	d.srv = iapi.NewServer(c.Server.Listen, router.Handler())
	d.srv.TLSConfig = tlsCfg
	return d, nil
}

// Start binds the listen address and starts the manager, the sweeper and
// the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.srv.Addr, err)
	}
	if err := d.mgr.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	d.mu.Lock()
	d.ln = ln
	d.mu.Unlock()
	if d.sweeper != nil {
		d.sweeper.Start()
	}
	scheme := "http"
	go func() {
		var err error
		if d.srv.TLSConfig != nil {
			err = d.srv.ServeTLS(ln, "", "")
		} else {
			err = d.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.errChan <- err
		}
		close(d.errChan)
	}()
	if d.srv.TLSConfig != nil {
		scheme = "https"
	}
	d.log.Info("daemon listening", "addr", ln.Addr().String(), "scheme", scheme, "base_path", d.cfg.Server.BasePath)
	return nil
}

// Addr is the bound listen address, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Shutdown stops accepting requests, then stops the sweeper and the manager
// and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var errs []error
	d.bridge.Close()
	if d.Addr() != nil {
		if err := d.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if d.sweeper != nil {
		d.sweeper.Stop()
	}
	if err := d.mgr.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("manager shutdown: %w", err))
	}
	if err := d.st.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Run starts the daemon and blocks until ctx is done or the server fails,
// then shuts down within shutdownTimeout.
func (d *Daemon) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-d.errChan:
	}
	d.log.Info("daemon shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, d.Shutdown(sctx))
}
