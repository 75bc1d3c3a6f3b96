package lazyrestore

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/lazyrestore/internal/bridge"
	cfg "github.com/loykin/lazyrestore/internal/config"
	"github.com/loykin/lazyrestore/internal/decision"
	"github.com/loykin/lazyrestore/internal/history"
	hfactory "github.com/loykin/lazyrestore/internal/history/factory"
	"github.com/loykin/lazyrestore/internal/manager"
	"github.com/loykin/lazyrestore/internal/metrics"
	"github.com/loykin/lazyrestore/internal/registry"
	iapi "github.com/loykin/lazyrestore/internal/server"
	"github.com/loykin/lazyrestore/internal/store"
	sfactory "github.com/loykin/lazyrestore/internal/store/factory"
	"github.com/loykin/lazyrestore/internal/tab"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type TabID = tab.ID

type Snapshot = tab.Snapshot

type ChangeInfo = tab.ChangeInfo

type Controller = tab.Controller

type Entry = registry.Entry

type Record = registry.Record

type DiscardState = registry.DiscardState

type RegisterRequest = manager.RegisterRequest

type Options = manager.Options

type Policy = decision.Policy

type Config = cfg.Config

type Store = store.Store

type HistorySink = history.Sink

type HistoryEvent = history.Event

var (
	ErrTabGone          = tab.ErrTabGone
	ErrNoHost           = bridge.ErrNoHost
	ErrInvalidTabID     = manager.ErrInvalidTabID
	ErrMissingTargetURL = manager.ErrMissingTargetURL
	ErrShuttingDown     = manager.ErrShuttingDown
)

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(opts Options) (*Manager, error) {
	m, err := manager.New(opts)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: m}, nil
}

func (m *Manager) Start(ctx context.Context) error    { return m.inner.Start(ctx) }
func (m *Manager) Shutdown(ctx context.Context) error { return m.inner.Shutdown(ctx) }
func (m *Manager) Done() <-chan struct{}              { return m.inner.Done() }
func (m *Manager) Register(ctx context.Context, id TabID, req RegisterRequest) error {
	return m.inner.Register(ctx, id, req)
}
func (m *Manager) Unregister(ctx context.Context, id TabID) (bool, error) {
	return m.inner.Unregister(ctx, id)
}
func (m *Manager) TabUpdated(ctx context.Context, id TabID, change ChangeInfo, snap Snapshot) error {
	return m.inner.TabUpdated(ctx, id, change, snap)
}
func (m *Manager) TabActivated(ctx context.Context, id TabID) error {
	return m.inner.TabActivated(ctx, id)
}
func (m *Manager) TabRemoved(ctx context.Context, id TabID) error {
	return m.inner.TabRemoved(ctx, id)
}
func (m *Manager) Entries(ctx context.Context) ([]Record, error) { return m.inner.Entries(ctx) }
func (m *Manager) Get(ctx context.Context, id TabID) (Entry, bool, error) {
	return m.inner.Get(ctx, id)
}

// ShouldDiscardNow evaluates the default discard policy.
var ShouldDiscardNow = decision.ShouldDiscardNow

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// OpenStore opens the store selected by dsn and prepares its schema.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	st, err := sfactory.NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// OpenHistorySinks opens one history sink per DSN.
func OpenHistorySinks(dsns []string) ([]HistorySink, error) {
	return hfactory.NewSinksFromDSNs(dsns)
}

// NewHTTPHandler exposes the HTTP API for m under basePath.
func NewHTTPHandler(m *Manager, basePath string) http.Handler {
	return iapi.NewRouter(m.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
