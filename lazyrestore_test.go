package lazyrestore

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/lazyrestore/internal/config"
	"github.com/loykin/lazyrestore/internal/registry"
	"github.com/loykin/lazyrestore/internal/tab/tabtest"
	"github.com/loykin/lazyrestore/pkg/client"
)

func TestManagerFacadeActivation(t *testing.T) {
	ctx := context.Background()
	ctl := tabtest.New()
	ctl.Put(5, Snapshot{URL: "about:blank", Active: true})

	m, err := New(Options{Controller: ctl})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	require.NoError(t, m.Register(ctx, 5, RegisterRequest{TargetURL: "https://example.com/a"}))
	e, ok, err := m.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", e.TargetURL)

	require.NoError(t, m.TabActivated(ctx, 5))
	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, ctl.UpdateCalls(), 1)
}

func TestManagerFacadeValidation(t *testing.T) {
	ctx := context.Background()
	m, err := New(Options{Controller: tabtest.New()})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	err = m.Register(ctx, 1, RegisterRequest{})
	assert.True(t, errors.Is(err, ErrMissingTargetURL))
	err = m.Register(ctx, -1, RegisterRequest{TargetURL: "https://x"})
	assert.True(t, errors.Is(err, ErrInvalidTabID))
}

func TestNewRequiresController(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	st, err := OpenStore(ctx, "memory://")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = OpenStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = OpenStore(ctx, "redis://localhost")
	assert.Error(t, err)
}

func TestShouldDiscardNowFacade(t *testing.T) {
	now := time.Now()
	e := Entry{TargetURL: "https://example.com", CreatedAt: now}
	assert.True(t, ShouldDiscardNow(e, Snapshot{URL: "https://example.com"}, ChangeInfo{}, now))
	assert.False(t, ShouldDiscardNow(e, Snapshot{URL: "https://example.com", Active: true}, ChangeInfo{}, now))
}

func TestDaemonServesAPIAndPersists(t *testing.T) {
	dir := t.TempDir()
	dsn := "sqlite://" + filepath.Join(dir, "state.db")

	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Store.DSN = dsn
	cfg.History.DSNs = []string{filepath.Join(dir, "history.db")}

	ctx := context.Background()
	d, err := NewDaemon(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	require.NotNil(t, d.Addr())

	base := "http://" + d.Addr().String() + "/api"
	cli := client.New(client.Config{BaseURL: base, Timeout: 5 * time.Second})
	require.True(t, cli.IsReachable(ctx))
	require.NoError(t, cli.Register(ctx, client.RegisterRequest{TabID: 7, TargetURL: "https://example.com/seven"}))

	entries, err := cli.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].TabID)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(sctx))

	st, err := OpenStore(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	reg := registry.New(st, cfg.Store.Key, nil)
	reg.EnsureLoaded(ctx)
	e, ok := reg.Get(7)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/seven", e.TargetURL)
	assert.Equal(t, registry.StatePending, e.DiscardState)
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Metrics.Enabled = false
	cfg.Sweeper.Enabled = false

	d, err := NewDaemon(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 2*time.Second) }()

	require.Eventually(t, func() bool { return d.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestNewDaemonBadStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = "redis://localhost"
	_, err := NewDaemon(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestDaemonServesTLS(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Metrics.Enabled = false
	cfg.Sweeper.Enabled = false
	cfg.Server.TLS = config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true}

	ctx := context.Background()
	d, err := NewDaemon(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Shutdown(ctx) })

	cli := client.New(client.Config{
		BaseURL: "https://" + d.Addr().String() + "/api",
		Timeout: 5 * time.Second,
		TLS:     &client.TLSClientConfig{Enabled: true, CACert: filepath.Join(dir, "tls_ca.crt")},
	})
	require.NoError(t, cli.Register(ctx, client.RegisterRequest{TabID: 1, TargetURL: "https://example.com"}))
	_, ok, err := cli.Entry(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
