package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loykin/lazyrestore"
	"github.com/loykin/lazyrestore/internal/config"
	"github.com/loykin/lazyrestore/internal/registry"
	itls "github.com/loykin/lazyrestore/internal/tls"
	"github.com/loykin/lazyrestore/pkg/client"
)

type command struct {
	global *GlobalFlags
}

func (c command) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// Serve runs the daemon until SIGINT or SIGTERM.
func (c command) Serve(ctx context.Context, f ServeFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}
	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closer := cfg.Logger().NewSlogger()
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := lazyrestore.NewDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}
	return d.Run(ctx, f.ShutdownTimeout)
}

// Entries prints tracked tabs, from the daemon when an API URL is given and
// from the store otherwise.
func (c command) Entries(ctx context.Context, w io.Writer, f EntriesFlags) error {
	if f.APIUrl != "" {
		cli := newAPIClient(f.APIUrl, f.APITimeout, nil)
		entries, err := cli.Entries(ctx)
		if err != nil {
			return err
		}
		return printJSON(w, entries)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	dsn := cfg.Store.DSN
	if f.StoreDSN != "" {
		dsn = f.StoreDSN
	}
	st, err := lazyrestore.OpenStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	reg := registry.New(st, cfg.Store.Key, nil)
	reg.EnsureLoaded(ctx)
	return printJSON(w, reg.Entries())
}

// Register tracks a placeholder tab through the daemon API.
func (c command) Register(ctx context.Context, w io.Writer, f RegisterFlags) error {
	req := client.RegisterRequest{TabID: f.TabID, TargetURL: f.TargetURL}
	if f.CreatedAt != "" {
		at, err := time.Parse(time.RFC3339, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("invalid --created-at: %w", err)
		}
		req.CreatedAt = &at
	}
	cli, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if err := cli.Register(ctx, req); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "registered tab %d\n", f.TabID)
	return err
}

// Unregister stops tracking a tab through the daemon API.
func (c command) Unregister(ctx context.Context, w io.Writer, f TabFlags) error {
	cli, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	found, err := cli.Unregister(ctx, f.TabID)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]any{"tab_id": f.TabID, "found": found})
}

// Updated delivers an updated notification.
func (c command) Updated(ctx context.Context, w io.Writer, f UpdatedFlags) error {
	cli, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	err = cli.TabUpdated(ctx, client.UpdatedRequest{
		TabID:  f.TabID,
		Change: client.ChangeInfo{URL: f.ChangeURL, Status: f.Status},
		Tab: client.TabSnapshot{
			URL:        f.URL,
			PendingURL: f.PendingURL,
			Active:     f.Active,
			Discarded:  f.Discarded,
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "updated event sent for tab %d\n", f.TabID)
	return err
}

// Activated delivers an activated notification.
func (c command) Activated(ctx context.Context, w io.Writer, f TabFlags) error {
	cli, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if err := cli.TabActivated(ctx, f.TabID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "activated event sent for tab %d\n", f.TabID)
	return err
}

// Removed delivers a removed notification.
func (c command) Removed(ctx context.Context, w io.Writer, f TabFlags) error {
	cli, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	if err := cli.TabRemoved(ctx, f.TabID); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "removed event sent for tab %d\n", f.TabID)
	return err
}

// apiClient returns a client for the daemon named by --api-url, or for the
// configured listen address, after checking it is reachable.
func (c command) apiClient(ctx context.Context, f APIFlags) (*client.Client, error) {
	apiURL := f.APIUrl
	var tlsCfg *client.TLSClientConfig
	if apiURL == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, err
		}
		scheme := "http"
		if t := cfg.Server.TLS; t.Enabled {
			scheme = "https"
			tlsCfg = &client.TLSClientConfig{Enabled: true}
			if t.Dir != "" {
				tlsCfg.CACert = filepath.Join(t.Dir, itls.CACertName)
			}
		}
		apiURL = scheme + "://" + cfg.Server.Listen + cfg.Server.BasePath
	}
	cli := newAPIClient(apiURL, f.APITimeout, tlsCfg)
	if !cli.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'lazyrestore serve'", apiURL)
	}
	return cli, nil
}

func newAPIClient(baseURL string, timeout time.Duration, tlsCfg *client.TLSClientConfig) *client.Client {
	cfg := client.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.TLS = tlsCfg
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return client.New(cfg)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
