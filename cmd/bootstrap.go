package cmd

import (
	"context"
	"fmt"

	"github.com/samsaffron/agentwire/internal/cache"
	"github.com/samsaffron/agentwire/internal/client"
	"github.com/samsaffron/agentwire/internal/config"
	"github.com/samsaffron/agentwire/internal/debuglog"
	"github.com/samsaffron/agentwire/internal/history"
	"github.com/samsaffron/agentwire/internal/transport"
	"github.com/samsaffron/agentwire/internal/ui"
)

// app holds the wired collaborators for one CLI invocation.
type app struct {
	cfg       *config.Config
	transport *transport.WS
	manager   *client.Manager
	log       *debuglog.Logger
	store     cache.Store
}

// bootstrap loads config, applies flag overrides, and dials the backend.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if serverFlag != "" {
		cfg.Server.URL = serverFlag
		cfg.Server.HistoryURL = ""
	}
	if tokenFlag != "" {
		cfg.Server.Token = tokenFlag
	}
	if debugLogFlag != "" {
		cfg.Debug.Log = debugLogFlag
	}
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("no server configured; set server.url or pass --server")
	}

	ui.SetTheme(ui.ThemeFromOverrides(ui.ThemeOverrides{
		Primary:   cfg.Theme.Primary,
		Secondary: cfg.Theme.Secondary,
		Error:     cfg.Theme.Error,
		Muted:     cfg.Theme.Muted,
	}))

	var log *debuglog.Logger
	if cfg.Debug.Log != "" {
		log, err = debuglog.Open(cfg.Debug.Log)
		if err != nil {
			return nil, err
		}
	}

	ws, err := transport.Dial(ctx, transport.Config{
		URL:   cfg.Server.URL,
		Token: cfg.Server.Token,
	}, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Server.URL, err)
	}

	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		// A broken cache degrades to uncached operation, it never blocks use.
		log.Logf("cache", "open failed: %v", err)
		store = &cache.NoopStore{}
	}

	var hist client.History
	if cfg.Server.HistoryURL != "" {
		hist = history.New(cfg.Server.HistoryURL, cfg.Server.Token)
	}

	return &app{
		cfg:       cfg,
		transport: ws,
		manager:   client.NewManager(ws, hist, store, log),
		log:       log,
		store:     store,
	}, nil
}

func (a *app) close() {
	a.manager.CloseAll()
	a.transport.Close()
	a.store.Close()
	a.log.Close()
}
