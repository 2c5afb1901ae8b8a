// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles the MementoAI components from a configuration:
// storage, connectivity, the completion client, the conversation controller,
// notifications and the PWA server.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/config"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/notify"
	"github.com/mementoai/memento/internal/offline"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/server"
	"github.com/mementoai/memento/internal/storage"
	"github.com/mementoai/memento/internal/ui/chat"
	"github.com/mementoai/memento/internal/ui/styles"
)

// Options tunes New beyond the configuration.
type Options struct {
	Version string
	Logger  *zap.Logger
	// Backend replaces the backend chosen by the storage config.
	Backend storage.Backend
}

// App holds the wired components. Create it with New, call Start for the
// long-running loops and Close when done.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Version    string
	Store      *storage.Store
	Monitor    *offline.Monitor
	Clients    conversation.ClientFunc
	Controller *conversation.Controller
	Assistant  *conversation.Assistant
	Hub        *notify.Hub
	Notifier   notify.Notifier
	Scheduler  *notify.Scheduler
	Periodic   *notify.Periodic
	Renderer   *render.Renderer

	// limiter is shared by every client Clients builds.
	limiter *rate.Limiter

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New opens the store and builds every component. Nothing runs in the
// background until Start.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	backend := opts.Backend
	if backend == nil {
		b, err := OpenBackend(cfg)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	store := storage.New(backend, log.Named("storage"))
	if err := store.Load(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	if err := seedSettings(store, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	monitor := offline.NewMonitor(offline.Options{
		Forced:   cfg.Offline.Forced,
		ProbeURL: cfg.Offline.ProbeURL,
		Interval: time.Duration(cfg.Offline.ProbeIntervalSecs) * time.Second,
		Logger:   log.Named("offline"),
	})

	a := &App{
		Config:   cfg,
		Log:      log,
		Version:  opts.Version,
		Store:    store,
		Monitor:  monitor,
		Hub:      notify.NewHub(log.Named("hub")),
		Renderer: render.New(),
		limiter:  cloud.NewRateLimiter(cfg.Cloud.RequestsPerMinute),
	}
	a.Hub.SetEnabled(cfg.Notifications.Enabled)
	a.Clients = a.newClientFunc()
	a.Notifier = notify.Multi{notify.NewLogNotifier(log.Named("notify")), a.Hub}

	a.Assistant = conversation.NewAssistant(store, a.Clients, log.Named("assistant"))
	a.Scheduler = notify.NewScheduler(store, a.Notifier, log.Named("scheduler"))
	a.Periodic = notify.NewPeriodic(store, a.Notifier, a.Assistant, a.Scheduler, log.Named("periodic"))
	a.Controller = conversation.NewController(store, a.Clients, conversation.Options{
		Stream: cfg.Cloud.Stream,
		Logger: log.Named("conversation"),
		Hooks:  []conversation.Hook{a.Periodic},
	})
	return a, nil
}

// OpenBackend opens the key-value backend named by cfg.Storage.
func OpenBackend(cfg *config.Config) (storage.Backend, error) {
	if cfg.Storage.Backend == "memory" {
		return storage.NewMemoryBackend(), nil
	}
	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.OpenSQLiteBackend(filepath.Join(dir, "state.db"))
	default:
		return storage.OpenFileBackend(filepath.Join(dir, "state.json"))
	}
}

// seedSettings copies the configured API key into stored settings that have
// none.
func seedSettings(store *storage.Store, cfg *config.Config) error {
	if cfg.Cloud.APIKey == "" || store.Settings().HasAPIKey() {
		return nil
	}
	_, err := store.UpdateSettings(func(s *storage.Settings) { s.APIKey = cfg.Cloud.APIKey })
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// newClientFunc builds a completion client for the current settings. The
// settings carry the key and model; the config carries the endpoint.
func (a *App) newClientFunc() conversation.ClientFunc {
	cc := a.Config.Cloud
	log := a.Log.Named("cloud")
	return func(s storage.Settings) *cloud.Client {
		c := cloud.NewClient(s.APIKey).
			WithBaseURL(cc.BaseURL).
			WithModel(s.Model).
			WithMaxRetries(cc.MaxRetries).
			WithLimiter(a.limiter).
			WithConnectivity(a.Monitor).
			WithSiteInfo(cc.SiteURL, cc.SiteName).
			WithLogger(log)
		if cc.TimeoutSecs > 0 {
			c = c.WithTimeout(time.Duration(cc.TimeoutSecs) * time.Second)
		}
		return c
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start restores scheduled notifications and starts the connectivity probe
// and the periodic checks. It returns immediately; Close stops them.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	n, err := a.Scheduler.Restore()
	if err != nil {
		return err
	}
	a.Log.Info("app started", zap.Int("scheduled", n), zap.String("version", a.Version))

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Monitor.Run(ctx)
	}()
	if a.Config.Notifications.Enabled {
		interval := time.Duration(a.Config.Notifications.CheckIntervalSecs) * time.Second
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Periodic.Run(ctx, interval)
		}()
	}
	return nil
}

// closeTurnTimeout bounds how long Close waits for a cancelled turn. A turn
// whose caller stopped reading updates can block until its context ends.
const closeTurnTimeout = 5 * time.Second

// Close stops the background loops and timers, waits for a cancelled turn
// to finish saving, then saves and closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.Controller.Cancel()
	waitCtx, stop := context.WithTimeout(context.Background(), closeTurnTimeout)
	if err := a.Controller.WaitIdle(waitCtx); err != nil {
		a.Log.Warn("reply still running at close", zap.Error(err))
	}
	stop()
	a.wg.Wait()
	a.Scheduler.Stop()
	a.Periodic.Stop()

	if err := a.Store.Save(); err != nil {
		a.Log.Warn("final save failed", zap.Error(err))
	}
	return a.Store.Close()
}

// =============================================================================
// FRONT ENDS
// =============================================================================

// Server builds the PWA server from the configuration.
func (a *App) Server() (*server.Server, error) {
	sc := a.Config.Server
	return server.New(server.Deps{
		Store:      a.Store,
		Controller: a.Controller,
		Assistant:  a.Assistant,
		Clients:    a.Clients,
		Scheduler:  a.Scheduler,
		Periodic:   a.Periodic,
		Notifier:   a.Notifier,
		Hub:        a.Hub,
		Renderer:   a.Renderer,
		Monitor:    a.Monitor,
	}, server.Options{
		Addr:              sc.Addr,
		StaticDir:         sc.StaticDir,
		RequestsPerSecond: sc.RequestsPerSecond,
		Burst:             sc.Burst,
		Version:           a.Version,
		Logger:            a.Log.Named("server"),
	})
}

// ChatDeps returns the components the terminal chat screen drives.
func (a *App) ChatDeps() chat.Deps {
	return chat.Deps{
		Store:      a.Store,
		Controller: a.Controller,
		Assistant:  a.Assistant,
		Clients:    a.Clients,
		Scheduler:  a.Scheduler,
		Periodic:   a.Periodic,
		Hub:        a.Hub,
		Monitor:    a.Monitor,
	}
}

// ChatOptions returns the terminal chat options for the UI config.
func (a *App) ChatOptions(exportDir string) chat.Options {
	return chat.Options{
		Theme:        styles.NewTheme(a.Config.UI.Theme),
		GlamourStyle: a.Config.UI.GlamourStyle,
		ExportDir:    exportDir,
		Version:      a.Version,
		Logger:       a.Log,
	}
}

// Client returns a completion client for the stored settings.
func (a *App) Client() *cloud.Client {
	return a.Clients(a.Store.Settings())
}
