// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/notify"
	"github.com/mementoai/memento/internal/offline"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = "127.0.0.1:8787"

// maxBodyBytes bounds request bodies. Imports carry whole conversations.
const maxBodyBytes = 8 << 20

// ============================================================================
// SERVER
// ============================================================================

// Deps are the components the HTTP surface drives. Store, Controller and
// Renderer are required.
type Deps struct {
	Store      *storage.Store
	Controller *conversation.Controller
	Assistant  *conversation.Assistant
	Clients    conversation.ClientFunc
	Scheduler  *notify.Scheduler
	Periodic   *notify.Periodic
	// Notifier delivers notifications requested without a delay.
	Notifier notify.Notifier
	// Hub feeds the WebSocket clients.
	Hub      *notify.Hub
	Renderer *render.Renderer
	Monitor  *offline.Monitor
}

// Options configures the listener and middleware.
type Options struct {
	Addr string
	// StaticDir replaces the embedded front end when set.
	StaticDir         string
	RequestsPerSecond float64
	Burst             int
	Version           string
	Logger            *zap.Logger
}

// Server is the PWA shell: static assets, the JSON API and the
// notification socket.
type Server struct {
	deps    Deps
	opts    Options
	log     *zap.Logger
	router  chi.Router
	assets  *AssetCache
	limiter *RateLimiter
	started time.Time

	mu     sync.Mutex
	server *http.Server
}

// New builds a server and precaches the app shell.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Store == nil || deps.Controller == nil {
		return nil, errors.New("server: store and controller are required")
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New()
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var origin fs.FS = StaticFS()
	if opts.StaticDir != "" {
		info, err := os.Stat(opts.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("static dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("static dir: %s is not a directory", opts.StaticDir)
		}
		origin = os.DirFS(opts.StaticDir)
	}
	assets := NewAssetCache(CacheName, origin)
	if err := assets.Precache(PrecacheURLs...); err != nil {
		return nil, err
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		log:     log.Named("server"),
		assets:  assets,
		limiter: NewRateLimiter(opts.RequestsPerSecond, opts.Burst),
		started: time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Assets returns the static asset cache.
func (s *Server) Assets() *AssetCache {
	return s.assets
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(s.log))
	r.Use(LoggingMiddleware(s.log))
	r.Use(SecurityHeadersMiddleware())
	r.Use(RateLimitMiddleware(s.limiter, s.log))
	r.Use(chimw.CleanPath)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(NoStoreMiddleware)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		})

		r.Get("/state", s.handleState)
		r.Post("/activity", s.handleActivity)

		r.Get("/messages", s.handleMessages)
		r.Post("/messages/{index}/remember", s.handleRemember)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/cancel", s.handleChatCancel)
		r.Delete("/conversation", s.handleClearConversation)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/settings/reset", s.handleResetSettings)
		r.Post("/settings/validate", s.handleValidateKey)

		r.Route("/memory", func(r chi.Router) {
			r.Get("/", s.handleGetMemory)
			r.Put("/", s.handlePutMemory)
			r.Delete("/", s.handleClearMemory)
			r.Post("/append", s.handleAppendMemory)
			r.Get("/search", s.handleSearchMemory)
			r.Get("/stats", s.handleMemoryStats)
			r.Post("/extract", s.handleExtractMemory)
			r.Get("/suggestions", s.handleMemorySuggestions)
			r.Get("/export", s.handleExportMemory)
			r.Post("/import", s.handleImportMemory)
			r.Get("/reminders", s.handleListReminders)
			r.Post("/reminders", s.handleAddReminder)
			r.Delete("/reminders/{id}", s.handleDeleteReminder)
		})

		r.Get("/summary", s.handleSummary)
		r.Get("/actions", s.handleActionItems)
		r.Get("/insights", s.handleInsights)

		r.Get("/models", s.handleModels)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications", s.handleScheduleNotification)
		r.Delete("/notifications/{id}", s.handleCancelNotification)
	})

	r.Handle("/*", s.assets)
	s.router = r
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	Online        bool   `json:"online"`
	APIKey        bool   `json:"api_key_configured"`
	Messages      int    `json:"messages"`
	Pending       int    `json:"pending_notifications"`
	Subscribers   int    `json:"subscribers"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := HealthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		Online:        s.online(),
		APIKey:        s.deps.Store.Settings().HasAPIKey(),
		Messages:      s.deps.Store.MessageCount(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if !h.Online {
		h.Status = "degraded"
	}
	if s.deps.Scheduler != nil {
		h.Pending = len(s.deps.Scheduler.Pending())
	}
	if s.deps.Hub != nil {
		h.Subscribers = s.deps.Hub.Subscribers()
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) online() bool {
	return s.deps.Monitor == nil || s.deps.Monitor.IsOnline()
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.log.Info("server started", zap.String("addr", l.Addr().String()), zap.String("version", s.opts.Version))
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.log.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Message: message, Code: status}})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
