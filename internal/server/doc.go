// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is the PWA shell: it serves the embedded front end, a JSON
// API over the state store and conversation controller, and a WebSocket for
// notifications.
//
// # Endpoints
//
//   - GET  /health                 - Health check
//   - GET  /api/state              - Settings, rendered messages, memory
//   - POST /api/chat               - Send a message; reply relayed as SSE
//   - GET|PUT /api/settings        - Read or patch settings
//   - GET|PUT|DELETE /api/memory   - Memory blob
//   - GET  /api/models             - Model catalogue, free models first
//   - GET  /api/export             - Download as json, md or html
//   - GET|POST /api/notifications  - Pending and new notifications
//   - GET  /ws                     - Notification socket
//
// Static files are answered cache-first from an AssetCache named
// memento-ai-cache-v1. Misses fall through to the origin file system.
//
// # Worker Message Protocol
//
// A client schedules a notification over /ws with
//
//	{"type":"SCHEDULE_NOTIFICATION","title":"...","body":"...","delay":60000}
//
// where delay is in milliseconds. Every notification delivered through the
// hub is pushed to connected clients as {"type":"NOTIFICATION",...}.
//
// # Key Types
//
//   - Server: router, middleware and lifecycle
//   - Deps: the components the handlers drive
//   - AssetCache: cache-first static file handler
//   - RateLimiter: per-IP token buckets
//
// # Usage
//
//	srv, err := server.New(server.Deps{
//		Store:      store,
//		Controller: ctrl,
//		Renderer:   render.New(),
//	}, server.Options{Addr: "127.0.0.1:8787", Logger: log})
//	if err != nil {
//		return err
//	}
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
