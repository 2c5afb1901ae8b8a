// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/config"
	"github.com/mementoai/memento/internal/ui/chat"
)

// shutdownTimeout bounds how long open requests may finish after a signal.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// SERVE
// =============================================================================

// runServe serves the web app until ctx is cancelled. --addr overrides
// server.addr. Edits to the config file toggle notifications and forced
// offline mode without a restart.
func (r *Runner) runServe(ctx context.Context, a *app.App, args Args) error {
	p := NewArgParser(args.Raw)
	if addr := p.Flag("addr", "a"); addr != "" {
		a.Config.Server.Addr = addr
	}

	srv, err := a.Server()
	if err != nil {
		return NewCommandError("serve", "build server", err)
	}
	if err := a.Start(ctx); err != nil {
		return NewCommandError("serve", "start", err)
	}

	l, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return NewCommandError("serve", "listen", err)
	}

	if path := r.configPath(args); path != "" {
		w := config.NewWatcher(path, a.Log.Named("config"), func(cfg *config.Config) {
			a.Hub.SetEnabled(cfg.Notifications.Enabled)
			a.Monitor.SetForced(cfg.Offline.Forced)
			a.Log.Info("config reloaded",
				zap.Bool("notifications", cfg.Notifications.Enabled),
				zap.Bool("offline", cfg.Offline.Forced))
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				a.Log.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	if args.JSON {
		if err := r.printJSON("serve", map[string]string{"addr": l.Addr().String()}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(r.Out, TitleStyle.Render("MementoAI")+" serving on "+PromptStyle.Render("http://"+l.Addr().String()))
		fmt.Fprintln(r.Out, DimStyle.Render("Press Ctrl+C to stop."))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}

// configPath returns the config file in use, or "" when running on
// defaults.
func (r *Runner) configPath(args Args) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	path, err := config.Path()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// =============================================================================
// TUI
// =============================================================================

// runTUI runs the full-screen chat.
func (r *Runner) runTUI(ctx context.Context, a *app.App) error {
	if !r.Interactive {
		return &TTYRequiredError{Operation: "start the chat screen (use \"memento chat\" or \"memento ask\")"}
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	return chat.Run(ctx, a.ChatDeps(), a.ChatOptions(r.WorkDir))
}
