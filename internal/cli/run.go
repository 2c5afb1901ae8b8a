// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/config"
	"github.com/mementoai/memento/internal/logging"
	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes commands against injectable streams and components.
type Runner struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Interactive is true when stdin is a terminal.
	Interactive bool
	// WorkDir receives exports given without a directory.
	WorkDir string

	// LoadConfig defaults to config.Load, or config.LoadFromPath with
	// --config.
	LoadConfig func(args Args) (*config.Config, error)
	// Open defaults to a rotating file logger plus app.New.
	Open func(cfg *config.Config, args Args, serve bool) (*app.App, error)
}

// NewRunner returns a Runner on the process streams.
func NewRunner() *Runner {
	return &Runner{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		Interactive: IsTTY(),
		WorkDir:     ".",
	}
}

// Main parses argv, runs the command and returns the exit code.
func Main(argv []string) int {
	r := NewRunner()
	cmd, args, err := Parse(argv)
	if err != nil {
		DisplayError(r.Err, err, args.JSON)
		return GetExitCode(err)
	}

	ctx := context.Background()
	// The line-mode chat handles interrupts per turn.
	if cmd != CmdChat {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	if err := r.Run(ctx, cmd, args); err != nil {
		DisplayError(r.Err, err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// Run executes cmd.
func (r *Runner) Run(ctx context.Context, cmd Command, args Args) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(r.Out)
		return nil
	case CmdVersion:
		return r.runVersion(args)
	case CmdConfig:
		return r.runConfig(args)
	}

	cfg, err := r.loadConfig(args)
	if err != nil {
		return err
	}
	if args.Ephemeral {
		cfg.Storage.Backend = "memory"
	}
	a, err := r.open(cfg, args, cmd == CmdServe)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.Log.Warn("close failed", zap.Error(cerr))
		}
	}()

	if args.Model != "" {
		if _, err := a.Store.UpdateSettings(func(s *storage.Settings) { s.Model = args.Model }); err != nil {
			return NewCommandError("model", "set", err)
		}
	}

	switch cmd {
	case CmdTUI:
		return r.runTUI(ctx, a)
	case CmdServe:
		return r.runServe(ctx, a, args)
	case CmdChat:
		return r.runChat(ctx, a)
	case CmdAsk:
		return r.runAsk(ctx, a, args)
	case CmdModels:
		return r.runModels(ctx, a, args)
	case CmdValidate:
		return r.runValidate(ctx, a, args)
	case CmdMemory:
		return r.runMemory(ctx, a, args)
	case CmdSummary, CmdActions, CmdInsights:
		return r.runAnalysis(ctx, a, cmd, args)
	case CmdExport:
		return r.runExport(a, args)
	case CmdImport:
		return r.runImport(a, args)
	case CmdReset:
		return r.runReset(a, args)
	case CmdClear:
		return r.runClear(a, args)
	}
	return fmt.Errorf("command %d not handled", cmd)
}

func (r *Runner) loadConfig(args Args) (*config.Config, error) {
	if r.LoadConfig != nil {
		return r.LoadConfig(args)
	}
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Load()
}

func (r *Runner) open(cfg *config.Config, args Args, serve bool) (*app.App, error) {
	if r.Open != nil {
		return r.Open(cfg, args, serve)
	}
	return openApp(cfg, args, serve)
}

// openApp builds the logger and the app. The file log is always on; serve
// and --verbose mirror it to stderr.
func openApp(cfg *config.Config, args Args, serve bool) (*app.App, error) {
	logFile, err := cfg.LogFile()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Console:    cfg.Logging.Console || args.Verbose || (serve && IsStdoutTTY()),
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return app.New(cfg, app.Options{Version: Version, Logger: log})
}

func (r *Runner) runVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(r.Out)
	}
	PrintVersion(r.Out)
	return nil
}

// printJSON writes a successful --json envelope.
func (r *Runner) printJSON(command string, data any) error {
	return NewJSONResponse(command, data).Print(r.Out)
}
