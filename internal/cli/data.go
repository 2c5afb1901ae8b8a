// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/export"
)

const exportUsage = "memento export [--format json|md|html] [--output FILE|-] [--open]"

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// runExport writes the whole state. JSON is the default and the only format
// import accepts.
func (r *Runner) runExport(a *app.App, args Args) error {
	p := NewArgParser(args.Raw, "open")
	opts := export.DefaultOptions()
	opts.OutputDir = r.WorkDir
	opts.OpenAfterExport = p.BoolFlag("open")
	opts.Renderer = a.Renderer

	output := p.Flag("output", "o")
	if output == "" {
		output = p.Positional(0)
	}
	format := p.Flag("format", "f")
	if format == "" && output != "" && output != "-" {
		format = extFormat(output)
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return &UsageError{Reason: err.Error(), Usage: exportUsage}
	}

	snap := a.Store.Snapshot()
	switch output {
	case "-":
		data, err := exp.Export(snap)
		if err != nil {
			return NewCommandError("export", "render", err)
		}
		_, err = r.Out.Write(data)
		return err
	case "":
		output, err = export.ExportToFile(snap, exp, opts)
	default:
		if filepath.Dir(output) == "." && !filepath.IsAbs(output) {
			output = filepath.Join(r.WorkDir, output)
		}
		err = export.ExportToPath(snap, exp, output)
	}
	if err != nil {
		return NewCommandError("export", "write", err)
	}

	if args.JSON {
		return r.printJSON("export", ExportData{Path: output})
	}
	fmt.Fprintln(r.Out, SuccessStyle.Render("Exported to "+output))
	return nil
}

// extFormat maps a file extension to an export format name.
func extFormat(path string) string {
	switch filepath.Ext(path) {
	case ".md", ".markdown":
		return "md"
	case ".html", ".htm":
		return "html"
	}
	return "json"
}

// runImport replaces the stored state with a JSON export. "-" reads stdin.
func (r *Runner) runImport(a *app.App, args Args) error {
	p := NewArgParser(args.Raw)
	path := p.Positional(0)
	if path == "" {
		return ErrMissingArgument("file", "memento import <file>")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r.In)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return NewCommandError("import", "read", err)
	}
	if err := r.confirm(args.Yes, "Replace all stored data with "+path); err != nil {
		return err
	}
	if err := a.Store.ImportState(data); err != nil {
		return NewCommandError("import", "apply", err)
	}
	return r.done(args, "import", fmt.Sprintf("Imported %d messages.", a.Store.MessageCount()))
}

// =============================================================================
// RESET / CLEAR
// =============================================================================

// runReset deletes settings, conversation, memory and reminders.
func (r *Runner) runReset(a *app.App, args Args) error {
	if err := r.confirm(args.Yes, "Delete all data"); err != nil {
		return err
	}
	if err := a.Scheduler.CancelAll(); err != nil {
		return NewCommandError("reset", "cancel reminders", err)
	}
	if err := a.Store.ClearAllData(); err != nil {
		return NewCommandError("reset", "clear", err)
	}
	return r.done(args, "reset", "All data deleted.")
}

// runClear deletes the conversation only.
func (r *Runner) runClear(a *app.App, args Args) error {
	if err := r.confirm(args.Yes, "Clear the conversation"); err != nil {
		return err
	}
	if err := a.Store.ClearConversation(); err != nil {
		return NewCommandError("clear", "clear", err)
	}
	return r.done(args, "clear", "Conversation cleared.")
}
