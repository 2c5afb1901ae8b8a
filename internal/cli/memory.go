// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
)

const memoryUsage = "memento memory [show|add|search|stats|clear|export|import|extract]"

// MemoryData is the data of "memory --json".
type MemoryData struct {
	Memory string              `json:"memory"`
	Stats  storage.MemoryStats `json:"stats"`
}

// runMemory dispatches the memory subcommands.
func (r *Runner) runMemory(ctx context.Context, a *app.App, args Args) error {
	p := NewArgParser(args.Raw)
	sub := p.Subcommand()

	switch sub {
	case "", "show":
		mem := a.Store.Memory()
		if args.JSON {
			return r.printJSON("memory", MemoryData{Memory: mem, Stats: a.Store.MemoryStats()})
		}
		if mem == "" {
			fmt.Fprintln(r.Out, DimStyle.Render(render.EmptyMemoryText))
			return nil
		}
		fmt.Fprintln(r.Out, mem)
		return nil

	case "add":
		text := JoinPositionalArgs(p, 1)
		if text == "" {
			return ErrMissingArgument("text", "memento memory add <text>")
		}
		if err := a.Store.UpdateMemory(text); err != nil {
			return NewCommandError("memory", "add", err)
		}
		return r.done(args, "memory", "Added to memory.")

	case "search":
		query := JoinPositionalArgs(p, 1)
		if query == "" {
			return ErrMissingArgument("query", "memento memory search <query>")
		}
		matches := a.Store.SearchMemory(query)
		if args.JSON {
			if matches == nil {
				matches = []string{}
			}
			return r.printJSON("memory", matches)
		}
		if len(matches) == 0 {
			fmt.Fprintln(r.Out, DimStyle.Render("No matches."))
			return nil
		}
		for _, m := range matches {
			fmt.Fprintf(r.Out, "- %s\n", m)
		}
		return nil

	case "stats":
		stats := a.Store.MemoryStats()
		if args.JSON {
			return r.printJSON("memory", stats)
		}
		fmt.Fprintln(r.Out, RenderLabel("Characters:")+fmt.Sprint(stats.Characters))
		fmt.Fprintln(r.Out, RenderLabel("Words:")+fmt.Sprint(stats.Words))
		fmt.Fprintln(r.Out, RenderLabel("Paragraphs:")+fmt.Sprint(stats.Paragraphs))
		return nil

	case "clear":
		if err := r.confirm(args.Yes, "Delete the memory"); err != nil {
			return err
		}
		if err := a.Store.ClearMemory(); err != nil {
			return NewCommandError("memory", "clear", err)
		}
		return r.done(args, "memory", "Memory cleared.")

	case "export":
		return r.exportMemory(a, args, p.Positional(1))

	case "import":
		path := p.Positional(1)
		if path == "" {
			return ErrMissingArgument("file", "memento memory import <file>")
		}
		f, err := os.Open(path)
		if err != nil {
			return NewCommandError("memory", "import", err)
		}
		defer f.Close()
		if err := a.Store.ImportMemory(f); err != nil {
			return NewCommandError("memory", "import", err)
		}
		return r.done(args, "memory", "Memory imported from "+path+".")

	case "extract":
		text, err := a.Assistant.SaveExtractedMemory(ctx)
		if err != nil {
			return NewCommandError("memory", "extract", err)
		}
		if args.JSON {
			return r.printJSON("memory", MemoryData{Memory: text, Stats: storage.ComputeMemoryStats(text)})
		}
		fmt.Fprintln(r.Out, SuccessStyle.Render("Saved to memory:"))
		fmt.Fprintln(r.Out, text)
		return nil
	}
	return ErrUnknownSubcommand("memory", sub, memoryUsage)
}

// exportMemory writes the memory to path, "-" for stdout, or a dated file
// in the working directory.
func (r *Runner) exportMemory(a *app.App, args Args, path string) error {
	if path == "-" {
		return a.Store.ExportMemory(r.Out)
	}
	if path == "" {
		path = filepath.Join(r.WorkDir, storage.MemoryExportName(a.Store.Now()))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewCommandError("memory", "export", err)
	}
	if err := a.Store.ExportMemory(f); err != nil {
		f.Close()
		return NewCommandError("memory", "export", err)
	}
	if err := f.Close(); err != nil {
		return NewCommandError("memory", "export", err)
	}
	if args.JSON {
		return r.printJSON("memory", ExportData{Path: path})
	}
	fmt.Fprintln(r.Out, SuccessStyle.Render("Memory exported to "+path))
	return nil
}

// done prints a confirmation, or an empty success envelope with --json.
func (r *Runner) done(args Args, command, msg string) error {
	if args.JSON {
		return r.printJSON(command, map[string]string{"message": msg})
	}
	fmt.Fprintln(r.Out, SuccessStyle.Render(msg))
	return nil
}
