// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
	"github.com/mementoai/memento/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// ErrUnknownFormat is returned by ForFormat for unsupported names.
var ErrUnknownFormat = errors.New("export: unsupported format")

// ErrNothingToExport is returned by the transcript formats for an empty
// conversation.
var ErrNothingToExport = errors.New("export: conversation has no messages")

// Exporter defines the interface for state exporters.
type Exporter interface {
	// Export converts a snapshot to the target format.
	Export(snap storage.Snapshot) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the exported format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory used when no explicit path is given.
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMemory appends the memory blob to transcript formats.
	IncludeMemory bool

	// IncludeTimestamps adds per-message times to transcript formats.
	IncludeTimestamps bool

	// Title heads transcript formats.
	Title string

	// Renderer renders HTML; nil means a default renderer.
	Renderer *render.Renderer
}

// DefaultTitle heads exported transcripts.
const DefaultTitle = "MementoAI Conversation"

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMemory:     true,
		IncludeTimestamps: true,
		Title:             DefaultTitle,
	}
}

// ForFormat returns the exporter for a format name: json, md/markdown or
// html/htm.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return NewJSONExporter(), nil
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// FileName returns the default export file name for t.
func FileName(t time.Time, exporter Exporter) string {
	return "memento_export_" + t.Format("2006-01-02") + exporter.FileExtension()
}

// ExportToFile exports snap into opts.OutputDir under FileName and returns
// the path written.
func ExportToFile(snap storage.Snapshot, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	when := snap.ExportDate
	if when.IsZero() {
		when = time.Now()
	}
	path := filepath.Join(opts.OutputDir, FileName(when, exporter))
	if err := ExportToPath(snap, exporter, path); err != nil {
		return "", err
	}

	if opts.OpenAfterExport {
		if err := openFile(path); err != nil {
			return path, fmt.Errorf("open %s: %w", path, err)
		}
	}
	return path, nil
}

// ExportToPath exports snap to path, replacing any existing file
// atomically.
func ExportToPath(snap storage.Snapshot, exporter Exporter, path string) error {
	content, err := exporter.Export(snap)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04")
}
