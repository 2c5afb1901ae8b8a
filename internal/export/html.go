// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"

	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
)

// HTMLExporter exports the conversation as a standalone HTML page.
type HTMLExporter struct {
	options  *Options
	renderer *render.Renderer
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	r := opts.Renderer
	if r == nil {
		r = render.New()
	}
	return &HTMLExporter{options: opts, renderer: r}
}

// Export renders a snapshot to HTML.
func (e *HTMLExporter) Export(snap storage.Snapshot) ([]byte, error) {
	if len(snap.Conversation) == 0 {
		return nil, ErrNothingToExport
	}
	if !e.options.IncludeMemory {
		snap.Memory = ""
	}

	title := e.options.Title
	if title == "" {
		title = DefaultTitle
	}
	doc := e.renderer.NewDocument(title, snap)
	if !e.options.IncludeTimestamps {
		for i := range doc.Messages {
			doc.Messages[i].Time = ""
		}
	}

	var buf bytes.Buffer
	if err := e.renderer.WriteDocument(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}
