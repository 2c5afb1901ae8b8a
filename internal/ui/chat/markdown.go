// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdown renders assistant text with glamour. Finished messages are
// cached per index; the cache is dropped when the width changes.
type markdown struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[int]cachedRender
}

type cachedRender struct {
	content string
	out     string
}

func newMarkdown(style string) *markdown {
	return &markdown{style: style, cache: make(map[int]cachedRender)}
}

// setWidth prepares a renderer wrapping at width.
func (md *markdown) setWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == md.width && md.renderer != nil {
		return
	}
	md.width = width
	md.cache = make(map[int]cachedRender)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(md.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		md.renderer = nil
		return
	}
	md.renderer = r
}

// render returns the terminal rendering of content. Falls back to wrapped
// plain text when glamour is unavailable or fails.
func (md *markdown) render(index int, content string) string {
	if c, ok := md.cache[index]; ok && c.content == content {
		return c.out
	}
	out := md.plain(content)
	if md.renderer != nil {
		if r, err := md.renderer.Render(content); err == nil {
			out = strings.Trim(r, "\n")
		}
	}
	md.cache[index] = cachedRender{content: content, out: out}
	return out
}

// renderUncached renders content without touching the cache. Used for
// command output, which has no stable index.
func (md *markdown) renderUncached(content string) string {
	if md.renderer != nil {
		if r, err := md.renderer.Render(content); err == nil {
			return strings.Trim(r, "\n")
		}
	}
	return md.plain(content)
}

// plain wraps content without markdown processing. Used for the reply that
// is still streaming.
func (md *markdown) plain(content string) string {
	width := md.width
	if width <= 0 {
		width = 80
	}
	return wordwrap.String(content, width)
}

// forget drops every cached rendering.
func (md *markdown) forget() {
	md.cache = make(map[int]cachedRender)
}
