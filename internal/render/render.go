// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns stored conversation state into sanitized HTML views
// for the web shell and the HTML export.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Display names.
const (
	UserSender      = "You"
	AssistantSender = "MementoAI"
)

// WelcomeHTML is shown in place of an empty conversation.
const WelcomeHTML = `Welcome! Paste your OpenRouter key in Settings, pick a model, then start chatting. Tips:<br>• Shift+Enter = newline<br>• Use Remember on AI replies to store notes`

// EmptyMemoryText is shown when no memory is stored.
const EmptyMemoryText = "No memory information stored yet."

// MaxInputChars is the soft limit shown by the input character counter.
const MaxInputChars = 2000

// DefaultStyle is the chroma style used for fenced code.
const DefaultStyle = "dracula"

// =============================================================================
// RENDERER
// =============================================================================

// MessageView is one rendered message.
type MessageView struct {
	Index   int           `json:"index"`
	Role    string        `json:"role"`
	Sender  string        `json:"sender"`
	Class   string        `json:"class"`
	HTML    template.HTML `json:"html"`
	Time    string        `json:"time,omitempty"`
	Welcome bool          `json:"welcome,omitempty"`
	Actions bool          `json:"actions,omitempty"`
}

// Renderer converts markdown to sanitized HTML. It is safe for concurrent
// use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	loc    *time.Location
	tpl    *template.Template
}

// Option configures a Renderer.
type Option func(*rendererConfig)

type rendererConfig struct {
	style string
	loc   *time.Location
}

// WithStyle selects the chroma style for code blocks.
func WithStyle(style string) Option {
	return func(c *rendererConfig) { c.style = style }
}

// WithLocation sets the zone used to format message times.
func WithLocation(loc *time.Location) Option {
	return func(c *rendererConfig) { c.loc = loc }
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	cfg := rendererConfig{style: DefaultStyle, loc: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.style == "" {
		cfg.style = DefaultStyle
	}
	if cfg.loc == nil {
		cfg.loc = time.Local
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(cfg.style),
				highlighting.WithFormatOptions(chromahtml.WithLineNumbers(false)),
			),
		),
	)

	// Raw HTML passes through goldmark and is cleaned here.
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("span", "pre")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{
		md:     md,
		policy: p,
		loc:    cfg.loc,
		tpl:    template.Must(template.New("render").Parse(templates)),
	}
}

// Markdown renders src as sanitized HTML.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return Text(src)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// Text escapes plain text for display.
func Text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}

// Message renders one stored message. User text is shown verbatim, any
// other role as markdown.
func (r *Renderer) Message(index int, m storage.Message) MessageView {
	v := MessageView{
		Index:  index,
		Role:   m.Role,
		Sender: SenderName(m.Role),
		Time:   FormatTime(m.Timestamp, r.loc),
	}
	if m.Role == storage.RoleUser {
		v.Class = "user"
		v.HTML = Text(m.Content)
	} else {
		v.Class = "ai"
		v.HTML = r.Markdown(m.Content)
		v.Actions = m.Role == storage.RoleAssistant
	}
	return v
}

// Messages renders a conversation. An empty conversation yields the
// welcome view alone.
func (r *Renderer) Messages(msgs []storage.Message) []MessageView {
	if len(msgs) == 0 {
		return []MessageView{WelcomeView()}
	}
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = r.Message(i, m)
	}
	return views
}

// WelcomeView is the placeholder shown before the first message.
func WelcomeView() MessageView {
	return MessageView{
		Index:   -1,
		Role:    storage.RoleAssistant,
		Sender:  AssistantSender,
		Class:   "ai",
		HTML:    template.HTML(WelcomeHTML),
		Welcome: true,
	}
}

// Memory renders the memory blob as escaped paragraphs, or the empty
// notice.
func (r *Renderer) Memory(memory string) template.HTML {
	if strings.TrimSpace(memory) == "" {
		return template.HTML(`<p class="memory-empty">` + EmptyMemoryText + `</p>`)
	}
	var b strings.Builder
	for _, p := range strings.Split(memory, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines := strings.Split(strings.TrimSpace(p), "\n")
		for i, l := range lines {
			lines[i] = template.HTMLEscapeString(l)
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Document is the data of a standalone conversation page.
type Document struct {
	Title    string
	Exported string
	Model    string
	Messages []MessageView
	Memory   template.HTML
}

// NewDocument renders a snapshot into page data.
func (r *Renderer) NewDocument(title string, snap storage.Snapshot) Document {
	exported := ""
	if !snap.ExportDate.IsZero() {
		exported = snap.ExportDate.In(r.loc).Format("2006-01-02 15:04")
	}
	doc := Document{
		Title:    title,
		Exported: exported,
		Model:    snap.Settings.Model,
		Messages: r.Messages(snap.Conversation),
	}
	if strings.TrimSpace(snap.Memory) != "" {
		doc.Memory = r.Memory(snap.Memory)
	}
	return doc
}

// WriteDocument writes a standalone HTML page.
func (r *Renderer) WriteDocument(w io.Writer, doc Document) error {
	if err := r.tpl.ExecuteTemplate(w, "document", doc); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	return nil
}

// WriteMessages writes the message list fragment.
func (r *Renderer) WriteMessages(w io.Writer, views []MessageView) error {
	if err := r.tpl.ExecuteTemplate(w, "messages", views); err != nil {
		return fmt.Errorf("render messages: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// SenderName maps a role to its display name.
func SenderName(role string) string {
	if role == storage.RoleUser {
		return UserSender
	}
	return AssistantSender
}

// FormatTime formats t as HH:MM in loc. The zero time formats as "".
func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("15:04")
}

// CharCount formats the input counter, e.g. "12/2000", and reports whether
// the text exceeds MaxInputChars.
func CharCount(text string) (string, bool) {
	n := utf8.RuneCountInString(text)
	return fmt.Sprintf("%d/%d", n, MaxInputChars), n > MaxInputChars
}
