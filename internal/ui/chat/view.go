// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
	"github.com/mementoai/memento/internal/ui/components"
	"github.com/mementoai/memento/internal/util"
)

// welcomeText is shown in place of an empty conversation.
const welcomeText = "Welcome! Set your OpenRouter key with `memento config` or the web settings, " +
	"pick a model with /model, then start chatting.\n\n" +
	"Enter sends, Alt+Enter inserts a newline. Use /remember to store the last reply."

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	parts := []string{m.renderHeader(), m.viewport.View()}
	if toast := components.RenderStack(m.theme, m.toasts, m.width); toast != "" {
		parts = append(parts, toast)
	}
	parts = append(parts, m.renderStatus(), m.theme.Input.Width(m.width).Render(m.input.View()))
	if m.showHelp {
		parts = append(parts, m.theme.Help.Render(m.help.FullHelpView(m.keys.FullHelp())))
	} else {
		parts = append(parts, m.theme.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(render.AssistantSender)

	conn := m.theme.Online.Render("online")
	if m.deps.Monitor != nil && !m.deps.Monitor.IsOnline() {
		conn = m.theme.Offline.Render("offline")
	}

	settings := m.deps.Store.Settings()
	meta := fmt.Sprintf("%s | %d messages", settings.Model, m.deps.Store.MessageCount())
	if !settings.HasAPIKey() {
		meta += " | no API key"
	}
	avail := m.width - util.StringWidth(render.AssistantSender) - util.StringWidth("offline") - 6
	if avail < 0 {
		avail = 0
	}
	meta = m.theme.HeaderMeta.Render(util.TruncateWidth(meta, avail))

	line := title + "  " + meta + "  " + conn
	return m.theme.Header.Width(m.width).MaxHeight(headerRows).Render(line)
}

func (m Model) renderStatus() string {
	count, over := render.CharCount(m.input.Value())
	right := m.theme.CharCount.Render(count)
	if over {
		right = m.theme.CharCountDanger.Render(count)
	}
	room := m.width - lipgloss.Width(right) - 1

	style := m.theme.StatusBar
	var text string
	switch {
	case m.busy:
		style, text = m.theme.StatusBusy, m.spinner.View()+" Thinking... (Ctrl+C to stop)"
	case m.commands.running() != "":
		style, text = m.theme.StatusBusy, m.spinner.View()+" "+m.status
	case m.statusErr:
		style, text = m.theme.ErrorText, m.status
	default:
		text = m.status
	}
	left := ""
	if text != "" && room > 0 {
		left = style.Render(util.TruncateWidth(text, room))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript lays out stored messages with local entries interleaved
// after the message they followed.
func (m Model) renderTranscript() string {
	msgs := m.deps.Store.Messages()
	var blocks []string

	entries := m.entries
	flush := func(upto int) {
		for len(entries) > 0 && entries[0].After <= upto {
			blocks = append(blocks, m.renderEntry(entries[0]))
			entries = entries[1:]
		}
	}

	if len(msgs) == 0 {
		blocks = append(blocks, m.theme.Welcome.Width(m.contentWidth()).Render(m.md.render(-1, welcomeText)))
	}
	for i, msg := range msgs {
		flush(i)
		blocks = append(blocks, m.renderMessage(i, msg))
	}
	// Entries added before a /clear point past the end.
	flush(math.MaxInt)

	return strings.Join(blocks, "\n\n")
}

func (m Model) contentWidth() int {
	if m.width < 24 {
		return 20
	}
	return m.width - 4
}

func (m Model) renderMessage(index int, msg storage.Message) string {
	label := m.theme.AssistantLabel.Render(render.AssistantSender)
	switch msg.Role {
	case storage.RoleUser:
		label = m.theme.UserLabel.Render(render.UserSender)
	case storage.RoleSystem:
		label = m.theme.SystemLabel.Render("System")
	}
	if ts := render.FormatTime(msg.Timestamp, nil); ts != "" {
		label += " " + m.theme.Timestamp.Render(ts)
	}

	var body string
	switch {
	case msg.Role == storage.RoleUser:
		body = m.theme.UserText.Render(m.md.plain(msg.Content))
	case msg.Role == storage.RoleSystem:
		body = m.theme.SystemText.Render(m.md.plain(msg.Content))
	case m.busy && index == m.streamIndex:
		content := msg.Content
		if content == "" {
			content = "..."
		}
		body = m.md.plain(content)
	default:
		body = m.md.render(index, msg.Content)
	}
	return label + "\n" + body
}

func (m Model) renderEntry(e localEntry) string {
	var title string
	switch e.Kind {
	case entryError:
		title = m.theme.ErrorText.Render(e.Title)
		return title + "\n" + m.theme.ErrorText.Render(m.md.plain(e.Body))
	case entryNotification:
		title = m.theme.NotificationTitle.Render(e.Title)
		return title + " " + m.theme.Timestamp.Render(e.At.Format("15:04")) + "\n" + m.md.plain(e.Body)
	default:
		title = m.theme.SystemLabel.Render("/" + e.Title)
		return title + "\n" + m.md.renderUncached(e.Body)
	}
}
