// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/ui/components"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case TurnUpdateMsg:
		return m.handleTurnUpdate(msg)

	case NotificationMsg:
		return m.handleNotification(msg)

	case StoreChangedMsg:
		m.refresh()
		return m, listenStore(m.changes)

	case CommandResultMsg:
		return m.handleCommandResult(msg)

	case components.ToastExpiredMsg:
		if m.toasts.Dismiss(msg.ID) {
			m.layout()
		}
		return m, nil

	case StatusMsg:
		m.setStatus(msg.Text, msg.Error)
		return m, nil

	case spinner.TickMsg:
		if !m.busy && m.commands.running() == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// LAYOUT
// =============================================================================

// Fixed rows around the viewport: header, status line, input (three rows
// plus its top border) and the help footer.
const (
	headerRows = 1
	statusRows = 1
	inputRows  = 4
	footerRows = 1
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.input.SetWidth(msg.Width)
	m.help.Width = msg.Width
	m.md.setWidth(msg.Width - 4)
	m.layout()
	m.ready = true
	m.refresh()
	return m, nil
}

// layout sizes the viewport to the rows left over.
func (m *Model) layout() {
	rows := m.height - headerRows - statusRows - inputRows - footerRows
	rows -= components.Height(m.toasts)
	if m.showHelp {
		rows -= 3
	}
	if rows < 3 {
		rows = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = rows
}

// refresh re-renders the transcript into the viewport, keeping the scroll
// position unless it was already at the bottom.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Cancel):
		if m.busy {
			m.deps.Controller.Cancel()
			m.setStatus("Stopping reply...", false)
			return m, nil
		}
		if m.commands.stop() {
			m.setStatus("Cancelled.", false)
			return m, nil
		}
		return m.quit()

	case key.Matches(msg, m.keys.Dismiss):
		if m.commands.stop() {
			m.setStatus("Cancelled.", false)
			return m, nil
		}
		m.toasts.DismissNewest()
		m.status, m.statusErr = "", false
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.busy {
		m.deps.Controller.Cancel()
	}
	m.commands.stop()
	return m, tea.Quit
}

// submit sends the input as a message, or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}
	if m.busy {
		m.setStatus("Please wait for the current reply.", true)
		return m, nil
	}
	if _, over := render.CharCount(text); over {
		m.setStatus(fmt.Sprintf("Message exceeds %d characters.", render.MaxInputChars), true)
		return m, nil
	}

	updates, err := m.deps.Controller.Send(m.ctx, text)
	if err != nil {
		m.setStatus(cloud.UserMessage(err), true)
		return m, nil
	}
	if m.deps.Periodic != nil {
		if err := m.deps.Periodic.RecordActivity(); err != nil {
			m.log.Warn("failed to record activity", zap.Error(err))
		}
	}

	m.input.Reset()
	m.updates = updates
	m.busy = true
	m.status, m.statusErr = "", false
	m.refresh()
	m.viewport.GotoBottom()
	return m, tea.Batch(waitForUpdate(updates), m.spinner.Tick)
}

// =============================================================================
// TURN UPDATES
// =============================================================================

func (m Model) handleTurnUpdate(msg TurnUpdateMsg) (tea.Model, tea.Cmd) {
	if !msg.OK {
		m.updates = nil
		m.busy = false
		m.streamIndex = -1
		m.refresh()
		return m, nil
	}

	u := msg.Update
	m.streamIndex = u.Index
	if u.Done {
		m.busy = false
		m.streamIndex = -1
		if u.Err != nil {
			m.setStatus(cloud.UserMessage(u.Err), true)
		}
	}
	m.refresh()
	return m, waitForUpdate(m.updates)
}

// =============================================================================
// NOTIFICATIONS AND COMMAND RESULTS
// =============================================================================

func (m Model) handleNotification(msg NotificationMsg) (tea.Model, tea.Cmd) {
	n := msg.Notification
	toast := m.toasts.Push(components.ToastNotification, n.Title, n.Body)
	m.addEntry(entryNotification, n.Title, n.Body)
	m.layout()
	m.refresh()
	return m, tea.Batch(listenNotifications(m.notes), components.ExpireCmd(toast))
}

func (m Model) handleCommandResult(msg CommandResultMsg) (tea.Model, tea.Cmd) {
	m.commands.done(msg.Command)
	if msg.Err != nil {
		m.setStatus(cloud.UserMessage(msg.Err), true)
		m.addEntry(entryError, msg.Command, cloud.UserMessage(msg.Err))
	} else {
		if msg.Output != "" {
			m.addEntry(entryInfo, msg.Command, msg.Output)
		}
		m.setStatus(msg.Status, false)
	}
	m.refresh()
	return m, nil
}

// addEntry appends local output below the current last message.
func (m *Model) addEntry(kind entryKind, title, body string) {
	m.entries = append(m.entries, localEntry{
		After: m.deps.Store.MessageCount(),
		Kind:  kind,
		Title: title,
		Body:  body,
		At:    time.Now(),
	})
	if n := len(m.entries); n > maxLocalEntries {
		m.entries = append([]localEntry(nil), m.entries[n-maxLocalEntries:]...)
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status, m.statusErr = text, isErr
}
