// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/notify"
	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// STREAM MESSAGES
// =============================================================================

// TurnUpdateMsg carries one controller update. OK is false once the
// update channel is closed.
type TurnUpdateMsg struct {
	Update conversation.Update
	OK     bool
}

// waitForUpdate reads the next update of a turn.
func waitForUpdate(updates <-chan conversation.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		return TurnUpdateMsg{Update: u, OK: ok}
	}
}

// =============================================================================
// NOTIFICATION AND STORE MESSAGES
// =============================================================================

// NotificationMsg is a notification delivered by the hub.
type NotificationMsg struct {
	Notification notify.Notification
}

// listenNotifications waits for the next hub notification. It returns nil
// once the subscription is closed.
func listenNotifications(sub <-chan notify.Notification) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-sub
		if !ok {
			return nil
		}
		return NotificationMsg{Notification: n}
	}
}

// StoreChangedMsg reports a mutation of the store.
type StoreChangedMsg struct {
	Change storage.Change
}

// listenStore waits for the next store change.
func listenStore(changes <-chan storage.Change) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-changes
		if !ok {
			return nil
		}
		return StoreChangedMsg{Change: c}
	}
}

// =============================================================================
// COMMAND MESSAGES
// =============================================================================

// CommandResultMsg is the outcome of a slash command that ran in the
// background. Output is markdown shown in the transcript; Status replaces
// the status line.
type CommandResultMsg struct {
	Command string
	Output  string
	Status  string
	Err     error
}

// StatusMsg replaces the status line.
type StatusMsg struct {
	Text  string
	Error bool
}
