// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"strings"
	"time"
)

// =============================================================================
// STORAGE KEYS
// =============================================================================

// Keys under which the store and the scheduler persist their blobs.
const (
	KeySettings           = "mementoai-settings"
	KeyConversation       = "mementoai-conversation"
	KeyMemory             = "mementoai-memory"
	KeyMemoryReminders    = "memento_reminders"
	KeyScheduled          = "memento_scheduled_notifications"
	KeyLastSummaryDate    = "memento_last_summary_date"
	KeyLastWeeklySummary  = "memento_last_weekly_summary_date"
	KeyNotifiedMilestones = "memento_notified_milestones"
	KeyLastActivity       = "memento_last_activity"
)

// =============================================================================
// MESSAGES
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are the user's chat settings. They are saved wholesale.
type Settings struct {
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`

	AutoReminders          bool `json:"autoReminders"`
	DailySummary           bool `json:"dailySummary"`
	WeeklySummary          bool `json:"weeklySummary"`
	MilestoneNotifications bool `json:"milestoneNotifications"`
	InactiveNotifications  bool `json:"inactiveNotifications"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		APIKey:      "",
		Model:       "openai/gpt-3.5-turbo",
		Temperature: 0.7,
		MaxTokens:   1000,
	}
}

// HasAPIKey reports whether a non-blank key is configured.
func (s Settings) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// =============================================================================
// MEMORY
// =============================================================================

// MemoryStats summarizes the memory blob.
type MemoryStats struct {
	Characters int `json:"characterCount"`
	Words      int `json:"wordCount"`
	Paragraphs int `json:"paragraphCount"`
}

// MemoryReminder is a user-authored reminder kept next to the memory.
type MemoryReminder struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Date    time.Time `json:"date"`
	Created time.Time `json:"created"`
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the export document for the whole state.
type Snapshot struct {
	Conversation []Message `json:"conversation"`
	Settings     Settings  `json:"settings"`
	Memory       string    `json:"memory"`
	ExportDate   time.Time `json:"exportDate"`
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// ChangeKind says which part of the state changed.
type ChangeKind int

const (
	ChangeSettings ChangeKind = iota
	ChangeConversation
	ChangeMemory
	ChangeReminders
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSettings:
		return "settings"
	case ChangeConversation:
		return "conversation"
	case ChangeMemory:
		return "memory"
	case ChangeReminders:
		return "reminders"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is published after every mutation. Index is the affected message
// for conversation changes, -1 otherwise.
type Change struct {
	Kind  ChangeKind
	Index int
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotLoaded is returned by accessors used before Load.
	ErrNotLoaded = errors.New("storage: state not loaded")

	// ErrMessageIndex is returned for an out-of-range message index.
	ErrMessageIndex = errors.New("storage: message index out of range")

	// ErrConversationReplaced is returned when a write targets a
	// conversation that has since been cleared or imported over.
	ErrConversationReplaced = errors.New("storage: conversation was replaced")

	// ErrEmptyImport is returned when imported memory is blank.
	ErrEmptyImport = errors.New("storage: imported memory is empty")

	// ErrEmptyMemory is returned when exporting a blank memory.
	ErrEmptyMemory = errors.New("storage: no memory to export")

	// ErrReminderNotFound is returned when deleting an unknown reminder.
	ErrReminderNotFound = errors.New("storage: reminder not found")

	// ErrClosed is returned by a backend used after Close.
	ErrClosed = errors.New("storage: backend closed")
)
