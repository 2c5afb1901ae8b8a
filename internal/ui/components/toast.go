// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mementoai/memento/internal/ui/styles"
	"github.com/mementoai/memento/internal/util"
)

// =============================================================================
// TOAST TYPES
// =============================================================================

// ToastKind selects the color of a toast.
type ToastKind int

const (
	// ToastNotification is a delivered reminder or summary.
	ToastNotification ToastKind = iota
	// ToastError reports a failure the user did not ask to see in full.
	ToastError
	// ToastSuccess confirms a finished action.
	ToastSuccess
)

// Auto-dismiss durations.
const (
	NotificationToastDuration = 12 * time.Second
	ErrorToastDuration        = 8 * time.Second
	SuccessToastDuration      = 4 * time.Second
)

// DefaultMaxToasts caps the stack; the oldest toast is dropped first.
const DefaultMaxToasts = 5

// Toast is a one-line message shown above the status line until it
// expires or is dismissed.
type Toast struct {
	ID        int
	Kind      ToastKind
	Title     string
	Body      string
	CreatedAt time.Time
	Duration  time.Duration
}

// Expired reports whether the toast is past its duration at now.
func (t Toast) Expired(now time.Time) bool {
	return t.Duration > 0 && !now.Before(t.CreatedAt.Add(t.Duration))
}

func durationFor(kind ToastKind) time.Duration {
	switch kind {
	case ToastError:
		return ErrorToastDuration
	case ToastSuccess:
		return SuccessToastDuration
	}
	return NotificationToastDuration
}

// =============================================================================
// TOAST STACK
// =============================================================================

// ToastStack holds the visible toasts, newest first. It is shared by
// pointer between copies of a Bubble Tea model.
type ToastStack struct {
	mu     sync.Mutex
	toasts []Toast
	nextID int
	limit  int
	now    func() time.Time
}

// NewToastStack creates an empty stack holding at most limit toasts
// (DefaultMaxToasts when limit <= 0).
func NewToastStack(limit int) *ToastStack {
	if limit <= 0 {
		limit = DefaultMaxToasts
	}
	return &ToastStack{nextID: 1, limit: limit, now: time.Now}
}

// SetClock replaces the time source.
func (s *ToastStack) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Push adds a toast with the default duration for kind and returns it.
func (s *ToastStack) Push(kind ToastKind, title, body string) Toast {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Toast{
		ID:        s.nextID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: s.now(),
		Duration:  durationFor(kind),
	}
	s.nextID++

	s.toasts = append([]Toast{t}, s.toasts...)
	if len(s.toasts) > s.limit {
		s.toasts = s.toasts[:s.limit]
	}
	return t
}

// Dismiss removes the toast with id and reports whether it was present.
func (s *ToastStack) Dismiss(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.toasts {
		if t.ID == id {
			s.toasts = append(s.toasts[:i], s.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// DismissNewest removes the newest toast.
func (s *ToastStack) DismissNewest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toasts) == 0 {
		return false
	}
	s.toasts = s.toasts[1:]
	return true
}

// Prune removes expired toasts and returns how many were removed.
func (s *ToastStack) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	kept := s.toasts[:0]
	for _, t := range s.toasts {
		if !t.Expired(now) {
			kept = append(kept, t)
		}
	}
	removed := len(s.toasts) - len(kept)
	s.toasts = kept
	return removed
}

// Newest returns the most recent toast.
func (s *ToastStack) Newest() (Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toasts) == 0 {
		return Toast{}, false
	}
	return s.toasts[0], true
}

// Len returns the number of toasts.
func (s *ToastStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toasts)
}

// Clear removes every toast.
func (s *ToastStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = nil
}

// =============================================================================
// TOAST MESSAGES
// =============================================================================

// ToastExpiredMsg is sent when a toast's duration has passed.
type ToastExpiredMsg struct {
	ID int
}

// ExpireCmd fires ToastExpiredMsg for t after its duration.
func ExpireCmd(t Toast) tea.Cmd {
	if t.Duration <= 0 {
		return nil
	}
	id := t.ID
	return tea.Tick(t.Duration, func(time.Time) tea.Msg {
		return ToastExpiredMsg{ID: id}
	})
}

// =============================================================================
// TOAST RENDERING
// =============================================================================

// RenderToast renders t as a single line width cells wide. more is the
// number of older toasts behind it.
func RenderToast(theme *styles.Theme, t Toast, more, width int) string {
	base := theme.Notification
	switch t.Kind {
	case ToastError:
		base = base.Background(styles.Rose).Foreground(styles.SurfaceDim)
	case ToastSuccess:
		base = base.Background(styles.Emerald).Foreground(styles.SurfaceDim)
	}

	suffix := ""
	if more > 0 {
		suffix = fmt.Sprintf("  (+%d)", more)
	}
	text := util.OneLine(t.Body)
	if t.Title != "" {
		text = t.Title + ": " + text
	}
	room := width - 2 - util.StringWidth(suffix)
	if room < 1 {
		room = 1
	}
	line := util.TruncateWidth(text, room) + suffix
	return base.Width(width).MaxHeight(1).Render(line)
}

// RenderStack renders the newest toast of s, or "" when s is empty.
func RenderStack(theme *styles.Theme, s *ToastStack, width int) string {
	t, ok := s.Newest()
	if !ok {
		return ""
	}
	return RenderToast(theme, t, s.Len()-1, width)
}

// Height returns the rows RenderStack uses.
func Height(s *ToastStack) int {
	if s == nil || s.Len() == 0 {
		return 0
	}
	return 1
}
