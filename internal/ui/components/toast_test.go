// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mementoai/memento/internal/ui/styles"
)

func TestToastStack_PushNewestFirst(t *testing.T) {
	s := NewToastStack(0)
	a := s.Push(ToastNotification, "Reminder", "first")
	b := s.Push(ToastError, "", "second")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())
	newest, ok := s.Newest()
	require.True(t, ok)
	assert.Equal(t, b.ID, newest.ID)
	assert.Equal(t, ErrorToastDuration, newest.Duration)
}

func TestToastStack_Limit(t *testing.T) {
	s := NewToastStack(2)
	first := s.Push(ToastSuccess, "", "1")
	s.Push(ToastSuccess, "", "2")
	s.Push(ToastSuccess, "", "3")

	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Dismiss(first.ID), "oldest toast is dropped")
}

func TestToastStack_Dismiss(t *testing.T) {
	s := NewToastStack(0)
	a := s.Push(ToastNotification, "A", "a")
	s.Push(ToastNotification, "B", "b")

	assert.True(t, s.Dismiss(a.ID))
	assert.False(t, s.Dismiss(a.ID))
	assert.True(t, s.DismissNewest())
	assert.False(t, s.DismissNewest())
	_, ok := s.Newest()
	assert.False(t, ok)
}

func TestToastStack_Prune(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewToastStack(0)
	s.SetClock(func() time.Time { return now })

	s.Push(ToastSuccess, "", "short")
	s.Push(ToastNotification, "", "long")

	now = now.Add(SuccessToastDuration)
	assert.Equal(t, 1, s.Prune())
	newest, _ := s.Newest()
	assert.Equal(t, "long", newest.Body)

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestExpireCmd(t *testing.T) {
	assert.Nil(t, ExpireCmd(Toast{ID: 1}))
	assert.NotNil(t, ExpireCmd(Toast{ID: 1, Duration: time.Second}))
}

func TestRenderStack(t *testing.T) {
	theme := styles.NewTheme(styles.ThemeDark)
	s := NewToastStack(0)
	assert.Equal(t, "", RenderStack(theme, s, 40))
	assert.Equal(t, 0, Height(s))
	assert.Equal(t, 0, Height(nil))

	s.Push(ToastNotification, "Old", "older")
	s.Push(ToastNotification, "Reminder", "Call Bob\nabout lunch")
	out := RenderStack(theme, s, 60)

	assert.Contains(t, out, "Reminder: Call Bob about lunch")
	assert.Contains(t, out, "(+1)")
	assert.NotContains(t, out, "\n")
	assert.Equal(t, 1, Height(s))
}

func TestRenderToast_Truncates(t *testing.T) {
	theme := styles.NewTheme(styles.ThemeDark)
	out := RenderToast(theme, Toast{Body: strings.Repeat("word ", 40)}, 0, 30)
	assert.LessOrEqual(t, len([]rune(stripANSI(out))), 30)
}

// stripANSI removes SGR sequences.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc && r == 'm':
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return b.String()
}
