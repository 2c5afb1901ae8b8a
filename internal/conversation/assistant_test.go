// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mementoai/memento/internal/storage"
)

func seed(t *testing.T, store *storage.Store, at time.Time, contents ...string) {
	t.Helper()
	role := storage.RoleUser
	for _, c := range contents {
		_, err := store.AppendMessage(storage.Message{Role: role, Content: c, Timestamp: at})
		require.NoError(t, err)
		if role == storage.RoleUser {
			role = storage.RoleAssistant
		} else {
			role = storage.RoleUser
		}
	}
}

func TestAssistant_EmptyConversation(t *testing.T) {
	f := &fakeEndpoint{reply: "unused"}
	store, clients := setup(t, f)
	a := NewAssistant(store, clients, nil)
	ctx := context.Background()

	summary, err := a.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoConversationText, summary)

	items, err := a.ExtractActionItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = a.ExtractMemory(ctx)
	assert.ErrorIs(t, err, ErrNoConversation)

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, NoConversationsToday, a.DailySummary(ctx, now))
	assert.Equal(t, NoConversationsThisWeek, a.WeeklySummary(ctx, now))
	assert.Empty(t, f.requests)
}

func TestAssistant_SummarizeSendsTranscript(t *testing.T) {
	f := &fakeEndpoint{reply: "A short chat."}
	store, clients := setup(t, f)
	require.NoError(t, store.SetMemory("likes tea"))
	seed(t, store, time.Now(), "hi", "hello")

	got, err := NewAssistant(store, clients, nil).Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A short chat.", got)

	req := f.lastRequest(t)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "likes tea")
	assert.Equal(t, summaryPrompt+"user: hi\n\nassistant: hello", req.Messages[1].Content)
}

func TestAssistant_ActionItems(t *testing.T) {
	f := &fakeEndpoint{reply: "Here you go:\n1. Buy milk\n2.Call Sam\nnot an item\n10. File taxes"}
	store, clients := setup(t, f)
	seed(t, store, time.Now(), "todo?")

	items, err := NewAssistant(store, clients, nil).ExtractActionItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Call Sam", "File taxes"}, items)
}

func TestAssistant_SaveExtractedMemory(t *testing.T) {
	f := &fakeEndpoint{reply: "  Has a cat named Miso.  "}
	store, clients := setup(t, f)
	require.NoError(t, store.SetMemory("Likes tea."))
	seed(t, store, time.Now(), "my cat Miso")

	text, err := NewAssistant(store, clients, nil).SaveExtractedMemory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Has a cat named Miso.", text)
	assert.Equal(t, "Likes tea.\n\nHas a cat named Miso.", store.Memory())
}

func TestAssistant_SaveExtractedMemoryBlank(t *testing.T) {
	f := &fakeEndpoint{reply: "   "}
	store, clients := setup(t, f)
	seed(t, store, time.Now(), "hi")

	_, err := NewAssistant(store, clients, nil).SaveExtractedMemory(context.Background())
	assert.ErrorIs(t, err, ErrNothingExtracted)
	assert.Empty(t, store.Memory())
}

func TestAssistant_MemorySuggestions(t *testing.T) {
	f := &fakeEndpoint{reply: "Lives in Oslo\n\n  Runs on Sundays \n"}
	store, clients := setup(t, f)
	a := NewAssistant(store, clients, nil)

	seed(t, store, time.Now(), "a", "b")
	got, err := a.MemorySuggestions(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got, "fewer than three messages")
	assert.Empty(t, f.requests)

	seed(t, store, time.Now(), "c", "d", "e", "f", "g")
	got, err = a.MemorySuggestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Lives in Oslo", "Runs on Sundays"}, got)

	prompt := f.lastRequest(t).Messages[1].Content
	assert.False(t, strings.Contains(prompt, ": b\n"), "only the last five messages")
	assert.True(t, strings.HasSuffix(prompt, "user: g"))
}

func TestAssistant_TestConnection(t *testing.T) {
	f := &fakeEndpoint{reply: "Connection successful"}
	store, clients := setup(t, f)
	ok, err := NewAssistant(store, clients, nil).TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	f.reply = "hmm"
	ok, err = NewAssistant(store, clients, nil).TestConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssistant_DailySummary(t *testing.T) {
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("only yesterday", func(t *testing.T) {
		f := &fakeEndpoint{reply: "x"}
		store, clients := setup(t, f)
		seed(t, store, now.AddDate(0, 0, -1), "old")
		assert.Equal(t, NoNewConversationsToday, NewAssistant(store, clients, nil).DailySummary(ctx, now))
	})

	t.Run("today", func(t *testing.T) {
		f := &fakeEndpoint{reply: "Busy day."}
		store, clients := setup(t, f)
		seed(t, store, now.AddDate(0, 0, -1), "old")
		seed(t, store, now.Add(-2*time.Hour), "new")
		assert.Equal(t, "Busy day.", NewAssistant(store, clients, nil).DailySummary(ctx, now))
		assert.Equal(t, dailyPrompt+"user: new", f.lastRequest(t).Messages[1].Content)
	})

	t.Run("request fails", func(t *testing.T) {
		f := &fakeEndpoint{status: http.StatusInternalServerError}
		store, clients := setup(t, f)
		seed(t, store, now, "new")
		assert.Equal(t, DailySummaryErrorText, NewAssistant(store, clients, nil).DailySummary(ctx, now))
	})
}

func TestAssistant_WeeklySummary(t *testing.T) {
	// Friday; the week began Sunday 2025-03-09.
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	ctx := context.Background()

	f := &fakeEndpoint{reply: "Good week."}
	store, clients := setup(t, f)
	seed(t, store, time.Date(2025, 3, 8, 23, 0, 0, 0, time.UTC), "saturday")
	a := NewAssistant(store, clients, nil)
	assert.Equal(t, NoNewConversationsWeek, a.WeeklySummary(ctx, now))

	seed(t, store, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), "sunday")
	assert.Equal(t, "Good week.", a.WeeklySummary(ctx, now))
	assert.Equal(t, weeklyPrompt+"user: sunday", f.lastRequest(t).Messages[1].Content)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC), time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 3, 9, 0, 0, 1, 0, time.UTC), time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 3, 8, 23, 59, 0, 0, time.UTC), time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeekStart(tt.in), tt.in.String())
	}
}

func TestParsers(t *testing.T) {
	assert.Nil(t, ParseNumberedList("no items here"))
	assert.Equal(t, []string{"one", "two"}, ParseParagraphs("one\n\n\n\ntwo\n\n  "))
	assert.Equal(t, []string{"a", "b"}, ParseLines("\n a \n\n\tb\n"))
	assert.False(t, ReplyError("fine"))
	assert.True(t, ReplyError(ErrorReplyPrefix+"x"))
}

func TestTranscript(t *testing.T) {
	msgs := []storage.Message{
		{Role: storage.RoleUser, Content: "hi"},
		{Role: storage.RoleAssistant, Content: "hello"},
	}
	assert.Equal(t, "user: hi\n\nassistant: hello", Transcript(msgs))
	assert.Equal(t, "", Transcript(nil))
}
