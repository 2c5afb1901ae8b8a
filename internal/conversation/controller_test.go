// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/storage"
)

// fakeEndpoint records requests and answers with canned SSE or JSON.
type fakeEndpoint struct {
	mu       sync.Mutex
	requests []cloud.Request
	status   int
	deltas   []string
	reply    string
	block    chan struct{}
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req cloud.Request
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error":{"message":"nope"}}`)
		return
	}
	if !req.Stream {
		if f.block != nil {
			select {
			case <-f.block:
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, f.reply)
		return
	}

	flusher := w.(http.Flusher)
	for _, d := range f.deltas {
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		flusher.Flush()
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-r.Context().Done():
			return
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func (f *fakeEndpoint) lastRequest(t *testing.T) cloud.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func setup(t *testing.T, f *fakeEndpoint) (*storage.Store, ClientFunc) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	store := storage.New(storage.NewMemoryBackend(), nil)
	require.NoError(t, store.Load())
	_, err := store.UpdateSettings(func(s *storage.Settings) { s.APIKey = "sk-test" })
	require.NoError(t, err)

	clients := func(s storage.Settings) *cloud.Client {
		return cloud.NewClient(s.APIKey).
			WithBaseURL(srv.URL).
			WithHTTPClient(srv.Client()).
			WithMaxRetries(0)
	}
	return store, clients
}

func TestSend_StreamsIntoStore(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"Hel", "lo"}}
	store, clients := setup(t, f)

	var hooked string
	ctrl := NewController(store, clients, Options{
		Stream: true,
		Hooks:  []Hook{HookFunc(func(_ context.Context, reply string) { hooked = reply })},
	})

	updates, err := ctrl.Send(context.Background(), "  hi  ")
	require.NoError(t, err)

	var got []Update
	for u := range updates {
		got = append(got, u)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "Hel", got[0].Delta)
	assert.Equal(t, "Hello", got[1].Content)
	assert.True(t, got[2].Done)
	assert.NoError(t, got[2].Err)
	assert.Equal(t, 1, got[2].Index)

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, storage.Message{Role: "user", Content: "hi"}.Content, msgs[0].Content)
	assert.Equal(t, storage.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, "Hello", hooked)
	assert.False(t, ctrl.Busy())

	req := f.lastRequest(t)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2, "system + user, placeholder excluded")
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)
}

func TestSend_NonStreaming(t *testing.T) {
	f := &fakeEndpoint{reply: "whole reply"}
	store, clients := setup(t, f)
	ctrl := NewController(store, clients, Options{})

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	final := Wait(updates)

	assert.True(t, final.Done)
	assert.Equal(t, "whole reply", final.Content)
	assert.Equal(t, "whole reply", store.Messages()[1].Content)
	assert.False(t, f.lastRequest(t).Stream)
}

func TestSend_RejectsBlank(t *testing.T) {
	store, clients := setup(t, &fakeEndpoint{})
	ctrl := NewController(store, clients, Options{Stream: true})

	_, err := ctrl.Send(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, store.MessageCount())
}

func TestSend_BusyWhileStreaming(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"x"}, block: make(chan struct{})}
	store, clients := setup(t, f)
	ctrl := NewController(store, clients, Options{Stream: true})

	updates, err := ctrl.Send(context.Background(), "first")
	require.NoError(t, err)
	<-updates // first delta arrived, stream still open

	_, err = ctrl.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(f.block)
	final := Wait(updates)
	assert.Equal(t, "x", final.Content)
	assert.Equal(t, 2, store.MessageCount())

	// A new turn is accepted once the previous one finished.
	updates, err = ctrl.Send(context.Background(), "third")
	require.NoError(t, err)
	Wait(updates)
}

func TestSend_FailureStoredAsReply(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusUnauthorized}
	store, clients := setup(t, f)

	hooked := false
	ctrl := NewController(store, clients, Options{
		Stream: true,
		Hooks:  []Hook{HookFunc(func(context.Context, string) { hooked = true })},
	})

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	final := Wait(updates)

	require.Error(t, final.Err)
	want := "Sorry, I encountered an error: Invalid API key. Please check your OpenRouter API key."
	assert.Equal(t, want, final.Content)
	assert.Equal(t, want, store.Messages()[1].Content)
	assert.True(t, ReplyError(store.Messages()[1].Content))
	assert.False(t, hooked)
}

func TestSend_MissingKeyNeverCallsNetwork(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"x"}}
	store, clients := setup(t, f)
	_, err := store.UpdateSettings(func(s *storage.Settings) { s.APIKey = "" })
	require.NoError(t, err)

	ctrl := NewController(store, clients, Options{Stream: true})
	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)

	var deltas int
	var final Update
	for u := range updates {
		if !u.Done {
			deltas++
		}
		final = u
	}
	assert.Zero(t, deltas)
	assert.ErrorIs(t, final.Err, cloud.ErrMissingCredential)
	assert.Equal(t, "Sorry, I encountered an error: API key not set. Please configure in settings.", final.Content)
	assert.Empty(t, f.requests)
}

func TestCancel_KeepsPartialReply(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"partial"}, block: make(chan struct{})}
	defer close(f.block)
	store, clients := setup(t, f)
	ctrl := NewController(store, clients, Options{Stream: true})

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	first := <-updates
	assert.Equal(t, "partial", first.Content)

	assert.True(t, ctrl.Cancel())

	done := make(chan Update)
	go func() { done <- Wait(updates) }()
	select {
	case final := <-done:
		assert.True(t, final.Done)
		assert.Error(t, final.Err)
		assert.Equal(t, "partial", final.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not finish the turn")
	}
	assert.Equal(t, "partial", store.Messages()[1].Content)
	assert.False(t, ctrl.Cancel())
}

func TestSend_ConversationReplacedDuringReply(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"par"}, block: make(chan struct{})}
	store, clients := setup(t, f)

	hooked := false
	ctrl := NewController(store, clients, Options{
		Stream: true,
		Hooks:  []Hook{HookFunc(func(context.Context, string) { hooked = true })},
	})

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	first := <-updates
	require.Equal(t, "par", first.Content)

	require.NoError(t, store.ImportState([]byte(`{"conversation":[
		{"role":"user","content":"imported 0"},
		{"role":"assistant","content":"imported 1"},
		{"role":"user","content":"imported 2"}]}`)))
	close(f.block)

	final := Wait(updates)
	assert.True(t, final.Done)
	assert.ErrorIs(t, final.Err, storage.ErrConversationReplaced)
	assert.False(t, hooked)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "imported 1", msgs[1].Content)
}

func TestSend_NonStreamingAfterClear(t *testing.T) {
	f := &fakeEndpoint{reply: "late", block: make(chan struct{})}
	store, clients := setup(t, f)
	ctrl := NewController(store, clients, Options{})

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.NoError(t, store.ClearConversation())
	close(f.block)

	final := Wait(updates)
	assert.ErrorIs(t, final.Err, storage.ErrConversationReplaced)
	assert.Zero(t, store.MessageCount())
}

func TestWaitIdle(t *testing.T) {
	f := &fakeEndpoint{deltas: []string{"x"}, block: make(chan struct{})}
	store, clients := setup(t, f)
	ctrl := NewController(store, clients, Options{Stream: true})

	require.NoError(t, ctrl.WaitIdle(context.Background()))

	updates, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	<-updates

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ctrl.WaitIdle(ctx), context.DeadlineExceeded)

	close(f.block)
	go Wait(updates)
	require.NoError(t, ctrl.WaitIdle(context.Background()))
	assert.False(t, ctrl.Busy())
}

func TestBuildRequest_HistoryAndMemory(t *testing.T) {
	settings := storage.DefaultSettings()
	var history []storage.Message
	for i := 0; i < 14; i++ {
		history = append(history, storage.Message{Role: storage.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	req := BuildRequest(settings, "likes tea", history)
	require.Len(t, req.Messages, HistoryLimit+1)
	assert.Equal(t, "m4", req.Messages[1].Content)
	assert.Equal(t, "m13", req.Messages[HistoryLimit].Content)
	assert.True(t, strings.HasSuffix(req.Messages[0].Content,
		" The user has provided the following memory information: likes tea"))
	assert.Equal(t, "openai/gpt-3.5-turbo", req.Model)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)

	bare := BuildRequest(settings, "  ", nil)
	assert.Equal(t, SystemPrompt(""), bare.Messages[0].Content)
	assert.NotContains(t, bare.Messages[0].Content, "memory information")
}
