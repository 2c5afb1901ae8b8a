// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// sseServer writes lines one at a time, flushing between them.
func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Stream {
			t.Errorf("stream flag not set: %+v (%v)", req, err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprint(w, l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func TestChatStream_ForRange(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
		"data: [DONE]\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"never\"}}]}\n",
	)
	defer srv.Close()

	stream, err := newTestClient(srv).ChatStream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	var deltas []string
	for d := range stream.Events() {
		deltas = append(deltas, d.Content)
	}
	text, err := stream.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q", text)
	}
	if fmt.Sprint(deltas) != "[Hel lo]" {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestChatStream_NoTerminalMarker(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}",
	)
	defer srv.Close()

	text, err := newTestClient(srv).ChatStreamAccumulate(context.Background(), Request{}, nil)
	if err != nil {
		t.Fatalf("ChatStreamAccumulate: %v", err)
	}
	if text != "ab" {
		t.Errorf("text = %q, want ab", text)
	}
}

func TestChatStream_MalformedSkipped(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n",
		"data: nonsense\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n",
		"data: [DONE]\n",
	)
	defer srv.Close()

	var n int
	text, err := newTestClient(srv).ChatStreamAccumulate(context.Background(), Request{}, func(Delta) { n++ })
	if err != nil || text != "ok!" || n != 2 {
		t.Errorf("text %q, %d deltas, err %v", text, n, err)
	}
}

func TestChatStream_StatusErrorBeforeStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"No auth credentials found"}}`)
	}))
	defer srv.Close()

	stream, err := newTestClient(srv).ChatStream(context.Background(), Request{})
	if stream != nil || !errors.Is(err, ErrAuthFailed) {
		t.Errorf("ChatStream = %v, %v", stream, err)
	}
}

func TestChatStream_EmbeddedError(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"part\"}}]}\n",
		"data: {\"error\":{\"message\":\"model overloaded\"}}\n",
	)
	defer srv.Close()

	text, err := newTestClient(srv).ChatStreamAccumulate(context.Background(), Request{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "model overloaded" {
		t.Fatalf("err = %v", err)
	}
	if text != "part" {
		t.Errorf("partial text = %q", text)
	}
}

func TestChatStream_CloseCancels(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	stream, err := newTestClient(srv).ChatStream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	first := <-stream.Events()
	if first.Content != "first" {
		t.Fatalf("first delta = %+v", first)
	}

	closed := make(chan struct{})
	go func() {
		stream.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the stream")
	}

	text, err := stream.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T, want *StreamError", err)
	}
	if se.Partial != "first" || text != "first" {
		t.Errorf("partial = %q, text %q", se.Partial, text)
	}
}

func TestChatStream_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newTestClient(srv).ChatStream(ctx, Request{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	cancel()

	_, err = stream.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
