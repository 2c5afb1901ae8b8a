// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/render"
)

// ============================================================================
// CHAT
// ============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatEvent is one SSE frame of a chat turn. The final frame has Done set
// and carries the rendered reply.
type ChatEvent struct {
	Index   int           `json:"index"`
	Delta   string        `json:"delta,omitempty"`
	Content string        `json:"content"`
	HTML    template.HTML `json:"html,omitempty"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// handleChat starts a turn. By default the reply is relayed as Server-Sent
// Events ending with "data: [DONE]"; ?stream=false waits and returns the
// final event as JSON. Disconnecting cancels the turn and keeps the partial
// reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, over := render.CharCount(req.Message); over {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Message exceeds %d characters", render.MaxInputChars))
		return
	}

	updates, err := s.deps.Controller.Send(r.Context(), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		final := conversation.Wait(updates)
		writeJSON(w, http.StatusOK, s.chatEvent(final))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	// Drain every update even after a write failure so the turn can finish.
	writeOK := true
	for u := range updates {
		if !writeOK {
			continue
		}
		if err := writeEvent(w, s.chatEvent(u)); err != nil {
			s.log.Debug("chat stream client gone", zap.Error(err))
			writeOK = false
			continue
		}
		flush()
	}
	if writeOK {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flush()
	}
}

func (s *Server) chatEvent(u conversation.Update) ChatEvent {
	ev := ChatEvent{
		Index:   u.Index,
		Delta:   u.Delta,
		Content: u.Content,
		Done:    u.Done,
	}
	if u.Err != nil {
		ev.Error = cloud.UserMessage(u.Err)
	}
	if u.Done && strings.TrimSpace(u.Content) != "" {
		ev.HTML = s.deps.Renderer.Markdown(u.Content)
	}
	return ev
}

func writeEvent(w http.ResponseWriter, ev ChatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
