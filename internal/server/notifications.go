// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/notify"
)

// ============================================================================
// WORKER MESSAGE PROTOCOL
// ============================================================================

// Message types exchanged over /ws.
const (
	MsgScheduleNotification = "SCHEDULE_NOTIFICATION"
	MsgNotification         = "NOTIFICATION"
	MsgScheduled            = "SCHEDULED"
	MsgError                = "ERROR"
)

// NotificationRequest asks for a notification after Delay milliseconds.
// A non-positive delay delivers it at once.
type NotificationRequest struct {
	Type  string `json:"type,omitempty"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Delay int64  `json:"delay"`
}

// ScheduleResult reports what a NotificationRequest did: either Entry is
// set (scheduled) or Notification is (delivered immediately).
type ScheduleResult struct {
	Entry        *notify.Entry        `json:"entry,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// Frame is a server to client message on /ws.
type Frame struct {
	Type         string               `json:"type"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Entry        *notify.Entry        `json:"entry,omitempty"`
	Message      string               `json:"message,omitempty"`
}

var errNoScheduler = errors.New("notifications are not available")

// schedule carries out req.
func (s *Server) schedule(ctx context.Context, req NotificationRequest) (ScheduleResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = notify.ReminderTitle
	}

	if req.Delay <= 0 {
		if s.deps.Notifier == nil {
			return ScheduleResult{}, errNoScheduler
		}
		if !s.deps.Notifier.Enabled() {
			return ScheduleResult{}, notify.ErrDisabled
		}
		n := notify.New(title, req.Body, notify.TagReminder, s.deps.Store.Now())
		if err := s.deps.Notifier.Notify(ctx, n); err != nil {
			return ScheduleResult{}, err
		}
		return ScheduleResult{Notification: &n}, nil
	}

	if s.deps.Scheduler == nil {
		return ScheduleResult{}, errNoScheduler
	}
	e, err := s.deps.Scheduler.ScheduleIn(time.Duration(req.Delay)*time.Millisecond, title, req.Body)
	if err != nil {
		return ScheduleResult{}, err
	}
	return ScheduleResult{Entry: &e}, nil
}

// ============================================================================
// REST HANDLERS
// ============================================================================

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	pending := []notify.Entry{}
	if s.deps.Scheduler != nil {
		pending = s.deps.Scheduler.Pending()
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleScheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.schedule(r.Context(), req)
	if err != nil {
		s.failSchedule(w, r, err)
		return
	}
	if res.Entry != nil {
		writeJSON(w, http.StatusCreated, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleCancelNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, errNoScheduler.Error())
		return
	}
	if err := s.deps.Scheduler.Cancel(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) failSchedule(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNoScheduler) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.fail(w, r, err)
}

// ============================================================================
// WEBSOCKET
// ============================================================================

// wsWriteTimeout bounds a single frame write.
const wsWriteTimeout = 10 * time.Second

// handleWebSocket pushes hub notifications to the client and accepts
// SCHEDULE_NOTIFICATION requests from it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, errNoScheduler.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, unsubscribe := s.deps.Hub.Subscribe(notify.DefaultSubscriberBuffer)
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub:
				if !ok {
					return
				}
				if err := s.writeFrame(ctx, conn, Frame{Type: MsgNotification, Notification: &n}); err != nil {
					s.log.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.log.Debug("websocket read failed", zap.Error(err))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageText {
			_ = s.writeFrame(ctx, conn, Frame{Type: MsgError, Message: "unsupported data"})
			continue
		}
		s.handleFrame(ctx, conn, data)
	}
}

func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	var req NotificationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = s.writeFrame(ctx, conn, Frame{Type: MsgError, Message: "invalid json"})
		return
	}
	if req.Type != MsgScheduleNotification {
		_ = s.writeFrame(ctx, conn, Frame{Type: MsgError, Message: "unknown message type: " + req.Type})
		return
	}

	res, err := s.schedule(ctx, req)
	if err != nil {
		_ = s.writeFrame(ctx, conn, Frame{Type: MsgError, Message: err.Error()})
		return
	}
	if res.Entry != nil {
		_ = s.writeFrame(ctx, conn, Frame{Type: MsgScheduled, Entry: res.Entry})
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
