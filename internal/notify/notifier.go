// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// NOTIFICATION
// =============================================================================

// Tags name the kind of a notification. A newer notification with the same
// tag replaces an older one on clients that support it.
const (
	TagReminder      = "memento-reminder"
	TagDailySummary  = "memento-daily-summary"
	TagWeeklySummary = "memento-weekly-summary"
	TagMilestone     = "memento-milestone"
	TagInactive      = "memento-inactive"
)

// Notification is one message for the user.
type Notification struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Tag   string    `json:"tag,omitempty"`
	Time  time.Time `json:"time"`
}

// New returns a notification with a fresh id.
func New(title, body, tag string, at time.Time) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Title: title,
		Body:  body,
		Tag:   tag,
		Time:  at,
	}
}

// Notifier delivers notifications. Enabled reports whether delivery is
// currently permitted; producers skip their work when it is not.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Enabled() bool
}

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier writes notifications to a logger. It is always enabled.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

// Notify logs n.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Info("notification",
		zap.String("id", n.ID),
		zap.String("tag", n.Tag),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// Enabled always returns true.
func (l *LogNotifier) Enabled() bool { return true }

// =============================================================================
// HUB
// =============================================================================

// DefaultSubscriberBuffer is the channel size used when Subscribe is given
// a non-positive buffer.
const DefaultSubscriberBuffer = 16

// Hub fans notifications out to subscribers. A subscriber whose buffer is
// full misses the notification rather than stalling the others.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Notification
	nextID  int
	enabled atomic.Bool
	dropped atomic.Int64
	log     *zap.Logger
}

// NewHub creates an enabled hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		subs: make(map[int]chan Notification),
		log:  log.Named("hub"),
	}
	h.enabled.Store(true)
	return h
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify delivers n to every subscriber without blocking.
func (h *Hub) Notify(_ context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
			h.log.Warn("subscriber full, notification dropped",
				zap.Int("subscriber", id), zap.String("tag", n.Tag))
		}
	}
	return nil
}

// Enabled reports whether the hub accepts notifications.
func (h *Hub) Enabled() bool { return h.enabled.Load() }

// SetEnabled turns delivery on or off.
func (h *Hub) SetEnabled(on bool) { h.enabled.Store(on) }

// Dropped returns how many deliveries were lost to full subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// =============================================================================
// MULTI
// =============================================================================

// Multi delivers to every enabled notifier.
type Multi []Notifier

// Notify calls each enabled notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, t := range m {
		if !t.Enabled() {
			continue
		}
		if err := t.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enabled reports whether any notifier is enabled.
func (m Multi) Enabled() bool {
	for _, t := range m {
		if t.Enabled() {
			return true
		}
	}
	return false
}
