// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/storage"
)

var (
	// ErrPastDate is returned when scheduling at or before the current time.
	ErrPastDate = errors.New("notify: notification date is in the past")

	// ErrDisabled is returned when the notifier does not accept deliveries.
	ErrDisabled = errors.New("notify: notifications are disabled")

	// ErrNotFound is returned when cancelling an unknown id.
	ErrNotFound = errors.New("notify: scheduled notification not found")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("notify: scheduler stopped")
)

// Entry is a scheduled notification.
type Entry struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// savedEntry is the persisted form; the id is the map key.
type savedEntry struct {
	Date    time.Time `json:"date"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Scheduler fires one-shot notifications at a given time. Pending entries
// are persisted under storage.KeyScheduled keyed by id, so Restore can
// re-arm them after a restart.
type Scheduler struct {
	store    *storage.Store
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	timers  map[string]*time.Timer
	stopped bool
}

// NewScheduler creates a scheduler. Call Restore to pick up entries saved by
// an earlier run.
func NewScheduler(store *storage.Store, notifier Notifier, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		log:      log.Named("scheduler"),
		now:      time.Now,
		entries:  make(map[string]Entry),
		timers:   make(map[string]*time.Timer),
	}
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// =============================================================================
// SCHEDULING
// =============================================================================

// Schedule arranges for a notification with title and message at the
// given time.
func (s *Scheduler) Schedule(at time.Time, title, message string) (Entry, error) {
	if !s.notifier.Enabled() {
		return Entry{}, ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Entry{}, ErrStopped
	}
	now := s.now()
	if !at.After(now) {
		return Entry{}, ErrPastDate
	}

	e := Entry{ID: uuid.NewString(), Date: at, Title: title, Message: message}
	s.entries[e.ID] = e
	if err := s.persistLocked(); err != nil {
		delete(s.entries, e.ID)
		return Entry{}, err
	}
	s.armLocked(e, at.Sub(now))

	s.log.Debug("notification scheduled",
		zap.String("id", e.ID), zap.Time("at", at), zap.String("title", title))
	return e, nil
}

// ScheduleIn schedules a notification delay from now.
func (s *Scheduler) ScheduleIn(delay time.Duration, title, message string) (Entry, error) {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()
	return s.Schedule(now.Add(delay), title, message)
}

// ScheduleFromReply schedules a reminder for tomorrow morning when auto
// reminders are on and reply mentions a time phrase. It reports whether a
// reminder was created.
func (s *Scheduler) ScheduleFromReply(reply string) (Entry, bool, error) {
	if !s.store.Settings().AutoReminders {
		return Entry{}, false, nil
	}
	text, ok := ExtractReminder(reply)
	if !ok {
		return Entry{}, false, nil
	}

	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	e, err := s.Schedule(NextMorning(now), ReminderTitle, text)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Cancel removes a pending notification.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.entries, id)
	return s.persistLocked()
}

// CancelAll removes every pending notification.
func (s *Scheduler) CancelAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.entries = make(map[string]Entry)
	return s.persistLocked()
}

// Pending returns the scheduled entries ordered by date.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Restore loads persisted entries, re-arms the future ones and drops the
// expired ones. It returns the number of entries armed.
func (s *Scheduler) Restore() (int, error) {
	var saved map[string]savedEntry
	if _, err := s.store.GetJSON(storage.KeyScheduled, &saved); err != nil {
		return 0, fmt.Errorf("restore notifications: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}

	now := s.now()
	armed, expired := 0, 0
	for id, se := range saved {
		e := Entry{ID: id, Date: se.Date, Title: se.Title, Message: se.Message}
		if !e.Date.After(now) {
			expired++
			continue
		}
		if t, ok := s.timers[id]; ok {
			t.Stop()
		}
		s.entries[id] = e
		s.armLocked(e, e.Date.Sub(now))
		armed++
	}

	if expired > 0 {
		s.log.Info("expired notifications dropped", zap.Int("count", expired))
	}
	return armed, s.persistLocked()
}

// Stop cancels all timers without touching the persisted entries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Scheduler) armLocked(e Entry, delay time.Duration) {
	id := e.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	delete(s.timers, id)
	if err := s.persistLocked(); err != nil {
		s.log.Warn("failed to persist after firing", zap.String("id", id), zap.Error(err))
	}
	now := s.now()
	s.mu.Unlock()

	n := Notification{ID: id, Title: e.Title, Body: e.Message, Tag: TagReminder, Time: now}
	if err := s.notifier.Notify(context.Background(), n); err != nil {
		s.log.Warn("notification delivery failed", zap.String("id", id), zap.Error(err))
		return
	}
	s.log.Info("notification fired", zap.String("id", id), zap.String("title", e.Title))
}

func (s *Scheduler) persistLocked() error {
	saved := make(map[string]savedEntry, len(s.entries))
	for id, e := range s.entries {
		saved[id] = savedEntry{Date: e.Date, Title: e.Title, Message: e.Message}
	}
	if err := s.store.SetJSON(storage.KeyScheduled, saved); err != nil {
		return fmt.Errorf("persist notifications: %w", err)
	}
	return nil
}
