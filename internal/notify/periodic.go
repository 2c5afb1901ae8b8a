// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Milestones are the message counts that earn a notification.
var Milestones = []int{10, 25, 50, 100, 250, 500, 1000}

// Titles and bodies of periodic notifications.
const (
	MilestoneTitle     = "MementoAI Milestone"
	DailySummaryTitle  = "MementoAI Daily Summary"
	WeeklySummaryTitle = "MementoAI Weekly Summary"
	InactiveTitle      = "MementoAI Misses You"
	InactiveBody       = "It's been a few days. Check in and continue your conversation!"
)

// SummaryHour is the local hour at which daily and weekly summaries fire.
const SummaryHour = 18

// InactiveDays is the number of whole idle days that triggers the
// inactivity notification.
const InactiveDays = 3

// DefaultCheckInterval is how often Run re-evaluates the periodic checks.
const DefaultCheckInterval = time.Hour

// MilestoneBody returns the milestone notification text.
func MilestoneBody(n int) string {
	return fmt.Sprintf("Congratulations! You've reached %d messages!", n)
}

// Summarizer produces summary text for a point in time. It never fails;
// errors are folded into the returned text.
type Summarizer interface {
	DailySummary(ctx context.Context, now time.Time) string
	WeeklySummary(ctx context.Context, now time.Time) string
}

// =============================================================================
// PERIODIC
// =============================================================================

// Periodic produces milestone, summary and inactivity notifications. Each
// kind is gated by its settings flag and by the notifier being enabled.
// It implements conversation.Hook.
type Periodic struct {
	store      *storage.Store
	notifier   Notifier
	summarizer Summarizer
	sched      *Scheduler
	log        *zap.Logger
	now        func() time.Time

	mu           sync.Mutex
	dailyTimer   *time.Timer
	dailyAt      time.Time
	dailyKey     string
	weeklyTimer  *time.Timer
	weeklyAt     time.Time
	weeklyKey    string
	inactiveSent string
}

// NewPeriodic creates the periodic notifier. sched may be nil, in which
// case replies never produce reminders.
func NewPeriodic(store *storage.Store, notifier Notifier, summarizer Summarizer, sched *Scheduler, log *zap.Logger) *Periodic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Periodic{
		store:      store,
		notifier:   notifier,
		summarizer: summarizer,
		sched:      sched,
		log:        log.Named("periodic"),
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (p *Periodic) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Periodic) clock() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now()
}

// =============================================================================
// ACTIVITY AND REPLIES
// =============================================================================

// RecordActivity stores the current time as the last activity.
func (p *Periodic) RecordActivity() error {
	return p.store.SetString(storage.KeyLastActivity, p.clock().Format(time.RFC3339Nano))
}

// AfterReply records activity, checks milestones and schedules a reminder
// from the reply when auto reminders are on.
func (p *Periodic) AfterReply(ctx context.Context, reply string) {
	if err := p.RecordActivity(); err != nil {
		p.log.Warn("failed to record activity", zap.Error(err))
	}
	if _, err := p.CheckMilestone(ctx); err != nil {
		p.log.Warn("milestone check failed", zap.Error(err))
	}
	if p.sched == nil {
		return
	}
	if e, ok, err := p.sched.ScheduleFromReply(reply); err != nil {
		if !errors.Is(err, ErrDisabled) {
			p.log.Warn("reminder not scheduled", zap.Error(err))
		}
	} else if ok {
		p.log.Info("reminder scheduled", zap.String("id", e.ID), zap.Time("at", e.Date))
	}
}

// =============================================================================
// MILESTONES
// =============================================================================

// CheckMilestone notifies when the message count equals a milestone that
// has not been announced yet. It returns the milestone reached, or 0.
func (p *Periodic) CheckMilestone(ctx context.Context) (int, error) {
	if !p.store.Settings().MilestoneNotifications || !p.notifier.Enabled() {
		return 0, nil
	}

	count := p.store.MessageCount()
	if !slices.Contains(Milestones, count) {
		return 0, nil
	}

	var notified []int
	if _, err := p.store.GetJSON(storage.KeyNotifiedMilestones, &notified); err != nil {
		return 0, err
	}
	if slices.Contains(notified, count) {
		return 0, nil
	}

	n := New(MilestoneTitle, MilestoneBody(count), TagMilestone, p.clock())
	if err := p.notifier.Notify(ctx, n); err != nil {
		return 0, fmt.Errorf("milestone notification: %w", err)
	}
	notified = append(notified, count)
	if err := p.store.SetJSON(storage.KeyNotifiedMilestones, notified); err != nil {
		return count, err
	}
	return count, nil
}

// =============================================================================
// DAILY SUMMARY
// =============================================================================

// DayKey formats t's calendar day as stored under KeyLastSummaryDate.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// NextDailySummary returns SummaryHour:00 today, or tomorrow when that has
// passed.
func NextDailySummary(now time.Time) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, SummaryHour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// ScheduleDaily arms the daily summary unless today's has been sent. It
// returns the firing time and whether a summary is pending.
func (p *Periodic) ScheduleDaily(ctx context.Context) (time.Time, bool) {
	if !p.store.Settings().DailySummary || !p.notifier.Enabled() {
		p.stopDaily()
		return time.Time{}, false
	}

	now := p.clock()
	current := DayKey(now)
	last, _ := p.store.GetString(storage.KeyLastSummaryDate)
	if last == current {
		return time.Time{}, false
	}

	at := NextDailySummary(now)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dailyTimer != nil && p.dailyAt.Equal(at) {
		return at, true
	}
	if p.dailyTimer != nil {
		p.dailyTimer.Stop()
	}
	p.dailyAt = at
	p.dailyKey = current
	p.dailyTimer = time.AfterFunc(at.Sub(now), func() { p.fireDaily(ctx, at, current) })
	p.log.Debug("daily summary scheduled", zap.Time("at", at))
	return at, true
}

// fireDaily delivers the summary and records key, the period that was
// current when it was scheduled.
func (p *Periodic) fireDaily(ctx context.Context, at time.Time, key string) {
	p.mu.Lock()
	p.dailyTimer = nil
	p.mu.Unlock()

	body := p.summarizer.DailySummary(ctx, at)
	if err := p.notifier.Notify(ctx, New(DailySummaryTitle, body, TagDailySummary, at)); err != nil {
		p.log.Warn("daily summary delivery failed", zap.Error(err))
		return
	}
	if err := p.store.SetString(storage.KeyLastSummaryDate, key); err != nil {
		p.log.Warn("failed to record daily summary", zap.Error(err))
	}
}

func (p *Periodic) stopDaily() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dailyTimer != nil {
		p.dailyTimer.Stop()
		p.dailyTimer = nil
	}
}

// =============================================================================
// WEEKLY SUMMARY
// =============================================================================

// WeekKey returns t's ISO week number as stored under
// KeyLastWeeklySummary.
func WeekKey(t time.Time) string {
	_, week := t.ISOWeek()
	return strconv.Itoa(week)
}

// NextWeeklySummary returns SummaryHour:00 on the next Sunday after now's
// day. A Sunday schedules the following Sunday.
func NextWeeklySummary(now time.Time) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d+7-int(now.Weekday()), SummaryHour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

// ScheduleWeekly arms the weekly summary unless this week's has been sent.
func (p *Periodic) ScheduleWeekly(ctx context.Context) (time.Time, bool) {
	if !p.store.Settings().WeeklySummary || !p.notifier.Enabled() {
		p.stopWeekly()
		return time.Time{}, false
	}

	now := p.clock()
	current := WeekKey(now)
	last, _ := p.store.GetString(storage.KeyLastWeeklySummary)
	if last == current {
		return time.Time{}, false
	}

	at := NextWeeklySummary(now)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.weeklyTimer != nil && p.weeklyAt.Equal(at) {
		return at, true
	}
	if p.weeklyTimer != nil {
		p.weeklyTimer.Stop()
	}
	p.weeklyAt = at
	p.weeklyKey = current
	p.weeklyTimer = time.AfterFunc(at.Sub(now), func() { p.fireWeekly(ctx, at, current) })
	p.log.Debug("weekly summary scheduled", zap.Time("at", at))
	return at, true
}

// fireWeekly delivers the summary and records key, the period that was
// current when it was scheduled.
func (p *Periodic) fireWeekly(ctx context.Context, at time.Time, key string) {
	p.mu.Lock()
	p.weeklyTimer = nil
	p.mu.Unlock()

	body := p.summarizer.WeeklySummary(ctx, at)
	if err := p.notifier.Notify(ctx, New(WeeklySummaryTitle, body, TagWeeklySummary, at)); err != nil {
		p.log.Warn("weekly summary delivery failed", zap.Error(err))
		return
	}
	if err := p.store.SetString(storage.KeyLastWeeklySummary, key); err != nil {
		p.log.Warn("failed to record weekly summary", zap.Error(err))
	}
}

func (p *Periodic) stopWeekly() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.weeklyTimer != nil {
		p.weeklyTimer.Stop()
		p.weeklyTimer = nil
	}
}

// =============================================================================
// INACTIVITY
// =============================================================================

// CheckInactive notifies when exactly InactiveDays whole days have passed
// since the last activity. It fires at most once per recorded activity.
func (p *Periodic) CheckInactive(ctx context.Context) (bool, error) {
	if !p.store.Settings().InactiveNotifications || !p.notifier.Enabled() {
		return false, nil
	}

	raw, err := p.store.GetString(storage.KeyLastActivity)
	if err != nil || raw == "" {
		return false, err
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		p.log.Warn("unreadable last activity", zap.String("value", raw), zap.Error(err))
		return false, nil
	}

	now := p.clock()
	if int(now.Sub(last)/(24*time.Hour)) != InactiveDays {
		return false, nil
	}

	p.mu.Lock()
	sent := p.inactiveSent == raw
	p.mu.Unlock()
	if sent {
		return false, nil
	}

	if err := p.notifier.Notify(ctx, New(InactiveTitle, InactiveBody, TagInactive, now)); err != nil {
		return false, fmt.Errorf("inactivity notification: %w", err)
	}
	p.mu.Lock()
	p.inactiveSent = raw
	p.mu.Unlock()
	return true, nil
}

// =============================================================================
// LOOP
// =============================================================================

// Check runs every periodic check once.
func (p *Periodic) Check(ctx context.Context) {
	if _, err := p.CheckMilestone(ctx); err != nil {
		p.log.Warn("milestone check failed", zap.Error(err))
	}
	p.ScheduleDaily(ctx)
	p.ScheduleWeekly(ctx)
	if _, err := p.CheckInactive(ctx); err != nil {
		p.log.Warn("inactivity check failed", zap.Error(err))
	}
}

// Run checks immediately and then every interval until ctx is done, then
// stops the summary timers.
func (p *Periodic) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer p.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Stop cancels pending summary timers.
func (p *Periodic) Stop() {
	p.stopDaily()
	p.stopWeekly()
}
