// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ReminderTitle is the title of reminders taken from assistant replies.
const ReminderTitle = "MementoAI Reminder"

// MemoryReminderTitle is the title of user-authored memory reminders.
const MemoryReminderTitle = "Memory Reminder"

// ReminderHour is the local hour at which reply reminders fire.
const ReminderHour = 9

// Sentence length bounds (exclusive) for reminder text.
const (
	minReminderLen = 10
	maxReminderLen = 200
)

// reminderKeywords are matched against lower-cased text.
var reminderKeywords = []string{
	"tomorrow", "next week", "next month", "next year",
	"in an hour", "in two hours", "in a few hours",
	"later today", "tonight", "this evening",
	"next monday", "next tuesday", "next wednesday", "next thursday",
	"next friday", "next saturday", "next sunday",
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

// HasTimeKeyword reports whether text mentions a time phrase.
func HasTimeKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range reminderKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractReminder picks the reminder text out of an assistant reply: the
// first ". "-separated sentence of plausible length that mentions a time
// phrase. Matching is best-effort; "may" matches inside other words too.
func ExtractReminder(reply string) (string, bool) {
	if !HasTimeKeyword(reply) {
		return "", false
	}
	for _, sentence := range strings.Split(reply, ". ") {
		n := utf8.RuneCountInString(sentence)
		if n <= minReminderLen || n >= maxReminderLen {
			continue
		}
		if HasTimeKeyword(sentence) {
			if text := strings.TrimSpace(sentence); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// NextMorning returns ReminderHour:00 on the day after now, in now's
// location.
func NextMorning(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, ReminderHour, 0, 0, 0, now.Location())
}
