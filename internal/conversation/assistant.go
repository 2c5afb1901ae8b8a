// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/storage"
)

// Fixed replies for the cases that need no request.
const (
	NoConversationText        = "No conversation to summarize."
	NoConversationExtractText = "No conversation to extract memory from."
	NoConversationsToday      = "No conversations today."
	NoNewConversationsToday   = "No new conversations today."
	NoConversationsThisWeek   = "No conversations this week."
	NoNewConversationsWeek    = "No new conversations this week."
	DailySummaryFailedText    = "Could not generate summary for today's conversations."
	DailySummaryErrorText     = "Error generating daily summary."
	WeeklySummaryFailedText   = "Could not generate summary for this week's conversations."
	WeeklySummaryErrorText    = "Error generating weekly summary."
)

// MinSuggestionMessages is the conversation length needed for memory
// suggestions; SuggestionWindow is how many recent messages they consider.
const (
	MinSuggestionMessages = 3
	SuggestionWindow      = 5
)

// ErrNoConversation is returned by helpers that need at least one message.
var ErrNoConversation = errors.New("conversation: no messages")

// ErrNothingExtracted is returned when memory extraction produced no text.
var ErrNothingExtracted = errors.New("conversation: nothing extracted")

var numberedLine = regexp.MustCompile(`^\d+\.\s*`)

// Assistant runs one-shot prompts over the stored conversation.
type Assistant struct {
	store   *storage.Store
	clients ClientFunc
	log     *zap.Logger
}

// NewAssistant creates an assistant.
func NewAssistant(store *storage.Store, clients ClientFunc, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{store: store, clients: clients, log: log.Named("assistant")}
}

// Ask sends prompt with the memory-aware system prompt and no history.
func (a *Assistant) Ask(ctx context.Context, prompt string) (string, error) {
	settings := a.store.Settings()
	req := BuildRequest(settings, a.store.Memory(), []storage.Message{{Role: storage.RoleUser, Content: prompt}})
	return a.clients(settings).Chat(ctx, req)
}

// =============================================================================
// CONVERSATION ANALYSIS
// =============================================================================

// Summarize returns a summary of the whole conversation, or
// NoConversationText when there is none.
func (a *Assistant) Summarize(ctx context.Context) (string, error) {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return NoConversationText, nil
	}
	return a.Ask(ctx, summaryPrompt+Transcript(msgs))
}

// ExtractActionItems returns the numbered items of the reply, without their
// numbers.
func (a *Assistant) ExtractActionItems(ctx context.Context) ([]string, error) {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return nil, nil
	}
	text, err := a.Ask(ctx, actionItemsPrompt+Transcript(msgs))
	if err != nil {
		return nil, err
	}
	return ParseNumberedList(text), nil
}

// GenerateInsights returns the reply's non-blank paragraphs.
func (a *Assistant) GenerateInsights(ctx context.Context) ([]string, error) {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return nil, nil
	}
	text, err := a.Ask(ctx, insightsPrompt+Transcript(msgs))
	if err != nil {
		return nil, err
	}
	return ParseParagraphs(text), nil
}

// TestConnection sends a canned prompt and reports whether the reply
// acknowledges it.
func (a *Assistant) TestConnection(ctx context.Context) (bool, error) {
	text, err := a.Ask(ctx, connectionPrompt)
	if err != nil {
		return false, err
	}
	return strings.Contains(text, "successful"), nil
}

// =============================================================================
// MEMORY
// =============================================================================

// ExtractMemory asks for the personal facts worth remembering.
func (a *Assistant) ExtractMemory(ctx context.Context) (string, error) {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return "", ErrNoConversation
	}
	return a.Ask(ctx, extractPrompt+Transcript(msgs))
}

// SaveExtractedMemory extracts memory and appends it to the stored memory.
func (a *Assistant) SaveExtractedMemory(ctx context.Context) (string, error) {
	text, err := a.ExtractMemory(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNothingExtracted
	}
	if err := a.store.UpdateMemory(text); err != nil {
		return "", fmt.Errorf("save extracted memory: %w", err)
	}
	return text, nil
}

// MemorySuggestions proposes facts to remember from the recent
// conversation. Short conversations yield nothing.
func (a *Assistant) MemorySuggestions(ctx context.Context) ([]string, error) {
	msgs := a.store.Messages()
	if len(msgs) < MinSuggestionMessages {
		return nil, nil
	}
	if len(msgs) > SuggestionWindow {
		msgs = msgs[len(msgs)-SuggestionWindow:]
	}
	text, err := a.Ask(ctx, suggestionPrompt+Transcript(msgs))
	if err != nil {
		return nil, err
	}
	return ParseLines(text), nil
}

// =============================================================================
// PERIODIC SUMMARIES
// =============================================================================

// DailySummary summarizes the messages sent on now's calendar day. It never
// fails; request errors become a fixed sentence.
func (a *Assistant) DailySummary(ctx context.Context, now time.Time) string {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return NoConversationsToday
	}

	y, m, d := now.Date()
	var today []storage.Message
	for _, msg := range msgs {
		ty, tm, td := msg.Timestamp.In(now.Location()).Date()
		if ty == y && tm == m && td == d {
			today = append(today, msg)
		}
	}
	if len(today) == 0 {
		return NoNewConversationsToday
	}

	text, err := a.Ask(ctx, dailyPrompt+Transcript(today))
	if err != nil {
		a.log.Warn("daily summary failed", zap.Error(err))
		return DailySummaryErrorText
	}
	if strings.TrimSpace(text) == "" {
		return DailySummaryFailedText
	}
	return text
}

// WeeklySummary summarizes the messages since the start of now's week
// (Sunday 00:00 local time).
func (a *Assistant) WeeklySummary(ctx context.Context, now time.Time) string {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return NoConversationsThisWeek
	}

	start := WeekStart(now)
	var week []storage.Message
	for _, msg := range msgs {
		if !msg.Timestamp.Before(start) {
			week = append(week, msg)
		}
	}
	if len(week) == 0 {
		return NoNewConversationsWeek
	}

	text, err := a.Ask(ctx, weeklyPrompt+Transcript(week))
	if err != nil {
		a.log.Warn("weekly summary failed", zap.Error(err))
		return WeeklySummaryErrorText
	}
	if strings.TrimSpace(text) == "" {
		return WeeklySummaryFailedText
	}
	return text
}

// WeekStart returns Sunday 00:00 of t's week in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(t.Weekday()))
}

// =============================================================================
// REPLY PARSING
// =============================================================================

// ParseNumberedList keeps lines starting with "N." and strips the prefix.
func ParseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if loc := numberedLine.FindStringIndex(line); loc != nil {
			out = append(out, line[loc[1]:])
		}
	}
	return out
}

// ParseParagraphs splits on blank lines and drops empty paragraphs.
func ParseParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLines returns the trimmed non-empty lines.
func ParseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ReplyError reports whether content is a stored failure reply.
func ReplyError(content string) bool {
	return strings.HasPrefix(content, ErrorReplyPrefix)
}
