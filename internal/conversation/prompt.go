// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strings"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/storage"
)

// HistoryLimit is how many stored messages accompany a chat request.
const HistoryLimit = 10

// Prompt texts.
const (
	systemPrompt = "You are MementoAI, a helpful AI assistant. You have access to the user's memory and can use it to provide personalized assistance."
	memoryPrefix = " The user has provided the following memory information: "

	summaryPrompt     = "Please provide a concise summary of the following conversation:\n\n"
	actionItemsPrompt = "Extract all action items, tasks, or to-do items from the following conversation. Return them as a numbered list:\n\n"
	insightsPrompt    = "Analyze the following conversation and provide key insights, patterns, or observations:\n\n"
	extractPrompt     = "Extract important personal information, preferences, and context that should be remembered from the following conversation. Focus on facts about the user, their preferences, important dates, relationships, and other personal context:\n\n"
	suggestionPrompt  = "Based on this recent conversation, suggest 3-5 pieces of information that might be useful to remember about the user. Return each suggestion on a new line:\n\n"
	dailyPrompt       = "Summarize today's conversation in a concise way, focusing on key points and action items:\n\n"
	weeklyPrompt      = "Summarize this week's conversations in a concise way, focusing on key points, patterns, and action items:\n\n"
	connectionPrompt  = `Hello, this is a test message. Please respond with "Connection successful".`
)

// ErrorReplyPrefix starts the assistant text stored when a turn fails.
const ErrorReplyPrefix = "Sorry, I encountered an error: "

// SystemPrompt returns the system message, extended with memory when the
// memory is not blank.
func SystemPrompt(memory string) string {
	if strings.TrimSpace(memory) == "" {
		return systemPrompt
	}
	return systemPrompt + memoryPrefix + memory
}

// BuildRequest assembles a chat request from settings, memory and history.
// Only the last HistoryLimit messages of history are sent.
func BuildRequest(settings storage.Settings, memory string, history []storage.Message) cloud.Request {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	msgs := make([]cloud.Message, 0, len(history)+1)
	msgs = append(msgs, cloud.NewSystemMessage(SystemPrompt(memory)))
	for _, m := range history {
		msgs = append(msgs, cloud.Message{Role: m.Role, Content: m.Content})
	}

	return cloud.Request{
		Model:       settings.Model,
		Messages:    msgs,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}
}

// Transcript renders messages as "role: content" blocks separated by blank
// lines.
func Transcript(msgs []storage.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
