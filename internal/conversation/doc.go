// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation drives a chat turn: it records the user message,
// asks the completion endpoint for a reply and writes the reply back into
// the store as it streams in.
//
// # Key Types
//
//   - Controller: runs one turn at a time and reports progress as Updates
//   - Assistant: one-shot helpers (summaries, action items, memory extraction)
//   - Hook: observers notified after a reply is stored
//
// # Usage
//
//	ctrl := conversation.NewController(store, clients, conversation.Options{Stream: true})
//	updates, err := ctrl.Send(ctx, "What's on my plate tomorrow?")
//	if err != nil {
//		return err
//	}
//	for u := range updates {
//		render(u.Content)
//	}
package conversation
