// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to an OpenAI-compatible chat-completion endpoint
// (OpenRouter by default).
//
// Requests go out as JSON with a bearer key. Replies come back either as a
// single JSON document (Chat) or as a server-sent-event stream (ChatStream).
// The stream is decoded by an Assembler, which is independent of I/O and
// safe to feed arbitrarily split chunks.
//
// # Key Types
//
//   - Client: HTTP client with retry, rate limiting and connectivity checks
//   - Request, Message: the completion request body
//   - Assembler: incremental SSE decoder producing Delta values
//   - Stream: a running streamed completion, consumed with for range
//   - APIError: non-2xx responses and embedded error bodies
//
// # Usage
//
//	client := cloud.NewClient(apiKey).WithConnectivity(monitor).WithLogger(log)
//	stream, err := client.ChatStream(ctx, cloud.Request{
//	    Model:    "openai/gpt-3.5-turbo",
//	    Messages: []cloud.Message{{Role: "user", Content: "Hello"}},
//	})
//	if err != nil {
//	    return cloud.UserMessage(err)
//	}
//	defer stream.Close()
//	for d := range stream.Events() {
//	    fmt.Print(d.Content)
//	}
//	text, err := stream.Wait()
//
// API keys are never logged.
package cloud
