// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// readBufferSize is how much of the body is read per Feed call.
const readBufferSize = 4 * 1024

// =============================================================================
// STREAM ERRORS
// =============================================================================

// StreamError is a failure that occurred after the stream started. Partial
// holds the text received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a streamed completion in progress. Range over Events until it
// closes, then call Wait for the final text and error. Close cancels the
// stream early and may be called at any time, more than once.
type Stream struct {
	events chan Delta
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
	text      string
	err       error
	skipped   int
}

// Events returns the delta channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan Delta {
	return s.events
}

// Wait drains any unread events, blocks until the stream ends and returns
// the accumulated text. On failure the text is whatever arrived first.
func (s *Stream) Wait() (string, error) {
	for range s.events {
	}
	<-s.done
	return s.text, s.err
}

// Close cancels the stream and waits for its reader to stop.
func (s *Stream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

// Skipped returns the number of malformed payloads dropped. Valid after
// Wait returns.
func (s *Stream) Skipped() int {
	<-s.done
	return s.skipped
}

// ChatStream opens a streamed completion. Preflight, connection and HTTP
// status failures are returned here; failures after the first byte surface
// from Wait. Opening is retried like Chat; a started stream is never
// retried.
func (c *Client) ChatStream(ctx context.Context, req Request) (*Stream, error) {
	if err := c.preflight(); err != nil {
		return nil, err
	}
	req = c.prepare(req, true)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.openStream(ctx, body)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Stream{
		events: make(chan Delta),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(ctx, resp.Body, NewAssembler(c.log))
	return s, nil
}

func (c *Client) openStream(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.log.Debug("retrying stream request", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.post(ctx, c.streamClient, "/chat/completions", body)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		if err == nil {
			raw, _ := readResponse(resp)
			resp.Body.Close()
			err = newAPIError(resp.StatusCode, raw)
		}
		if !c.isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// run reads body into the assembler until the terminal marker, end of
// body, an embedded error or cancellation.
func (s *Stream) run(ctx context.Context, body io.ReadCloser, asm *Assembler) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()
	defer body.Close()
	defer func() { s.skipped = asm.Skipped() }()

	buf := make([]byte, readBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, d := range asm.Feed(buf[:n]) {
				if !s.emit(ctx, d) {
					s.fail(asm.Text(), ctx.Err())
					return
				}
			}
			if err := asm.Err(); err != nil {
				s.fail(asm.Text(), err)
				return
			}
			if asm.Done() {
				s.text = asm.Text()
				return
			}
		}

		if errors.Is(rerr, io.EOF) {
			for _, d := range asm.Flush() {
				if !s.emit(ctx, d) {
					s.fail(asm.Text(), ctx.Err())
					return
				}
			}
			if err := asm.Err(); err != nil {
				s.fail(asm.Text(), err)
				return
			}
			s.text = asm.Text()
			return
		}
		if rerr != nil {
			if ctx.Err() != nil {
				rerr = ctx.Err()
			}
			s.fail(asm.Text(), rerr)
			return
		}
	}
}

func (s *Stream) emit(ctx context.Context, d Delta) bool {
	select {
	case s.events <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) fail(partial string, err error) {
	s.text = partial
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		s.err = err
		return
	}
	s.err = &StreamError{Partial: partial, Err: err}
}

// =============================================================================
// CONVENIENCE
// =============================================================================

// ChatStreamAccumulate streams req, calling onDelta for each fragment, and
// returns the final text.
func (c *Client) ChatStreamAccumulate(ctx context.Context, req Request, onDelta func(Delta)) (string, error) {
	stream, err := c.ChatStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	for d := range stream.Events() {
		if onDelta != nil {
			onDelta(d)
		}
	}
	return stream.Wait()
}
