// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// SSE ASSEMBLER
// =============================================================================

// doneMarker terminates a completion stream.
const doneMarker = "[DONE]"

// MaxLineSize bounds a single SSE line. Longer lines are skipped whole,
// however the stream is chunked.
const MaxLineSize = 1024 * 1024

// Delta is one incremental fragment and the text accumulated so far.
type Delta struct {
	Content string `json:"content"`
	Text    string `json:"text"`
}

// streamChunk is one decoded data payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *errorBody `json:"error"`
}

// Assembler decodes a server-sent-event byte stream into deltas. Chunks may
// be split anywhere, including mid-line; the sequence of deltas depends only
// on the concatenated bytes. An Assembler is not safe for concurrent use.
type Assembler struct {
	partial []byte
	text    strings.Builder
	done    bool
	err     error
	log     *zap.Logger
	skipped int
	// discarding drops input up to the next newline after an oversized
	// line prefix.
	discarding bool
}

// NewAssembler creates an assembler. log receives malformed payloads; nil
// discards them.
func NewAssembler(log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{log: log}
}

// Feed consumes a chunk and returns the deltas completed by it. Once the
// terminal marker or an embedded error is seen, Feed ignores all input.
func (a *Assembler) Feed(chunk []byte) []Delta {
	if a.stopped() {
		return nil
	}

	var out []Delta
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if a.discarding {
			if i < 0 {
				break
			}
			a.discarding = false
			chunk = chunk[i+1:]
			continue
		}
		if i < 0 {
			if len(a.partial)+len(chunk) > MaxLineSize {
				a.discardLine(len(a.partial) + len(chunk))
				a.discarding = true
				break
			}
			a.partial = append(a.partial, chunk...)
			break
		}
		if len(a.partial)+i > MaxLineSize {
			a.discardLine(len(a.partial) + i)
			chunk = chunk[i+1:]
			continue
		}

		var line []byte
		if len(a.partial) > 0 {
			a.partial = append(a.partial, chunk[:i]...)
			line = a.partial
		} else {
			line = chunk[:i]
		}
		chunk = chunk[i+1:]

		if d, ok := a.processLine(line); ok {
			out = append(out, d)
		}
		a.partial = a.partial[:0]

		if a.stopped() {
			break
		}
	}
	return out
}

// discardLine drops the buffered prefix of a line longer than MaxLineSize.
func (a *Assembler) discardLine(n int) {
	a.log.Warn("sse line exceeds limit, discarding", zap.Int("bytes", n))
	a.partial = a.partial[:0]
	a.skipped++
}

// Flush processes a trailing line that was never newline-terminated. Call it
// once when the underlying stream ends.
func (a *Assembler) Flush() []Delta {
	a.discarding = false
	if a.stopped() || len(a.partial) == 0 {
		a.partial = a.partial[:0]
		return nil
	}
	line := a.partial
	d, ok := a.processLine(line)
	a.partial = a.partial[:0]
	if ok {
		return []Delta{d}
	}
	return nil
}

// Done reports whether the terminal marker was seen.
func (a *Assembler) Done() bool { return a.done }

// Err returns the error embedded in the stream, if any.
func (a *Assembler) Err() error { return a.err }

// Text returns the accumulated text.
func (a *Assembler) Text() string { return a.text.String() }

// Skipped returns the number of malformed payloads dropped so far.
func (a *Assembler) Skipped() int { return a.skipped }

func (a *Assembler) stopped() bool {
	return a.done || a.err != nil
}

// processLine handles one complete line without its newline.
func (a *Assembler) processLine(line []byte) (Delta, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
		return Delta{}, false
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		// event:, id: and retry: fields carry nothing we use.
		return Delta{}, false
	}

	payload := bytes.TrimSpace(line[len("data:"):])
	if string(payload) == doneMarker {
		a.done = true
		return Delta{}, false
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		a.skipped++
		a.log.Warn("skipping malformed stream payload",
			zap.Error(err),
			zap.Int("bytes", len(payload)),
		)
		return Delta{}, false
	}
	if chunk.Error != nil && chunk.Error.Message != "" {
		a.err = &APIError{Status: http.StatusOK, Code: chunk.Error.code(), Message: chunk.Error.Message}
		return Delta{}, false
	}
	if len(chunk.Choices) == 0 {
		return Delta{}, false
	}

	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return Delta{}, false
	}
	a.text.WriteString(content)
	return Delta{Content: content, Text: a.text.String()}, true
}
