// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const helloStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
	"data: [DONE]\n"

// assemble feeds chunks and flushes, returning every delta.
func assemble(chunks ...string) (*Assembler, []Delta) {
	a := NewAssembler(nil)
	var out []Delta
	for _, c := range chunks {
		out = append(out, a.Feed([]byte(c))...)
	}
	out = append(out, a.Flush()...)
	return a, out
}

func contents(ds []Delta) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Content)
	}
	return out
}

func TestAssembler_HelloExample(t *testing.T) {
	a, deltas := assemble(helloStream)

	if got := a.Text(); got != "Hello" {
		t.Errorf("Text() = %q, want %q", got, "Hello")
	}
	if got := contents(deltas); !reflect.DeepEqual(got, []string{"Hel", "lo"}) {
		t.Errorf("deltas = %q, want [Hel lo]", got)
	}
	if deltas[0].Text != "Hel" || deltas[1].Text != "Hello" {
		t.Errorf("accumulated = %q, %q", deltas[0].Text, deltas[1].Text)
	}
	if !a.Done() {
		t.Error("Done() = false after [DONE]")
	}
}

func TestAssembler_ChunkingInvariance(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"event: message\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\r\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Grüße, \"}}]}\n\n" +
		"data: {not json}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\r\n\r\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n"

	_, whole := assemble(stream)
	want := contents(whole)
	if !reflect.DeepEqual(want, []string{"Grüße, ", "world", "!"}) {
		t.Fatalf("unsplit deltas = %q", want)
	}

	// Every two-way split, including splits inside multi-byte runes.
	for i := 0; i <= len(stream); i++ {
		a, got := assemble(stream[:i], stream[i:])
		if !reflect.DeepEqual(contents(got), want) || a.Text() != "Grüße, world!" {
			t.Fatalf("split at %d: deltas %q text %q", i, contents(got), a.Text())
		}
	}

	// One byte at a time.
	bytesChunks := make([]string, 0, len(stream))
	for i := 0; i < len(stream); i++ {
		bytesChunks = append(bytesChunks, stream[i:i+1])
	}
	if _, got := assemble(bytesChunks...); !reflect.DeepEqual(contents(got), want) {
		t.Errorf("byte-wise deltas = %q", contents(got))
	}
}

func TestAssembler_DoneStopsImmediately(t *testing.T) {
	stream := helloStream + "data: {\"choices\":[{\"delta\":{\"content\":\" ignored\"}}]}\n"

	for i := 0; i <= len(stream); i++ {
		a, got := assemble(stream[:i], stream[i:])
		if a.Text() != "Hello" || len(got) != 2 {
			t.Fatalf("split at %d: text %q, %d deltas", i, a.Text(), len(got))
		}
	}

	a := NewAssembler(nil)
	a.Feed([]byte(helloStream))
	if d := a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")); d != nil {
		t.Errorf("Feed after done returned %v", d)
	}
}

func TestAssembler_MalformedSkipped(t *testing.T) {
	a, got := assemble(
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n",
		"data: {\"choices\":[{\"delta\":\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
	)
	if a.Text() != "ab" {
		t.Errorf("Text() = %q, want ab", a.Text())
	}
	if len(got) != 2 {
		t.Errorf("got %d deltas, want 2", len(got))
	}
	if a.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", a.Skipped())
	}
}

func TestAssembler_FlushTrailingLine(t *testing.T) {
	a := NewAssembler(nil)
	if d := a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}")); len(d) != 0 {
		t.Fatalf("unterminated line emitted early: %v", d)
	}
	d := a.Flush()
	if len(d) != 1 || d[0].Content != "tail" {
		t.Errorf("Flush() = %v", d)
	}
	if a.Done() {
		t.Error("Done() without marker")
	}
	if d := a.Flush(); d != nil {
		t.Errorf("second Flush() = %v", d)
	}
}

func TestAssembler_EmptyContentNotEmitted(t *testing.T) {
	_, got := assemble(
		"data: {\"choices\":[{\"delta\":{\"content\":\"\"},\"finish_reason\":\"stop\"}]}\n",
		"data: {\"choices\":[]}\n",
		"data: {}\n",
	)
	if len(got) != 0 {
		t.Errorf("got %d deltas, want 0", len(got))
	}
}

func TestAssembler_EmbeddedError(t *testing.T) {
	a, got := assemble(
		"data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n",
		"data: {\"error\":{\"code\":429,\"message\":\"slow down\"}}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"tial\"}}]}\n",
	)
	if len(got) != 1 || a.Text() != "par" {
		t.Errorf("deltas %v text %q", contents(got), a.Text())
	}

	var apiErr *APIError
	if !errors.As(a.Err(), &apiErr) {
		t.Fatalf("Err() = %v, want *APIError", a.Err())
	}
	if apiErr.Message != "slow down" || apiErr.Code != "429" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAssembler_DataWithoutSpace(t *testing.T) {
	a, _ := assemble("data:{\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\ndata:[DONE]\n")
	if a.Text() != "x" || !a.Done() {
		t.Errorf("text %q done %v", a.Text(), a.Done())
	}
}

func TestAssembler_OversizedLineDiscarded(t *testing.T) {
	a := NewAssembler(nil)
	a.Feed([]byte("data: " + strings.Repeat("x", MaxLineSize+1)))
	got := a.Feed([]byte("\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n"))
	if len(got) != 1 || got[0].Content != "ok" {
		t.Errorf("deltas after oversized line = %v", got)
	}
}

func TestAssembler_OversizedLineChunkingInvariant(t *testing.T) {
	big := `data: {"choices":[{"delta":{"content":"` + strings.Repeat("x", MaxLineSize+10000) + `"}}]}` + "\n"
	stream := []byte(big + "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n")

	whole := NewAssembler(nil)
	whole.Feed(stream)
	whole.Flush()

	chunked := NewAssembler(nil)
	for rest := stream; len(rest) > 0; {
		n := min(4096, len(rest))
		chunked.Feed(rest[:n])
		rest = rest[n:]
	}
	chunked.Flush()

	if whole.Text() != "ok" || chunked.Text() != "ok" {
		t.Errorf("text: whole=%d bytes, chunked=%d bytes, want \"ok\"", len(whole.Text()), len(chunked.Text()))
	}
	if whole.Skipped() != 1 || chunked.Skipped() != 1 {
		t.Errorf("skipped: whole=%d chunked=%d, want 1", whole.Skipped(), chunked.Skipped())
	}
}
