// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// paragraphSep joins memory entries.
const paragraphSep = "\n\n"

var wordSplit = regexp.MustCompile(`\s+`)

// =============================================================================
// MEMORY BLOB
// =============================================================================

// Memory returns the memory text.
func (s *Store) Memory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

// SetMemory replaces the memory text.
func (s *Store) SetMemory(text string) error {
	s.mu.Lock()
	prev := s.memory
	s.memory = text
	if err := s.backend.Set(KeyMemory, text); err != nil {
		s.memory = prev
		s.mu.Unlock()
		return fmt.Errorf("save memory: %w", err)
	}
	s.mu.Unlock()

	s.publish(ChangeMemory, -1)
	return nil
}

// UpdateMemory appends info as a new paragraph, or sets it when the memory
// is blank.
func (s *Store) UpdateMemory(info string) error {
	current := s.Memory()
	if strings.TrimSpace(current) == "" {
		return s.SetMemory(info)
	}
	return s.SetMemory(current + paragraphSep + info)
}

// ClearMemory empties the memory text.
func (s *Store) ClearMemory() error {
	return s.SetMemory("")
}

// SearchMemory returns the paragraphs containing query, compared with
// Unicode case folding. A blank query or memory yields nothing.
func (s *Store) SearchMemory(query string) []string {
	memory := s.Memory()
	if strings.TrimSpace(memory) == "" || query == "" {
		return nil
	}

	fold := cases.Fold()
	needle := fold.String(query)

	var out []string
	for _, p := range strings.Split(memory, paragraphSep) {
		if strings.Contains(fold.String(p), needle) {
			out = append(out, p)
		}
	}
	return out
}

// MemoryStats counts characters, words and non-blank paragraphs.
func (s *Store) MemoryStats() MemoryStats {
	return ComputeMemoryStats(s.Memory())
}

// ComputeMemoryStats is MemoryStats for an arbitrary text.
func ComputeMemoryStats(memory string) MemoryStats {
	stats := MemoryStats{Characters: len([]rune(memory))}
	if strings.TrimSpace(memory) == "" {
		return stats
	}
	stats.Words = len(wordSplit.Split(strings.TrimSpace(memory), -1))
	for _, p := range strings.Split(memory, paragraphSep) {
		if strings.TrimSpace(p) != "" {
			stats.Paragraphs++
		}
	}
	return stats
}

// MemoryExportName is the file name used for memory exports on day t.
func MemoryExportName(t time.Time) string {
	return "memento_memory_" + t.Format("2006-01-02") + ".txt"
}

// ExportMemory writes the memory text to w.
func (s *Store) ExportMemory(w io.Writer) error {
	memory := s.Memory()
	if strings.TrimSpace(memory) == "" {
		return ErrEmptyMemory
	}
	if _, err := io.WriteString(w, memory); err != nil {
		return fmt.Errorf("export memory: %w", err)
	}
	return nil
}

// ImportMemory replaces the memory with the contents of r. Blank input is
// rejected and leaves the memory unchanged.
func (s *Store) ImportMemory(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("import memory: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return ErrEmptyImport
	}
	return s.SetMemory(string(data))
}

// =============================================================================
// MEMORY REMINDERS
// =============================================================================

// MemoryReminders returns the stored memory reminders in insertion order.
func (s *Store) MemoryReminders() ([]MemoryReminder, error) {
	var reminders []MemoryReminder
	if _, err := s.GetJSON(KeyMemoryReminders, &reminders); err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	return reminders, nil
}

// AddMemoryReminder records a reminder for date. Scheduling the matching
// notification is the caller's job.
func (s *Store) AddMemoryReminder(text string, date time.Time) (MemoryReminder, error) {
	reminders, err := s.MemoryReminders()
	if err != nil {
		return MemoryReminder{}, err
	}
	r := MemoryReminder{
		ID:      uuid.NewString(),
		Text:    text,
		Date:    date,
		Created: s.Now(),
	}
	reminders = append(reminders, r)
	if err := s.SetJSON(KeyMemoryReminders, reminders); err != nil {
		return MemoryReminder{}, fmt.Errorf("save reminders: %w", err)
	}
	s.publish(ChangeReminders, -1)
	return r, nil
}

// DeleteMemoryReminder removes the reminder with id.
func (s *Store) DeleteMemoryReminder(id string) error {
	reminders, err := s.MemoryReminders()
	if err != nil {
		return err
	}
	kept := reminders[:0]
	found := false
	for _, r := range reminders {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return ErrReminderNotFound
	}
	if err := s.SetJSON(KeyMemoryReminders, kept); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	s.publish(ChangeReminders, -1)
	return nil
}
