// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// WHOLE-STATE EXPORT / IMPORT
// =============================================================================

// Snapshot returns the current state as an export document.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv := make([]Message, len(s.conversation))
	copy(conv, s.conversation)
	return Snapshot{
		Conversation: conv,
		Settings:     s.settings,
		Memory:       s.memory,
		ExportDate:   s.now(),
	}
}

// ExportState encodes the snapshot as indented JSON.
func (s *Store) ExportState() ([]byte, error) {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export state: %w", err)
	}
	return data, nil
}

// importDoc detects which sections are present.
type importDoc struct {
	Conversation json.RawMessage `json:"conversation"`
	Settings     json.RawMessage `json:"settings"`
	Memory       *string         `json:"memory"`
}

// ImportState applies the sections present in data. Imported settings are
// merged over the defaults. Nothing is applied if data does not parse.
func (s *Store) ImportState(data []byte) error {
	var doc importDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("import state: %w", err)
	}

	var (
		conv     []Message
		settings Settings
	)
	hasConv := len(doc.Conversation) > 0 && string(doc.Conversation) != "null"
	hasSettings := len(doc.Settings) > 0 && string(doc.Settings) != "null"
	if hasConv {
		if err := json.Unmarshal(doc.Conversation, &conv); err != nil {
			return fmt.Errorf("import conversation: %w", err)
		}
	}
	if hasSettings {
		settings = DefaultSettings()
		if err := json.Unmarshal(doc.Settings, &settings); err != nil {
			return fmt.Errorf("import settings: %w", err)
		}
	}

	if hasConv {
		s.mu.Lock()
		s.conversation = conv
		s.generation++
		err := s.putJSONLocked(KeyConversation, conv)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		s.publish(ChangeConversation, -1)
	}
	if hasSettings {
		if err := s.SaveSettings(settings); err != nil {
			return err
		}
	}
	if doc.Memory != nil {
		if err := s.SetMemory(*doc.Memory); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllData deletes every key in the backend and resets the mirror to
// defaults.
func (s *Store) ClearAllData() error {
	keys, err := s.backend.Keys()
	if err != nil {
		return fmt.Errorf("clear data: %w", err)
	}

	s.mu.Lock()
	for _, k := range keys {
		if err := s.backend.Delete(k); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("clear %s: %w", k, err)
		}
	}
	s.settings = DefaultSettings()
	s.conversation = nil
	s.generation++
	s.memory = ""
	s.mu.Unlock()

	s.publish(ChangeReset, -1)
	return nil
}
