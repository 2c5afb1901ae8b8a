// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory mirror of the persisted state. All methods are safe
// for concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	loaded       bool
	settings     Settings
	conversation []Message
	memory       string
	// generation changes whenever the conversation is cleared or
	// replaced as a whole.
	generation uint64

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// New creates a store over backend. Call Load before use.
func New(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		backend:  backend,
		log:      log,
		now:      time.Now,
		settings: DefaultSettings(),
		subs:     make(map[int]chan Change),
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Load reads settings, conversation and memory from the backend. Corrupt
// blobs are logged and replaced by their defaults; only backend failures
// are returned.
func (s *Store) Load() error {
	settings := DefaultSettings()
	if raw, ok, err := s.backend.Get(KeySettings); err != nil {
		return fmt.Errorf("load settings: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			s.log.Warn("stored settings unreadable, using defaults", zap.Error(err))
			settings = DefaultSettings()
		}
	}

	var conversation []Message
	if raw, ok, err := s.backend.Get(KeyConversation); err != nil {
		return fmt.Errorf("load conversation: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &conversation); err != nil {
			s.log.Warn("stored conversation unreadable, starting empty", zap.Error(err))
			conversation = nil
		}
	}

	memory, _, err := s.backend.Get(KeyMemory)
	if err != nil {
		return fmt.Errorf("load memory: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.conversation = conversation
	s.generation++
	s.memory = memory
	s.loaded = true
	s.mu.Unlock()

	s.log.Debug("state loaded",
		zap.Int("messages", len(conversation)),
		zap.Int("memory_chars", len(memory)),
	)
	return nil
}

// Loaded reports whether Load has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Save writes settings, conversation and memory.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	if err := s.putJSONLocked(KeySettings, s.settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := s.putJSONLocked(KeyConversation, s.conversation); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := s.backend.Set(KeyMemory, s.memory); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// Close closes the backend and every subscription.
func (s *Store) Close() error {
	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.backend.Close()
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// Subscribe returns a channel of changes and a function that ends the
// subscription. Slow subscribers miss changes rather than block writers.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Change, 32)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Store) publish(kind ChangeKind, index int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- Change{Kind: kind, Index: index}:
		default:
		}
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SaveSettings replaces the settings wholesale and persists them.
func (s *Store) SaveSettings(settings Settings) error {
	s.mu.Lock()
	prev := s.settings
	s.settings = settings
	if err := s.putJSONLocked(KeySettings, settings); err != nil {
		s.settings = prev
		s.mu.Unlock()
		return fmt.Errorf("save settings: %w", err)
	}
	s.mu.Unlock()

	s.publish(ChangeSettings, -1)
	return nil
}

// UpdateSettings applies fn to a copy of the settings and saves the result.
func (s *Store) UpdateSettings(fn func(*Settings)) (Settings, error) {
	next := s.Settings()
	fn(&next)
	if err := s.SaveSettings(next); err != nil {
		return s.Settings(), err
	}
	return next, nil
}

// ResetSettings restores and saves the default settings.
func (s *Store) ResetSettings() (Settings, error) {
	d := DefaultSettings()
	if err := s.SaveSettings(d); err != nil {
		return s.Settings(), err
	}
	return d, nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Messages returns a copy of the conversation.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// MessageCount returns the number of messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversation)
}

// Message returns the message at index.
func (s *Store) Message(index int) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.conversation) {
		return Message{}, ErrMessageIndex
	}
	return s.conversation[index], nil
}

// AppendMessage appends m, stamping it when Timestamp is zero, persists the
// conversation and returns the new message's index.
func (s *Store) AppendMessage(m Message) (int, error) {
	s.mu.Lock()
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}
	s.conversation = append(s.conversation, m)
	index := len(s.conversation) - 1
	err := s.putJSONLocked(KeyConversation, s.conversation)
	s.mu.Unlock()

	s.publish(ChangeConversation, index)
	if err != nil {
		return index, fmt.Errorf("save conversation: %w", err)
	}
	return index, nil
}

// SetMessageContent rewrites a message in memory only. Streaming calls it
// for every delta; SaveConversation persists the final text.
func (s *Store) SetMessageContent(index int, content string) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.conversation) {
		s.mu.Unlock()
		return ErrMessageIndex
	}
	s.conversation[index].Content = content
	s.mu.Unlock()

	s.publish(ChangeConversation, index)
	return nil
}

// Generation identifies the current conversation. Clearing, importing or
// reloading it yields a new value.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetMessageContentFor is SetMessageContent guarded by a generation from
// Generation. It fails with ErrConversationReplaced once the conversation
// has been replaced, so a late reply never lands in someone else's message.
func (s *Store) SetMessageContentFor(gen uint64, index int, content string) error {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrConversationReplaced
	}
	if index < 0 || index >= len(s.conversation) {
		s.mu.Unlock()
		return ErrMessageIndex
	}
	s.conversation[index].Content = content
	s.mu.Unlock()

	s.publish(ChangeConversation, index)
	return nil
}

// SaveConversation persists the conversation.
func (s *Store) SaveConversation() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.putJSONLocked(KeyConversation, s.conversation); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// ClearConversation drops every message.
func (s *Store) ClearConversation() error {
	s.mu.Lock()
	s.conversation = nil
	s.generation++
	err := s.backend.Delete(KeyConversation)
	s.mu.Unlock()

	s.publish(ChangeConversation, -1)
	if err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// =============================================================================
// RAW KEYS
// =============================================================================

// GetString returns a raw value; missing keys yield "".
func (s *Store) GetString(key string) (string, error) {
	v, _, err := s.backend.Get(key)
	return v, err
}

// SetString stores a raw value.
func (s *Store) SetString(key, value string) error {
	return s.backend.Set(key, value)
}

// GetJSON decodes key into v and reports whether the key existed. A
// corrupt value is logged and reported as missing.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := s.backend.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.log.Warn("stored value unreadable", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v under key.
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.backend.Set(key, string(raw))
}

// DeleteKey removes a raw key.
func (s *Store) DeleteKey(key string) error {
	return s.backend.Delete(key)
}

func (s *Store) putJSONLocked(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.backend.Set(key, string(raw))
}
