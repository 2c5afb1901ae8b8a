// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists memento state: settings, the conversation, the
// free-text memory, memory reminders and scheduler bookkeeping.
//
// State is kept in a key-value Backend as opaque JSON blobs. The Store is an
// explicit object that mirrors the blobs in memory, with a Load/Save
// lifecycle, and publishes a Change for every mutation so renderers can
// refresh.
//
// # Key Types
//
//   - Backend: key-value persistence (FileBackend, SQLiteBackend, MemoryBackend)
//   - Store: in-memory mirror with typed accessors
//   - Message, Settings, MemoryReminder, Snapshot: persisted shapes
//
// # Usage
//
//	backend, err := storage.OpenFileBackend(filepath.Join(dir, "state.json"))
//	if err != nil {
//		return err
//	}
//	store := storage.New(backend, log)
//	if err := store.Load(); err != nil {
//		return err
//	}
//	defer store.Close()
//
//	idx, _ := store.AppendMessage(storage.Message{Role: storage.RoleUser, Content: "hi"})
//
// # Storage Location
//
// The file backend writes ~/.memento/state.json; the sqlite backend writes
// ~/.memento/state.db.
package storage
