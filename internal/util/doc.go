// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across memento packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe write (temp file, fsync, rename)
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width aware truncation for terminals
//   - FirstLine: first non-empty line of a block of text
//
// # Usage
//
//	// Persist a state file without ever leaving it half written
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit a message preview into a status bar
//	preview := util.TruncateWidth(msg.Content, 40)
package util
