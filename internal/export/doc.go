// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the conversation, settings and memory to files.
//
// # Key Types
//
//   - Exporter: converts a storage.Snapshot into one format
//   - Options: export configuration
//
// # Supported Formats
//
//   - JSON: the import/export state document, readable by Store.ImportState
//   - Markdown: human-readable transcript
//   - HTML: standalone page rendered through the render package
//
// # Usage
//
//	exp, err := export.ForFormat("md", opts)
//	if err != nil {
//		return err
//	}
//	path, err := export.ExportToFile(store.Snapshot(), exp, opts)
package export
