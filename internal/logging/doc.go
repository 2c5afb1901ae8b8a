// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger used across memento.
//
// Records go to a rotating JSON file (lumberjack) under the state directory.
// The HTTP shell additionally mirrors them to stderr in console format; the
// TUI never writes to the terminal it is drawing on.
//
// # Usage
//
//	log, err := logging.New(cfg.Logging)
//	if err != nil {
//		return err
//	}
//	defer log.Sync()
//
//	defer logging.Timed(log, "daily summary")()
package logging
