// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the memento process configuration.
//
// # Key Types
//
//   - Config: cloud endpoint, storage backend, HTTP shell, notification
//     loop, connectivity probe, logging and terminal UI settings
//   - ValidationErrors: every invalid field found by Validate
//   - Watcher: reloads the config file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MEMENTO_*, OPENROUTER_API_KEY), including
//     values from a .env file
//   - ~/.memento/config.toml, config.json or config.yaml (first found)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	dir, _ := cfg.StorageDir()
package config
