// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// clearEnv isolates a test from the developer's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENROUTER_API_KEY", "MEMENTO_API_KEY", "MEMENTO_MODEL", "MEMENTO_BASE_URL",
		"MEMENTO_OFFLINE", "MEMENTO_STORAGE_BACKEND", "MEMENTO_STORAGE_DIR",
		"MEMENTO_ADDR", "MEMENTO_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("MEMENTO_HOME", t.TempDir())
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefault_Values(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Cloud.BaseURL)
	assert.Equal(t, "openai/gpt-3.5-turbo", cfg.Cloud.DefaultModel)
	assert.True(t, cfg.Cloud.Stream)
	assert.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Cloud, cfg.Cloud)
}

func TestLoadFromPath_TOMLPartialKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cloud]\ndefault_model = \"mistral/mistral-small\"\n\n[storage]\nbackend = \"sqlite\"\n"), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral/mistral-small", cfg.Cloud.DefaultModel)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Cloud.BaseURL)
	assert.Equal(t, "127.0.0.1:8686", cfg.Server.Addr)
}

func TestLoadFromPath_JSONAndYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"server":{"addr":"0.0.0.0:9000"}}`), 0600))
	cfg, err := LoadFromPath(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("logging:\n  level: debug\n"), 0600))
	cfg, err = LoadFromPath(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"redis\"\n[ui]\ntheme = \"neon\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")
	t.Setenv("MEMENTO_MODEL", "anthropic/claude-3-haiku")
	t.Setenv("MEMENTO_OFFLINE", "true")
	t.Setenv("MEMENTO_ADDR", ":7000")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "sk-or-env", cfg.Cloud.APIKey)
	assert.Equal(t, "anthropic/claude-3-haiku", cfg.Cloud.DefaultModel)
	assert.True(t, cfg.Offline.Forced)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestApplyEnvOverrides_MementoKeyWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-generic")
	t.Setenv("MEMENTO_API_KEY", "sk-or-specific")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-or-specific", cfg.Cloud.APIKey)
}

func TestSaveAndReload(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Cloud.DefaultModel = "google/gemma-2-9b-it:free"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("config saved with %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "google/gemma-2-9b-it:free", loaded.Cloud.DefaultModel)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("cloud.max_retries", "5"))
	require.NoError(t, cfg.Set("cloud.stream", "false"))
	require.NoError(t, cfg.Set("server.requests_per_second", "2.5"))
	require.NoError(t, cfg.Set("ui.theme", "light"))

	v, err := cfg.Get("cloud.max_retries")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.False(t, cfg.Cloud.Stream)
	assert.Equal(t, 2.5, cfg.Server.RequestsPerSecond)
	assert.Equal(t, "light", cfg.UI.Theme)

	assert.Error(t, cfg.Set("cloud.max_retries", "many"))
	assert.Error(t, cfg.Set("cloud.nope", "1"))
	assert.Error(t, cfg.Set("cloud", "1"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "cloud.api_key")
	assert.Contains(t, keys, "storage.backend")
	assert.Contains(t, keys, "ui.glamour_style")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	got := make(chan *Config, 1)
	w := NewWatcher(path, zap.NewNop(), func(c *Config) {
		select {
		case got <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	cfg := Default()
	cfg.Cloud.DefaultModel = "meta-llama/llama-3-8b-instruct"
	require.NoError(t, Save(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, "meta-llama/llama-3-8b-instruct", c.Cloud.DefaultModel)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload the config")
	}
}
