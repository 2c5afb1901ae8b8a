// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mementoai/memento/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the process configuration. User-facing chat settings (API key,
// model, sampling) live in the state store; the values here seed them and
// control where things run.
type Config struct {
	Cloud         CloudConfig         `toml:"cloud" json:"cloud" yaml:"cloud"`
	Storage       StorageConfig       `toml:"storage" json:"storage" yaml:"storage"`
	Server        ServerConfig        `toml:"server" json:"server" yaml:"server"`
	Notifications NotificationsConfig `toml:"notifications" json:"notifications" yaml:"notifications"`
	Offline       OfflineConfig       `toml:"offline" json:"offline" yaml:"offline"`
	Logging       LoggingConfig       `toml:"logging" json:"logging" yaml:"logging"`
	UI            UIConfig            `toml:"ui" json:"ui" yaml:"ui"`
}

// CloudConfig configures the chat-completion endpoint.
type CloudConfig struct {
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`
	// APIKey seeds the stored settings when they have no key yet.
	APIKey       string `toml:"api_key" json:"api_key" yaml:"api_key"`
	DefaultModel string `toml:"default_model" json:"default_model" yaml:"default_model"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
	MaxRetries   int    `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	// Stream selects SSE streaming for chat turns.
	Stream bool `toml:"stream" json:"stream" yaml:"stream"`
	// RequestsPerMinute caps outbound completion calls (0 = unlimited).
	RequestsPerMinute int    `toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`
	SiteURL           string `toml:"site_url" json:"site_url" yaml:"site_url"`
	SiteName          string `toml:"site_name" json:"site_name" yaml:"site_name"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
	// Dir holds state.json / state.db. Empty means the config directory.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
	// StaticDir overrides the embedded front end when set.
	StaticDir         string  `toml:"static_dir" json:"static_dir" yaml:"static_dir"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst" yaml:"burst"`
}

// NotificationsConfig controls the periodic notification loop.
type NotificationsConfig struct {
	Enabled           bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	CheckIntervalSecs int  `toml:"check_interval_secs" json:"check_interval_secs" yaml:"check_interval_secs"`
}

// OfflineConfig configures connectivity tracking.
type OfflineConfig struct {
	// Forced pins the client offline regardless of probes.
	Forced            bool   `toml:"forced" json:"forced" yaml:"forced"`
	ProbeURL          string `toml:"probe_url" json:"probe_url" yaml:"probe_url"`
	ProbeIntervalSecs int    `toml:"probe_interval_secs" json:"probe_interval_secs" yaml:"probe_interval_secs"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	File       string `toml:"file" json:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Console    bool   `toml:"console" json:"console" yaml:"console"`
}

// UIConfig configures the terminal renderer.
type UIConfig struct {
	Theme        string `toml:"theme" json:"theme" yaml:"theme"`
	GlamourStyle string `toml:"glamour_style" json:"glamour_style" yaml:"glamour_style"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			DefaultModel:      "openai/gpt-3.5-turbo",
			TimeoutSecs:       120,
			MaxRetries:        2,
			Stream:            true,
			RequestsPerMinute: 30,
			SiteName:          "MementoAI",
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8686",
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Notifications: NotificationsConfig{
			Enabled:           true,
			CheckIntervalSecs: 300,
		},
		Offline: OfflineConfig{
			ProbeURL:          "https://openrouter.ai/api/v1/models",
			ProbeIntervalSecs: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		UI: UIConfig{
			Theme:        "dark",
			GlamourStyle: "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the memento configuration directory. MEMENTO_HOME overrides
// the default of ~/.memento.
func Dir() (string, error) {
	if home := os.Getenv("MEMENTO_HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".memento"), nil
}

// candidates lists config file names in lookup order.
var candidates = []string{"config.toml", "config.json", "config.yaml", "config.yml"}

// Path returns the config file that Load would read, or the TOML path when
// none exists yet.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

// StorageDir resolves the directory holding the state backend.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return expandHome(c.Storage.Dir)
	}
	return Dir()
}

// LogFile resolves the log file path, defaulting to <dir>/logs/memento.log.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File)
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "memento.log"), nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the first config file found in Dir (TOML, then JSON, then
// YAML), falls back to defaults, loads a .env file from the working
// directory or Dir, and applies environment overrides last.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	loadDotEnv(dir)

	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if _, statErr := os.Stat(p); statErr == nil {
			return LoadFromPath(p)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads a specific file; the format follows the extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set.
// A missing file is not an error.
func loadDotEnv(dir string) {
	for _, p := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// fillDefaults restores defaults for fields a partial file left zero.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = d.Cloud.BaseURL
	}
	if c.Cloud.DefaultModel == "" {
		c.Cloud.DefaultModel = d.Cloud.DefaultModel
	}
	if c.Cloud.TimeoutSecs == 0 {
		c.Cloud.TimeoutSecs = d.Cloud.TimeoutSecs
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RequestsPerSecond == 0 {
		c.Server.RequestsPerSecond = d.Server.RequestsPerSecond
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = d.Server.Burst
	}
	if c.Notifications.CheckIntervalSecs == 0 {
		c.Notifications.CheckIntervalSecs = d.Notifications.CheckIntervalSecs
	}
	if c.Offline.ProbeURL == "" {
		c.Offline.ProbeURL = d.Offline.ProbeURL
	}
	if c.Offline.ProbeIntervalSecs == 0 {
		c.Offline.ProbeIntervalSecs = d.Offline.ProbeIntervalSecs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.GlamourStyle == "" {
		c.UI.GlamourStyle = d.UI.GlamourStyle
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg as TOML to path with 0600 permissions, since the file may
// carry an API key.
func Save(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# memento configuration file\n")
	b.WriteString("# Values here are overridden by MEMENTO_* environment variables.\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem Validate found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidationErrors when
// anything is off.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if u, err := url.Parse(c.Cloud.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{"cloud.base_url", fmt.Sprintf("must be an http(s) URL, got %q", c.Cloud.BaseURL)})
	}
	if c.Cloud.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"cloud.timeout_secs", "must not be negative"})
	}
	if c.Cloud.MaxRetries < 0 || c.Cloud.MaxRetries > 10 {
		errs = append(errs, ValidationError{"cloud.max_retries", "must be between 0 and 10"})
	}
	if c.Cloud.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{"cloud.requests_per_minute", "must not be negative"})
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{"storage.backend", fmt.Sprintf("invalid backend %q, must be one of: file, sqlite, memory", c.Storage.Backend)})
	}

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{"server.addr", "must not be empty"})
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{"server.requests_per_second", "must not be negative"})
	}
	if c.Notifications.CheckIntervalSecs < 0 {
		errs = append(errs, ValidationError{"notifications.check_interval_secs", "must not be negative"})
	}
	if c.Offline.ProbeIntervalSecs < 0 {
		errs = append(errs, ValidationError{"offline.probe_interval_secs", "must not be negative"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", fmt.Sprintf("invalid level %q", c.Logging.Level)})
	}

	switch c.UI.Theme {
	case "dark", "light":
	default:
		errs = append(errs, ValidationError{"ui.theme", fmt.Sprintf("invalid theme %q, must be dark or light", c.UI.Theme)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - MEMENTO_API_KEY, OPENROUTER_API_KEY: cloud.api_key
//   - MEMENTO_MODEL: cloud.default_model
//   - MEMENTO_BASE_URL: cloud.base_url
//   - MEMENTO_OFFLINE: "1"/"true" forces offline mode
//   - MEMENTO_STORAGE_BACKEND, MEMENTO_STORAGE_DIR: storage
//   - MEMENTO_ADDR: server.addr
//   - MEMENTO_LOG_LEVEL: logging.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	}
	if key := os.Getenv("MEMENTO_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	}
	if model := os.Getenv("MEMENTO_MODEL"); model != "" {
		c.Cloud.DefaultModel = model
	}
	if base := os.Getenv("MEMENTO_BASE_URL"); base != "" {
		c.Cloud.BaseURL = base
	}
	if offline := os.Getenv("MEMENTO_OFFLINE"); offline != "" {
		c.Offline.Forced = offline == "1" || strings.EqualFold(offline, "true")
	}
	if backend := os.Getenv("MEMENTO_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if dir := os.Getenv("MEMENTO_STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if addr := os.Getenv("MEMENTO_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("MEMENTO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value at a dotted key such as "cloud.default_model".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field at a dotted key.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: expected a boolean, got %q", key, value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", key, value)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: expected a number, got %q", key, value)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("%s: unsupported field type %s", key, field.Kind())
	}
	return nil
}

// lookup walks the struct by toml tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("invalid key %q, expected section.field", key)
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		next, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		v = next
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, errors.New("key names a section, not a field")
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]; tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Keys lists every settable dotted key.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}
