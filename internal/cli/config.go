// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mementoai/memento/internal/config"
)

const configUsage = "memento config [show|path|init|get|set|keys]"

// ConfigData is the data of "config get --json".
type ConfigData struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// runConfig dispatches the config subcommands. It works without opening the
// state store.
func (r *Runner) runConfig(args Args) error {
	p := NewArgParser(args.Raw, "force")
	sub := p.Subcommand()

	switch sub {
	case "", "show":
		cfg, err := r.loadConfig(args)
		if err != nil {
			return err
		}
		shown := *cfg
		shown.Cloud.APIKey = maskSecret(shown.Cloud.APIKey)
		if args.JSON {
			return r.printJSON("config", shown)
		}
		if path := r.configPath(args); path != "" {
			fmt.Fprintln(r.Out, DimStyle.Render("# "+path))
		} else {
			fmt.Fprintln(r.Out, DimStyle.Render("# built-in defaults"))
		}
		return toml.NewEncoder(r.Out).Encode(shown)

	case "path":
		path, err := r.editablePath(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return r.printJSON("config", ExportData{Path: path})
		}
		fmt.Fprintln(r.Out, path)
		return nil

	case "init":
		path, err := r.editablePath(args)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return &UsageError{Reason: path + " already exists", Usage: "memento config init --force"}
		}
		if err := config.Save(config.Default(), path); err != nil {
			return NewCommandError("config", "init", err)
		}
		return r.done(args, "config", "Wrote "+path)

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "memento config get <key>")
		}
		cfg, err := r.loadConfig(args)
		if err != nil {
			return err
		}
		value, err := cfg.Get(key)
		if err != nil {
			return &UsageError{Reason: err.Error(), Usage: "memento config keys"}
		}
		if key == "cloud.api_key" {
			value = maskSecret(fmt.Sprint(value))
		}
		if args.JSON {
			return r.printJSON("config", ConfigData{Key: key, Value: value})
		}
		fmt.Fprintln(r.Out, value)
		return nil

	case "set":
		key, value := p.Positional(1), JoinPositionalArgs(p, 2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "memento config set <key> <value>")
		}
		return r.setConfig(args, key, value)

	case "keys":
		keys := config.Keys()
		if args.JSON {
			return r.printJSON("config", keys)
		}
		fmt.Fprintln(r.Out, strings.Join(keys, "\n"))
		return nil
	}
	return ErrUnknownSubcommand("config", sub, configUsage)
}

// setConfig edits one key of the TOML file. Environment overrides are not
// written back.
func (r *Runner) setConfig(args Args, key, value string) error {
	path, err := r.editablePath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return NewCommandError("config", "read", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return NewCommandError("config", "read", err)
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Reason: err.Error(), Usage: "memento config keys"}
	}
	if err := cfg.Validate(); err != nil {
		return NewCommandError("config", "validate", err)
	}
	if err := config.Save(cfg, path); err != nil {
		return NewCommandError("config", "save", err)
	}
	shown := value
	if key == "cloud.api_key" {
		shown = maskSecret(value)
	}
	return r.done(args, "config", fmt.Sprintf("Set %s = %s", key, shown))
}

// editablePath is the TOML file config set and init write.
func (r *Runner) editablePath(args Args) (string, error) {
	path := args.ConfigPath
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".toml" && ext != "" {
		return "", &UsageError{Reason: "only TOML config files can be edited: " + path, Usage: configUsage}
	}
	return path, nil
}

// maskSecret keeps the first and last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
