// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information, set from main.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdServe
	CmdChat
	CmdAsk
	CmdModels
	CmdValidate
	CmdMemory
	CmdSummary
	CmdActions
	CmdInsights
	CmdExport
	CmdImport
	CmdReset
	CmdClear
	CmdConfig
	CmdVersion
	CmdHelp
)

// commandNames maps each spelling to its command.
var commandNames = map[string]Command{
	"tui":       CmdTUI,
	"serve":     CmdServe,
	"server":    CmdServe,
	"chat":      CmdChat,
	"ask":       CmdAsk,
	"models":    CmdModels,
	"validate":  CmdValidate,
	"memory":    CmdMemory,
	"mem":       CmdMemory,
	"summary":   CmdSummary,
	"actions":   CmdActions,
	"insights":  CmdInsights,
	"export":    CmdExport,
	"import":    CmdImport,
	"reset":     CmdReset,
	"clear":     CmdClear,
	"config":    CmdConfig,
	"version":   CmdVersion,
	"--version": CmdVersion,
	"help":      CmdHelp,
	"-h":        CmdHelp,
	"--help":    CmdHelp,
}

// Args holds the parsed command line.
type Args struct {
	// Global flags
	JSON    bool
	Verbose bool
	Yes     bool
	Model   string
	// Ephemeral keeps all state in memory for this run.
	Ephemeral bool
	// ConfigPath loads this file instead of the default lookup.
	ConfigPath string

	// Raw holds the arguments after the command name.
	Raw []string
}

const usageText = `memento - MementoAI, a chat client with a persistent memory

Usage:
  memento                          Start the terminal chat (default)
  memento tui                      Start the terminal chat
  memento serve                    Serve the web app and JSON API
  memento chat                     Line-mode chat (history with arrow keys)
  memento ask <text>               Send one message and print the reply
  memento models [--free]          List available models
  memento validate                 Test the API key and model
  memento memory [subcommand]      Show or edit the memory
  memento summary                  Summarize the conversation
  memento actions                  Extract action items
  memento insights                 Generate insights
  memento export [--format F] [--output FILE]
                                   Export as json (default), md or html
  memento import <file>            Import a json export
  memento clear                    Clear the conversation
  memento reset                    Delete all data
  memento config [subcommand]      Show or edit the configuration
  memento version                  Show version information

Memory Commands:
  memento memory show              Print the memory (default)
  memento memory add <text>        Append a paragraph
  memento memory search <query>    Print matching paragraphs
  memento memory stats             Characters, words and paragraphs
  memento memory clear             Delete the memory
  memento memory export [file]     Write memento_memory_<date>.txt
  memento memory import <file>     Replace the memory with a text file
  memento memory extract           Ask the model what to remember

Config Commands:
  memento config show              Print the effective configuration
  memento config path              Print the config file path
  memento config init              Write a default config file
  memento config get <key>         Print one value, e.g. cloud.default_model
  memento config set <key> <value> Change one value
  memento config keys              List the settable keys

Global Flags:
  --json                           Machine-readable output
  -m, --model <id>                 Switch the stored model first
  -y, --yes                        Skip confirmation prompts
  -v, --verbose                    Log to stderr as well
  --config <file>                  Use this config file
  --ephemeral                      Keep state in memory only

Environment:
  MEMENTO_HOME                     State and config directory (~/.memento)
  MEMENTO_API_KEY                  OpenRouter API key
  MEMENTO_MODEL                    Default model
  MEMENTO_OFFLINE                  1 to stay offline

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "memento version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// Parse splits argv (without the program name) into the command and its
// arguments. Global flags may appear anywhere.
func Parse(argv []string) (Command, Args, error) {
	var (
		args Args
		rest []string
	)
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "-y" || arg == "--yes":
			args.Yes = true
		case arg == "--ephemeral":
			args.Ephemeral = true
		case arg == "-m" || arg == "--model" || arg == "--config":
			if i+1 >= len(argv) {
				return CmdHelp, args, ErrMissingArgument(arg, arg+" <value>")
			}
			i++
			if arg == "--config" {
				args.ConfigPath = argv[i]
			} else {
				args.Model = argv[i]
			}
		case strings.HasPrefix(arg, "--model="):
			args.Model = strings.TrimPrefix(arg, "--model=")
		case strings.HasPrefix(arg, "--config="):
			args.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}

	if len(rest) == 0 {
		return CmdTUI, args, nil
	}
	cmd, ok := commandNames[strings.ToLower(rest[0])]
	if !ok {
		return CmdHelp, args, &UsageError{Reason: "unknown command: " + rest[0], Usage: "memento help"}
	}
	args.Raw = rest[1:]
	return cmd, args, nil
}
