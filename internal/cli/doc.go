// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the memento command line and runs its commands.
//
// With no command memento opens the full-screen chat. The other commands
// run the same components without a screen: a line-mode chat with input
// history, one-shot ask, memory editing, analysis of the conversation,
// export and import of the stored state, configuration editing, and the
// HTTP server for the web app.
//
// # Key Types
//
//   - Command: the command to run, from Parse
//   - Args: global flags (--json, --model, --yes, --verbose, --config,
//     --ephemeral) plus the remaining arguments
//   - ArgParser: subcommand flags and positional arguments
//   - Runner: executes commands against injectable streams
//   - JSONResponse: the --json envelope
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Main(os.Args[1:]))
//	}
//
// Every failure exits with status 1 and prints "Error: ..." to stderr, or a
// JSON envelope with success=false under --json.
package cli
