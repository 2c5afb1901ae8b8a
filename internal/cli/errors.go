// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mementoai/memento/internal/cloud"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0
	// ExitError is returned for every failure.
	ExitError = 1
)

// GetExitCode maps err to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitError
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command action with context.
type CommandError struct {
	Command string // e.g. "memory"
	Action  string // e.g. "import"
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %s", e.Command, userText(e.Err))
	}
	return fmt.Sprintf("%s %s: %s", e.Command, e.Action, userText(e.Err))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is a malformed command line.
type UsageError struct {
	Reason string
	Usage  string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s\nUsage: %s", e.Reason, e.Usage)
}

// NewCommandError wraps err with the command and action.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &UsageError{Reason: "missing argument: " + argName, Usage: usage}
}

// ErrUnknownSubcommand reports a subcommand the command does not have.
func ErrUnknownSubcommand(command, sub, usage string) error {
	return &UsageError{Reason: fmt.Sprintf("unknown %s subcommand: %s", command, sub), Usage: usage}
}

// IsUsageError reports whether err is a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// userText prefers the friendly wording of completion errors.
func userText(err error) string {
	return cloud.UserMessage(err)
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON when jsonMode is set.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(NewJSONErrorResponse("", err))
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), userText(err))
}
