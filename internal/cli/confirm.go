// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfirmed is returned when a destructive command was declined.
var ErrNotConfirmed = errors.New("not confirmed")

// confirm asks a yes/no question on the runner's streams. --yes skips the
// question; without a terminal the answer is no.
func (r *Runner) confirm(yes bool, question string) error {
	if yes {
		return nil
	}
	if !r.Interactive {
		return fmt.Errorf("%w: pass --yes to %s without a terminal", ErrNotConfirmed, strings.ToLower(question))
	}

	fmt.Fprintf(r.Out, "%s [y/N]: ", WarningStyle.Render(question+"?"))
	line, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && line == "" {
		return ErrNotConfirmed
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return ErrNotConfirmed
}
