// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// BACKGROUND COMMAND CANCELLATION
// =============================================================================

// cancelManager holds the cancel function of the running background
// command. Model copies share one manager through a pointer so the mutex is
// never copied.
type cancelManager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	label  string
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// start derives a context for a new command, cancelling the previous one.
func (cm *cancelManager) start(parent context.Context, label string) context.Context {
	ctx, cancel := context.WithCancel(parent)
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancel != nil {
		cm.cancel()
	}
	cm.cancel = cancel
	cm.label = label
	return ctx
}

// running returns the label of the running command, or "".
func (cm *cancelManager) running() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.label
}

// stop cancels the running command. It reports whether one was running.
func (cm *cancelManager) stop() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancel == nil {
		return false
	}
	cm.cancel()
	cm.cancel = nil
	cm.label = ""
	return true
}

// done clears the command labelled label once it finished, unless a newer
// command replaced it.
func (cm *cancelManager) done(label string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.label == label && cm.cancel != nil {
		cm.cancel()
		cm.cancel = nil
		cm.label = ""
	}
}
