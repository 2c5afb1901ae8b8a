// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// TYPES
// =============================================================================

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("conversation: message is empty")

	// ErrBusy is returned when a reply is already streaming.
	ErrBusy = errors.New("conversation: a reply is already in progress")
)

// ClientFunc builds a completion client for the current settings. It is
// called once per turn so key and model changes take effect immediately.
type ClientFunc func(storage.Settings) *cloud.Client

// Hook observes finished turns. AfterReply runs only for successful replies.
type Hook interface {
	AfterReply(ctx context.Context, reply string)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, reply string)

// AfterReply calls f.
func (f HookFunc) AfterReply(ctx context.Context, reply string) { f(ctx, reply) }

// Update reports progress on the assistant message at Index. The last
// update of a turn has Done set; Err is non-nil if the turn failed.
type Update struct {
	Index   int
	Delta   string
	Content string
	Done    bool
	Err     error
}

// Options configures a Controller.
type Options struct {
	// Stream selects SSE streaming; otherwise one update carries the reply.
	Stream bool
	Logger *zap.Logger
	Hooks  []Hook
}

// Controller runs chat turns against a store. Only one turn may be in
// flight at a time.
type Controller struct {
	store   *storage.Store
	clients ClientFunc
	stream  bool
	log     *zap.Logger

	hookMu sync.RWMutex
	hooks  []Hook

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	turns  sync.WaitGroup
}

// NewController creates a controller.
func NewController(store *storage.Store, clients ClientFunc, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:   store,
		clients: clients,
		stream:  opts.Stream,
		log:     log.Named("conversation"),
		hooks:   opts.Hooks,
	}
}

// AddHook registers h for subsequent turns.
func (c *Controller) AddHook(h Hook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Cancel stops the turn in flight, if any. The partial reply is kept.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// WaitIdle blocks until the turn in flight, including its save and hooks,
// has finished, or ctx is done.
func (c *Controller) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		c.turns.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send records text as a user message, appends an empty assistant message
// and fills it from the completion endpoint in the background. The returned
// channel yields updates and closes after the Done update; it must be
// drained (see Wait) unless ctx is cancelled. Failures after
// this call returns are reported through the channel and stored as the
// assistant's reply.
func (c *Controller) Send(ctx context.Context, text string) (<-chan Update, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.turns.Add(1)
	c.mu.Unlock()

	release := func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.cancel = nil
		c.mu.Unlock()
		c.turns.Done()
	}

	// Writes for this turn only land in the conversation it started in.
	gen := c.store.Generation()
	if _, err := c.store.AppendMessage(storage.Message{Role: storage.RoleUser, Content: text}); err != nil {
		release()
		return nil, fmt.Errorf("record message: %w", err)
	}
	history := c.store.Messages()

	index, err := c.store.AppendMessage(storage.Message{Role: storage.RoleAssistant})
	if err != nil {
		release()
		return nil, fmt.Errorf("record reply: %w", err)
	}

	settings := c.store.Settings()
	req := BuildRequest(settings, c.store.Memory(), history)

	updates := make(chan Update, 16)
	go func() {
		defer close(updates)
		defer release()
		c.run(ctx, turnCtx, settings, req, turn{gen: gen, index: index}, updates)
	}()
	return updates, nil
}

// turn locates the assistant placeholder being filled.
type turn struct {
	gen   uint64
	index int
}

// setContent writes the placeholder. It reports false once the conversation
// has been replaced; other failures are logged.
func (c *Controller) setContent(t turn, content string) bool {
	err := c.store.SetMessageContentFor(t.gen, t.index, content)
	if errors.Is(err, storage.ErrConversationReplaced) {
		return false
	}
	if err != nil {
		c.log.Warn("placeholder update failed", zap.Int("index", t.index), zap.Error(err))
	}
	return true
}

// run performs the request and finalizes the placeholder. parent is the
// caller's context; ctx is the turn's own, cancelled by Cancel.
func (c *Controller) run(parent, ctx context.Context, settings storage.Settings, req cloud.Request, t turn, updates chan<- Update) {
	client := c.clients(settings)

	var (
		reply string
		err   error
	)
	if c.stream {
		reply, err = c.streamReply(ctx, client, req, t, updates)
	} else {
		reply, err = client.Chat(ctx, req)
	}

	replaced := errors.Is(err, storage.ErrConversationReplaced)
	final := reply
	if err != nil && !replaced {
		if errors.Is(err, context.Canceled) && strings.TrimSpace(reply) != "" {
			c.log.Info("reply cancelled", zap.Int("chars", len(reply)))
		} else {
			c.log.Warn("reply failed", zap.Error(err))
			final = ErrorReplyPrefix + cloud.UserMessage(err)
		}
	}
	if replaced || !c.setContent(t, final) {
		c.log.Info("conversation replaced during reply, dropping it", zap.Int("index", t.index))
		c.sendFinal(parent, updates, Update{Index: t.index, Content: final, Done: true, Err: storage.ErrConversationReplaced})
		return
	}
	if !c.stream && err == nil {
		c.send(ctx, updates, Update{Index: t.index, Delta: reply, Content: reply})
	}

	if serr := c.store.SaveConversation(); serr != nil {
		c.log.Error("failed to save conversation", zap.Error(serr))
		if err == nil {
			err = serr
		}
	}

	// Hooks outlive a cancelled turn context.
	if err == nil {
		hookCtx := context.WithoutCancel(ctx)
		c.hookMu.RLock()
		hooks := append([]Hook(nil), c.hooks...)
		c.hookMu.RUnlock()
		for _, h := range hooks {
			h.AfterReply(hookCtx, final)
		}
	}

	c.sendFinal(parent, updates, Update{Index: t.index, Content: final, Done: true, Err: err})
}

func (c *Controller) streamReply(ctx context.Context, client *cloud.Client, req cloud.Request, t turn, updates chan<- Update) (string, error) {
	stream, err := client.ChatStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	for d := range stream.Events() {
		if !c.setContent(t, d.Text) {
			return d.Text, storage.ErrConversationReplaced
		}
		c.send(ctx, updates, Update{Index: t.index, Delta: d.Content, Content: d.Text})
	}
	text, err := stream.Wait()
	if n := stream.Skipped(); n > 0 {
		c.log.Debug("malformed stream payloads skipped", zap.Int("count", n))
	}
	return text, err
}

// send delivers u unless the turn was cancelled.
func (c *Controller) send(ctx context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-ctx.Done():
	}
}

// sendFinal delivers the Done update unless the caller's context is gone.
// A turn cancelled through Cancel still reports its final state.
func (c *Controller) sendFinal(parent context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-parent.Done():
		c.log.Debug("final update dropped, caller gone")
	}
}

// Wait drains updates and returns the final one.
func Wait(updates <-chan Update) Update {
	var last Update
	for u := range updates {
		last = u
	}
	return last
}
