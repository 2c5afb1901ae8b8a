// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/config"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/render"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one prompt line. io.EOF ends the session.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close()
}

// historyReader edits lines with liner and keeps a history file.
type historyReader struct {
	line        *liner.State
	historyFile string
}

func newHistoryReader() *historyReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	h := &historyReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(h.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return h
}

func (h *historyReader) ReadLine(prompt string) (string, error) {
	input, err := h.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		h.line.AppendHistory(input)
	}
	return input, nil
}

// Close writes the history owner-only and restores the terminal.
func (h *historyReader) Close() {
	if err := os.MkdirAll(filepath.Dir(h.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(h.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = h.line.WriteHistory(f)
			f.Close()
		}
	}
	h.line.Close()
}

// plainReader reads piped input without echoing a prompt.
type plainReader struct {
	scanner *bufio.Scanner
}

func (p *plainReader) ReadLine(string) (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainReader) Close() {}

// =============================================================================
// CHAT REPL
// =============================================================================

const chatHelp = `Commands:
  /help     Show this help
  /clear    Clear the conversation
  /memory   Print the memory
  /quit     Leave (also /exit or Ctrl+D)

Ctrl+C stops a reply in progress; at the prompt it leaves.`

func (r *Runner) runChat(ctx context.Context, a *app.App) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	var in lineReader
	if r.Interactive {
		in = newHistoryReader()
	} else {
		in = &plainReader{scanner: bufio.NewScanner(r.In)}
	}
	defer in.Close()

	settings := a.Store.Settings()
	fmt.Fprintln(r.Out, TitleStyle.Render("MementoAI")+" "+DimStyle.Render(settings.Model))
	if !settings.HasAPIKey() {
		fmt.Fprintln(r.Out, WarningStyle.Render("No API key set. Run: memento config set cloud.api_key <key>"))
	}
	fmt.Fprintln(r.Out, DimStyle.Render("Type /help for commands."))

	prompt := "you> "
	if r.Interactive {
		prompt = PromptStyle.Render("you") + "> "
	}

	for {
		input, err := in.ReadLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.Out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.chatCommand(a, input); quit {
				return nil
			}
			continue
		}
		if count, over := render.CharCount(input); over {
			fmt.Fprintln(r.Err, ErrorStyle.Render("Message too long ("+count+" characters)"))
			continue
		}
		if err := r.chatTurn(ctx, a, input); err != nil {
			fmt.Fprintln(r.Err, ErrorStyle.Render("Error: "+userText(err)))
		}
	}
}

// chatCommand handles a slash command and reports whether to quit.
func (r *Runner) chatCommand(a *app.App, input string) bool {
	name, _, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	switch strings.ToLower(name) {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.Out, chatHelp)
	case "clear":
		if err := a.Store.ClearConversation(); err != nil {
			fmt.Fprintln(r.Err, ErrorStyle.Render("Error: "+err.Error()))
			break
		}
		fmt.Fprintln(r.Out, SuccessStyle.Render("Conversation cleared."))
	case "memory":
		if mem := a.Store.Memory(); mem != "" {
			fmt.Fprintln(r.Out, mem)
		} else {
			fmt.Fprintln(r.Out, DimStyle.Render(render.EmptyMemoryText))
		}
	default:
		fmt.Fprintln(r.Err, WarningStyle.Render("Unknown command: "+input+" (try /help)"))
	}
	return false
}

// chatTurn streams one reply to Out. An interrupt while streaming cancels
// the turn and keeps the partial reply.
func (r *Runner) chatTurn(ctx context.Context, a *app.App, input string) error {
	updates, err := a.Controller.Send(ctx, input)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			if a.Controller.Cancel() {
				a.Log.Info("reply cancelled by interrupt")
			}
		case <-done:
		}
	}()

	fmt.Fprint(r.Out, AssistantStyle.Render(render.AssistantSender)+": ")
	var final conversation.Update
	for u := range updates {
		if u.Delta != "" {
			fmt.Fprint(r.Out, u.Delta)
		}
		final = u
	}
	fmt.Fprintln(r.Out)

	switch {
	case final.Err == nil:
	case errors.Is(final.Err, context.Canceled):
		fmt.Fprintln(r.Out, WarningStyle.Render("[Cancelled]"))
	default:
		a.Log.Debug("chat turn failed", zap.Error(final.Err))
		if conversation.ReplyError(final.Content) {
			fmt.Fprintln(r.Out, ErrorStyle.Render(final.Content))
		}
	}
	return nil
}
