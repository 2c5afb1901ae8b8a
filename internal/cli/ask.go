// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/util"
)

const askUsage = "memento ask <text>   (or pipe the text on stdin)"

// =============================================================================
// ASK
// =============================================================================

// AskData is the data of "ask --json".
type AskData struct {
	Model string `json:"model"`
	Reply string `json:"reply"`
}

// runAsk sends one turn of the stored conversation and prints the reply.
// Without arguments the message is read from a non-terminal stdin.
func (r *Runner) runAsk(ctx context.Context, a *app.App, args Args) error {
	text := JoinPositionalArgs(NewArgParser(args.Raw), 0)
	if text == "" && !r.Interactive && r.In != nil {
		data, err := io.ReadAll(r.In)
		if err != nil {
			return NewCommandError("ask", "read stdin", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return ErrMissingArgument("text", askUsage)
	}
	if count, over := render.CharCount(text); over {
		return &UsageError{Reason: "message too long (" + count + " characters)", Usage: askUsage}
	}

	updates, err := a.Controller.Send(ctx, text)
	if err != nil {
		return NewCommandError("ask", "send", err)
	}

	stream := !args.JSON
	var final conversation.Update
	for u := range updates {
		if stream && u.Delta != "" {
			fmt.Fprint(r.Out, u.Delta)
		}
		final = u
	}
	if stream {
		fmt.Fprintln(r.Out)
	}
	if final.Err != nil {
		return NewCommandError("ask", "reply", final.Err)
	}

	if args.JSON {
		return r.printJSON("ask", AskData{Model: a.Store.Settings().Model, Reply: final.Content})
	}
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

// runModels prints the model catalogue, free models first.
func (r *Runner) runModels(ctx context.Context, a *app.App, args Args) error {
	p := NewArgParser(args.Raw, "free")
	models, err := a.Client().ListModels(ctx)
	if err != nil {
		return NewCommandError("models", "list", err)
	}
	if p.BoolFlag("free") {
		free := models[:0]
		for _, m := range models {
			if m.IsFree() {
				free = append(free, m)
			}
		}
		models = free
	}

	if args.JSON {
		if models == nil {
			models = []cloud.ModelInfo{}
		}
		return r.printJSON("models", models)
	}
	if len(models) == 0 {
		fmt.Fprintln(r.Out, DimStyle.Render("No models available."))
		return nil
	}

	current := a.Store.Settings().Model
	width := GetTerminalWidth()
	for _, m := range models {
		line := m.ID
		if m.IsFree() {
			line += " " + SuccessStyle.Render("(free)")
		}
		if m.ID == current {
			line += " " + TitleStyle.Render("*")
		}
		fmt.Fprintln(r.Out, line)
		if m.Name != "" && m.Name != m.ID {
			fmt.Fprintln(r.Out, "  "+DimStyle.Render(util.TruncateWidth(m.Name, width-2)))
		}
	}
	fmt.Fprintln(r.Out, DimStyle.Render(fmt.Sprintf("%d models", len(models))))
	return nil
}

// =============================================================================
// VALIDATE
// =============================================================================

// runValidate checks the stored API key against the endpoint.
func (r *Runner) runValidate(ctx context.Context, a *app.App, args Args) error {
	client := a.Client()
	data := ValidateData{Model: client.Model(), APIKey: client.APIKeyMasked()}

	valid, err := client.ValidateAPIKey(ctx)
	if err != nil && !cloud.IsAuthError(err) {
		return NewCommandError("validate", "request", err)
	}
	data.Valid = valid

	if args.JSON {
		return r.printJSON("validate", data)
	}
	fmt.Fprintln(r.Out, RenderLabel("Model:")+data.Model)
	fmt.Fprintln(r.Out, RenderLabel("API key:")+data.APIKey)
	if !valid {
		fmt.Fprintln(r.Out, RenderLabel("Status:")+ErrorStyle.Render("rejected"))
		return NewCommandError("validate", "check key", err)
	}
	fmt.Fprintln(r.Out, RenderLabel("Status:")+SuccessStyle.Render("valid"))
	return nil
}

// =============================================================================
// CONVERSATION ANALYSIS
// =============================================================================

// AnalysisData is the data of "summary", "actions" and "insights" with
// --json. Summary fills Text; the others fill Items.
type AnalysisData struct {
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items"`
}

func (r *Runner) runAnalysis(ctx context.Context, a *app.App, cmd Command, args Args) error {
	var (
		name  string
		data  AnalysisData
		empty string
		err   error
	)
	switch cmd {
	case CmdSummary:
		name = "summary"
		data.Text, err = a.Assistant.Summarize(ctx)
	case CmdActions:
		name, empty = "actions", "No action items found."
		data.Items, err = a.Assistant.ExtractActionItems(ctx)
	default:
		name, empty = "insights", "No insights yet."
		data.Items, err = a.Assistant.GenerateInsights(ctx)
	}
	if err != nil {
		return NewCommandError(name, "request", err)
	}
	if data.Items == nil {
		data.Items = []string{}
	}

	if args.JSON {
		return r.printJSON(name, data)
	}
	if cmd == CmdSummary {
		fmt.Fprintln(r.Out, data.Text)
		return nil
	}
	if len(data.Items) == 0 {
		fmt.Fprintln(r.Out, DimStyle.Render(empty))
		return nil
	}
	for i, item := range data.Items {
		if cmd == CmdActions {
			fmt.Fprintf(r.Out, "%d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(r.Out, "- %s\n\n", item)
		}
	}
	return nil
}
