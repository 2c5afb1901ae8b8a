// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mementoai/memento/internal/cloud"
	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/export"
	"github.com/mementoai/memento/internal/render"
	"github.com/mementoai/memento/internal/storage"
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Command is a slash command of the chat screen.
type Command struct {
	Name        string
	Usage       string
	Description string
	run         func(m Model, args string) (Model, tea.Cmd)
}

// maxListedModels bounds the /models output.
const maxListedModels = 30

var errNoAssistant = errors.New("assistant not available")

// Commands returns the slash commands in help order.
func Commands() []Command {
	return []Command{
		{Name: "help", Usage: "/help", Description: "Show this help", run: cmdHelp},
		{Name: "clear", Usage: "/clear", Description: "Clear the conversation", run: cmdClear},
		{Name: "remember", Usage: "/remember [text]", Description: "Remember the last reply, or text", run: cmdRemember},
		{Name: "memory", Usage: "/memory [show|add|clear|search|stats|extract]", Description: "Show or edit the memory", run: cmdMemory},
		{Name: "summary", Usage: "/summary", Description: "Summarize the conversation", run: cmdSummary},
		{Name: "actions", Usage: "/actions", Description: "Extract action items", run: cmdActions},
		{Name: "insights", Usage: "/insights", Description: "Generate insights", run: cmdInsights},
		{Name: "suggest", Usage: "/suggest", Description: "Suggest facts to remember", run: cmdSuggest},
		{Name: "models", Usage: "/models", Description: "List available models", run: cmdModels},
		{Name: "model", Usage: "/model [id]", Description: "Show or switch the model", run: cmdModel},
		{Name: "reminders", Usage: "/reminders", Description: "List scheduled reminders", run: cmdReminders},
		{Name: "export", Usage: "/export [file]", Description: "Export as json, md or html", run: cmdExport},
		{Name: "quit", Usage: "/quit", Description: "Exit", run: cmdQuit},
	}
}

// ParseCommand splits "/name args" into a lower-case name and the trimmed
// arguments.
func ParseCommand(input string) (name, args string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, args, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func lookupCommand(name string) (Command, bool) {
	for _, c := range Commands() {
		if c.Name == name {
			return c, true
		}
	}
	// "exit" is accepted as an alias.
	if name == "exit" {
		return lookupCommand("quit")
	}
	return Command{}, false
}

// runCommand executes a slash command line.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, args := ParseCommand(line)
	c, ok := lookupCommand(name)
	if !ok {
		m.setStatus(fmt.Sprintf("Unknown command: /%s (try /help)", name), true)
		return m, nil
	}
	next, cmd := c.run(m, args)
	next.refresh()
	return next, cmd
}

// background runs fn off the update loop and reports its result as a
// CommandResultMsg. A newer background command cancels the older one.
func (m Model) background(name, status string, fn func(ctx context.Context) (string, error)) (Model, tea.Cmd) {
	ctx := m.commands.start(m.ctx, name)
	m.setStatus(status, false)
	run := func() tea.Msg {
		out, err := fn(ctx)
		return CommandResultMsg{Command: name, Output: out, Err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// withAssistant is background for commands that need the assistant.
func (m Model) withAssistant(name, status string, fn func(ctx context.Context, a *conversation.Assistant) (string, error)) (Model, tea.Cmd) {
	a := m.deps.Assistant
	if a == nil {
		m.setStatus(errNoAssistant.Error(), true)
		return m, nil
	}
	return m.background(name, status, func(ctx context.Context) (string, error) {
		return fn(ctx, a)
	})
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func cmdHelp(m Model, _ string) (Model, tea.Cmd) {
	var b strings.Builder
	for _, c := range Commands() {
		fmt.Fprintf(&b, "- `%s` %s\n", c.Usage, c.Description)
	}
	b.WriteString("\nEnter sends, Alt+Enter inserts a newline, Ctrl+C stops a reply.")
	m.addEntry(entryInfo, "help", b.String())
	return m, nil
}

func cmdClear(m Model, _ string) (Model, tea.Cmd) {
	if m.busy {
		m.setStatus("Please wait for the current reply.", true)
		return m, nil
	}
	if err := m.deps.Store.ClearConversation(); err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.entries = nil
	m.md.forget()
	m.setStatus("Conversation cleared.", false)
	return m, nil
}

// cmdRemember stores text, or the last assistant reply, in the memory.
func cmdRemember(m Model, args string) (Model, tea.Cmd) {
	text := args
	if text == "" {
		msgs := m.deps.Store.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == storage.RoleAssistant && strings.TrimSpace(msgs[i].Content) != "" {
				text = msgs[i].Content
				break
			}
		}
	}
	if text == "" {
		m.setStatus("Nothing to remember yet.", true)
		return m, nil
	}
	if err := m.deps.Store.UpdateMemory(text); err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.setStatus("Saved to memory.", false)
	return m, nil
}

func cmdQuit(m Model, _ string) (Model, tea.Cmd) {
	next, cmd := m.quit()
	return next.(Model), cmd
}

// =============================================================================
// MEMORY COMMANDS
// =============================================================================

func cmdMemory(m Model, args string) (Model, tea.Cmd) {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)
	store := m.deps.Store

	switch strings.ToLower(sub) {
	case "", "show":
		memory := store.Memory()
		if strings.TrimSpace(memory) == "" {
			memory = render.EmptyMemoryText
		}
		m.addEntry(entryInfo, "memory", memory+"\n\n_"+formatStats(store.MemoryStats())+"_")

	case "add":
		if rest == "" {
			m.setStatus("Usage: /memory add <text>", true)
			return m, nil
		}
		if err := store.UpdateMemory(rest); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("Saved to memory.", false)

	case "clear":
		if err := store.ClearMemory(); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("Memory cleared.", false)

	case "search":
		if rest == "" {
			m.setStatus("Usage: /memory search <query>", true)
			return m, nil
		}
		results := store.SearchMemory(rest)
		if len(results) == 0 {
			m.setStatus(fmt.Sprintf("No memory matches %q.", rest), false)
			return m, nil
		}
		m.addEntry(entryInfo, "memory search", bulletList(results))

	case "stats":
		m.setStatus(formatStats(store.MemoryStats()), false)

	case "extract":
		return m.withAssistant("memory extract", "Extracting memory...", func(ctx context.Context, a *conversation.Assistant) (string, error) {
			text, err := a.SaveExtractedMemory(ctx)
			if err != nil {
				return "", err
			}
			return "Saved to memory:\n\n" + text, nil
		})

	default:
		m.setStatus("Usage: /memory [show|add|clear|search|stats|extract]", true)
	}
	return m, nil
}

func formatStats(s storage.MemoryStats) string {
	return fmt.Sprintf("%d characters, %d words, %d paragraphs", s.Characters, s.Words, s.Paragraphs)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(it, "\n", " "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// ASSISTANT COMMANDS
// =============================================================================

func cmdSummary(m Model, _ string) (Model, tea.Cmd) {
	return m.withAssistant("summary", "Summarizing...", func(ctx context.Context, a *conversation.Assistant) (string, error) {
		return a.Summarize(ctx)
	})
}

func cmdActions(m Model, _ string) (Model, tea.Cmd) {
	return m.withAssistant("actions", "Extracting action items...", func(ctx context.Context, a *conversation.Assistant) (string, error) {
		items, err := a.ExtractActionItems(ctx)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			return "No action items found.", nil
		}
		return numberedList(items), nil
	})
}

func cmdInsights(m Model, _ string) (Model, tea.Cmd) {
	return m.withAssistant("insights", "Generating insights...", func(ctx context.Context, a *conversation.Assistant) (string, error) {
		insights, err := a.GenerateInsights(ctx)
		if err != nil {
			return "", err
		}
		if len(insights) == 0 {
			return "No insights yet.", nil
		}
		return strings.Join(insights, "\n\n"), nil
	})
}

func cmdSuggest(m Model, _ string) (Model, tea.Cmd) {
	return m.withAssistant("suggest", "Looking for things to remember...", func(ctx context.Context, a *conversation.Assistant) (string, error) {
		suggestions, err := a.MemorySuggestions(ctx)
		if err != nil {
			return "", err
		}
		if len(suggestions) == 0 {
			return "No suggestions yet.", nil
		}
		return bulletList(suggestions) + "\n\nUse `/remember <text>` to keep one.", nil
	})
}

// =============================================================================
// MODEL COMMANDS
// =============================================================================

func cmdModels(m Model, _ string) (Model, tea.Cmd) {
	if m.deps.Clients == nil {
		m.setStatus("Model listing not available.", true)
		return m, nil
	}
	client := m.deps.Clients(m.deps.Store.Settings())
	current := m.deps.Store.Settings().Model
	return m.background("models", "Loading models...", func(ctx context.Context) (string, error) {
		models, err := client.ListModels(ctx)
		if err != nil {
			return "", err
		}
		return formatModels(models, current), nil
	})
}

func formatModels(models []cloud.ModelInfo, current string) string {
	if len(models) == 0 {
		return "No models available."
	}
	var b strings.Builder
	for i, mi := range models {
		if i == maxListedModels {
			fmt.Fprintf(&b, "\n... and %d more", len(models)-maxListedModels)
			break
		}
		fmt.Fprintf(&b, "- `%s`", mi.ID)
		if mi.Name != "" && mi.Name != mi.ID {
			fmt.Fprintf(&b, " %s", mi.Name)
		}
		if mi.IsFree() {
			b.WriteString(" (free)")
		}
		if mi.ID == current {
			b.WriteString(" **current**")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cmdModel(m Model, args string) (Model, tea.Cmd) {
	if args == "" {
		m.setStatus("Model: "+m.deps.Store.Settings().Model, false)
		return m, nil
	}
	if _, err := m.deps.Store.UpdateSettings(func(s *storage.Settings) { s.Model = args }); err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.setStatus("Model set to "+args, false)
	return m, nil
}

// =============================================================================
// REMINDERS AND EXPORT
// =============================================================================

func cmdReminders(m Model, _ string) (Model, tea.Cmd) {
	var b strings.Builder
	if m.deps.Scheduler != nil {
		for _, e := range m.deps.Scheduler.Pending() {
			fmt.Fprintf(&b, "- %s **%s** %s\n", e.Date.Local().Format("2006-01-02 15:04"), e.Title, e.Message)
		}
	}
	reminders, err := m.deps.Store.MemoryReminders()
	if err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	for _, r := range reminders {
		fmt.Fprintf(&b, "- %s %s\n", r.Date.Local().Format("2006-01-02"), r.Text)
	}
	if b.Len() == 0 {
		m.setStatus("No reminders scheduled.", false)
		return m, nil
	}
	m.addEntry(entryInfo, "reminders", strings.TrimRight(b.String(), "\n"))
	return m, nil
}

// cmdExport writes the state to a file. The format follows the extension;
// without a file name a dated json file goes to the export directory.
func cmdExport(m Model, args string) (Model, tea.Cmd) {
	opts := export.DefaultOptions()
	opts.OutputDir = m.opts.ExportDir
	snap := m.deps.Store.Snapshot()

	if args == "" {
		path, err := export.ExportToFile(snap, export.NewJSONExporter(), opts)
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("Exported to "+path, false)
		return m, nil
	}

	exp, err := export.ForFormat(strings.TrimPrefix(filepath.Ext(args), "."), opts)
	if err != nil {
		m.setStatus("Unknown export format; use .json, .md or .html", true)
		return m, nil
	}
	path := args
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(m.opts.ExportDir, path)
	}
	if err := export.ExportToPath(snap, exp, path); err != nil {
		m.setStatus(cloud.UserMessage(err), true)
		return m, nil
	}
	m.setStatus("Exported to "+path, false)
	return m, nil
}
