// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mementoai/memento/internal/conversation"
	"github.com/mementoai/memento/internal/notify"
	"github.com/mementoai/memento/internal/offline"
	"github.com/mementoai/memento/internal/storage"
	"github.com/mementoai/memento/internal/ui/components"
	"github.com/mementoai/memento/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Deps are the components the chat screen drives. Store and Controller are
// required.
type Deps struct {
	Store      *storage.Store
	Controller *conversation.Controller
	Assistant  *conversation.Assistant
	Clients    conversation.ClientFunc
	Scheduler  *notify.Scheduler
	Periodic   *notify.Periodic
	Hub        *notify.Hub
	Monitor    *offline.Monitor
}

// Options configures the chat screen.
type Options struct {
	Theme *styles.Theme
	// GlamourStyle overrides the markdown style picked from the theme.
	GlamourStyle string
	// ExportDir receives /export files given without a directory.
	ExportDir string
	Version   string
	Logger    *zap.Logger
}

// =============================================================================
// TRANSCRIPT ENTRIES
// =============================================================================

type entryKind int

const (
	entryInfo entryKind = iota
	entryError
	entryNotification
)

// localEntry is output shown in the transcript but not stored in the
// conversation: command results and notifications. It is drawn after the
// message at index After-1.
type localEntry struct {
	After int
	Kind  entryKind
	Title string
	Body  string
	At    time.Time
}

// maxLocalEntries bounds the local output kept on screen.
const maxLocalEntries = 50

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	deps  Deps
	opts  Options
	ctx   context.Context
	theme *styles.Theme
	log   *zap.Logger
	keys  KeyMap

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	showHelp bool
	md       *markdown

	entries []localEntry

	// Turn in flight
	updates     <-chan conversation.Update
	busy        bool
	streamIndex int

	commands *cancelManager

	status    string
	statusErr bool
	toasts    *components.ToastStack

	notes        <-chan notify.Notification
	unsubNotes   func()
	changes      <-chan storage.Change
	unsubChanges func()
}

// New creates the chat model and subscribes it to the store and the hub.
// Call Close when the program ends.
func New(ctx context.Context, deps Deps, opts Options) (Model, error) {
	if deps.Store == nil || deps.Controller == nil {
		return Model{}, errors.New("chat: store and controller are required")
	}
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ThemeAuto)
	}
	if opts.GlamourStyle == "" {
		opts.GlamourStyle = opts.Theme.GlamourStyle()
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Type your message... (/help for commands)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = opts.Theme.Spinner

	m := Model{
		deps:        deps,
		opts:        opts,
		ctx:         ctx,
		theme:       opts.Theme,
		log:         log.Named("tui"),
		keys:        DefaultKeyMap(),
		viewport:    viewport.New(80, 20),
		input:       ta,
		spinner:     sp,
		help:        help.New(),
		md:          newMarkdown(opts.GlamourStyle),
		streamIndex: -1,
		commands:    newCancelManager(),
		toasts:      components.NewToastStack(0),
	}
	m.changes, m.unsubChanges = deps.Store.Subscribe()
	if deps.Hub != nil {
		m.notes, m.unsubNotes = deps.Hub.Subscribe(notify.DefaultSubscriberBuffer)
	}
	return m, nil
}

// Close ends the subscriptions and cancels background commands.
func (m Model) Close() {
	m.commands.stop()
	if m.unsubChanges != nil {
		m.unsubChanges()
	}
	if m.unsubNotes != nil {
		m.unsubNotes()
	}
}

// Busy reports whether a reply is in flight.
func (m Model) Busy() bool {
	return m.busy
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink and the store and hub listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		listenStore(m.changes),
		listenNotifications(m.notes),
	)
}

// Run shows the chat screen until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps, opts Options) error {
	m, err := New(ctx, deps, opts)
	if err != nil {
		return err
	}
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
