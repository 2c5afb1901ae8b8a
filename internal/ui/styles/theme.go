// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeAuto  = "auto"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style
	Online      lipgloss.Style
	Offline     lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	UserText       lipgloss.Style
	SystemText     lipgloss.Style
	Timestamp      lipgloss.Style
	ErrorText      lipgloss.Style
	Welcome        lipgloss.Style

	// ==========================================================================
	// NOTIFICATIONS AND STATUS
	// ==========================================================================

	Notification      lipgloss.Style
	NotificationTitle lipgloss.Style
	StatusBar         lipgloss.Style
	StatusBusy        lipgloss.Style
	Spinner           lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	Input           lipgloss.Style
	CharCount       lipgloss.Style
	CharCountDanger lipgloss.Style
	Help            lipgloss.Style
	Muted           lipgloss.Style
}

// NewTheme builds a theme. "dark" and "light" force the background;
// anything else asks the terminal.
func NewTheme(name string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ThemeDark:
		name, isDark = ThemeDark, true
	case ThemeLight:
		name, isDark = ThemeLight, false
	default:
		name, isDark = ThemeAuto, termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{Name: name, IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderMeta = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Online = lipgloss.NewStyle().Foreground(Emerald)
	t.Offline = lipgloss.NewStyle().Bold(true).Foreground(Rose)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.UserText = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.SystemText = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true).
		PaddingLeft(2)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.Welcome = lipgloss.NewStyle().
		Foreground(TextSecondary).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.Notification = lipgloss.NewStyle().
		Foreground(NotificationFg).
		Background(NotificationBg).
		Padding(0, 1)
	t.NotificationTitle = t.Notification.Bold(true).PaddingRight(0)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Amber)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.CharCount = lipgloss.NewStyle().Foreground(TextMuted)
	t.CharCountDanger = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
}

// GlamourStyle returns the glamour style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
