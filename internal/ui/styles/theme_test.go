// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewTheme_ForcedBackground(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantDark bool
		glamour  string
	}{
		{"dark", ThemeDark, true, "dark"},
		{"DARK ", ThemeDark, true, "dark"},
		{"light", ThemeLight, false, "light"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme := NewTheme(tt.name)
			if theme.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", theme.Name, tt.wantName)
			}
			if theme.IsDark != tt.wantDark {
				t.Errorf("IsDark = %v, want %v", theme.IsDark, tt.wantDark)
			}
			if got := theme.GlamourStyle(); got != tt.glamour {
				t.Errorf("GlamourStyle() = %q, want %q", got, tt.glamour)
			}
		})
	}
}

func TestNewTheme_UnknownIsAuto(t *testing.T) {
	if got := NewTheme("neon").Name; got != ThemeAuto {
		t.Errorf("Name = %q, want %q", got, ThemeAuto)
	}
}

func TestThemeStylesKeepText(t *testing.T) {
	theme := NewTheme(ThemeDark)
	for text, out := range map[string]string{
		"You":       theme.UserLabel.Render("You"),
		"Reminder":  theme.Notification.Render("Reminder"),
		"2001/2000": theme.CharCountDanger.Render("2001/2000"),
	} {
		if !strings.Contains(out, text) {
			t.Errorf("Render(%q) = %q, text lost", text, out)
		}
	}
}
