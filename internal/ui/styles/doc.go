// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles of the terminal chat
screen.

All colors are lipgloss.AdaptiveColor values, so the same palette works on
light and dark terminals. NewTheme pins the background when the configured
theme is "dark" or "light" and asks the terminal (via termenv) otherwise.

# Key Types

  - Theme: the styles used by the chat view, plus the detected profile

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	label := theme.AssistantLabel.Render("MementoAI")
*/
package styles
