// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat screen of MementoAI.

The screen is a Bubble Tea program over the same components the web shell
uses: the storage.Store holds the conversation, the memory and the settings,
and the conversation.Controller runs each turn against OpenRouter.

# Key Components

## Model (model.go)

Model holds the viewport, the multi-line input and the state of the turn in
flight. It subscribes to the store change feed and to the notification hub,
so edits made through the web shell and delivered reminders show up live.

## Update Loop (update.go)

Keys, stream updates, notifications and command results. Enter sends,
Alt+Enter inserts a newline. Ctrl+C stops a reply or a running command and
quits otherwise.

## View Rendering (view.go)

Header with the model and the connection state, the transcript, a status
line with the character counter, and the input. Finished assistant replies
are rendered as markdown with glamour; the reply still streaming is shown
as wrapped text.

## Commands (commands.go)

Slash commands:
  - /help, /clear, /quit
  - /remember [text] - store the last reply, or text, in the memory
  - /memory [show|add|clear|search|stats|extract]
  - /summary, /actions, /insights, /suggest
  - /models, /model [id]
  - /reminders
  - /export [file] - json, md or html by extension

# Usage

	err := chat.Run(ctx, chat.Deps{
		Store:      store,
		Controller: controller,
		Assistant:  assistant,
	}, chat.Options{Theme: styles.NewTheme(cfg.UI.Theme)})
*/
package chat
