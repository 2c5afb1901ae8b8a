// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components holds reusable pieces of the terminal UI.
//
// # Key Components
//
//   - ToastStack: auto-dismissing one-line toasts, newest first, shared by
//     pointer between copies of a Bubble Tea model
//   - RenderStack / RenderToast: draw the newest toast in the theme colors
//   - ExpireCmd: schedules the ToastExpiredMsg that removes a toast
//
// # Usage
//
//	toasts := components.NewToastStack(0)
//	t := toasts.Push(components.ToastNotification, "Reminder", "Call Bob")
//	cmd := components.ExpireCmd(t)
//	...
//	case components.ToastExpiredMsg:
//	    toasts.Dismiss(msg.ID)
package components
