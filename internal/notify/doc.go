// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify schedules reminders and periodic notifications for the
// chat client and delivers them to whoever is listening.
//
// # Key Types
//
//   - Notification: a title/body pair with a tag naming its kind
//   - Notifier: a delivery target; Hub fans out to subscribers, LogNotifier
//     writes to the log and Multi combines targets
//   - Scheduler: one-shot timers persisted in the store and restored on start
//   - Periodic: milestone, daily, weekly and inactivity notifications
//
// # Usage
//
//	hub := notify.NewHub(log)
//	sched := notify.NewScheduler(store, hub, log)
//	if _, err := sched.Restore(); err != nil {
//		log.Warn("restore reminders", zap.Error(err))
//	}
//	periodic := notify.NewPeriodic(store, hub, assistant, sched, log)
//	controller.AddHook(periodic)
//	go periodic.Run(ctx, time.Hour)
package notify
