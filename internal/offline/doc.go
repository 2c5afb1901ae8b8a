// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline tracks whether the completion endpoint is reachable.
//
// A Monitor is an explicit object shared by the completion client and the
// renderers. It can be pinned offline by configuration, flipped manually,
// or kept current by a background probe.
//
// # Usage
//
//	mon := offline.NewMonitor(offline.Options{ProbeURL: cfg.Offline.ProbeURL})
//	go mon.Run(ctx)
//
//	if err := mon.Check(); err != nil {
//		return err // offline.ErrOffline
//	}
package offline
