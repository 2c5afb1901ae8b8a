// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrOffline is returned when a network call is attempted while offline.
	ErrOffline = errors.New("offline: network unavailable")

	// ErrInvalidURLScheme is returned for probe URLs other than http(s).
	ErrInvalidURLScheme = errors.New("offline: only http and https probe URLs are allowed")
)

// =============================================================================
// MONITOR
// =============================================================================

// Options configures a Monitor.
type Options struct {
	// Forced pins the monitor offline; probes and SetOnline are ignored.
	Forced   bool
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Logger   *zap.Logger
}

// Monitor holds the current connectivity state.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	forced    bool
	lastProbe time.Time

	probeURL string
	interval time.Duration
	client   *http.Client
	log      *zap.Logger

	listeners []func(online bool)
}

// NewMonitor creates a monitor that starts out online unless forced.
func NewMonitor(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Monitor{
		online:   !opts.Forced,
		forced:   opts.Forced,
		probeURL: opts.ProbeURL,
		interval: opts.Interval,
		client:   opts.Client,
		log:      opts.Logger,
	}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Forced reports whether the monitor is pinned offline.
func (m *Monitor) Forced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forced
}

// Check returns ErrOffline when offline.
func (m *Monitor) Check() error {
	if !m.IsOnline() {
		return ErrOffline
	}
	return nil
}

// SetOnline records a state change and notifies listeners when it differs.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.forced {
		online = false
	}
	changed := m.online != online
	m.online = online
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		m.log.Info("connectivity changed", zap.Bool("online", online))
		for _, fn := range listeners {
			fn(online)
		}
	}
}

// SetForced pins or releases offline mode.
func (m *Monitor) SetForced(forced bool) {
	m.mu.Lock()
	m.forced = forced
	m.mu.Unlock()
	if forced {
		m.SetOnline(false)
	}
}

// OnChange registers a listener called after every state change.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// LastProbe returns when the last probe completed.
func (m *Monitor) LastProbe() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastProbe
}

// =============================================================================
// PROBING
// =============================================================================

// Probe issues one HEAD request to the probe URL. Any HTTP response counts
// as online; only transport failures mean offline.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.Forced() {
		return false
	}
	if err := ValidateProbeURL(m.probeURL); err != nil {
		m.log.Warn("probe skipped", zap.String("url", m.probeURL), zap.Error(err))
		return m.IsOnline()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return m.IsOnline()
	}
	resp, err := m.client.Do(req)

	m.mu.Lock()
	m.lastProbe = time.Now()
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return m.IsOnline()
		}
		m.log.Debug("probe failed", zap.Error(err))
		m.SetOnline(false)
		return false
	}
	resp.Body.Close()
	m.SetOnline(true)
	return true
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.probeURL == "" {
		return
	}
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// ValidateProbeURL accepts only absolute http(s) URLs.
func ValidateProbeURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURLScheme
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	return nil
}

// StatusIndicator returns "OFFLINE" while offline and "" otherwise.
func (m *Monitor) StatusIndicator() string {
	if m.IsOnline() {
		return ""
	}
	return "OFFLINE"
}
