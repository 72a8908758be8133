// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config holds configuration for the registry.
type Config struct {
	// IdleTimeout closes a session after this long without input (default: 30 minutes)
	IdleTimeout time.Duration

	// WarningBefore is how long before the timeout to warn (default: 2 minutes)
	WarningBefore time.Duration

	// SweepInterval is how often Run checks for idle sessions (default: 15 seconds)
	SweepInterval time.Duration
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   30 * time.Minute,
		WarningBefore: 2 * time.Minute,
		SweepInterval: 15 * time.Second,
	}
}

// Info describes a live session.
type Info struct {
	ID          string `json:"id"`
	Persona     string `json:"persona"`
	Model       string `json:"model"`
	Language    string `json:"language"`
	JournalPath string `json:"-"`
}

type entry struct {
	info         Info
	started      time.Time
	lastActivity time.Time
	warned       bool
	cancel       context.CancelFunc
}

// Registry tracks live sessions. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	timeout       time.Duration
	warningBefore time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	onWarning func(id string, remaining time.Duration)
	onExpire  func(id string)
}

// NewRegistry creates an empty registry. Zero config fields take defaults.
func NewRegistry(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.WarningBefore < 0 || cfg.WarningBefore >= cfg.IdleTimeout {
		cfg.WarningBefore = 0
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Registry{
		entries:       make(map[string]*entry),
		timeout:       cfg.IdleTimeout,
		warningBefore: cfg.WarningBefore,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
	}
}

// =============================================================================
// CALLBACKS
// =============================================================================

// SetWarningCallback sets the function called once when a session nears its
// idle timeout.
func (r *Registry) SetWarningCallback(fn func(id string, remaining time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWarning = fn
}

// SetExpireCallback sets the function called after an idle session was
// cancelled and removed.
func (r *Registry) SetExpireCallback(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

// Add registers a session. cancel is called when the session expires. An
// existing entry with the same ID is replaced.
func (r *Registry) Add(info Info, cancel context.CancelFunc) error {
	if info.ID == "" {
		return fmt.Errorf("session id is required")
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.ID] = &entry{info: info, started: now, lastActivity: now, cancel: cancel}
	return nil
}

// Remove forgets a session. Its cancel function is not called.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns the info of a live session.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Touch records activity on a session.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.lastActivity = r.now()
		e.warned = false
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// =============================================================================
// EXPIRY
// =============================================================================

// Sweep warns sessions nearing the timeout and cancels the ones past it.
// It returns the expired IDs.
func (r *Registry) Sweep() []string {
	now := r.now()

	type warning struct {
		id        string
		remaining time.Duration
	}
	var warnings []warning
	var expired []*entry

	r.mu.Lock()
	for id, e := range r.entries {
		idle := now.Sub(e.lastActivity)
		switch {
		case idle >= r.timeout:
			expired = append(expired, e)
			delete(r.entries, id)
		case r.warningBefore > 0 && !e.warned && idle >= r.timeout-r.warningBefore:
			e.warned = true
			warnings = append(warnings, warning{id: id, remaining: r.timeout - idle})
		}
	}
	onWarning, onExpire := r.onWarning, r.onExpire
	r.mu.Unlock()

	// Callbacks run outside the lock
	if onWarning != nil {
		for _, w := range warnings {
			onWarning(w.id, w.remaining)
		}
	}
	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		if e.cancel != nil {
			e.cancel()
		}
		if onExpire != nil {
			onExpire(e.info.ID)
		}
		ids = append(ids, e.info.ID)
	}
	sort.Strings(ids)
	return ids
}

// Run sweeps periodically until ctx ends.
func (r *Registry) Run(ctx context.Context) {
	t := time.NewTicker(r.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a snapshot of one live session.
type Status struct {
	Info
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	IdleTime  time.Duration `json:"idle"`
	Remaining time.Duration `json:"remaining"`
}

// Statuses returns all live sessions, oldest first.
func (r *Registry) Statuses() []Status {
	now := r.now()
	r.mu.Lock()
	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		idle := now.Sub(e.lastActivity)
		remaining := r.timeout - idle
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, Status{
			Info:      e.info,
			Started:   e.started,
			Duration:  now.Sub(e.started),
			IdleTime:  idle,
			Remaining: remaining,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// FormatDuration returns a human-readable duration such as "5m 30s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
