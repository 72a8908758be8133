// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(Config{IdleTimeout: 10 * time.Minute, WarningBefore: 2 * time.Minute, SweepInterval: time.Second})
	r.now = clock.Now
	return r, clock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %v, want 30m", cfg.IdleTimeout)
	}
	if cfg.WarningBefore != 2*time.Minute {
		t.Errorf("WarningBefore = %v, want 2m", cfg.WarningBefore)
	}
}

func TestNewRegistry_FillsDefaults(t *testing.T) {
	r := NewRegistry(Config{WarningBefore: time.Hour})
	if r.timeout != 30*time.Minute {
		t.Errorf("timeout = %v, want default", r.timeout)
	}
	if r.warningBefore != 0 {
		t.Errorf("warning longer than the timeout should be disabled, got %v", r.warningBefore)
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(Info{}, nil); err == nil {
		t.Error("Add without id should fail")
	}
	if err := r.Add(Info{ID: "a", Persona: "Pirate"}, nil); err != nil {
		t.Fatal(err)
	}
	info, ok := r.Get("a")
	if !ok || info.Persona != "Pirate" {
		t.Errorf("Get(a) = %+v, %v", info, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	r.Remove("a")
	if _, ok := r.Get("a"); ok {
		t.Error("Get after Remove should miss")
	}
}

func TestRegistry_SweepWarnsThenExpires(t *testing.T) {
	r, clock := newTestRegistry()

	var warned []string
	var expiredCB []string
	r.SetWarningCallback(func(id string, remaining time.Duration) {
		warned = append(warned, fmt.Sprintf("%s:%s", id, FormatDuration(remaining)))
	})
	r.SetExpireCallback(func(id string) { expiredCB = append(expiredCB, id) })

	cancelled := map[string]bool{}
	for _, id := range []string{"idle", "busy"} {
		id := id
		r.Add(Info{ID: id}, func() { cancelled[id] = true })
	}

	clock.Advance(8*time.Minute + 30*time.Second)
	r.Touch("busy")
	if got := r.Sweep(); len(got) != 0 {
		t.Errorf("Sweep() expired %v too early", got)
	}
	if len(warned) != 1 || warned[0] != "idle:1m 30s" {
		t.Errorf("warnings = %v, want [idle:1m 30s]", warned)
	}

	// A warning is sent once
	r.Sweep()
	if len(warned) != 1 {
		t.Errorf("warnings repeated: %v", warned)
	}

	clock.Advance(2 * time.Minute)
	got := r.Sweep()
	if len(got) != 1 || got[0] != "idle" {
		t.Errorf("Sweep() = %v, want [idle]", got)
	}
	if !cancelled["idle"] || cancelled["busy"] {
		t.Errorf("cancelled = %v", cancelled)
	}
	if len(expiredCB) != 1 || expiredCB[0] != "idle" {
		t.Errorf("expire callbacks = %v", expiredCB)
	}
	if _, ok := r.Get("busy"); !ok {
		t.Error("busy session should survive")
	}
}

func TestRegistry_TouchResetsWarning(t *testing.T) {
	r, clock := newTestRegistry()
	count := 0
	r.SetWarningCallback(func(string, time.Duration) { count++ })
	r.Add(Info{ID: "a"}, nil)

	clock.Advance(9 * time.Minute)
	r.Sweep()
	r.Touch("a")
	clock.Advance(9 * time.Minute)
	r.Sweep()
	if count != 2 {
		t.Errorf("warnings = %d, want 2", count)
	}
}

func TestRegistry_Statuses(t *testing.T) {
	r, clock := newTestRegistry()
	r.Add(Info{ID: "first", Model: "openrouter/auto"}, nil)
	clock.Advance(time.Minute)
	r.Add(Info{ID: "second"}, nil)
	clock.Advance(time.Minute)

	st := r.Statuses()
	if len(st) != 2 || st[0].ID != "first" || st[1].ID != "second" {
		t.Fatalf("Statuses() = %+v", st)
	}
	if st[0].Duration != 2*time.Minute || st[0].Remaining != 8*time.Minute {
		t.Errorf("first = %+v", st[0])
	}
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r := NewRegistry(Config{IdleTimeout: time.Millisecond, SweepInterval: time.Millisecond})
	expired := make(chan string, 1)
	r.SetExpireCallback(func(id string) { expired <- id })
	r.Add(Info{ID: "a"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case id := <-expired:
		if id != "a" {
			t.Errorf("expired %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never expired")
	}
	cancel()
	<-done
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.input); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < 100; j++ {
				r.Add(Info{ID: id}, nil)
				r.Touch(id)
				_ = r.Statuses()
				r.Sweep()
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
}
