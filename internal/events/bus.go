// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events is the per-session notification bus. A Session publishes
// lifecycle events; sinks such as the turn index, metrics and the logger
// subscribe to them.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind names an event.
type Kind string

const (
	SessionStarted  Kind = "session.started"
	TurnCompleted   Kind = "turn.completed"
	ContextCleared  Kind = "context.cleared"
	TranscriptSaved Kind = "transcript.saved"
	SessionEnded    Kind = "session.ended"
)

// Event is one notification. Payload type depends on Kind: TurnCompleted
// carries a *TurnInfo, TranscriptSaved the saved path as a string, others nil.
type Event struct {
	Kind      Kind
	SessionID string
	Persona   string
	Model     string
	Time      time.Time
	Payload   any
}

// TurnInfo is the TurnCompleted payload.
type TurnInfo struct {
	TS        string
	Language  string
	User      string
	Assistant string
	OK        bool
	Failure   string
	Attempts  int
	Tokens    int
	Duration  time.Duration
}

// Handler receives events. A returned error is logged and otherwise ignored.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	kind    Kind // empty matches every kind
	handler Handler
}

// Bus delivers events to handlers synchronously, in subscription order. A
// failing or panicking handler never stops delivery to the rest, and never
// reaches the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger uses slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h for one kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: kind, handler: h})
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.Subscribe("", h)
}

// Publish delivers ev. A zero Time is set to now.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kind != "" && s.kind != ev.Kind {
			continue
		}
		if err := b.deliver(ctx, s.handler, ev); err != nil {
			b.logger.Warn("event handler failed",
				"kind", ev.Kind, "session", ev.SessionID, "error", err)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// LogHandler returns a handler that logs every event at debug level, and turn
// failures at warn.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, ev Event) error {
		if ti, ok := ev.Payload.(*TurnInfo); ok && !ti.OK {
			logger.WarnContext(ctx, "turn failed upstream",
				"session", ev.SessionID, "model", ev.Model, "failure", ti.Failure, "attempts", ti.Attempts)
			return nil
		}
		logger.DebugContext(ctx, "session event",
			"kind", ev.Kind, "session", ev.SessionID, "persona", ev.Persona, "model", ev.Model)
		return nil
	}
}
