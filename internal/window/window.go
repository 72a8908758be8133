// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package window keeps the rolling conversation history of one session and
// trims it to a token budget before each request.
package window

import (
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/tokens"
)

// DefaultBudget is the context token budget when none is configured.
const DefaultBudget = 2048

// FallbackMessages is how many trailing messages are kept when no exact
// tokenizer is available.
const FallbackMessages = 6

// =============================================================================
// TRIM
// =============================================================================

// TrimResult describes one trim pass.
type TrimResult struct {
	// Messages is the chronological suffix of the history that fits
	Messages []model.Message

	// Tokens is the estimated cost of Messages
	Tokens int

	// Dropped is how many of the oldest messages were left out
	Dropped int
}

// Trim returns the longest suffix of history whose per-message estimates sum
// within the budget, walking newest to oldest and stopping at the first
// message that would overflow. Messages are dropped one at a time, so a user message can
// lose its paired reply at the cut point.
//
// If the newest message alone exceeds the budget the result is empty. Without
// an exact estimator the budget is ignored and the last FallbackMessages
// messages are kept.
func Trim(history []model.Message, budget int, est tokens.Estimator) TrimResult {
	if len(history) == 0 {
		return TrimResult{Messages: []model.Message{}}
	}
	if budget < 0 {
		budget = 0
	}

	if est == nil || !est.Exact() {
		start := 0
		if len(history) > FallbackMessages {
			start = len(history) - FallbackMessages
		}
		kept := append([]model.Message(nil), history[start:]...)
		res := TrimResult{Messages: kept, Dropped: start}
		if est != nil {
			res.Tokens = est.Estimate(model.Contents(kept))
		}
		return res
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := est.Estimate([]string{history[i].Content})
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	kept := append([]model.Message{}, history[start:]...)
	return TrimResult{Messages: kept, Tokens: est.Estimate(model.Contents(kept)), Dropped: start}
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is the history of one session. It is not safe for concurrent use;
// a session processes its turns one at a time.
type Window struct {
	messages  []model.Message
	budget    int
	estimator tokens.Estimator
}

// New creates an empty window. A non-positive budget uses DefaultBudget.
func New(budget int, est tokens.Estimator) *Window {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if est == nil {
		est = tokens.CharEstimator{}
	}
	return &Window{budget: budget, estimator: est}
}

// Append adds one completed exchange, user first.
func (w *Window) Append(user, assistant string) {
	w.messages = append(w.messages,
		model.NewUserMessage(user),
		model.NewAssistantMessage(assistant),
	)
}

// Messages returns a copy of the full stored history.
func (w *Window) Messages() []model.Message {
	return append([]model.Message(nil), w.messages...)
}

// Trimmed returns the part of the history that fits the budget.
func (w *Window) Trimmed() TrimResult {
	return Trim(w.messages, w.budget, w.estimator)
}

// Tokens estimates the full stored history.
func (w *Window) Tokens() int {
	return w.estimator.Estimate(model.Contents(w.messages))
}

// Len returns the number of stored messages.
func (w *Window) Len() int { return len(w.messages) }

// Budget returns the token budget.
func (w *Window) Budget() int { return w.budget }

// Estimator returns the estimator in use.
func (w *Window) Estimator() tokens.Estimator { return w.estimator }

// Clear drops all history.
func (w *Window) Clear() {
	w.messages = nil
}
