// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline runs a conversation turn by turn.
//
// A Session owns the context window, the journal and the event bus for one
// conversation. Each input line is either a command (:clear, :save, :tokens,
// :help, exit) handled locally, or a chat message that goes through
//
//	Sanitize -> Detect -> TranslateIn -> BuildRequest -> Dispatch ->
//	TranslateOut -> Persist -> AppendContext
//
// The context window holds persona-language text; the journal holds what the
// user typed and read. Upstream failures travel as answer text with a
// journal status of "error".
package pipeline
