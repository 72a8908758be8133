// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/util"
)

// Turn is one completed exchange. It carries the text in both languages:
// the persona-language pair goes into the context window, the user-language
// pair into the journal and onto the screen.
type Turn struct {
	TS       string
	Persona  string
	Language string // detected language of the user

	// User is the sanitized input as typed.
	User string
	// UserPersona is User in the persona's language (what was sent).
	UserPersona string
	// Assistant is the reply (or failure text) as received.
	Assistant string
	// AssistantDisplay is Assistant in the user's language.
	AssistantDisplay string

	// Translated is true when the two languages differed.
	Translated bool

	Result cloud.Result

	// PersistErr is set when the journal write failed. The turn still counts.
	PersistErr error
}

// OK reports whether the upstream produced a real answer.
func (t *Turn) OK() bool {
	return t.Result.OK()
}

// ContextPair returns the persona-language exchange for the context window.
func (t *Turn) ContextPair() (user, assistant string) {
	return t.UserPersona, t.Assistant
}

// Entry returns the journal record for the turn.
func (t *Turn) Entry() journal.Entry {
	status := journal.StatusOK
	if !t.OK() {
		status = journal.StatusError
	}
	return journal.Entry{
		TS:        t.TS,
		Persona:   t.Persona,
		Language:  t.Language,
		User:      t.User,
		Assistant: t.AssistantDisplay,
		Status:    status,
		Meta:      t.Result.Meta(),
	}
}

// Display returns the reply capped to max runes for on-screen output, and
// whether it was cut. The journal always keeps the full text.
func (t *Turn) Display(max int) (string, bool) {
	if max <= 0 {
		max = MaxDisplayChars
	}
	if util.RuneLen(t.AssistantDisplay) <= max {
		return t.AssistantDisplay, false
	}
	return util.TruncateRunesNoEllipsis(t.AssistantDisplay, max), true
}
