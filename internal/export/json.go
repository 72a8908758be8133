// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/nav0225/qna-chatbot/internal/journal"
)

// JSONExporter exports the journal entries with a small header. Entries are
// written exactly as journaled.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	SessionID string          `json:"session_id"`
	Exported  string          `json:"exported"`
	Personas  []string        `json:"personas"`
	Models    []string        `json:"models"`
	Tokens    int             `json:"tokens"`
	Turns     []journal.Entry `json:"turns"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonDocument{
		SessionID: t.SessionID,
		Exported:  e.options.now().UTC().Format(time.RFC3339),
		Personas:  t.Personas(),
		Models:    t.Models(),
		Tokens:    t.Tokens(),
		Turns:     t.Entries,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string { return ".json" }

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string { return "application/json" }

// TextExporter writes one line per turn with full texts.
type TextExporter struct{}

// Export renders the plain-text transcript. An empty transcript is an
// empty document.
func (TextExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, ErrEmptyTranscript
	}
	return []byte(journal.RenderText(t.Entries)), nil
}

// FileExtension returns the file extension for text.
func (TextExporter) FileExtension() string { return ".txt" }

// MimeType returns the MIME type for text.
func (TextExporter) MimeType() string { return "text/plain; charset=utf-8" }
