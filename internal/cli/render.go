// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/nav0225/qna-chatbot/internal/ui/styles"
)

// Renderer formats reply text for the terminal.
type Renderer interface {
	Render(text string) string
	// Markdown reports whether the renderer interprets markdown.
	Markdown() bool
}

// PlainRenderer prints text as-is.
type PlainRenderer struct{}

func (PlainRenderer) Render(text string) string { return text }

func (PlainRenderer) Markdown() bool { return false }

// MarkdownRenderer renders through glamour. A render error prints the text
// unchanged.
type MarkdownRenderer struct {
	r *glamour.TermRenderer
}

func (m *MarkdownRenderer) Render(text string) string {
	out, err := m.r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m *MarkdownRenderer) Markdown() bool { return true }

// NewRenderer picks the markdown renderer when enabled and glamour can
// initialize with the theme's style, and plain text otherwise.
func NewRenderer(theme *styles.Theme, enabled bool, width int, logger *slog.Logger) Renderer {
	if !enabled {
		return PlainRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.GlamourStyle()),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		logger.Warn("markdown renderer unavailable, printing plain text", "error", err)
		return PlainRenderer{}
	}
	return &MarkdownRenderer{r: r}
}
