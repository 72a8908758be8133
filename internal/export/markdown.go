// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/nav0225/qna-chatbot/internal/journal"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown. Replies are already Markdown and
// are copied as they are; user input is escaped.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title()))
		fmt.Fprintf(&sb, "session: %s\n", escapeYAML(t.SessionID))
		fmt.Fprintf(&sb, "personas: %s\n", escapeYAML(strings.Join(t.Personas(), ", ")))
		fmt.Fprintf(&sb, "models: %s\n", escapeYAML(strings.Join(t.Models(), ", ")))
		fmt.Fprintf(&sb, "turns: %d\n", len(t.Entries))
		if n := t.Tokens(); n > 0 {
			fmt.Fprintf(&sb, "tokens: %d\n", n)
		}
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().UTC().Format(time.RFC3339))
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	for i, entry := range t.Entries {
		fmt.Fprintf(&sb, "### You <sub>%s</sub>\n\n", entry.TS)
		sb.WriteString(escapeMarkdown(entry.User))
		sb.WriteString("\n\n")

		fmt.Fprintf(&sb, "### %s\n\n", escapeMarkdown(entry.Persona))
		if entry.Status == journal.StatusError {
			fmt.Fprintf(&sb, "> %s\n\n", strings.TrimSpace(entry.Assistant))
		} else {
			sb.WriteString(strings.TrimSpace(entry.Assistant))
			sb.WriteString("\n\n")
		}

		if e.options.IncludeMetadata {
			if stats := turnStats(entry); stats != "" {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", stats)
			}
		}
		if i < len(t.Entries)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string { return "text/markdown; charset=utf-8" }

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would turn plain text into markup.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"<", "&lt;",
		">", "&gt;",
		"`", "\\`",
	)
	return r.Replace(s)
}

// escapeYAML quotes a scalar that could break the frontmatter.
func escapeYAML(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*,\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
