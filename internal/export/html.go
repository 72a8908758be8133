// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/ui/styles"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a transcript to HTML. Replies go through RenderHTML; every
// other string is escaped.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	palette := styles.PaletteByName(e.options.Theme)
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(t.Title()))
	sb.WriteString(e.css(palette))
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", html.EscapeString(palette.Name))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, entry := range t.Entries {
		sb.WriteString(e.renderTurn(entry))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported %s</p>\n", e.options.now().UTC().Format(time.RFC1123))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(t *Transcript) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", html.EscapeString(t.Title()))
	sb.WriteString("            <div class=\"metadata\">\n")
	meta := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>%s:</strong> %s</span>\n",
				label, html.EscapeString(value))
		}
	}
	meta("Persona", strings.Join(t.Personas(), ", "))
	meta("Model", strings.Join(t.Models(), ", "))
	meta("Turns", fmt.Sprint(len(t.Entries)))
	if n := t.Tokens(); n > 0 {
		meta("Tokens", fmt.Sprint(n))
	}
	if n := t.Failures(); n > 0 {
		meta("Failed", fmt.Sprint(n))
	}
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderTurn(entry journal.Entry) string {
	var sb strings.Builder

	sb.WriteString("            <div class=\"message user-message\">\n")
	fmt.Fprintf(&sb, "                <div class=\"message-header\"><span class=\"role-label\">You</span><span class=\"timestamp\">%s</span></div>\n",
		html.EscapeString(entry.TS))
	fmt.Fprintf(&sb, "                <div class=\"message-content\"><p>%s</p></div>\n", html.EscapeString(entry.User))
	sb.WriteString("            </div>\n")

	class := "assistant-message"
	content := RenderHTML(entry.Assistant)
	if entry.Status == journal.StatusError {
		class += " failure"
		content = "<p>" + html.EscapeString(entry.Assistant) + "</p>"
	}
	fmt.Fprintf(&sb, "            <div class=\"message %s\">\n", class)
	fmt.Fprintf(&sb, "                <div class=\"message-header\"><span class=\"role-label\">%s</span></div>\n",
		html.EscapeString(entry.Persona))
	fmt.Fprintf(&sb, "                <div class=\"message-content\">%s</div>\n", content)
	if e.options.IncludeMetadata {
		if stats := turnStats(entry); stats != "" {
			fmt.Fprintf(&sb, "                <div class=\"message-stats\">%s</div>\n", html.EscapeString(stats))
		}
	}
	sb.WriteString("            </div>\n")
	return sb.String()
}

func (e *HTMLExporter) css(p styles.Palette) string {
	return fmt.Sprintf(`    <style>
        :root {
            --primary: %s;
            --bg: %s;
            --user-bg: %s;
            --assistant-bg: %s;
            --user-text: %s;
            --assistant-text: %s;
            --muted: %s;
            --error: %s;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            line-height: 1.6;
            background: var(--bg);
            color: var(--assistant-text);
            padding: 20px;
        }
        .container { max-width: 900px; margin: 0 auto; }
        .header { padding: 24px 0; border-bottom: 2px solid var(--muted); }
        .header h1 { color: var(--primary); margin-bottom: 12px; }
        .dark-theme .header h1 { color: var(--assistant-text); }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; color: var(--muted); font-size: 14px; }
        .conversation { display: flex; flex-direction: column; gap: 12px; padding: 24px 0; }
        .message { border-radius: 10px; padding: 12px 16px; max-width: 85%%; overflow-wrap: anywhere; }
        .user-message { align-self: flex-end; background: var(--user-bg); color: var(--user-text); }
        .assistant-message { align-self: flex-start; background: var(--assistant-bg); }
        .failure .message-content { color: var(--error); }
        .message-header { display: flex; gap: 12px; font-size: 13px; margin-bottom: 4px; }
        .role-label { font-weight: 600; }
        .timestamp, .message-stats { color: var(--muted); font-size: 12px; }
        .message-content p + p { margin-top: 8px; }
        pre { overflow-x: auto; padding: 8px; margin: 8px 0; }
        .footer { color: var(--muted); font-size: 12px; text-align: center; padding: 16px 0; }
    </style>
`, p.Primary, p.Background, p.User, p.Assistant, p.UserText, p.AssistantText, p.Muted, p.Error)
}
