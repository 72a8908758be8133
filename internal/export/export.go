// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/util"
)

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("transcript has no turns")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is one session's journaled turns.
type Transcript struct {
	SessionID string
	Entries   []journal.Entry
}

// Load reads a structured journal. The session id is taken from the file
// name when it follows the journal naming scheme. On a corrupt line the
// turns before it are returned along with the error.
func Load(path string) (*Transcript, error) {
	entries, err := journal.Load(path)
	if err != nil && len(entries) == 0 {
		return nil, err
	}
	t := &Transcript{SessionID: sessionIDFromPath(path), Entries: entries}
	return t, err
}

func sessionIDFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(name, "chat_")
}

// Title is the document title.
func (t *Transcript) Title() string {
	if t.SessionID == "" {
		return "Chat transcript"
	}
	return "Chat " + t.SessionID
}

// Personas lists the distinct personas in order of appearance.
func (t *Transcript) Personas() []string {
	return distinct(t.Entries, func(e journal.Entry) string { return e.Persona })
}

// Models lists the distinct models in order of appearance.
func (t *Transcript) Models() []string {
	return distinct(t.Entries, func(e journal.Entry) string { return e.Meta.Model })
}

// Languages lists the distinct user languages, sorted.
func (t *Transcript) Languages() []string {
	langs := distinct(t.Entries, func(e journal.Entry) string { return e.Language })
	sort.Strings(langs)
	return langs
}

// Tokens sums the reported usage over all turns.
func (t *Transcript) Tokens() int {
	total := 0
	for _, e := range t.Entries {
		total += e.Meta.TotalTokens()
	}
	return total
}

// Failures counts turns whose answer is a failure text.
func (t *Transcript) Failures() int {
	n := 0
	for _, e := range t.Entries {
		if e.Status == journal.StatusError {
			n++
		}
	}
	return n
}

func distinct(entries []journal.Entry, key func(journal.Entry) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		k := key(e)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func validate(t *Transcript) error {
	if t == nil || len(t.Entries) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	// Export renders the transcript.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds the session summary and per-turn stats.
	IncludeMetadata bool

	// Theme is the HTML palette, "light" or "dark".
	Theme string

	// Now stamps the export time; time.Now when nil.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{IncludeMetadata: true, Theme: "light"}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Formats lists the accepted format names.
func Formats() []string {
	return []string{"md", "html", "json", "txt"}
}

// ForFormat returns the exporter for a format name.
func ForFormat(format string, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "", "txt", "text":
		return TextExporter{}, nil
	}
	return nil, fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats(), ", "))
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders t into dir and returns the written path. The file is
// replaced atomically.
func ExportToFile(t *Transcript, exporter Exporter, dir string) (string, error) {
	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := "chat_" + sanitizeFilename(t.SessionID) + exporter.FileExtension()
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// any platform.
func sanitizeFilename(s string) string {
	runes := []rune(s)
	if len(runes) > 64 {
		runes = runes[:64]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "transcript"
	}
	return string(out)
}

// turnStats is the per-turn metadata line shared by the document formats.
func turnStats(e journal.Entry) string {
	var parts []string
	if e.Meta.Model != "" {
		parts = append(parts, e.Meta.Model)
	}
	if n := e.Meta.TotalTokens(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", n))
	}
	if e.Language != "" {
		parts = append(parts, e.Language)
	}
	return strings.Join(parts, " · ")
}
