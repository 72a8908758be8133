// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package journal persists every completed turn of a session.
//
// Two append-only files are written per turn: a structured JSONL file (one
// object per line, one file per session) and a shared human-readable log.
// Each append opens, writes, syncs and closes its file, so a crash loses at
// most the turn in flight.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/util"
)

// Readable log truncation limits, in runes.
const (
	ReadableUserRunes      = 80
	ReadableAssistantRunes = 150
)

// TimestampFormat is ISO-8601 UTC with microseconds and a trailing Z.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// SessionIDFormat names a CLI session (and its journal file) after its start time.
const SessionIDFormat = "20060102T150405Z"

const filePerm = 0644

// =============================================================================
// ENTRY
// =============================================================================

// Status records whether the assistant text is a real answer.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is one journaled turn. User is the sanitized input before any
// translation; Assistant is the full answer in the user's language.
type Entry struct {
	TS        string     `json:"ts"`
	Persona   string     `json:"persona"`
	Language  string     `json:"language"`
	User      string     `json:"user"`
	Assistant string     `json:"assistant"`
	Status    Status     `json:"status"`
	Meta      cloud.Meta `json:"meta"`
}

// Timestamp formats t for an Entry.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// SessionID derives a session identifier from its start time.
func SessionID(t time.Time) string {
	return t.UTC().Format(SessionIDFormat)
}

// FileName returns the journal file name for a session.
func FileName(sessionID string) string {
	return "chat_" + sessionID + ".jsonl"
}

// ReadableLine renders e for the human-readable log.
func ReadableLine(e Entry) string {
	return fmt.Sprintf("[%s] %s: %s => %s",
		e.TS, e.Persona,
		util.TruncateRunesNoEllipsis(e.User, ReadableUserRunes),
		util.TruncateRunesNoEllipsis(e.Assistant, ReadableAssistantRunes))
}

// encodeLine marshals e as one JSON line without HTML escaping.
func encodeLine(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// JOURNAL
// =============================================================================

// appendMu serializes appends process-wide; browser sessions share the
// readable log.
var appendMu sync.Mutex

// Journal writes one session's structured file and the shared readable log.
type Journal struct {
	path         string
	readablePath string
}

// New creates a journal. An empty readablePath disables the readable log.
func New(path, readablePath string) *Journal {
	return &Journal{path: path, readablePath: readablePath}
}

// Path returns the structured journal path.
func (j *Journal) Path() string { return j.path }

// ReadablePath returns the readable log path.
func (j *Journal) ReadablePath() string { return j.readablePath }

// AppendStructured appends e as one JSON line.
func (j *Journal) AppendStructured(e Entry) error {
	line, err := encodeLine(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	appendMu.Lock()
	defer appendMu.Unlock()
	return util.AppendFile(j.path, line, filePerm)
}

// AppendReadable appends line to the readable log.
func (j *Journal) AppendReadable(line string) error {
	if j.readablePath == "" {
		return nil
	}
	appendMu.Lock()
	defer appendMu.Unlock()
	return util.AppendFile(j.readablePath, []byte(strings.TrimRight(line, "\n")+"\n"), filePerm)
}

// Append writes e to both files. Both writes are attempted even if the first
// fails.
func (j *Journal) Append(e Entry) error {
	return errors.Join(j.AppendStructured(e), j.AppendReadable(ReadableLine(e)))
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// Load reads a structured journal, skipping blank lines.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), cloud.MaxResponseSize*2)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return entries, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return entries, nil
}

// WriteTranscript atomically writes entries as a complete JSONL file.
func WriteTranscript(path string, entries []Entry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := encodeLine(e)
		if err != nil {
			return fmt.Errorf("failed to encode journal entry: %w", err)
		}
		buf.Write(line)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), filePerm)
}

// RenderText renders entries as a plain-text transcript with full texts.
func RenderText(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%s] %s: %s => %s\n", e.TS, e.Persona, e.User, e.Assistant)
	}
	return sb.String()
}
