// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nav0225/qna-chatbot/internal/events"
)

// DefaultLimit caps Search and Recent when the caller passes no limit.
const DefaultLimit = 50

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("turn index is closed")

// =============================================================================
// TURN RECORD
// =============================================================================

// TurnRecord is one indexed turn.
type TurnRecord struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	TS        string        `json:"ts"`
	Persona   string        `json:"persona"`
	Model     string        `json:"model"`
	Language  string        `json:"language"`
	User      string        `json:"user"`
	Assistant string        `json:"assistant"`
	OK        bool          `json:"ok"`
	Failure   string        `json:"failure,omitempty"`
	Attempts  int           `json:"attempts"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
}

// RecordFromEvent builds a record from a TurnCompleted event. It reports
// false for any other event.
func RecordFromEvent(ev events.Event) (TurnRecord, bool) {
	ti, ok := ev.Payload.(*events.TurnInfo)
	if ev.Kind != events.TurnCompleted || !ok || ti == nil {
		return TurnRecord{}, false
	}
	return TurnRecord{
		SessionID: ev.SessionID,
		TS:        ti.TS,
		Persona:   ev.Persona,
		Model:     ev.Model,
		Language:  ti.Language,
		User:      ti.User,
		Assistant: ti.Assistant,
		OK:        ti.OK,
		Failure:   ti.Failure,
		Attempts:  ti.Attempts,
		Tokens:    ti.Tokens,
		Duration:  ti.Duration,
	}, true
}

// =============================================================================
// TURN INDEX
// =============================================================================

// TurnIndex is the SQLite store. Safe for concurrent use; browser sessions
// share one.
type TurnIndex struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// Open opens or creates the index at path.
func Open(path string) (*TurnIndex, error) {
	if path == "" {
		return nil, errors.New("index path cannot be empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &TurnIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (idx *TurnIndex) initSchema() error {
	if _, err := idx.db.Exec(Schema); err != nil {
		return err
	}
	_, err := idx.db.Exec(InitMetadata)
	return err
}

// Path returns the database path.
func (idx *TurnIndex) Path() string { return idx.path }

// Close closes the database.
func (idx *TurnIndex) Close() error {
	if idx.closed.Swap(true) {
		return nil
	}
	return idx.db.Close()
}

// Record inserts one turn and returns its row id.
func (idx *TurnIndex) Record(ctx context.Context, rec TurnRecord) (int64, error) {
	if idx.closed.Load() {
		return 0, ErrClosed
	}
	ok := 0
	if rec.OK {
		ok = 1
	}
	res, err := idx.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, ts, persona, model, language, user_text, assistant_text,
			ok, failure, attempts, tokens, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TS, rec.Persona, rec.Model, rec.Language, rec.User, rec.Assistant,
		ok, rec.Failure, rec.Attempts, rec.Tokens, rec.Duration.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to record turn: %w", err)
	}
	return res.LastInsertId()
}

// Handler returns a bus handler that records TurnCompleted events.
func (idx *TurnIndex) Handler() events.Handler {
	return func(ctx context.Context, ev events.Event) error {
		rec, ok := RecordFromEvent(ev)
		if !ok {
			return nil
		}
		_, err := idx.Record(ctx, rec)
		return err
	}
}

// =============================================================================
// QUERIES
// =============================================================================

const selectTurns = `
	SELECT id, session_id, ts, persona, model, language, user_text, assistant_text,
		ok, failure, attempts, tokens, duration_ms
	FROM turns`

// Search returns turns whose user or assistant text contains query,
// case-insensitively for ASCII, newest first.
func (idx *TurnIndex) Search(ctx context.Context, query string, limit int) ([]TurnRecord, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return idx.Recent(ctx, limit)
	}

	pattern := "%" + escapeLike(query) + "%"
	return idx.query(ctx, selectTurns+`
		WHERE user_text LIKE ? ESCAPE '\' OR assistant_text LIKE ? ESCAPE '\'
		ORDER BY id DESC LIMIT ?`,
		pattern, pattern, normalizeLimit(limit))
}

// Recent returns the newest turns, newest first.
func (idx *TurnIndex) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	return idx.query(ctx, selectTurns+` ORDER BY id DESC LIMIT ?`, normalizeLimit(limit))
}

// Session returns one session's turns in order.
func (idx *TurnIndex) Session(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	return idx.query(ctx, selectTurns+` WHERE session_id = ? ORDER BY id`, sessionID)
}

// Count returns the number of indexed turns.
func (idx *TurnIndex) Count(ctx context.Context) (int, error) {
	if idx.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&n)
	return n, err
}

func (idx *TurnIndex) query(ctx context.Context, q string, args ...any) ([]TurnRecord, error) {
	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var ok int
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.TS, &rec.Persona, &rec.Model, &rec.Language,
			&rec.User, &rec.Assistant, &ok, &rec.Failure, &rec.Attempts, &rec.Tokens, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		rec.OK = ok == 1
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
