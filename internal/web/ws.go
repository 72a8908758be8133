// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nav0225/qna-chatbot/internal/app"
	"github.com/nav0225/qna-chatbot/internal/export"
	"github.com/nav0225/qna-chatbot/internal/lang"
	"github.com/nav0225/qna-chatbot/internal/pipeline"
	"github.com/nav0225/qna-chatbot/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Message types on the websocket.
const (
	TypeInput   = "input"
	TypeSession = "session"
	TypeTurn    = "turn"
	TypeCommand = "command"
	TypeNotice  = "notice"
	TypeError   = "error"
)

// ClientMessage is what the page sends.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SessionMessage opens every connection.
type SessionMessage struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Persona    string `json:"persona"`
	Emoji      string `json:"emoji"`
	Color      string `json:"color"`
	Model      string `json:"model"`
	Language   string `json:"language"`
	Tokenizer  string `json:"tokenizer"`
	Budget     int    `json:"budget"`
	Transcript string `json:"transcript"`
}

// TurnMessage carries one reply. Text is the display text and HTML its
// sanitized rendering; failures have no HTML.
type TurnMessage struct {
	Type         string `json:"type"`
	TS           string `json:"ts"`
	User         string `json:"user"`
	Text         string `json:"text"`
	HTML         string `json:"html,omitempty"`
	Truncated    bool   `json:"truncated"`
	OK           bool   `json:"ok"`
	Model        string `json:"model"`
	Tokens       int    `json:"tokens"`
	Persona      string `json:"persona"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Translated   bool   `json:"translated"`
	PersistError string `json:"persist_error,omitempty"`
}

// CommandMessage reports a command result.
type CommandMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Budget  int    `json:"budget,omitempty"`
	Error   bool   `json:"error"`
	Exit    bool   `json:"exit"`
}

// NoticeMessage is an out-of-band note, such as an idle warning.
type NoticeMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorMessage reports a request the server could not handle.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// CONNECTION
// ============================================================================

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	sess   *pipeline.Session
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// abort ends the session before its context, so a turn still in flight is
// dropped rather than journaled as canceled.
func (c *wsConn) abort() {
	if c.sess != nil {
		c.sess.Abort()
	}
	c.cancel()
}

func (c *wsConn) pingLoop(ctx context.Context) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.abort()
				return
			}
		}
	}
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) conn(id string) *wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.abort()
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *Server) warnIdle(id string, remaining time.Duration) {
	if c := s.conn(id); c != nil {
		_ = c.send(NoticeMessage{
			Type: TypeNotice,
			Text: "Session will close in " + session.FormatDuration(remaining) + " due to inactivity.",
		})
	}
}

// ============================================================================
// SESSION LOOP
// ============================================================================

// handleWS upgrades the request and runs one chat session for the life of
// the connection. Query parameters model, persona and lang pick the
// session; empty ones fall back to the configuration.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	c := &wsConn{id: uuid.NewString(), conn: conn, cancel: cancel}
	defer c.close(websocket.CloseNormalClosure, "")

	sess, err := s.app.NewSession(app.SessionSpec{
		ID:          c.id,
		Model:       q.Get("model"),
		Persona:     q.Get("persona"),
		Language:    q.Get("lang"),
		ReadableLog: s.app.Config.WebReadableLogPath(),
	})
	if err != nil {
		s.logger.Error("failed to create browser session", "error", err)
		_ = c.send(ErrorMessage{Type: TypeError, Code: "session_failed", Message: "could not start a session"})
		return
	}

	c.sess = sess
	p := sess.Persona()
	s.track(c)
	defer s.untrack(c.id)
	if err := s.registry.Add(session.Info{
		ID:          c.id,
		Persona:     p.Name,
		Model:       sess.Model(),
		Language:    sess.Language(),
		JournalPath: sess.Journal().Path(),
	}, func() { s.expire(c) }); err != nil {
		s.logger.Error("failed to register browser session", "error", err)
		return
	}
	defer s.registry.Remove(c.id)

	sess.Start(ctx)
	defer sess.End(context.WithoutCancel(ctx))

	go func() {
		<-ctx.Done()
		c.close(websocket.CloseNormalClosure, "session closed")
	}()
	go c.pingLoop(ctx)

	if err := c.send(SessionMessage{
		Type:       TypeSession,
		ID:         c.id,
		Persona:    p.Name,
		Emoji:      p.Style.Emoji,
		Color:      p.Style.Color,
		Model:      sess.Model(),
		Language:   sess.Language(),
		Tokenizer:  sess.Window().Estimator().Name(),
		Budget:     sess.Window().Budget(),
		Transcript: "/api/sessions/" + c.id + "/transcript",
	}); err != nil {
		return
	}

	s.readLoop(ctx, c, sess)
}

// readLoop handles input lines one at a time until the connection closes or
// the user exits.
func (s *Server) readLoop(ctx context.Context, c *wsConn, sess *pipeline.Session) {
	conn := c.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// A slow turn must not eat into the next read's deadline
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", "session", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if c.send(ErrorMessage{Type: TypeError, Code: "invalid_message", Message: "message must be JSON"}) != nil {
				return
			}
			continue
		}
		if msg.Type != TypeInput {
			if c.send(ErrorMessage{Type: TypeError, Code: "unknown_type", Message: "unknown message type " + msg.Type}) != nil {
				return
			}
			continue
		}

		s.registry.Touch(c.id)
		reply, err := sess.Handle(ctx, msg.Text)
		s.registry.Touch(c.id)
		if err != nil {
			if errors.Is(err, pipeline.ErrAborted) {
				return
			}
			s.logger.Error("turn failed", "session", c.id, "error", err)
			if c.send(ErrorMessage{Type: TypeError, Code: "turn_failed", Message: "Error occurred. Check logs for details."}) != nil {
				return
			}
			continue
		}

		switch {
		case reply.Command != nil:
			if c.send(commandMessage(reply.Command)) != nil || reply.Command.Exit {
				return
			}
		case reply.Turn != nil:
			if c.send(turnMessage(reply.Turn, sess.MaxDisplayChars())) != nil {
				return
			}
		}
	}
}

func (s *Server) expire(c *wsConn) {
	_ = c.send(NoticeMessage{Type: TypeNotice, Text: "Session closed after inactivity."})
	c.abort()
}

func commandMessage(res *pipeline.CommandResult) CommandMessage {
	return CommandMessage{
		Type:    TypeCommand,
		Command: res.Kind.String(),
		Message: res.Message,
		Path:    res.Path,
		Tokens:  res.Tokens,
		Budget:  res.Budget,
		Error:   res.Err != nil,
		Exit:    res.Exit,
	}
}

func turnMessage(t *pipeline.Turn, maxDisplay int) TurnMessage {
	text, cut := t.Display(maxDisplay)
	entry := t.Entry()
	msg := TurnMessage{
		Type:         TypeTurn,
		TS:           t.TS,
		User:         t.User,
		Text:         text,
		Truncated:    cut,
		OK:           t.OK(),
		Model:        entry.Meta.Model,
		Tokens:       entry.Meta.TotalTokens(),
		Persona:      t.Persona,
		Language:     t.Language,
		LanguageName: lang.DisplayName(t.Language),
		Translated:   t.Translated,
	}
	if msg.OK {
		msg.HTML = export.RenderHTML(text)
	}
	if t.PersistErr != nil {
		msg.PersistError = t.PersistErr.Error()
	}
	return msg
}
