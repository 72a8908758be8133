// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nav0225/qna-chatbot/internal/app"
	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/config"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/logging"
	"github.com/nav0225/qna-chatbot/internal/pipeline"
	"github.com/nav0225/qna-chatbot/internal/session"
	"github.com/nav0225/qna-chatbot/internal/tokens"
)

type echoClient struct{}

func (echoClient) Send(_ context.Context, req cloud.Request) cloud.Result {
	last := req.Messages[len(req.Messages)-1].Content
	return cloud.Result{
		Answer:   "echo: " + last,
		Model:    req.Model,
		Usage:    map[string]any{"total_tokens": float64(7)},
		Attempts: 1,
	}
}

// stallClient holds every request until its context ends, then fails the
// way the cloud client does on cancellation.
type stallClient struct {
	once    sync.Once
	started chan struct{}
}

func (c *stallClient) Send(ctx context.Context, _ cloud.Request) cloud.Result {
	c.once.Do(func() { close(c.started) })
	<-ctx.Done()
	return cloud.Result{
		Failure:  &cloud.Failure{Kind: cloud.FailureCanceled, Message: "[ERROR]: Request canceled."},
		Attempts: 1,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Journal.Dir = t.TempDir()
	cfg.Cloud.APIKey = "sk-or-test"
	cfg.Web.RatePerSec = 1000
	cfg.Web.Burst = 1000
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWithClient(t, cfg, echoClient{}, opts...)
}

func newTestServerWithClient(t *testing.T, cfg *config.Config, client pipeline.Completer, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	a, err := app.New(cfg, logging.Discard(), app.WithClient(client), app.WithEstimator(tokens.CharEstimator{}))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	s, err := New(a, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendInput(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeInput, Text: text}))
}

func TestRouter_HealthAndMenus(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "chars/4", health["tokenizer"])

	var models struct {
		Models  []map[string]any `json:"models"`
		Default string           `json:"default"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/models", &models))
	assert.NotEmpty(t, models.Models)
	assert.Equal(t, "openrouter/auto", models.Default)

	var personas struct {
		Personas []personaView `json:"personas"`
		Default  string        `json:"default"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/personas", &personas))
	require.Len(t, personas.Personas, 4)
	assert.Equal(t, "Creative Tutor", personas.Personas[0].Name)
	assert.NotEmpty(t, personas.Default)
}

func TestIndex_ThemeAndHeaders(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	body := func(url string) (string, http.Header) {
		res, err := http.Get(url)
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return string(b), res.Header
	}

	light, h := body(ts.URL + "/")
	assert.Contains(t, light, "#f6f8ff")
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "connect-src 'self'")

	dark, _ := body(ts.URL + "/?theme=dark")
	assert.Contains(t, dark, "#181818")

	js, _ := body(ts.URL + "/static/app.js")
	assert.Contains(t, js, "WebSocket")
}

func TestWebsocket_Conversation(t *testing.T) {
	cfg := testConfig(t)
	s, ts := newTestServer(t, cfg)
	conn := dial(t, ts, "persona=Pirate&model=1")

	hello := readMessage(t, conn)
	require.Equal(t, TypeSession, hello["type"])
	assert.Equal(t, "Pirate", hello["persona"])
	assert.Equal(t, "openrouter/auto", hello["model"])
	id, _ := hello["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, s.Registry().Len())

	sendInput(t, conn, "Hello   **there**")
	turn := readMessage(t, conn)
	require.Equal(t, TypeTurn, turn["type"])
	assert.Equal(t, true, turn["ok"])
	assert.Equal(t, "Hello **there**", turn["user"])
	assert.Contains(t, turn["text"], "echo:")
	assert.Contains(t, turn["html"], "<strong>there</strong>")
	assert.EqualValues(t, 7, turn["tokens"])
	assert.Equal(t, "Pirate", turn["persona"])

	sendInput(t, conn, ":tokens")
	cmd := readMessage(t, conn)
	assert.Equal(t, TypeCommand, cmd["type"])
	assert.Equal(t, ":tokens", cmd["command"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := readMessage(t, conn)
	assert.Equal(t, TypeError, bad["type"])
	assert.Equal(t, "invalid_message", bad["code"])

	res, err := http.Get(ts.URL + "/api/sessions/" + id + "/transcript")
	require.NoError(t, err)
	text, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(text), "Pirate: Hello **there** => echo:")
	assert.Contains(t, res.Header.Get("Content-Disposition"), id)

	res, err = http.Get(ts.URL + "/api/sessions/" + id + "/transcript?format=html")
	require.NoError(t, err)
	page, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, res.Header.Get("Content-Disposition"), ".html")
	assert.Contains(t, string(page), "<strong>there</strong>")

	var history struct {
		Turns []map[string]any `json:"turns"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/history?q=there", &history))
	require.Len(t, history.Turns, 1)
	assert.Equal(t, id, history.Turns[0]["session_id"])

	var sessions struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sessions", &sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, id, sessions.Sessions[0]["id"])

	sendInput(t, conn, "exit")
	bye := readMessage(t, conn)
	assert.Equal(t, true, bye["exit"])
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool { return s.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocket_RejectsForeignOrigin(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestWebsocket_IdleSessionExpires(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), WithRegistryConfig(session.Config{
		IdleTimeout:   50 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Registry().Run(ctx)

	conn := dial(t, ts, "")
	require.Equal(t, TypeSession, readMessage(t, conn)["type"])

	notice := readMessage(t, conn)
	assert.Equal(t, TypeNotice, notice["type"])
	assert.Contains(t, notice["text"], "inactivity")

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocket_ExpiryDropsTurnInFlight(t *testing.T) {
	cfg := testConfig(t)
	client := &stallClient{started: make(chan struct{})}
	s, ts := newTestServerWithClient(t, cfg, client, WithRegistryConfig(session.Config{
		IdleTimeout:   50 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Registry().Run(ctx)

	conn := dial(t, ts, "")
	hello := readMessage(t, conn)
	require.Equal(t, TypeSession, hello["type"])
	id, _ := hello["id"].(string)

	sendInput(t, conn, "Hello")
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the client")
	}

	notice := readMessage(t, conn)
	assert.Equal(t, TypeNotice, notice["type"])
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return s.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, statErr := os.Stat(filepath.Join(cfg.SessionDirPath(), journal.FileName(id)))
	assert.True(t, os.IsNotExist(statErr), "expired turn must not be journaled")
	readable, _ := os.ReadFile(cfg.WebReadableLogPath())
	assert.NotContains(t, string(readable), "Request canceled")
}

func TestTranscript_Validation(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))

	res, err := http.Get(ts.URL + "/api/sessions/bad.id/transcript")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(ts.URL + "/api/sessions/no-such-session/transcript")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Get(ts.URL + "/api/sessions/no-such-session/transcript?format=pdf")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHistory_DisabledIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.IndexPath = ""
	_, ts := newTestServer(t, cfg)

	var body errorResponse
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/history", &body))
	assert.Equal(t, "index_disabled", body.Code)
}

func TestHistory_BadLimit(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/history?limit=-1", nil))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Web.RatePerSec = 0.001
	cfg.Web.Burst = 2
	_, ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/models", nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, ts.URL+"/api/models", nil))

	// Health checks are not limited
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", nil))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("203.0.113.1"))
	assert.False(t, rl.Allow("203.0.113.1"))
	assert.True(t, rl.Allow("203.0.113.2"))
	assert.Equal(t, 2, rl.Clients())

	now = now.Add(limiterIdle + time.Second)
	rl.Cleanup()
	assert.Equal(t, 0, rl.Clients())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.9:5000", "", "", "203.0.113.9"},
		{"untrusted forwarder ignored", "203.0.113.9:5000", "198.51.100.1", "", "203.0.113.9"},
		{"trusted proxy", "127.0.0.1:5000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"invalid xff falls back to real ip", "10.1.2.3:5000", "not-an-ip", "198.51.100.7", "198.51.100.7"},
		{"no port", "198.51.100.3", "", "", "198.51.100.3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				r.Header.Set("X-Real-IP", tc.xri)
			}
			assert.Equal(t, tc.want, GetClientIP(r))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
