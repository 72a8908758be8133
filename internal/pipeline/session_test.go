// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/events"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/tokens"
)

// =============================================================================
// STUBS
// =============================================================================

// stubClient records requests and answers from a script.
type stubClient struct {
	calls    int
	requests []cloud.Request
	reply    func(req cloud.Request) cloud.Result
}

func (c *stubClient) Send(_ context.Context, req cloud.Request) cloud.Result {
	c.calls++
	c.requests = append(c.requests, req)
	if c.reply != nil {
		return c.reply(req)
	}
	return cloud.Result{Answer: "Hi there", Model: req.Model, Usage: map[string]any{"total_tokens": float64(7)}}
}

type fixedDetector string

func (d fixedDetector) Detect(context.Context, string) (string, error) { return string(d), nil }

type failingDetector struct{}

func (failingDetector) Detect(context.Context, string) (string, error) {
	return "", errors.New("detector offline")
}

// countingTranslator tags text with its target so tests can tell which
// variant went where.
type countingTranslator struct {
	calls int
	fail  bool
}

func (t *countingTranslator) Translate(_ context.Context, text, target string) (string, error) {
	t.calls++
	if t.fail {
		return "", errors.New("translator offline")
	}
	return "[" + target + "] " + text, nil
}

func (t *countingTranslator) Available() bool { return true }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, client Completer, mutate func(*Options)) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	tutor, _ := persona.Builtin().ByName("Creative Tutor")

	opts := Options{
		ID:         "20240501T120000Z",
		Persona:    tutor,
		Language:   "en",
		Model:      "openrouter/auto",
		Client:     client,
		Journal:    journal.New(filepath.Join(dir, "sessions", "chat_test.jsonl"), filepath.Join(dir, "history.txt")),
		Estimator:  tokens.CharEstimator{},
		Detector:   fixedDetector("en"),
		Translator: &countingTranslator{},
		Now:        func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	return s, dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// =============================================================================
// TURN PIPELINE
// =============================================================================

func TestTurn_JournalsExactlyOneEntry(t *testing.T) {
	client := &stubClient{}
	s, dir := newSession(t, client, nil)

	turn, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)
	require.NotNil(t, turn)

	lines := readLines(t, s.Journal().Path())
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Hello", entry["user"])
	assert.Equal(t, "Hi there", entry["assistant"])
	assert.Equal(t, "Creative Tutor", entry["persona"])
	assert.Equal(t, "en", entry["language"])
	assert.Equal(t, "ok", entry["status"])
	assert.True(t, strings.HasSuffix(entry["ts"].(string), "Z"))

	readable := readLines(t, filepath.Join(dir, "history.txt"))
	require.Len(t, readable, 1)
	assert.Equal(t, "[2024-05-01T12:00:00.000000Z] Creative Tutor: Hello => Hi there", readable[0])

	assert.Equal(t, 2, s.Window().Len())
	assert.Len(t, s.Entries(), 1)
}

func TestTurn_BuildsRequestFromPersonaAndContext(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, func(o *Options) {
		temp := 0.5
		o.MaxTokens = 256
		o.Temperature = &temp
		o.TopP = 0.9
	})
	ctx := context.Background()

	_, err := s.Turn(ctx, "first question")
	require.NoError(t, err)
	_, err = s.Turn(ctx, "second question")
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	req := client.requests[1]
	assert.Equal(t, "openrouter/auto", req.Model)
	assert.Equal(t, 256, req.MaxTokens)
	assert.Equal(t, 0.5, req.Temperature)
	assert.Equal(t, 0.9, req.TopP)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, model.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, s.Persona().Prompt("en"), req.Messages[0].Content)
	assert.Equal(t, model.NewUserMessage("first question"), req.Messages[1])
	assert.Equal(t, model.NewAssistantMessage("Hi there"), req.Messages[2])
	assert.Equal(t, model.NewUserMessage("second question"), req.Messages[3])
}

func TestTurn_ZeroTemperatureIsSent(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, func(o *Options) {
		zero := 0.0
		o.Temperature = &zero
	})
	_, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, 0.0, client.requests[0].Temperature)
}

func TestTurn_UnsetTemperatureUsesDefault(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, nil)
	_, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, cloud.DefaultTemperature, client.requests[0].Temperature)
}

func TestTurn_UserContextReachesSystemPrompt(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, func(o *Options) {
		o.Persona.ContextTemplate = "{{.Prompt}} The student is {{.User.name}}."
		o.UserContext = map[string]string{"name": "Ana"}
	})
	_, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	system := client.requests[0].Messages[0]
	assert.Equal(t, model.RoleSystem, system.Role)
	assert.Equal(t, s.Persona().Prompt("en")+" The student is Ana.", system.Content)
}

func TestTurn_FallbackEstimatorKeepsSixContextMessages(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Turn(ctx, "question")
		require.NoError(t, err)
	}
	last := client.requests[len(client.requests)-1]
	// system + 6 context messages + the new user message
	assert.Len(t, last.Messages, 8)
}

func TestTurn_SkipsTranslationWhenLanguagesMatch(t *testing.T) {
	tr := &countingTranslator{}
	s, _ := newSession(t, &stubClient{}, func(o *Options) {
		o.Translator = tr
		o.Detector = fixedDetector("EN")
	})

	turn, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, 0, tr.calls)
	assert.False(t, turn.Translated)
	assert.Equal(t, "Hello", turn.UserPersona)
}

func TestTurn_TranslatesBothWaysAndKeepsLanguagesApart(t *testing.T) {
	tr := &countingTranslator{}
	client := &stubClient{}
	s, _ := newSession(t, client, func(o *Options) {
		o.Translator = tr
		o.Detector = fixedDetector("hi")
	})

	turn, err := s.Turn(context.Background(), "नमस्ते")
	require.NoError(t, err)
	assert.Equal(t, 2, tr.calls)
	assert.True(t, turn.Translated)

	// Upstream sees persona-language text.
	sent := client.requests[0].Messages
	assert.Equal(t, "[en] नमस्ते", sent[len(sent)-1].Content)

	// Context keeps the persona-language pair.
	msgs := s.Window().Messages()
	assert.Equal(t, "[en] नमस्ते", msgs[0].Content)
	assert.Equal(t, "Hi there", msgs[1].Content)

	// Journal keeps what the user typed and read.
	entry := s.Entries()[0]
	assert.Equal(t, "नमस्ते", entry.User)
	assert.Equal(t, "[hi] Hi there", entry.Assistant)
	assert.Equal(t, "hi", entry.Language)
}

func TestTurn_TranslationFailureKeepsOriginal(t *testing.T) {
	tr := &countingTranslator{fail: true}
	s, _ := newSession(t, &stubClient{}, func(o *Options) {
		o.Translator = tr
		o.Detector = fixedDetector("es")
	})

	turn, err := s.Turn(context.Background(), "Hola")
	require.NoError(t, err)
	assert.Equal(t, "Hola", turn.UserPersona)
	assert.Equal(t, "Hi there", turn.AssistantDisplay)
}

func TestTurn_DetectorFailureDefaultsToEnglish(t *testing.T) {
	tr := &countingTranslator{}
	s, _ := newSession(t, &stubClient{}, func(o *Options) {
		o.Translator = tr
		o.Detector = failingDetector{}
	})

	turn, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "en", turn.Language)
	assert.Equal(t, 0, tr.calls)
}

func TestTurn_FailureIsJournaledAsError(t *testing.T) {
	client := &stubClient{reply: func(req cloud.Request) cloud.Result {
		return cloud.Result{
			Failure:  &cloud.Failure{Kind: cloud.FailureHTTP, Status: 500, Message: "[HTTP ERROR 500]: boom"},
			Attempts: 1,
		}
	}}
	tr := &countingTranslator{}
	s, _ := newSession(t, client, func(o *Options) {
		o.Translator = tr
		o.Detector = fixedDetector("es")
	})

	turn, err := s.Turn(context.Background(), "Hola")
	require.NoError(t, err)
	assert.False(t, turn.OK())
	assert.Equal(t, "[HTTP ERROR 500]: boom", turn.AssistantDisplay)
	assert.Equal(t, 1, tr.calls, "failure text is not translated")

	entry := s.Entries()[0]
	assert.Equal(t, journal.StatusError, entry.Status)
	assert.Equal(t, "[HTTP ERROR 500]: boom", entry.Assistant)
	assert.Equal(t, "null", string(entry.Meta.Raw))
}

func TestTurn_EmptyInputSkipsDispatch(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, nil)

	turn, err := s.Turn(context.Background(), " \x00\t ")
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Equal(t, 0, client.calls)
}

func TestTurn_AbortedSessionDropsTurn(t *testing.T) {
	var s *Session
	client := &stubClient{}
	client.reply = func(req cloud.Request) cloud.Result {
		s.Abort()
		return cloud.Result{Answer: "too late"}
	}
	s, _ = newSession(t, client, nil)

	turn, err := s.Turn(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrAborted)
	assert.Nil(t, turn)
	assert.Empty(t, s.Entries())
	assert.Equal(t, 0, s.Window().Len())
	_, statErr := os.Stat(s.Journal().Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestTurn_CanceledRequestIsNotJournaled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := cloud.NewClient("k")
	require.NoError(t, err)
	client.WithEndpoint(server.URL)
	s, _ := newSession(t, client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	turn, err := s.Turn(ctx, "Hello")
	assert.ErrorIs(t, err, ErrAborted)
	assert.Nil(t, turn)
	assert.Empty(t, s.Entries())
	assert.Equal(t, 0, s.Window().Len())
	_, statErr := os.Stat(s.Journal().Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestTurn_AbortDuringCommitIsSafe(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	client := &stubClient{reply: func(req cloud.Request) cloud.Result {
		once.Do(func() { close(started) })
		return cloud.Result{Answer: "Hi there"}
	}}
	s, _ := newSession(t, client, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Turn(context.Background(), "Hello")
	}()

	<-started
	s.Abort()
	turns := s.Turns()
	entries := len(s.Entries())
	<-done

	// Whichever side won, nothing changes after Abort returns.
	assert.Equal(t, turns, s.Turns())
	assert.Equal(t, entries, len(s.Entries()))
	assert.Equal(t, turns, entries)
}

func TestTurn_DisplayIsCapped(t *testing.T) {
	long := strings.Repeat("x", 2500)
	s, _ := newSession(t, &stubClient{reply: func(req cloud.Request) cloud.Result {
		return cloud.Result{Answer: long}
	}}, nil)

	turn, err := s.Turn(context.Background(), "Hello")
	require.NoError(t, err)
	shown, cut := turn.Display(s.MaxDisplayChars())
	assert.True(t, cut)
	assert.Len(t, shown, MaxDisplayChars)
	assert.Len(t, s.Entries()[0].Assistant, 2500, "journal keeps full text")
}

func TestTurn_PublishesEvents(t *testing.T) {
	bus := events.NewBus(nil)
	var kinds []events.Kind
	var info *events.TurnInfo
	bus.SubscribeAll(func(ctx context.Context, ev events.Event) error {
		kinds = append(kinds, ev.Kind)
		if ti, ok := ev.Payload.(*events.TurnInfo); ok {
			info = ti
		}
		return nil
	})

	s, _ := newSession(t, &stubClient{}, func(o *Options) { o.Bus = bus })
	ctx := context.Background()
	s.Start(ctx)
	_, err := s.Turn(ctx, "Hello")
	require.NoError(t, err)
	s.Run(ctx, Command{Kind: CmdClear})
	s.End(ctx)

	assert.Equal(t, []events.Kind{events.SessionStarted, events.TurnCompleted, events.ContextCleared, events.SessionEnded}, kinds)
	require.NotNil(t, info)
	assert.True(t, info.OK)
	assert.Equal(t, 7, info.Tokens)
}

// =============================================================================
// HANDLE + COMMANDS
// =============================================================================

func TestHandle_CommandsNeverCallClient(t *testing.T) {
	client := &stubClient{}
	s, _ := newSession(t, client, nil)
	ctx := context.Background()

	for _, line := range []string{":tokens", ":TOKENS", ":help", ":Commands", ":clear", ":save", "exit", "QUIT", ":quit"} {
		reply, err := s.Handle(ctx, line)
		require.NoError(t, err, line)
		require.NotNil(t, reply.Command, line)
		assert.Nil(t, reply.Turn, line)
	}
	assert.Equal(t, 0, client.calls)
}

func TestHandle_TokensReportsWindowUsage(t *testing.T) {
	s, _ := newSession(t, &stubClient{}, func(o *Options) { o.Budget = 512 })
	ctx := context.Background()

	_, err := s.Handle(ctx, "abcdefgh")
	require.NoError(t, err)

	reply, err := s.Handle(ctx, ":tokens")
	require.NoError(t, err)
	// "abcdefgh" + "Hi there" = 16 chars / 4
	assert.Equal(t, 4, reply.Command.Tokens)
	assert.Equal(t, 512, reply.Command.Budget)
	assert.Equal(t, "[Context token usage: 4 / 512]", reply.Command.Message)
}

func TestHandle_ClearEmptiesContextOnly(t *testing.T) {
	s, _ := newSession(t, &stubClient{}, nil)
	ctx := context.Background()

	_, err := s.Handle(ctx, "Hello")
	require.NoError(t, err)
	reply, err := s.Handle(ctx, ":clear")
	require.NoError(t, err)

	assert.Equal(t, "[Context cleared]", reply.Command.Message)
	assert.Equal(t, 0, s.Window().Len())
	assert.Len(t, s.Entries(), 1)
}

func TestHandle_SaveWritesTranscript(t *testing.T) {
	s, _ := newSession(t, &stubClient{}, nil)
	ctx := context.Background()

	_, err := s.Handle(ctx, "Hello")
	require.NoError(t, err)

	reply, err := s.Handle(ctx, ":save MyChat.jsonl")
	require.NoError(t, err)
	require.NoError(t, reply.Command.Err)
	assert.Equal(t, "MyChat.jsonl", filepath.Base(reply.Command.Path))

	entries, err := journal.Load(reply.Command.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Hello", entries[0].User)

	reply, err = s.Handle(ctx, ":save")
	require.NoError(t, err)
	assert.Equal(t, "chat_20240501T120000Z.jsonl", filepath.Base(reply.Command.Path))

	reply, err = s.Handle(ctx, ":save ../escape.jsonl")
	require.NoError(t, err)
	assert.ErrorIs(t, reply.Command.Err, ErrBadFileName)
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	calls := 0
	client := &stubClient{reply: func(req cloud.Request) cloud.Result {
		calls++
		if calls == 1 {
			panic("unexpected")
		}
		return cloud.Result{Answer: "fine"}
	}}
	s, _ := newSession(t, client, nil)
	ctx := context.Background()

	_, err := s.Handle(ctx, "first")
	assert.ErrorIs(t, err, ErrTurnPanic)

	reply, err := s.Handle(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "fine", reply.Turn.AssistantDisplay)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		kind CommandKind
		arg  string
		ok   bool
	}{
		{"exit", CmdExit, "", true},
		{"  Quit ", CmdExit, "", true},
		{":EXIT", CmdExit, "", true},
		{":clear", CmdClear, "", true},
		{":save", CmdSave, "", true},
		{":SAVE Notes.jsonl", CmdSave, "Notes.jsonl", true},
		{":tokens", CmdTokens, "", true},
		{":commands", CmdHelp, "", true},
		{"exit the building", 0, "", false},
		{"hello", 0, "", false},
		{":unknown", 0, "", false},
	}
	for _, tc := range tests {
		cmd, ok := ParseCommand(tc.line)
		if ok != tc.ok || cmd.Kind != tc.kind || cmd.Arg != tc.arg {
			t.Errorf("ParseCommand(%q) = %+v, %v", tc.line, cmd, ok)
		}
	}
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Options{})
	assert.Error(t, err)

	tutor := persona.Builtin().Default()
	s, err := NewSession(Options{
		Persona: tutor,
		Client:  &stubClient{},
		Journal: journal.New(filepath.Join(t.TempDir(), "x.jsonl"), ""),
	})
	require.NoError(t, err)
	assert.Equal(t, "en", s.Language())
	assert.Equal(t, model.DefaultModelID, s.Model())
	assert.NotEmpty(t, s.ID())
}
