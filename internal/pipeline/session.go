// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/events"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/lang"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/tokens"
	"github.com/nav0225/qna-chatbot/internal/window"
)

// Completer sends one completion request. *cloud.Client implements it.
type Completer interface {
	Send(ctx context.Context, req cloud.Request) cloud.Result
}

var (
	// ErrAborted is returned for a turn whose session was aborted while the
	// request was in flight. Such turns are neither journaled nor kept.
	ErrAborted = errors.New("session aborted")

	// ErrTurnPanic wraps a panic recovered while handling one input line.
	ErrTurnPanic = errors.New("turn failed")
)

// Options configures a Session. Client, Journal and Persona are required.
type Options struct {
	ID       string
	Persona  persona.Persona
	Language string // persona language; defaults to the persona's first
	Model    string

	Client     Completer
	Journal    *journal.Journal
	Estimator  tokens.Estimator
	Detector   lang.Detector
	Translator lang.Translator
	Bus        *events.Bus
	Logger     *slog.Logger

	// Budget is the context token budget (window.DefaultBudget when zero).
	Budget int

	// Sampling parameters. MaxTokens and TopP use the cloud defaults when
	// zero; a nil Temperature does, while a zero one is sent as 0.
	MaxTokens   int
	Temperature *float64
	TopP        float64

	// UserContext is handed to the persona's context template.
	UserContext map[string]string

	MaxInputChars   int
	MaxDisplayChars int

	// SaveDir is where :save writes; the journal's directory when empty.
	SaveDir string

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Session is one conversation: one persona, one language, one model, one
// context window and one journal. Its methods must be called from a single
// goroutine, except Abort, Turns and Entries.
type Session struct {
	id         string
	persona    persona.Persona
	language   string
	model      string
	client     Completer
	journal    *journal.Journal
	window     *window.Window
	detector   lang.Detector
	translator lang.Translator
	bus        *events.Bus
	logger     *slog.Logger
	now        func() time.Time

	maxTokens       int
	temperature     float64
	topP            float64
	maxInputChars   int
	maxDisplayChars int
	saveDir         string
	userContext     map[string]string

	// mu guards the turn commit against Abort: once Abort returns, no
	// further turn is journaled or counted.
	mu      sync.Mutex
	entries []journal.Entry
	turns   int
	aborted atomic.Bool
}

// NewSession validates opts and creates a session.
func NewSession(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("pipeline: completion client is required")
	}
	if opts.Journal == nil {
		return nil, errors.New("pipeline: journal is required")
	}
	if opts.Persona.Name == "" {
		return nil, errors.New("pipeline: persona is required")
	}

	s := &Session{
		id:              opts.ID,
		persona:         opts.Persona,
		language:        lang.Normalize(opts.Language),
		model:           opts.Model,
		client:          opts.Client,
		journal:         opts.Journal,
		detector:        opts.Detector,
		translator:      opts.Translator,
		bus:             opts.Bus,
		logger:          opts.Logger,
		now:             opts.Now,
		maxTokens:       opts.MaxTokens,
		temperature:     cloud.DefaultTemperature,
		topP:            opts.TopP,
		maxInputChars:   opts.MaxInputChars,
		maxDisplayChars: opts.MaxDisplayChars,
		saveDir:         opts.SaveDir,
		userContext:     maps.Clone(opts.UserContext),
	}
	if opts.Temperature != nil {
		s.temperature = *opts.Temperature
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.language == "" {
		s.language = lang.Normalize(s.persona.DefaultLanguage())
	}
	if s.model == "" {
		s.model = model.DefaultModelID
	}
	if s.id == "" {
		s.id = journal.SessionID(s.now())
	}
	if s.detector == nil {
		s.detector = lang.ScriptDetector{}
	}
	if s.translator == nil {
		s.translator = lang.Passthrough{}
	}
	if s.bus == nil {
		s.bus = events.NewBus(opts.Logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id)
	if s.maxTokens <= 0 {
		s.maxTokens = cloud.DefaultMaxTokens
	}
	if s.topP == 0 {
		s.topP = cloud.DefaultTopP
	}
	if s.maxInputChars <= 0 {
		s.maxInputChars = MaxInputChars
	}
	if s.maxDisplayChars <= 0 {
		s.maxDisplayChars = MaxDisplayChars
	}
	if s.saveDir == "" {
		s.saveDir = filepath.Dir(s.journal.Path())
	}

	s.window = window.New(opts.Budget, opts.Estimator)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Persona returns the session's persona.
func (s *Session) Persona() persona.Persona { return s.persona }

// Language returns the persona language.
func (s *Session) Language() string { return s.language }

// Model returns the model identifier.
func (s *Session) Model() string { return s.model }

// Window returns the context window.
func (s *Session) Window() *window.Window { return s.window }

// Journal returns the session journal.
func (s *Session) Journal() *journal.Journal { return s.journal }

// Bus returns the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }

// MaxDisplayChars returns the on-screen reply cap.
func (s *Session) MaxDisplayChars() int { return s.maxDisplayChars }

// Entries returns a copy of the journal entries written this session.
func (s *Session) Entries() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]journal.Entry(nil), s.entries...)
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Abort marks the session as abandoned. A turn waiting on the network when
// this happens is dropped once its response arrives; its request is left to
// finish. Safe to call from any goroutine. A turn already being journaled
// completes before Abort returns.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted.Store(true)
}

// Aborted reports whether Abort was called.
func (s *Session) Aborted() bool {
	return s.aborted.Load()
}

// Start announces the session on its bus.
func (s *Session) Start(ctx context.Context) {
	s.logger.Info("session started", "persona", s.persona.Name, "language", s.language, "model", s.model)
	s.publish(ctx, events.SessionStarted, nil)
}

// End announces the end of the session on its bus.
func (s *Session) End(ctx context.Context) {
	s.publish(ctx, events.SessionEnded, nil)
	s.logger.Info("session ended", "turns", s.Turns())
}

func (s *Session) publish(ctx context.Context, kind events.Kind, payload any) {
	s.bus.Publish(ctx, events.Event{
		Kind:      kind,
		SessionID: s.id,
		Persona:   s.persona.Name,
		Model:     s.model,
		Payload:   payload,
	})
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

// Reply is the outcome of one input line: a command result, a turn, or
// neither when the input sanitized to nothing.
type Reply struct {
	Command *CommandResult
	Turn    *Turn
}

// Handle routes one input line to a command or through the pipeline. A panic
// anywhere in the turn is recovered and returned as an error wrapping
// ErrTurnPanic, so the caller's loop can carry on.
func (s *Session) Handle(ctx context.Context, line string) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling input", "panic", r, "stack", string(debug.Stack()))
			reply = Reply{}
			err = fmt.Errorf("%w: %v", ErrTurnPanic, r)
		}
	}()

	if cmd, ok := ParseCommand(line); ok {
		res := s.Run(ctx, cmd)
		return Reply{Command: &res}, nil
	}

	turn, err := s.Turn(ctx, line)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Turn: turn}, nil
}

// Turn runs one input line through the pipeline: sanitize, detect, translate
// in, build the request, dispatch, translate out, persist, append to context.
// Upstream failures are not errors; their text becomes the answer. A nil Turn
// with a nil error means the input was empty after sanitizing.
func (s *Session) Turn(ctx context.Context, input string) (*Turn, error) {
	user := SanitizeN(input, s.maxInputChars)
	if user == "" {
		return nil, nil
	}

	detected := s.detect(ctx, user)
	translate := !lang.Same(detected, s.language)

	userPersona := user
	if translate {
		userPersona = s.translate(ctx, user, s.language)
	}

	req := s.buildRequest(userPersona)
	res := s.client.Send(ctx, req)

	// A canceled caller has given up on the turn, like an aborted session.
	if s.Aborted() || ctx.Err() != nil {
		s.logger.Info("dropping abandoned turn")
		return nil, ErrAborted
	}

	assistant := res.Text()
	display := assistant
	// Failure texts stay as produced.
	if translate && res.OK() {
		display = s.translate(ctx, assistant, detected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Aborted() {
		s.logger.Info("dropping abandoned turn")
		return nil, ErrAborted
	}

	turn := &Turn{
		TS:               journal.Timestamp(s.now()),
		Persona:          s.persona.Name,
		Language:         detected,
		User:             user,
		UserPersona:      userPersona,
		Assistant:        assistant,
		AssistantDisplay: display,
		Translated:       translate,
		Result:           res,
	}

	entry := turn.Entry()
	if err := s.journal.Append(entry); err != nil {
		turn.PersistErr = err
		s.logger.Error("failed to journal turn", "path", s.journal.Path(), "error", err)
	}
	s.entries = append(s.entries, entry)

	s.window.Append(turn.ContextPair())
	s.turns++

	failure := ""
	if res.Failure != nil {
		failure = string(res.Failure.Kind)
	}
	s.publish(ctx, events.TurnCompleted, &events.TurnInfo{
		TS:        turn.TS,
		Language:  detected,
		User:      user,
		Assistant: display,
		OK:        res.OK(),
		Failure:   failure,
		Attempts:  res.Attempts,
		Tokens:    entry.Meta.TotalTokens(),
		Duration:  res.Duration,
	})
	return turn, nil
}

func (s *Session) detect(ctx context.Context, text string) string {
	code, err := s.detector.Detect(ctx, text)
	if err != nil || strings.TrimSpace(code) == "" {
		if err != nil {
			s.logger.Debug("language detection failed", "error", err)
		}
		return lang.Default
	}
	return lang.Normalize(code)
}

func (s *Session) translate(ctx context.Context, text, target string) string {
	out, err := s.translator.Translate(ctx, text, target)
	if err != nil || out == "" {
		if err != nil {
			s.logger.Debug("translation failed, keeping original", "target", target, "error", err)
		}
		return text
	}
	s.logger.Debug("translated", "target", target)
	return out
}

// buildRequest assembles system prompt, trimmed context and the new message.
func (s *Session) buildRequest(user string) cloud.Request {
	trimmed := s.window.Trimmed()
	if trimmed.Dropped > 0 {
		s.logger.Debug("context trimmed", "dropped", trimmed.Dropped, "tokens", trimmed.Tokens)
	}

	msgs := make([]model.Message, 0, len(trimmed.Messages)+2)
	msgs = append(msgs, model.NewSystemMessage(s.persona.PromptFor(s.language, s.userContext)))
	msgs = append(msgs, trimmed.Messages...)
	msgs = append(msgs, model.NewUserMessage(user))

	return cloud.Request{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        s.topP,
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// Run executes a command. Commands never call the completion client.
func (s *Session) Run(ctx context.Context, cmd Command) CommandResult {
	switch cmd.Kind {
	case CmdExit:
		return CommandResult{Kind: CmdExit, Exit: true, Message: "Exiting. Goodbye!"}

	case CmdClear:
		s.window.Clear()
		s.publish(ctx, events.ContextCleared, nil)
		return CommandResult{Kind: CmdClear, Message: "[Context cleared]"}

	case CmdSave:
		return s.save(ctx, cmd.Arg)

	case CmdTokens:
		n := s.window.Tokens()
		return CommandResult{
			Kind:    CmdTokens,
			Tokens:  n,
			Budget:  s.window.Budget(),
			Message: fmt.Sprintf("[Context token usage: %d / %d]", n, s.window.Budget()),
		}

	case CmdHelp:
		return CommandResult{Kind: CmdHelp, Message: HelpText}
	}
	return CommandResult{Kind: cmd.Kind, Err: fmt.Errorf("unknown command %v", cmd.Kind)}
}

// ErrBadFileName rejects :save targets outside the save directory.
var ErrBadFileName = errors.New("file name must not contain a path")

func (s *Session) save(ctx context.Context, name string) CommandResult {
	if name == "" {
		name = journal.FileName(journal.SessionID(s.now()))
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return CommandResult{Kind: CmdSave, Err: ErrBadFileName, Message: "[Save failed] " + ErrBadFileName.Error()}
	}

	path := filepath.Join(s.saveDir, name)
	if err := journal.WriteTranscript(path, s.Entries()); err != nil {
		s.logger.Error("failed to save transcript", "path", path, "error", err)
		return CommandResult{Kind: CmdSave, Path: path, Err: err, Message: "[Save failed] " + err.Error()}
	}

	s.publish(ctx, events.TranscriptSaved, path)
	return CommandResult{Kind: CmdSave, Path: path, Message: fmt.Sprintf("[Session saved to %s]", path)}
}
