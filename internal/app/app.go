// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the long-lived services shared by every session: the
// completion client, the persona catalog, the language capabilities, the
// tokenizer, the turn index and the metrics. The terminal and browser
// front-ends both start from an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nav0225/qna-chatbot/internal/cloud"
	"github.com/nav0225/qna-chatbot/internal/config"
	"github.com/nav0225/qna-chatbot/internal/events"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/lang"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/observability"
	"github.com/nav0225/qna-chatbot/internal/persona"
	"github.com/nav0225/qna-chatbot/internal/pipeline"
	"github.com/nav0225/qna-chatbot/internal/storage"
	"github.com/nav0225/qna-chatbot/internal/tokens"
)

// App holds the shared services. All fields are safe for concurrent use.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Client     pipeline.Completer
	Personas   *persona.Store
	Estimator  tokens.Estimator
	Detector   lang.Detector
	Translator lang.Translator
	Metrics    *observability.Metrics

	// Index is nil when storage.index_path is empty or the index failed to
	// open; sessions then simply are not indexed.
	Index *storage.TurnIndex
}

// Option customizes New. Tests use these to swap out the network client.
type Option func(*App)

// WithClient replaces the OpenRouter client.
func WithClient(c pipeline.Completer) Option {
	return func(a *App) { a.Client = c }
}

// WithEstimator replaces the startup tokenizer selection.
func WithEstimator(e tokens.Estimator) Option {
	return func(a *App) { a.Estimator = e }
}

// New builds the services from cfg. A missing API key is fatal and is
// returned as cloud.ErrMissingCredential. Optional capabilities degrade
// with a warning instead of failing.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if a.Client == nil {
		client, err := newCloudClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Client = client
	}

	if a.Estimator == nil {
		a.Estimator = tokens.Select(logger)
	}
	a.Detector, a.Translator = lang.Select(cfg.Translate.URL, cfg.Translate.APIKey, logger)

	a.Personas = persona.NewStore(loadCatalog(cfg.Persona.CatalogPath, logger))
	a.Metrics = observability.NewMetrics()

	if path := cfg.IndexPath(); path != "" {
		idx, err := storage.Open(path)
		if err != nil {
			logger.Warn("turn index unavailable, history search disabled", "path", path, "error", err)
		} else {
			a.Index = idx
		}
	}
	return a, nil
}

func newCloudClient(cfg *config.Config, logger *slog.Logger) (*cloud.Client, error) {
	client, err := cloud.NewClient(cfg.Cloud.APIKey)
	if err != nil {
		return nil, err
	}
	client = client.
		WithEndpoint(cfg.Cloud.Endpoint).
		WithTimeout(cfg.Timeout()).
		WithMaxRetries(cfg.Cloud.Retries).
		WithBackoffCap(cfg.BackoffCap()).
		WithSiteURL(cfg.Cloud.SiteURL).
		WithSiteName(cfg.Cloud.SiteName).
		WithLogger(logger)
	logger.Debug("completion client ready", "endpoint", cfg.Cloud.Endpoint, "key", client.KeyFingerprint())
	return client, nil
}

// loadCatalog reads the YAML catalog when configured. Any failure falls back
// to the built-in personas.
func loadCatalog(path string, logger *slog.Logger) *persona.Catalog {
	if path == "" {
		return persona.Builtin()
	}
	c, err := persona.LoadFile(path)
	if err != nil {
		logger.Warn("persona catalog unavailable, using built-in personas", "path", path, "error", err)
		return persona.Builtin()
	}
	logger.Debug("persona catalog loaded", "path", path, "personas", c.Len())
	return c
}

// WatchPersonas hot-reloads the configured catalog until ctx ends. It is a
// no-op without a catalog path.
func (a *App) WatchPersonas(ctx context.Context) error {
	path := a.Config.Persona.CatalogPath
	if path == "" {
		return nil
	}
	return a.Personas.Watch(ctx, path, a.Logger)
}

// Close releases the index.
func (a *App) Close() error {
	if a.Index != nil {
		return a.Index.Close()
	}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionSpec is what a front-end chose for a new session. Empty fields fall
// back to the configuration.
type SessionSpec struct {
	ID       string
	Model    string
	Persona  string
	Language string
	Budget   int

	// ReadableLog overrides the readable log path; the browser front-end
	// keeps its own.
	ReadableLog string

	// UserContext overrides chat.user_context for persona templates.
	UserContext map[string]string
}

// NewSession creates a session with its own journal and bus. The bus feeds
// the log, the turn index and the metrics.
func (a *App) NewSession(ss SessionSpec) (*pipeline.Session, error) {
	cfg := a.Config

	p := a.Personas.Catalog().Resolve(firstNonEmpty(ss.Persona, cfg.Chat.Persona))
	language := lang.Normalize(firstNonEmpty(ss.Language, cfg.Chat.Language))
	if language != "" && !p.Supports(language) {
		a.Logger.Debug("persona has no prompt for language, using fallback prompt",
			"persona", p.Name, "language", language)
	}
	modelID := model.ResolveModel(firstNonEmpty(ss.Model, cfg.Cloud.DefaultModel))

	budget := ss.Budget
	if budget <= 0 {
		budget = cfg.Chat.MaxContext
	}

	id := ss.ID
	if id == "" {
		id = journal.SessionID(nowUTC())
	}
	readable := ss.ReadableLog
	if readable == "" {
		readable = cfg.ReadableLogPath()
	}
	j := journal.New(filepath.Join(cfg.SessionDirPath(), journal.FileName(id)), readable)

	userCtx := ss.UserContext
	if userCtx == nil {
		userCtx = cfg.Chat.UserContext
	}
	temperature := cfg.Cloud.Temperature

	logger := a.Logger
	bus := events.NewBus(logger)
	bus.SubscribeAll(events.LogHandler(logger))
	bus.SubscribeAll(a.Metrics.BusHandler())
	bus.Subscribe(events.SessionStarted, func(context.Context, events.Event) error {
		a.Metrics.SessionOpened()
		return nil
	})
	bus.Subscribe(events.SessionEnded, func(context.Context, events.Event) error {
		a.Metrics.SessionClosed()
		return nil
	})
	if a.Index != nil {
		bus.Subscribe(events.TurnCompleted, a.Index.Handler())
	}

	s, err := pipeline.NewSession(pipeline.Options{
		ID:              id,
		Persona:         p,
		Language:        language,
		Model:           modelID,
		Client:          a.Client,
		Journal:         j,
		Estimator:       a.Estimator,
		Detector:        a.Detector,
		Translator:      a.Translator,
		Bus:             bus,
		Logger:          logger,
		Budget:          budget,
		MaxTokens:       cfg.Cloud.MaxTokens,
		Temperature:     &temperature,
		TopP:            cfg.Cloud.TopP,
		UserContext:     userCtx,
		MaxInputChars:   cfg.Chat.MaxInputChars,
		MaxDisplayChars: cfg.Chat.MaxDisplayChars,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func nowUTC() time.Time { return time.Now().UTC() }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
