// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nav0225/qna-chatbot/internal/app"
	"github.com/nav0225/qna-chatbot/internal/export"
	"github.com/nav0225/qna-chatbot/internal/journal"
	"github.com/nav0225/qna-chatbot/internal/model"
	"github.com/nav0225/qna-chatbot/internal/session"
	"github.com/nav0225/qna-chatbot/internal/storage"
	"github.com/nav0225/qna-chatbot/internal/ui/styles"
)

//go:embed assets
var embeddedAssets embed.FS

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Server is the browser front-end. Each websocket connection owns one
// chat session; everything else on the server is shared and read-only.
type Server struct {
	app      *app.App
	logger   *slog.Logger
	registry *session.Registry
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	page     *template.Template
	static   http.Handler

	mu    sync.Mutex
	conns map[string]*wsConn
}

// Option customizes a Server.
type Option func(*Server)

// WithRegistryConfig sets the idle timeout policy for browser sessions.
func WithRegistryConfig(cfg session.Config) Option {
	return func(s *Server) { s.registry = session.NewRegistry(cfg) }
}

// New creates a server for a. It does not listen; see Serve.
func New(a *app.App, opts ...Option) (*Server, error) {
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, fmt.Errorf("failed to load web assets: %w", err)
	}
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load web assets: %w", err)
	}
	page, err := template.ParseFS(assets, "index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse chat page: %w", err)
	}

	cfg := a.Config
	s := &Server{
		app:     a,
		logger:  a.Logger,
		limiter: NewRateLimiter(cfg.Web.RatePerSec, cfg.Web.Burst),
		page:    page,
		static:  http.FileServer(http.FS(static)),
		conns:   make(map[string]*wsConn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(cfg.Web.AllowAnyOrigin),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = session.NewRegistry(session.DefaultConfig())
	}
	s.registry.SetWarningCallback(s.warnIdle)
	return s, nil
}

// checkOrigin allows same-host browser origins, and clients that send no
// Origin at all.
func checkOrigin(allowAny bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowAny {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Registry exposes the live browser sessions.
func (s *Server) Registry() *session.Registry { return s.registry }

// Router returns the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.logger), LoggingMiddleware(s.logger), SecurityHeadersMiddleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.app.Metrics.Handler())
	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.limiter, s.logger))
		r.Get("/ws", s.handleWS)
		r.Route("/api", func(r chi.Router) {
			r.Get("/models", s.handleModels)
			r.Get("/personas", s.handlePersonas)
			r.Get("/sessions", s.handleSessions)
			r.Get("/sessions/{id}/transcript", s.handleTranscript)
			r.Get("/history", s.handleHistory)
		})
	})
	return r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Serve runs the browser front-end on addr until ctx ends, then shuts down
// gracefully and closes every open chat.
func Serve(ctx context.Context, a *app.App, addr string) error {
	s, err := New(a)
	if err != nil {
		return err
	}

	bg, stop := context.WithCancel(ctx)
	defer stop()
	go s.registry.Run(bg)
	go s.cleanupLimiter(bg)
	go func() {
		if err := a.WatchPersonas(bg); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn("persona catalog watch stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("web server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("web server shutting down", "sessions", s.registry.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// Hijacked websocket connections are not tracked by http.Server
	s.closeAll()
	return err
}

func (s *Server) cleanupLimiter(ctx context.Context) {
	t := time.NewTicker(limiterIdle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.Cleanup()
		}
	}
}

// ============================================================================
// PAGE
// ============================================================================

type pageData struct {
	Title   string
	Palette styles.Palette
	Themes  []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	theme := r.URL.Query().Get("theme")
	if theme == "" {
		theme = s.app.Config.Web.Theme
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.page.Execute(w, pageData{
		Title:   "QnA Bot",
		Palette: styles.PaletteByName(theme),
		Themes:  styles.PaletteNames(),
	})
	if err != nil {
		s.logger.Error("failed to render chat page", "error", err)
	}
}

// ============================================================================
// API HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  s.registry.Len(),
		"tokenizer": s.app.Estimator.Name(),
		"index":     s.app.Index != nil,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"models":  model.ListModels(),
		"default": model.ResolveModel(s.app.Config.Cloud.DefaultModel),
	})
}

type personaView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Emoji       string   `json:"emoji"`
	Color       string   `json:"color"`
	Languages   []string `json:"languages"`
}

func (s *Server) handlePersonas(w http.ResponseWriter, _ *http.Request) {
	catalog := s.app.Personas.Catalog()
	all := catalog.All()
	views := make([]personaView, 0, len(all))
	for _, p := range all {
		views = append(views, personaView{
			Name:        p.Name,
			Description: p.Description,
			Emoji:       p.Style.Emoji,
			Color:       p.Style.Color,
			Languages:   p.LanguageCodes(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"personas": views,
		"default":  catalog.Resolve(s.app.Config.Chat.Persona).Name,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.Statuses()})
}

// validSessionID matches UUIDs and timestamp ids; nothing that could walk
// out of the session directory.
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// handleTranscript serves the full-length transcript of a session from its
// journal file, so the live session is never touched from another goroutine.
// The format query parameter picks md, html, json or txt (the default).
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validSessionID.MatchString(id) {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "invalid session id")
		return
	}
	opts := export.DefaultOptions()
	opts.Theme = s.app.Config.Web.Theme
	exporter, err := export.ForFormat(r.URL.Query().Get("format"), opts)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}

	path := filepath.Join(s.app.Config.SessionDirPath(), journal.FileName(id))
	t, err := export.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, http.StatusNotFound, "session_not_found", "no transcript for this session")
			return
		}
		if t == nil {
			s.logger.Error("failed to load transcript", "session", id, "error", err)
			respondError(w, http.StatusInternalServerError, "transcript_unreadable", "transcript could not be read")
			return
		}
		s.logger.Warn("transcript partially unreadable", "session", id, "error", err)
	}

	body, err := exporter.Export(t)
	if errors.Is(err, export.ErrEmptyTranscript) {
		respondError(w, http.StatusNotFound, "session_not_found", "no transcript for this session")
		return
	}
	if err != nil {
		s.logger.Error("failed to export transcript", "session", id, "error", err)
		respondError(w, http.StatusInternalServerError, "export_failed", "transcript could not be exported")
		return
	}

	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="chat_history_%s%s"`, id, exporter.FileExtension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.app.Index == nil {
		respondError(w, http.StatusServiceUnavailable, "index_disabled", "turn index is disabled")
		return
	}
	q := r.URL.Query()
	limit := storage.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.app.Index.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.logger.Error("history search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "search_failed", "history search failed")
		return
	}
	if recs == nil {
		recs = []storage.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": recs})
}

// ============================================================================
// HELPERS
// ============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
