// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrEmptyCatalog is returned for a catalog file without personas.
var ErrEmptyCatalog = errors.New("persona catalog is empty")

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads a YAML catalog:
//
//	personas:
//	  - name: Pirate
//	    description: Talks like a pirate.
//	    system_prompt: You are a pirate.
//	    languages:
//	      - {code: en, prompt: "Answer like a pirate."}
//	    style: {emoji: "🏴‍☠️", color: "#2d2d2d"}
//	    context_template: "{{.Prompt}} The sailor's name is {{.User.name}}."
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, p := range f.Personas {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona %d: name is required", i+1)
		}
		if p.SystemPrompt == "" && len(p.Languages) == 0 {
			return nil, fmt.Errorf("persona %q: needs system_prompt or languages", p.Name)
		}
		if p.ContextTemplate != "" {
			if _, err := parseContextTemplate(p.Name, p.ContextTemplate); err != nil {
				return nil, fmt.Errorf("persona %q: %w", p.Name, err)
			}
		}
	}
	return NewCatalog(f.Personas), nil
}

// =============================================================================
// HOT RELOAD
// =============================================================================

// Store hands out the current catalog and lets a watcher swap it. Sessions
// resolve their persona once, so a swap only affects new sessions.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding c.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the current catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Swap replaces the catalog.
func (s *Store) Swap(c *Catalog) {
	s.current.Store(c)
}

// Watch reloads path into s whenever it changes, until ctx ends. The parent
// directory is watched so editors that replace the file are handled. A file
// that fails to parse leaves the previous catalog in place.
func (s *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	go func() {
		defer w.Close()
		const debounce = 200 * time.Millisecond
		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != absPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				c, err := LoadFile(absPath)
				if err != nil {
					logger.Warn("persona catalog reload failed, keeping previous", "path", absPath, "error", err)
					continue
				}
				s.Swap(c)
				logger.Info("persona catalog reloaded", "path", absPath, "personas", c.Len())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("persona watcher error", "error", err)
			}
		}
	}()
	return nil
}
