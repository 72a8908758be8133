// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persona holds the catalog of canned system prompts. A persona has a
// default prompt plus per-language variants; the first declared language is
// the persona's default.
package persona

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// Style is the presentation hint for a persona.
type Style struct {
	Emoji string `json:"emoji" yaml:"emoji"`
	Color string `json:"color" yaml:"color"`
}

// DefaultStyle fills in a persona that declares none.
var DefaultStyle = Style{Emoji: "🙂", Color: "#999999"}

// LanguagePrompt is one language variant of the system prompt.
type LanguagePrompt struct {
	Code   string `json:"code" yaml:"code"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// Persona is one catalog entry. Treat values as read-only once loaded.
type Persona struct {
	Name         string           `json:"name" yaml:"name"`
	Description  string           `json:"description" yaml:"description"`
	SystemPrompt string           `json:"system_prompt" yaml:"system_prompt"`
	Languages    []LanguagePrompt `json:"languages" yaml:"languages"`
	Style        Style            `json:"style" yaml:"style"`

	// ContextTemplate, when set, rewrites the prompt with per-user details.
	// It sees {{.Prompt}} and the user context as {{.User.key}}.
	ContextTemplate string `json:"context_template,omitempty" yaml:"context_template"`
}

type contextData struct {
	Prompt string
	User   map[string]string
}

// Prompt returns the system prompt for code, falling back to English and
// then to the generic system prompt.
func (p Persona) Prompt(code string) string {
	if s := p.languagePrompt(code); s != "" {
		return s
	}
	if s := p.languagePrompt("en"); s != "" {
		return s
	}
	return p.SystemPrompt
}

// PromptFor is Prompt with the user context applied through the persona's
// context template. Without a template or context it equals Prompt. A
// template that fails keeps the prompt and notes the failure.
func (p Persona) PromptFor(code string, userCtx map[string]string) string {
	base := p.Prompt(code)
	if p.ContextTemplate == "" || len(userCtx) == 0 {
		return base
	}
	out, err := p.injectContext(base, userCtx)
	if err != nil {
		return base + "\n\n[Context injection failed: " + err.Error() + "]"
	}
	return out
}

func (p Persona) injectContext(base string, userCtx map[string]string) (string, error) {
	t, err := parseContextTemplate(p.Name, p.ContextTemplate)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := t.Execute(&sb, contextData{Prompt: base, User: userCtx}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func parseContextTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("context template: %w", err)
	}
	return t, nil
}

func (p Persona) languagePrompt(code string) string {
	for _, lp := range p.Languages {
		if strings.EqualFold(lp.Code, code) {
			return lp.Prompt
		}
	}
	return ""
}

// LanguageCodes returns the declared languages in declaration order.
func (p Persona) LanguageCodes() []string {
	out := make([]string, len(p.Languages))
	for i, lp := range p.Languages {
		out[i] = lp.Code
	}
	return out
}

// DefaultLanguage is the first declared language, or "en".
func (p Persona) DefaultLanguage() string {
	if len(p.Languages) > 0 {
		return p.Languages[0].Code
	}
	return "en"
}

// Supports reports whether code has a dedicated prompt.
func (p Persona) Supports(code string) bool {
	return p.languagePrompt(code) != ""
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is an ordered, immutable list of personas. Menu numbers are
// 1-based indexes.
type Catalog struct {
	personas []Persona
}

// NewCatalog builds a catalog, filling default styles.
func NewCatalog(personas []Persona) *Catalog {
	out := make([]Persona, len(personas))
	for i, p := range personas {
		if p.Style.Emoji == "" {
			p.Style.Emoji = DefaultStyle.Emoji
		}
		if p.Style.Color == "" {
			p.Style.Color = DefaultStyle.Color
		}
		out[i] = p
	}
	return &Catalog{personas: out}
}

// All returns a copy of the personas in menu order.
func (c *Catalog) All() []Persona {
	return append([]Persona(nil), c.personas...)
}

// Len returns the number of personas.
func (c *Catalog) Len() int { return len(c.personas) }

// Default returns the first persona.
func (c *Catalog) Default() Persona {
	return c.personas[0]
}

// ByName finds a persona by case-insensitive name.
func (c *Catalog) ByName(name string) (Persona, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.personas {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Persona{}, false
}

// ByIndex finds a persona by 1-based menu number.
func (c *Catalog) ByIndex(n int) (Persona, bool) {
	if n < 1 || n > len(c.personas) {
		return Persona{}, false
	}
	return c.personas[n-1], true
}

// Resolve accepts a menu number or a name and falls back to the default
// persona when neither matches.
func (c *Catalog) Resolve(choice string) Persona {
	choice = strings.TrimSpace(choice)
	if n, err := strconv.Atoi(choice); err == nil {
		if p, ok := c.ByIndex(n); ok {
			return p
		}
		return c.Default()
	}
	if p, ok := c.ByName(choice); ok {
		return p
	}
	return c.Default()
}
