// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persona

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()
	require.Equal(t, 4, c.Len())
	assert.Equal(t, "Creative Tutor", c.Default().Name)

	pirate, ok := c.ByName("  pIrAtE ")
	require.True(t, ok)
	assert.Equal(t, []string{"en", "es"}, pirate.LanguageCodes())
	assert.Equal(t, "en", pirate.DefaultLanguage())
	assert.Equal(t, "🏴‍☠️", pirate.Style.Emoji)

	scifi, ok := c.ByIndex(4)
	require.True(t, ok)
	assert.Equal(t, "Sci-Fi AI", scifi.Name)
	assert.True(t, scifi.Supports("de"))
	assert.False(t, scifi.Supports("hi"))
}

func TestPrompt_Fallback(t *testing.T) {
	p := Persona{
		SystemPrompt: "generic",
		Languages: []LanguagePrompt{
			{Code: "fr", Prompt: "bonjour"},
			{Code: "en", Prompt: "hello"},
		},
	}
	assert.Equal(t, "bonjour", p.Prompt("fr"))
	assert.Equal(t, "hello", p.Prompt("de"), "unknown language falls back to English")

	noEnglish := Persona{SystemPrompt: "generic", Languages: []LanguagePrompt{{Code: "fr", Prompt: "bonjour"}}}
	assert.Equal(t, "generic", noEnglish.Prompt("de"))
	assert.Equal(t, "en", Persona{}.DefaultLanguage())
}

func TestPromptFor_ContextTemplate(t *testing.T) {
	p := Persona{
		Name:            "Coach",
		SystemPrompt:    "You coach.",
		ContextTemplate: "{{.Prompt}} The learner is {{.User.name}}.",
	}
	assert.Equal(t, "You coach. The learner is Ana.", p.PromptFor("en", map[string]string{"name": "Ana"}))
	assert.Equal(t, "You coach.", p.PromptFor("en", nil), "no user context leaves the prompt alone")
	assert.Equal(t, "You coach.", Persona{SystemPrompt: "You coach."}.PromptFor("en", map[string]string{"name": "Ana"}))

	got := p.PromptFor("en", map[string]string{"team": "blue"})
	assert.True(t, strings.HasPrefix(got, "You coach.\n\n[Context injection failed: "), got)
	assert.Contains(t, got, "name")
}

func TestResolve(t *testing.T) {
	c := Builtin()
	assert.Equal(t, "Philosopher", c.Resolve("2").Name)
	assert.Equal(t, "Philosopher", c.Resolve("philosopher").Name)
	assert.Equal(t, "Creative Tutor", c.Resolve("9").Name)
	assert.Equal(t, "Creative Tutor", c.Resolve("nobody").Name)
}

const catalogYAML = `
personas:
  - name: Chef
    description: Cooks.
    system_prompt: You are a chef.
    languages:
      - {code: it, prompt: "Sei uno chef."}
      - {code: en, prompt: "You are a chef."}
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(catalogYAML))
	require.NoError(t, err)
	chef := c.Default()
	assert.Equal(t, "Chef", chef.Name)
	assert.Equal(t, "it", chef.DefaultLanguage())
	assert.Equal(t, DefaultStyle, chef.Style)

	_, err = Parse([]byte("personas: []"))
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = Parse([]byte("personas:\n  - description: nameless\n    system_prompt: x\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("personas:\n  - name: Broken\n    system_prompt: x\n    context_template: \"{{.Prompt\"\n"))
	assert.ErrorContains(t, err, "context template")
}

func TestStore_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0644))

	store := NewStore(Builtin())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx, path, nil))

	// Broken content keeps the old catalog.
	require.NoError(t, os.WriteFile(path, []byte("personas: ["), 0644))
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, "Creative Tutor", store.Catalog().Default().Name)

	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0644))
	assert.Eventually(t, func() bool {
		return store.Catalog().Default().Name == "Chef"
	}, 3*time.Second, 50*time.Millisecond)
}
