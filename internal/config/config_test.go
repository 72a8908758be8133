// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable ApplyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENROUTER_API_KEY", "QNA_MODEL", "QNA_PERSONA", "QNA_LANG", "QNA_MAX_CONTEXT",
		"QNA_LOG_DIR", "QNA_TRANSLATE_URL", "QNA_TRANSLATE_KEY", "QNA_ADDR", "DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
	if cfg.Cloud.Retries != 3 || cfg.Cloud.MaxTokens != 1024 {
		t.Errorf("cloud defaults = %+v", cfg.Cloud)
	}
	if cfg.Chat.MaxContext != 2048 {
		t.Errorf("MaxContext = %d, want 2048", cfg.Chat.MaxContext)
	}
	if cfg.Timeout() != 60*time.Second || cfg.BackoffCap() != 30*time.Second {
		t.Errorf("Timeout/BackoffCap = %v/%v", cfg.Timeout(), cfg.BackoffCap())
	}
}

func TestConfig_ResolvedPaths(t *testing.T) {
	cfg := Default()
	if got := cfg.SessionDirPath(); got != filepath.Join("logs", "sessions") {
		t.Errorf("SessionDirPath = %q", got)
	}
	if got := cfg.ReadableLogPath(); got != filepath.Join("logs", "cli_chat_history.txt") {
		t.Errorf("ReadableLogPath = %q", got)
	}
	if got := cfg.LogPath(); got != filepath.Join("logs", "bot.log") {
		t.Errorf("LogPath = %q", got)
	}

	abs := filepath.Join(t.TempDir(), "idx.db")
	cfg.Storage.IndexPath = abs
	if got := cfg.IndexPath(); got != abs {
		t.Errorf("absolute IndexPath rewritten to %q", got)
	}
	cfg.Storage.IndexPath = ""
	if got := cfg.IndexPath(); got != "" {
		t.Errorf("disabled IndexPath = %q, want empty", got)
	}
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_MergesOverDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[cloud]
default_model = "openai/gpt-4o-mini"
temperature = 0.3

[chat]
persona = "Pirate"
max_context = 512
user_context = {name = "Ana", level = "beginner"}

[storage]
index_path = ""
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Cloud.DefaultModel != "openai/gpt-4o-mini" || cfg.Cloud.Temperature != 0.3 {
		t.Errorf("cloud = %+v", cfg.Cloud)
	}
	if cfg.Chat.Persona != "Pirate" || cfg.Chat.MaxContext != 512 {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.Chat.UserContext["name"] != "Ana" || cfg.Chat.UserContext["level"] != "beginner" {
		t.Errorf("user_context = %v", cfg.Chat.UserContext)
	}
	// Untouched keys keep defaults.
	if cfg.Cloud.Retries != 3 || cfg.Chat.Language != "en" {
		t.Errorf("defaults lost: retries=%d lang=%q", cfg.Cloud.Retries, cfg.Chat.Language)
	}
	if cfg.IndexPath() != "" {
		t.Errorf("explicit empty index_path should disable the index, got %q", cfg.IndexPath())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %o, want 600", info.Mode().Perm())
	}
}

func TestClone_CopiesUserContext(t *testing.T) {
	cfg := Default()
	cfg.Chat.UserContext = map[string]string{"name": "Ana"}

	clone := cfg.Clone()
	clone.Chat.UserContext["name"] = "Raj"
	if cfg.Chat.UserContext["name"] != "Ana" {
		t.Errorf("clone shares user_context: %v", cfg.Chat.UserContext)
	}
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.toml", `
[cloud]
endpoint = "ftp://example.com"
retries = 50
top_p = 1.5

[web]
theme = "neon"
`)

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error should wrap ValidateErrors, got %T: %v", err, err)
	}

	fields := map[string]bool{}
	for _, v := range verrs {
		fields[v.Field] = true
	}
	for _, want := range []string{"cloud.endpoint", "cloud.retries", "cloud.top_p", "web.theme"} {
		if !fields[want] {
			t.Errorf("missing validation error for %s in %v", want, verrs)
		}
	}
}

func TestLoadFromPath_BadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[cloud\nretries = ")
	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Chat.Persona = "Sci-Fi AI"
	cfg.Web.AllowAnyOrigin = true
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Chat.Persona != "Sci-Fi AI" || !loaded.Web.AllowAnyOrigin {
		t.Errorf("round trip lost values: %+v %+v", loaded.Chat, loaded.Web)
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("QNA_MODEL", "meta-llama/llama-3-8b-instruct")
	t.Setenv("QNA_PERSONA", "Philosopher")
	t.Setenv("QNA_LANG", "hi")
	t.Setenv("QNA_MAX_CONTEXT", "4096")
	t.Setenv("QNA_LOG_DIR", "/var/log/qna")
	t.Setenv("QNA_TRANSLATE_URL", "http://localhost:5000")
	t.Setenv("QNA_ADDR", ":9000")
	t.Setenv("DEBUG", "TRUE")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Cloud.APIKey != "sk-or-test" {
		t.Errorf("APIKey not applied")
	}
	if cfg.Cloud.DefaultModel != "meta-llama/llama-3-8b-instruct" {
		t.Errorf("DefaultModel = %q", cfg.Cloud.DefaultModel)
	}
	if cfg.Chat.Persona != "Philosopher" || cfg.Chat.Language != "hi" || cfg.Chat.MaxContext != 4096 {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.SessionDirPath() != filepath.Join("/var/log/qna", "sessions") {
		t.Errorf("SessionDirPath = %q", cfg.SessionDirPath())
	}
	if cfg.Translate.URL != "http://localhost:5000" || cfg.Web.Addr != ":9000" {
		t.Errorf("translate/web = %+v %+v", cfg.Translate, cfg.Web)
	}
	if !cfg.Log.Verbose {
		t.Error("DEBUG=TRUE should enable verbose logging")
	}
}

func TestApplyEnvOverrides_BadNumberIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("QNA_MAX_CONTEXT", "lots")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Chat.MaxContext != 2048 {
		t.Errorf("MaxContext = %d, want default", cfg.Chat.MaxContext)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPENROUTER_API_KEY")
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "OPENROUTER_API_KEY=sk-from-dotenv\n")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("OPENROUTER_API_KEY"); got != "sk-from-dotenv" {
		t.Errorf("OPENROUTER_API_KEY = %q", got)
	}

	// Variables already set win.
	t.Setenv("OPENROUTER_API_KEY", "sk-from-env")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("OPENROUTER_API_KEY"); got != "sk-from-env" {
		t.Errorf("OPENROUTER_API_KEY = %q, want env value", got)
	}
}

// =============================================================================
// GET/SET + REDACTION
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("chat.max_context")
	if err != nil || v.(int) != 2048 {
		t.Errorf("Get(chat.max_context) = %v, %v", v, err)
	}

	if err := cfg.Set("chat.max_context", "1024"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Chat.MaxContext != 1024 {
		t.Errorf("MaxContext = %d after Set", cfg.Chat.MaxContext)
	}
	if err := cfg.Set("web.allow_any_origin", "yes"); err != nil || !cfg.Web.AllowAnyOrigin {
		t.Errorf("Set bool failed: %v", err)
	}
	if err := cfg.Set("cloud.temperature", 0.2); err != nil || cfg.Cloud.Temperature != 0.2 {
		t.Errorf("Set float failed: %v", err)
	}

	if _, err := cfg.Get("chat.nope"); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := cfg.Get("chat.persona.name"); err == nil {
		t.Error("expected not-a-struct error")
	}
	if err := cfg.Set("chat.max_context", "many"); err == nil {
		t.Error("expected integer parse error")
	}
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) failed: %v", key, err)
		}
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Cloud.APIKey = "sk-or-very-secret"
	cfg.Translate.APIKey = "lt-secret"

	s := cfg.String()
	if strings.Contains(s, "very-secret") || strings.Contains(s, "lt-secret") {
		t.Errorf("String() leaked a secret:\n%s", s)
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Error("String() should mark redacted fields")
	}
	if cfg.Cloud.APIKey != "sk-or-very-secret" {
		t.Error("String() must not modify the original")
	}
}
