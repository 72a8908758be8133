// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete qna-chatbot configuration.
type Config struct {
	// Cloud (OpenRouter) configuration
	Cloud CloudConfig `toml:"cloud" json:"cloud"`

	// Conversation defaults
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Journal file locations
	Journal JournalConfig `toml:"journal" json:"journal"`

	// Translation service
	Translate TranslateConfig `toml:"translate" json:"translate"`

	// Persona catalog
	Persona PersonaConfig `toml:"persona" json:"persona"`

	// Turn index
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Browser front-end
	Web WebConfig `toml:"web" json:"web"`

	// Terminal front-end
	UI UIConfig `toml:"ui" json:"ui"`

	// Diagnostics log
	Log LogConfig `toml:"log" json:"log"`
}

// CloudConfig contains cloud provider (OpenRouter) configuration.
type CloudConfig struct {
	// APIKey is the OpenRouter API key
	APIKey         string  `toml:"api_key" json:"api_key"`
	Endpoint       string  `toml:"endpoint" json:"endpoint"`
	DefaultModel   string  `toml:"default_model" json:"default_model"`
	MaxTokens      int     `toml:"max_tokens" json:"max_tokens"`
	Temperature    float64 `toml:"temperature" json:"temperature"`
	TopP           float64 `toml:"top_p" json:"top_p"`
	Retries        int     `toml:"retries" json:"retries"`
	TimeoutSecs    int     `toml:"timeout_secs" json:"timeout_secs"`
	BackoffCapSecs int     `toml:"backoff_cap_secs" json:"backoff_cap_secs"`
	// SiteURL and SiteName are sent as OpenRouter attribution headers
	SiteURL  string `toml:"site_url" json:"site_url"`
	SiteName string `toml:"site_name" json:"site_name"`
}

// ChatConfig contains per-session conversation defaults.
type ChatConfig struct {
	Persona  string `toml:"persona" json:"persona"`
	Language string `toml:"language" json:"language"`
	// MaxContext is the context window token budget
	MaxContext      int `toml:"max_context" json:"max_context"`
	MaxInputChars   int `toml:"max_input_chars" json:"max_input_chars"`
	MaxDisplayChars int `toml:"max_display_chars" json:"max_display_chars"`
	// UserContext feeds persona context templates, e.g. {student = "Ana"}
	UserContext map[string]string `toml:"user_context,omitempty" json:"user_context,omitempty"`
}

// JournalConfig locates the journals. Relative paths resolve against Dir.
type JournalConfig struct {
	Dir            string `toml:"dir" json:"dir"`
	SessionDir     string `toml:"session_dir" json:"session_dir"`
	ReadableLog    string `toml:"readable_log" json:"readable_log"`
	WebReadableLog string `toml:"web_readable_log" json:"web_readable_log"`
}

// TranslateConfig points at a LibreTranslate-compatible service. An empty
// URL disables translation.
type TranslateConfig struct {
	URL    string `toml:"url" json:"url"`
	APIKey string `toml:"api_key" json:"api_key"`
}

// PersonaConfig selects an optional YAML persona catalog.
type PersonaConfig struct {
	CatalogPath string `toml:"catalog_path" json:"catalog_path"`
}

// StorageConfig locates the SQLite turn index. An empty path disables it;
// relative paths resolve against the journal dir.
type StorageConfig struct {
	IndexPath string `toml:"index_path" json:"index_path"`
}

// WebConfig contains browser front-end settings.
type WebConfig struct {
	Addr  string `toml:"addr" json:"addr"`
	Theme string `toml:"theme" json:"theme"`
	// RatePerSec and Burst bound requests per client IP
	RatePerSec     float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst          int     `toml:"burst" json:"burst"`
	AllowAnyOrigin bool    `toml:"allow_any_origin" json:"allow_any_origin"`
}

// UIConfig contains terminal front-end settings.
type UIConfig struct {
	// Theme is "auto", "light" or "dark"
	Theme    string `toml:"theme" json:"theme"`
	Markdown bool   `toml:"markdown" json:"markdown"`
	// HistoryFile keeps REPL input history; relative to the config dir
	HistoryFile string `toml:"history_file" json:"history_file"`
}

// LogConfig contains diagnostics log settings.
type LogConfig struct {
	// Path is relative to the journal dir
	Path    string `toml:"path" json:"path"`
	Verbose bool   `toml:"verbose" json:"verbose"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Cloud: CloudConfig{
			Endpoint:       "https://openrouter.ai/api/v1/chat/completions",
			DefaultModel:   "openrouter/auto",
			MaxTokens:      1024,
			Temperature:    0.8,
			TopP:           0.95,
			Retries:        3,
			TimeoutSecs:    60,
			BackoffCapSecs: 30,
			SiteName:       "qna-chatbot",
		},

		Chat: ChatConfig{
			Persona:         "Creative Tutor",
			Language:        "en",
			MaxContext:      2048,
			MaxInputChars:   3000,
			MaxDisplayChars: 2000,
		},

		Journal: JournalConfig{
			Dir:            "logs",
			SessionDir:     "sessions",
			ReadableLog:    "cli_chat_history.txt",
			WebReadableLog: "chat_history.txt",
		},

		Storage: StorageConfig{
			IndexPath: "turns.db",
		},

		Web: WebConfig{
			Addr:       "127.0.0.1:8501",
			Theme:      "light",
			RatePerSec: 5,
			Burst:      20,
		},

		UI: UIConfig{
			Theme:       "auto",
			Markdown:    true,
			HistoryFile: "history",
		},

		Log: LogConfig{
			Path: "bot.log",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the qna-chatbot configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".qna-chatbot"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens a config file holding an API key to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

func (j JournalConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(j.Dir, p)
}

// SessionDirPath returns the directory holding per-session JSONL journals.
func (c *Config) SessionDirPath() string { return c.Journal.resolve(c.Journal.SessionDir) }

// ReadableLogPath returns the terminal front-end's readable log.
func (c *Config) ReadableLogPath() string { return c.Journal.resolve(c.Journal.ReadableLog) }

// WebReadableLogPath returns the browser front-end's readable log.
func (c *Config) WebReadableLogPath() string { return c.Journal.resolve(c.Journal.WebReadableLog) }

// IndexPath returns the turn index path, or "" when the index is disabled.
func (c *Config) IndexPath() string { return c.Journal.resolve(c.Storage.IndexPath) }

// LogPath returns the diagnostics log path.
func (c *Config) LogPath() string { return c.Journal.resolve(c.Log.Path) }

// HistoryPath returns the REPL input history path, or "" when disabled.
func (c *Config) HistoryPath() string {
	p := c.UI.HistoryFile
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, p)
}

// Timeout returns the per-attempt HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Cloud.TimeoutSecs) * time.Second
}

// BackoffCap returns the ceiling on a single retry wait.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Cloud.BackoffCapSecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from ~/.qna-chatbot/config.toml, falling back
// to defaults when the file does not exist. Environment overrides are
// applied last.
func Load() (*Config, error) {
	path, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys missing from the file keep
// their current value.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills values a config file blanked out. Optional paths
// (storage index, translate url, persona catalog) stay empty on purpose.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	// Cloud
	if cfg.Cloud.Endpoint == "" {
		cfg.Cloud.Endpoint = defaults.Cloud.Endpoint
	}
	if cfg.Cloud.DefaultModel == "" {
		cfg.Cloud.DefaultModel = defaults.Cloud.DefaultModel
	}
	if cfg.Cloud.MaxTokens == 0 {
		cfg.Cloud.MaxTokens = defaults.Cloud.MaxTokens
	}
	if cfg.Cloud.TopP == 0 {
		cfg.Cloud.TopP = defaults.Cloud.TopP
	}
	if cfg.Cloud.Retries == 0 {
		cfg.Cloud.Retries = defaults.Cloud.Retries
	}
	if cfg.Cloud.TimeoutSecs == 0 {
		cfg.Cloud.TimeoutSecs = defaults.Cloud.TimeoutSecs
	}
	if cfg.Cloud.BackoffCapSecs == 0 {
		cfg.Cloud.BackoffCapSecs = defaults.Cloud.BackoffCapSecs
	}

	// Chat
	if cfg.Chat.Persona == "" {
		cfg.Chat.Persona = defaults.Chat.Persona
	}
	if cfg.Chat.Language == "" {
		cfg.Chat.Language = defaults.Chat.Language
	}
	if cfg.Chat.MaxContext == 0 {
		cfg.Chat.MaxContext = defaults.Chat.MaxContext
	}
	if cfg.Chat.MaxInputChars == 0 {
		cfg.Chat.MaxInputChars = defaults.Chat.MaxInputChars
	}
	if cfg.Chat.MaxDisplayChars == 0 {
		cfg.Chat.MaxDisplayChars = defaults.Chat.MaxDisplayChars
	}

	// Journal
	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = defaults.Journal.Dir
	}
	if cfg.Journal.SessionDir == "" {
		cfg.Journal.SessionDir = defaults.Journal.SessionDir
	}
	if cfg.Journal.ReadableLog == "" {
		cfg.Journal.ReadableLog = defaults.Journal.ReadableLog
	}
	if cfg.Journal.WebReadableLog == "" {
		cfg.Journal.WebReadableLog = defaults.Journal.WebReadableLog
	}

	// Web
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = defaults.Web.Addr
	}
	if cfg.Web.Theme == "" {
		cfg.Web.Theme = defaults.Web.Theme
	}
	if cfg.Web.RatePerSec == 0 {
		cfg.Web.RatePerSec = defaults.Web.RatePerSec
	}
	if cfg.Web.Burst == 0 {
		cfg.Web.Burst = defaults.Web.Burst
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	// Log
	if cfg.Log.Path == "" {
		cfg.Log.Path = defaults.Log.Path
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# qna-chatbot configuration file")
	fmt.Fprintln(file, "# The API key is better kept in OPENROUTER_API_KEY or .env")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors as
// ValidateErrors. A missing API key is not a validation error; the
// completion client rejects it at construction.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Cloud
	// ==========================================================================

	if err := validateHTTPURL(c.Cloud.Endpoint); err != nil {
		add("cloud.endpoint", "%v", err)
	}
	if c.Cloud.MaxTokens <= 0 {
		add("cloud.max_tokens", "must be positive, got %d", c.Cloud.MaxTokens)
	}
	if c.Cloud.Temperature < 0 || c.Cloud.Temperature > 2 {
		add("cloud.temperature", "must be between 0 and 2, got %g", c.Cloud.Temperature)
	}
	if c.Cloud.TopP <= 0 || c.Cloud.TopP > 1 {
		add("cloud.top_p", "must be in (0, 1], got %g", c.Cloud.TopP)
	}
	if c.Cloud.Retries < 1 || c.Cloud.Retries > 10 {
		add("cloud.retries", "must be between 1 and 10, got %d", c.Cloud.Retries)
	}
	if c.Cloud.TimeoutSecs <= 0 {
		add("cloud.timeout_secs", "must be positive, got %d", c.Cloud.TimeoutSecs)
	}
	if c.Cloud.BackoffCapSecs <= 0 {
		add("cloud.backoff_cap_secs", "must be positive, got %d", c.Cloud.BackoffCapSecs)
	}

	// ==========================================================================
	// Chat
	// ==========================================================================

	if c.Chat.MaxContext <= 0 {
		add("chat.max_context", "must be positive, got %d", c.Chat.MaxContext)
	}
	if c.Chat.MaxInputChars <= 0 {
		add("chat.max_input_chars", "must be positive, got %d", c.Chat.MaxInputChars)
	}
	if c.Chat.MaxDisplayChars <= 0 {
		add("chat.max_display_chars", "must be positive, got %d", c.Chat.MaxDisplayChars)
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	if c.Translate.URL != "" {
		if err := validateHTTPURL(c.Translate.URL); err != nil {
			add("translate.url", "%v", err)
		}
	}
	if c.Web.RatePerSec <= 0 {
		add("web.rate_per_sec", "must be positive, got %g", c.Web.RatePerSec)
	}
	if c.Web.Burst <= 0 {
		add("web.burst", "must be positive, got %d", c.Web.Burst)
	}

	validWebThemes := map[string]bool{"light": true, "dark": true}
	if !validWebThemes[strings.ToLower(c.Web.Theme)] {
		add("web.theme", "invalid theme '%s', must be one of: light, dark", c.Web.Theme)
	}
	validUIThemes := map[string]bool{"auto": true, "light": true, "dark": true}
	if !validUIThemes[strings.ToLower(c.UI.Theme)] {
		add("ui.theme", "invalid theme '%s', must be one of: auto, light, dark", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s': scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s': missing host", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OPENROUTER_API_KEY: overrides cloud.api_key
//   - QNA_MODEL: overrides cloud.default_model
//   - QNA_PERSONA: overrides chat.persona
//   - QNA_LANG: overrides chat.language
//   - QNA_MAX_CONTEXT: overrides chat.max_context
//   - QNA_LOG_DIR: overrides journal.dir
//   - QNA_TRANSLATE_URL, QNA_TRANSLATE_KEY: override translate.url and api_key
//   - QNA_ADDR: overrides web.addr
//   - DEBUG: set to "1" or "true" for verbose logging
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	}
	if model := os.Getenv("QNA_MODEL"); model != "" {
		c.Cloud.DefaultModel = model
	}
	if persona := os.Getenv("QNA_PERSONA"); persona != "" {
		c.Chat.Persona = persona
	}
	if lang := os.Getenv("QNA_LANG"); lang != "" {
		c.Chat.Language = lang
	}
	if v := os.Getenv("QNA_MAX_CONTEXT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.MaxContext = n
		}
	}
	if dir := os.Getenv("QNA_LOG_DIR"); dir != "" {
		c.Journal.Dir = dir
	}
	if u := os.Getenv("QNA_TRANSLATE_URL"); u != "" {
		c.Translate.URL = u
	}
	if key := os.Getenv("QNA_TRANSLATE_KEY"); key != "" {
		c.Translate.APIKey = key
	}
	if addr := os.Getenv("QNA_ADDR"); addr != "" {
		c.Web.Addr = addr
	}
	if debug := os.Getenv("DEBUG"); debug != "" {
		c.Log.Verbose = debug == "1" || strings.ToLower(debug) == "true"
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.max_context").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "chat.max_context").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"cloud.api_key",
		"cloud.endpoint",
		"cloud.default_model",
		"cloud.max_tokens",
		"cloud.temperature",
		"cloud.top_p",
		"cloud.retries",
		"cloud.timeout_secs",
		"cloud.backoff_cap_secs",
		"cloud.site_url",
		"cloud.site_name",
		"chat.persona",
		"chat.language",
		"chat.max_context",
		"chat.max_input_chars",
		"chat.max_display_chars",
		"journal.dir",
		"journal.session_dir",
		"journal.readable_log",
		"journal.web_readable_log",
		"translate.url",
		"translate.api_key",
		"persona.catalog_path",
		"storage.index_path",
		"web.addr",
		"web.theme",
		"web.rate_per_sec",
		"web.burst",
		"web.allow_any_origin",
		"ui.theme",
		"ui.markdown",
		"ui.history_file",
		"log.path",
		"log.verbose",
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Chat.UserContext = maps.Clone(c.Chat.UserContext)
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Cloud.APIKey != "" {
		safe.Cloud.APIKey = "[REDACTED]"
	}
	if safe.Translate.APIKey != "" {
		safe.Translate.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
