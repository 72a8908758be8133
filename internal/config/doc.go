// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for qna-chatbot.
//
// Configuration is TOML with built-in defaults, a .env file, environment
// variable overrides and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the caller)
//   - Environment variables (OPENROUTER_API_KEY, QNA_*, DEBUG), including
//     those loaded from .env
//   - ~/.qna-chatbot/config.toml, or the file given with --config
//   - Built-in defaults
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client, err := cloud.NewClient(cfg.Cloud.APIKey)
package config
