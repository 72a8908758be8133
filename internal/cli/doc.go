// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the terminal front-end and the command line.
//
// # Key Types
//
//   - Args: parsed flags and subcommand
//   - Chat: the interactive loop driving one pipeline.Session
//   - ChatCLI: liner-backed line editing with persisted history
//   - Renderer: glamour markdown or plain text output
//
// # Commands
//
//   - chat (default): interactive session; model and persona come from
//     flags, an arrow-key menu on a terminal, or a numbered prompt
//   - web / --ui: handled by package web
//   - search, replay, export, models, personas, config: no API key needed
//
// Ctrl+C at the prompt leaves the chat. Ctrl+C while waiting for a reply
// abandons the session: the reply is dropped when it arrives and the turn
// is not journaled.
package cli
