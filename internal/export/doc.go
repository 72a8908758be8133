// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export turns a session journal into a shareable document.
//
// # Supported Formats
//
//   - md: Markdown with YAML frontmatter
//   - html: standalone page, replies rendered from Markdown and sanitized
//   - json: the journal entries with session metadata
//   - txt: one line per turn, full texts
//
// # Usage
//
//	t, err := export.Load("logs/sessions/chat_20240501T120000Z.jsonl")
//	exporter, err := export.ForFormat("html", export.DefaultOptions())
//	path, err := export.ExportToFile(t, exporter, "exports")
package export
