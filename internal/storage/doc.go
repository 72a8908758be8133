// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a searchable SQLite index of completed turns.
//
// The index is an analytics sink, not the journal of record: every session
// still writes its own JSONL file. Sessions feed the index by subscribing
// its Handler to their event bus.
//
// # Usage
//
//	idx, err := storage.Open(path)
//	defer idx.Close()
//	bus.Subscribe(events.TurnCompleted, idx.Handler())
//
//	hits, err := idx.Search(ctx, "tides", 20)
//
// # Storage Location
//
// The default index lives at ~/.qna-chatbot/turns.db. An empty path
// disables the index.
package storage
