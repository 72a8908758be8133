// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks live browser sessions and expires idle ones.
//
// The Registry knows which sessions are connected, when each was last
// active and how to close it. It never touches a pipeline.Session itself;
// those belong to their connection goroutine.
//
// # Usage
//
//	reg := session.NewRegistry(session.DefaultConfig())
//	reg.SetWarningCallback(func(id string, remaining time.Duration) { ... })
//	go reg.Run(ctx)
//
//	reg.Add(session.Info{ID: id, Persona: "Pirate"}, cancel)
//	defer reg.Remove(id)
//	reg.Touch(id) // on every message
package session
