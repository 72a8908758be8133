// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package web is the browser front-end.
//
// # Endpoints
//
//   - GET /                               chat page (?theme=light|dark)
//   - GET /ws?model=&persona=&lang=       websocket, one chat session per connection
//   - GET /api/models                     model menu
//   - GET /api/personas                   persona menu
//   - GET /api/sessions                   live browser sessions
//   - GET /api/sessions/{id}/transcript   transcript download (?format=txt|md|html|json)
//   - GET /api/history?q=&limit=          turn index search
//   - GET /healthz, GET /metrics
//
// The websocket and /api routes are rate limited per client IP. Sessions
// idle for longer than the registry timeout are warned and then closed.
package web
