// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the chat message value type and the menu of
// selectable upstream models.
//
// # Key Types
//
//   - Message: role + content, copied by value everywhere
//   - Role: user, assistant or system
//   - ModelInfo: one entry of the OpenRouter model menu
//
// # Usage
//
//	msgs := []model.Message{
//	    model.NewSystemMessage(prompt),
//	    model.NewUserMessage("Hello!"),
//	}
//	id := model.ResolveModel("2") // "mistralai/mistral-7b-instruct:free"
package model
