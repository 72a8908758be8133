// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one selectable upstream model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Description is a one-line summary for menus
	Description string `json:"description"`

	// Free marks OpenRouter's zero-cost variants (":free" suffix)
	Free bool `json:"free"`
}

// Label returns "Name (id)" for menus.
func (m ModelInfo) Label() string {
	if m.Name == "" || m.Name == m.ID {
		return m.ID
	}
	return m.Name + " (" + m.ID + ")"
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModelID is used when nothing else is selected.
const DefaultModelID = "openrouter/auto"

// Models is the ordered model menu. Menu numbers are 1-based indexes into it.
var Models = []ModelInfo{
	{ID: "openrouter/auto", Name: "OpenRouter Auto", Description: "Smart router (auto-pick)"},
	{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B Instruct", Description: "Fast, instruct-tuned", Free: true},
	{ID: "deepseek-ai/deepseek-chat:free", Name: "DeepSeek Chat", Description: "Open-source conversational", Free: true},
	{ID: "meta-llama/llama-2-7b-chat:free", Name: "Llama 2 7B Chat", Description: "Meta's conversational Llama", Free: true},
	{ID: "meta-llama/llama-3-8b-instruct:free", Name: "Llama 3 8B Instruct", Description: "Latest Meta Llama, instruct", Free: true},
}

// ListModels returns a copy of the model menu.
func ListModels() []ModelInfo {
	out := make([]ModelInfo, len(Models))
	copy(out, Models)
	return out
}

// GetModelInfo looks a model up by 1-based menu index, exact ID or
// case-insensitive display name.
func GetModelInfo(choice string) (ModelInfo, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return ModelInfo{}, false
	}

	if n, err := strconv.Atoi(choice); err == nil {
		if n >= 1 && n <= len(Models) {
			return Models[n-1], true
		}
		return ModelInfo{}, false
	}

	for _, info := range Models {
		if info.ID == choice || strings.EqualFold(info.Name, choice) {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ResolveModel maps a user choice to a model ID. Unknown menu numbers fall
// back to the first model; any other unknown string is passed through as a
// raw OpenRouter model ID.
func ResolveModel(choice string) string {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return Models[0].ID
	}
	if info, ok := GetModelInfo(choice); ok {
		return info.ID
	}
	if _, err := strconv.Atoi(choice); err == nil {
		return Models[0].ID
	}
	return choice
}
