// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lang detects the language of user input and translates text
// between the user's language and the persona's language.
//
// Both capabilities are best effort. Callers treat any error as "keep the
// original text" and never fail a turn over it.
package lang

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Default is the language assumed when detection fails.
const Default = "en"

// Detector identifies the language of a text as an ISO 639-1 code.
type Detector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// Translator renders text in the target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
	// Available reports whether real translation happens.
	Available() bool
}

// Normalize reduces a language tag such as "pt-BR" or "EN" to its lowercase
// base code ("pt", "en"). Unparseable input is returned lowercased.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

// Same reports whether two codes name the same base language.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// DisplayName returns the English name of a code, e.g. "hi" -> "Hindi".
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	name := displayNames[base.String()]
	if name == "" {
		return base.String()
	}
	return name
}

var displayNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"zh": "Chinese",
	"pt": "Portuguese",
	"it": "Italian",
	"ja": "Japanese",
	"ru": "Russian",
	"ar": "Arabic",
}
