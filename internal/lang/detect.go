// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lang

import (
	"context"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// ScriptDetector guesses from the Unicode script alone: Devanagari is Hindi,
// Han is Chinese, anything else English.
type ScriptDetector struct{}

// Detect never fails.
func (ScriptDetector) Detect(_ context.Context, text string) (string, error) {
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			return "hi", nil
		case unicode.Is(unicode.Han, r):
			return "zh", nil
		}
	}
	return Default, nil
}

// TrigramDetector uses whatlanggo's trigram model and falls back to the
// script heuristic when the result is not reliable (short or mixed input).
type TrigramDetector struct {
	fallback ScriptDetector
}

// NewTrigramDetector creates a detector.
func NewTrigramDetector() *TrigramDetector {
	return &TrigramDetector{}
}

// Detect returns an ISO 639-1 code.
func (d *TrigramDetector) Detect(ctx context.Context, text string) (string, error) {
	if text == "" {
		return Default, nil
	}
	info := whatlanggo.Detect(text)
	if info.IsReliable() {
		if code := info.Lang.Iso6391(); code != "" {
			return code, nil
		}
	}
	return d.fallback.Detect(ctx, text)
}
