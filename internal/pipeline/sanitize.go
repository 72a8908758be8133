// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"strings"
	"unicode"

	"github.com/nav0225/qna-chatbot/internal/util"
)

// Input and output caps, in runes.
const (
	MaxInputChars   = 3000
	MaxDisplayChars = 2000
)

// Sanitize cleans raw user input with the default length cap.
func Sanitize(s string) string {
	return SanitizeN(s, MaxInputChars)
}

// SanitizeN drops non-printable runes, turns every whitespace run into one
// space, trims both ends and caps the result at max runes. The result is a
// fixed point: SanitizeN(SanitizeN(s)) == SanitizeN(s).
func SanitizeN(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if !unicode.IsPrint(r) {
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}

	// The cut can land right after a space.
	return strings.TrimSpace(util.TruncateRunesNoEllipsis(b.String(), max))
}
