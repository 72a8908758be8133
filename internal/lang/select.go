// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lang

import "log/slog"

// Select picks the translator once at startup: the HTTP service when a URL
// is configured, otherwise passthrough. Detection always uses the trigram
// detector, which degrades to the script heuristic internally.
func Select(translateURL, apiKey string, logger *slog.Logger) (Detector, Translator) {
	if logger == nil {
		logger = slog.Default()
	}
	if translateURL == "" {
		logger.Warn("no translation service configured, replies stay in the persona language")
		return NewTrigramDetector(), Passthrough{}
	}
	logger.Debug("translation service configured", "url", translateURL)
	return NewTrigramDetector(), NewLibreTranslator(translateURL, apiKey)
}
