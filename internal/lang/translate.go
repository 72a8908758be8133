// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lang

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Passthrough returns text unchanged. It is the fallback translator.
type Passthrough struct{}

// Translate returns text.
func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// Available returns false.
func (Passthrough) Available() bool { return false }

// ErrTranslateFailed wraps translation service errors.
var ErrTranslateFailed = errors.New("translation failed")

const maxTranslateResponse = 1 << 20

// LibreTranslator talks to a LibreTranslate-compatible HTTP service.
type LibreTranslator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewLibreTranslator creates a translator for the service at baseURL.
func NewLibreTranslator(baseURL, apiKey string) *LibreTranslator {
	return &LibreTranslator{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Available returns true.
func (t *LibreTranslator) Available() bool { return true }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate asks the service to translate text (source auto-detected).
func (t *LibreTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	body, err := json.Marshal(libreRequest{
		Q:      text,
		Source: "auto",
		Target: Normalize(target),
		Format: "text",
		APIKey: t.apiKey,
	})
	if err != nil {
		return text, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return text, fmt.Errorf("%w: %v", ErrTranslateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return text, fmt.Errorf("%w: %v", ErrTranslateFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTranslateResponse))
	if err != nil {
		return text, fmt.Errorf("%w: %v", ErrTranslateFailed, err)
	}

	var out libreResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return text, fmt.Errorf("%w: HTTP %d: bad body", ErrTranslateFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return text, fmt.Errorf("%w: HTTP %d: %s", ErrTranslateFailed, resp.StatusCode, out.Error)
	}
	if out.TranslatedText == "" {
		return text, fmt.Errorf("%w: empty translation", ErrTranslateFailed)
	}
	return out.TranslatedText, nil
}
