// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates how many model tokens a run of text costs.
//
// Two strategies exist: an exact BPE tokenizer (cl100k_base) and a
// character-count heuristic used when the tokenizer cannot be loaded. The
// choice is made once at startup by Select and injected wherever token counts
// are needed.
package tokens

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE vocabulary used by the exact estimator.
const DefaultEncoding = "cl100k_base"

// CharsPerToken is the ratio used by the heuristic estimator.
const CharsPerToken = 4

// Estimator counts tokens for a sequence of texts. Implementations must be
// monotonic: appending text never lowers the estimate.
type Estimator interface {
	// Estimate returns the token count of texts, always >= 0.
	Estimate(texts []string) int
	// Exact reports whether counts come from a real tokenizer.
	Exact() bool
	// Name identifies the strategy for logs and the :tokens command.
	Name() string
}

// =============================================================================
// EXACT ESTIMATOR
// =============================================================================

// BPEEstimator counts tokens with a tiktoken encoding.
type BPEEstimator struct {
	enc  *tiktoken.Tiktoken
	name string
}

var loaderOnce sync.Once

// NewBPEEstimator loads the named encoding from the embedded vocabulary, so
// no network access is needed at startup.
func NewBPEEstimator(encoding string) (*BPEEstimator, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &BPEEstimator{enc: enc, name: encoding}, nil
}

// Estimate encodes the texts joined with no separator.
func (e *BPEEstimator) Estimate(texts []string) int {
	joined := strings.Join(texts, "")
	if joined == "" {
		return 0
	}
	return len(e.enc.Encode(joined, nil, nil))
}

// Exact always returns true.
func (e *BPEEstimator) Exact() bool { return true }

// Name returns the encoding name.
func (e *BPEEstimator) Name() string { return e.name }

// =============================================================================
// HEURISTIC ESTIMATOR
// =============================================================================

// CharEstimator approximates tokens as total characters / 4.
type CharEstimator struct{}

// Estimate returns the rune count of all texts divided by CharsPerToken.
func (CharEstimator) Estimate(texts []string) int {
	n := 0
	for _, t := range texts {
		n += utf8.RuneCountInString(t)
	}
	return n / CharsPerToken
}

// Exact always returns false.
func (CharEstimator) Exact() bool { return false }

// Name returns "chars/4".
func (CharEstimator) Name() string { return "chars/4" }

// =============================================================================
// SELECTION
// =============================================================================

// Select returns the exact estimator when the encoding loads, otherwise the
// heuristic. A nil logger uses slog.Default.
func Select(logger *slog.Logger) Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	est, err := NewBPEEstimator(DefaultEncoding)
	if err != nil {
		logger.Warn("tokenizer unavailable, using character heuristic",
			"encoding", DefaultEncoding, "error", err)
		return CharEstimator{}
	}
	logger.Debug("tokenizer loaded", "encoding", DefaultEncoding)
	return est
}
