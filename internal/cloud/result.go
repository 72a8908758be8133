// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"fmt"
	"time"
)

// FailureKind classifies why a completion produced no answer.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureConnection  FailureKind = "connection"
	FailureHTTP        FailureKind = "http"
	FailureAPI         FailureKind = "api"
	FailureMalformed   FailureKind = "malformed_response"
	FailureUnexpected  FailureKind = "unexpected_response"
	FailureRateLimited FailureKind = "rate_limited"
	FailureCanceled    FailureKind = "canceled"
	FailureInternal    FailureKind = "internal"
)

// Failure is the non-answer branch of a Result. Message is the text shown to
// the user and journaled in place of an answer.
type Failure struct {
	Kind    FailureKind
	Status  int
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of Send: either an answer or a Failure.
type Result struct {
	Answer   string
	Model    string
	Usage    map[string]any
	Raw      json.RawMessage
	Failure  *Failure
	Attempts int
	Duration time.Duration
}

// OK reports whether the result carries a real answer.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Text returns the answer, or the failure message when there is none.
func (r Result) Text() string {
	if r.Failure != nil {
		return r.Failure.Message
	}
	return r.Answer
}

// Meta returns the journal metadata for this result: model, usage and the
// raw response body (null when there was none).
func (r Result) Meta() Meta {
	usage := r.Usage
	if usage == nil {
		usage = map[string]any{}
	}
	raw := r.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return Meta{Model: r.Model, Usage: usage, Raw: raw}
}

// Meta is the response metadata recorded alongside each journaled turn.
type Meta struct {
	Model string          `json:"model"`
	Usage map[string]any  `json:"usage"`
	Raw   json.RawMessage `json:"raw"`
}

// TotalTokens returns usage.total_tokens when the upstream reported it.
func (m Meta) TotalTokens() int {
	if v, ok := m.Usage["total_tokens"].(float64); ok {
		return int(v)
	}
	return 0
}

func failed(kind FailureKind, status, attempts int, msg string) Result {
	return Result{
		Failure:  &Failure{Kind: kind, Status: status, Message: msg},
		Attempts: attempts,
	}
}
