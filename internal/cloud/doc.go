// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud sends chat completions to OpenRouter.
//
// Send never returns a Go error. Timeouts, connection failures, non-2xx
// statuses and odd response shapes all come back as a Result whose Failure
// carries the text the user sees in place of an answer. Only HTTP 429 is
// retried, with exponential backoff plus jitter.
//
// # Usage
//
//	client, err := cloud.NewClient(apiKey)
//	if err != nil {
//	    return err // missing credential
//	}
//	res := client.Send(ctx, cloud.NewRequest("openrouter/auto", msgs))
//	fmt.Println(res.Text())
//
// # Security
//
// API keys are never logged; KeyFingerprint gives a stable short hash.
package cloud
