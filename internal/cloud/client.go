// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nav0225/qna-chatbot/internal/model"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultEndpoint is the chat completions URL.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts made when rate limited.
	DefaultMaxRetries = 3

	// DefaultBackoffCap caps the exponential part of the retry delay.
	DefaultBackoffCap = 30 * time.Second

	// Default sampling parameters.
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.8
	DefaultTopP        = 0.95

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrMissingCredential is returned by NewClient when no API key is given.
var ErrMissingCredential = errors.New("OPENROUTER_API_KEY not found; set it in .env or the environment")

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatRequest is the JSON body posted to the endpoint. Every field is always
// sent.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p"`
}

// chatResponse covers both the success and the error shape.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []model.Message
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// NewRequest builds a request with the default sampling parameters.
func NewRequest(modelID string, messages []model.Message) Request {
	return Request{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends chat completion requests to OpenRouter. It holds no
// per-call state; configure it with the With* methods before first use, then
// share it freely between sessions.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	maxRetries int
	backoffCap time.Duration
	siteURL    string
	siteName   string
	logger     *slog.Logger

	// sleep waits between rate-limited attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns the random part of a backoff delay
	jitter func() time.Duration
}

// NewClient creates a client. A blank API key is a configuration error.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	return &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		backoffCap: DefaultBackoffCap,
		siteName:   "qna-chatbot",
		logger:     slog.Default(),
		sleep:      sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
	}, nil
}

// WithEndpoint sets a custom completions URL.
func (c *Client) WithEndpoint(endpoint string) *Client {
	if endpoint != "" {
		c.endpoint = endpoint
	}
	return c
}

// WithTimeout sets the per-attempt timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithMaxRetries sets the attempt limit for rate-limited requests.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithBackoffCap caps the exponential part of the retry delay.
func (c *Client) WithBackoffCap(limit time.Duration) *Client {
	if limit > 0 {
		c.backoffCap = limit
	}
	return c
}

// WithSiteURL sets the HTTP-Referer attribution header.
func (c *Client) WithSiteURL(site string) *Client {
	c.siteURL = site
	return c
}

// WithSiteName sets the X-Title attribution header.
func (c *Client) WithSiteName(name string) *Client {
	c.siteName = name
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithSleep replaces the backoff sleep. The function must return ctx.Err()
// if the context ends first.
func (c *Client) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Client {
	if sleep != nil {
		c.sleep = sleep
	}
	return c
}

// WithJitter replaces the jitter source.
func (c *Client) WithJitter(jitter func() time.Duration) *Client {
	if jitter != nil {
		c.jitter = jitter
	}
	return c
}

// MaxRetries returns the attempt limit.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key.
// SECURITY: log this, never the key.
func (c *Client) KeyFingerprint() string {
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// SEND
// =============================================================================

// Send performs one completion. It never returns a Go error: every failure
// comes back as a Result carrying a Failure. Only HTTP 429 is retried.
func (c *Client) Send(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.send(ctx, req)
	res.Duration = time.Since(start)
	if res.Model == "" {
		res.Model = req.Model
	}
	return res
}

func (c *Client) send(ctx context.Context, req Request) Result {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return failed(FailureInternal, 0, 0, fmt.Sprintf("[ERROR]: %v", err))
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		status, respBody, err := c.doRequest(ctx, body)
		if err != nil {
			return c.transportFailure(err, attempt+1)
		}

		if status == http.StatusTooManyRequests {
			if attempt == c.maxRetries-1 {
				break
			}
			delay := c.calculateBackoff(attempt)
			c.logger.Warn("rate limited, retrying",
				"attempt", attempt+1, "max_attempts", c.maxRetries, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return failed(FailureCanceled, 0, attempt+1, "[ERROR]: Request canceled.")
			}
			continue
		}

		if status < 200 || status > 299 {
			return failed(FailureHTTP, status, attempt+1,
				fmt.Sprintf("[HTTP ERROR %d]: %s", status, string(respBody)))
		}

		res := parseResponse(respBody)
		res.Attempts = attempt + 1
		return res
	}

	c.logger.Warn("giving up after repeated rate limiting", "attempts", c.maxRetries)
	return failed(FailureRateLimited, http.StatusTooManyRequests, c.maxRetries, "[ERROR]: Max retries exceeded.")
}

// doRequest performs a single POST and reads the body.
func (c *Client) doRequest(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	c.logger.Debug("api response",
		"status", resp.StatusCode, "duration", time.Since(started), "key", c.KeyFingerprint())

	data, err := readResponse(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// setHeaders sets the auth, content type and OpenRouter attribution headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "qna-chatbot/1.0")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// parseResponse turns a 2xx body into a Result.
func parseResponse(body []byte) Result {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		r := failed(FailureMalformed, 0, 0, "[ERROR]: Malformed API response")
		r.Raw = rawOrNil(body)
		return r
	}

	switch {
	case len(resp.Choices) > 0:
		usage := resp.Usage
		if usage == nil {
			usage = map[string]any{}
		}
		return Result{
			Answer: strings.TrimSpace(resp.Choices[0].Message.Content),
			Model:  resp.Model,
			Usage:  usage,
			Raw:    json.RawMessage(body),
		}
	case resp.Error != nil:
		msg := resp.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		r := failed(FailureAPI, 0, 0, "[API ERROR]: "+msg)
		r.Raw = json.RawMessage(body)
		return r
	default:
		r := failed(FailureUnexpected, 0, 0, "[ERROR]: Unexpected API response")
		r.Raw = json.RawMessage(body)
		return r
	}
}

// transportFailure classifies an error from the HTTP round trip.
func (c *Client) transportFailure(err error, attempts int) Result {
	c.logger.Warn("api request failed", "error", err, "attempt", attempts)

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return failed(FailureCanceled, 0, attempts, "[ERROR]: Request canceled.")
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return failed(FailureTimeout, 0, attempts, "[ERROR]: Request timed out. Try again later.")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return failed(FailureConnection, 0, attempts, "[ERROR]: Connection error. Check your internet.")
	}
	return failed(FailureInternal, 0, attempts, fmt.Sprintf("[ERROR]: %v", err))
}

// calculateBackoff returns min(2^attempt seconds, cap) plus jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.backoffCap
	if attempt < 30 {
		if d := time.Duration(1<<uint(attempt)) * time.Second; d < delay {
			delay = d
		}
	}
	return delay + c.jitter()
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func rawOrNil(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}
