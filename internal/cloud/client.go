// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Configuration constants for the completion endpoint.
const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when a request names no model.
	DefaultModel = "openai/gpt-3.5-turbo"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "memento/1.0"
)

// Connectivity reports whether the network is usable.
type Connectivity interface {
	IsOnline() bool
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// Message is one chat turn in a request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system turn.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// Request is the chat-completion request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// chatResponse is the non-streaming reply.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *errorBody `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends completion requests. Configure it with the With* methods
// before first use; it is safe for concurrent use afterwards.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	siteURL      string
	siteName     string

	conn    Connectivity
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a client for apiKey. An empty key is allowed; requests
// then fail with ErrMissingCredential.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultBaseURL,
		model:        DefaultModel,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		maxRetries:   DefaultMaxRetries,
		log:          zap.NewNop(),
	}
}

// WithBaseURL sets the API root.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithModel sets the model used when a request names none.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithTimeout bounds non-streaming requests. Streams are bounded by their
// context only.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// WithMaxRetries sets how many times a failed request is repeated.
func (c *Client) WithMaxRetries(n int) *Client {
	if n >= 0 {
		c.maxRetries = n
	}
	return c
}

// WithHTTPClient replaces the transport for both request kinds.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithConnectivity makes requests fail fast with ErrOffline while conn
// reports offline.
func (c *Client) WithConnectivity(conn Connectivity) *Client {
	c.conn = conn
	return c
}

// WithRateLimit caps outbound requests per minute with a limiter owned by
// this client. Zero disables limiting.
func (c *Client) WithRateLimit(perMinute int) *Client {
	c.limiter = NewRateLimiter(perMinute)
	return c
}

// WithLimiter shares l between clients so the cap holds across all of
// them. A nil limiter disables limiting.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// NewRateLimiter returns a limiter allowing perMinute requests per minute
// with a burst of a tenth of that, or nil when perMinute <= 0.
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// WithLogger sets the logger.
func (c *Client) WithLogger(log *zap.Logger) *Client {
	if log != nil {
		c.log = log.Named("cloud")
	}
	return c
}

// WithSiteInfo sets the attribution headers OpenRouter shows on its
// dashboard.
func (c *Client) WithSiteInfo(siteURL, siteName string) *Client {
	c.siteURL = siteURL
	c.siteName = siteName
	return c
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns the key with all but its edges hidden.
func (c *Client) APIKeyMasked() string {
	if len(c.apiKey) <= 12 {
		return strings.Repeat("*", len(c.apiKey))
	}
	return c.apiKey[:6] + "..." + c.apiKey[len(c.apiKey)-4:]
}

// preflight runs the checks that must fail before any network activity.
func (c *Client) preflight() error {
	if !c.IsConfigured() {
		return ErrMissingCredential
	}
	if c.conn != nil && !c.conn.IsOnline() {
		return ErrOffline
	}
	return nil
}

func (c *Client) prepare(req Request, stream bool) Request {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = stream
	return req
}

// =============================================================================
// CHAT (NON-STREAMING)
// =============================================================================

// Chat sends req and returns the first choice's text. Network failures and
// 5xx responses are retried with exponential backoff.
func (c *Client) Chat(ctx context.Context, req Request) (string, error) {
	if err := c.preflight(); err != nil {
		return "", err
	}
	req = c.prepare(req, false)

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.log.Debug("retrying chat request", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.doChat(ctx, body)
		if err == nil {
			return text, nil
		}
		if !c.isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	resp, err := c.post(ctx, c.httpClient, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp.StatusCode, raw)
	}
	return parseChatResponse(raw)
}

// parseChatResponse extracts the first choice's text from a reply body.
func parseChatResponse(raw []byte) (string, error) {
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if cr.Error != nil && cr.Error.Message != "" {
		return "", &APIError{Status: http.StatusOK, Code: cr.Error.code(), Message: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return "", ErrNoChoices
	}
	return cr.Choices[0].Message.Content, nil
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

// post sends a JSON body to path after waiting on the rate limiter.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.log.Debug("api response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// readResponse reads a body up to MaxResponseSize.
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

// isRetryable reports whether err is a transport failure or a 5xx.
func (c *Client) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// calculateBackoff returns the delay before retry number attempt+1.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay || delay <= 0 {
		delay = retryMaxDelay
	}
	return delay
}
