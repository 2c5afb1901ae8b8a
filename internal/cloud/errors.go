// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mementoai/memento/internal/offline"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrMissingCredential is returned before any network call when no API
	// key is configured.
	ErrMissingCredential = errors.New("API key not set")

	// ErrOffline is returned before any network call while offline.
	ErrOffline = offline.ErrOffline

	// ErrAuthFailed indicates an invalid or revoked API key (401/403).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests (429).
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientCredits indicates the account is out of credits (402).
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrModelNotFound indicates the requested model does not exist (404).
	ErrModelNotFound = errors.New("model not found")

	// ErrMalformedResponse wraps JSON decoding failures.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNoChoices is returned when a completion carries no choices.
	ErrNoChoices = errors.New("response contained no choices")
)

// =============================================================================
// API ERROR
// =============================================================================

// APIError is a failure reported by the endpoint, either as a non-2xx status
// or as an error object embedded in a 200 body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap maps the status to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 && e.Status < 600
}

// errorBody is the error envelope the endpoint uses. Code may be a string
// or a number depending on the upstream provider.
type errorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

func (b *errorBody) code() string {
	if len(b.Code) == 0 || string(b.Code) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(b.Code, &s) == nil {
		return s
	}
	return string(b.Code)
}

// newAPIError builds an APIError from a status and a response body.
func newAPIError(status int, body []byte) *APIError {
	var env struct {
		Error *errorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return &APIError{Status: status, Code: env.Error.code(), Message: env.Error.Message}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage turns an error from this package into the status text shown
// to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "API key not set. Please configure in settings."
	case errors.Is(err, ErrOffline):
		return "You are offline. Please check your connection."
	case errors.Is(err, ErrAuthFailed):
		return "Invalid API key. Please check your OpenRouter API key."
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, ErrInsufficientCredits):
		return "Insufficient credits. Please top up your OpenRouter account."
	case errors.Is(err, ErrModelNotFound):
		return "Model not found. Please pick another model in settings."
	case errors.Is(err, ErrNoChoices):
		return "The API returned an empty response."
	case errors.Is(err, ErrMalformedResponse):
		return "The API returned a response that could not be read."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}
