// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// ValidationModel is the free model used to check a key with a one-token
// request.
const ValidationModel = "cognitivecomputations/dolphin-mistral-24b-venice-edition:free"

// Pricing is the per-token price of a model, as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	ContextLength int     `json:"context_length"`
	Pricing       Pricing `json:"pricing"`
}

// IsFree reports whether both prompt and completion are priced at "0".
func (m ModelInfo) IsFree() bool {
	return m.Pricing.Prompt == "0" && m.Pricing.Completion == "0"
}

type modelsResponse struct {
	Data  []ModelInfo `json:"data"`
	Error *errorBody  `json:"error"`
}

// ListModels fetches the model catalogue, free models first. Order is
// otherwise preserved.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := c.preflight(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, body)
	}

	var mr modelsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if mr.Error != nil && mr.Error.Message != "" {
		return nil, &APIError{Status: http.StatusOK, Code: mr.Error.code(), Message: mr.Error.Message}
	}

	SortFreeFirst(mr.Data)
	return mr.Data, nil
}

// SortFreeFirst moves free models ahead of paid ones, keeping relative order.
func SortFreeFirst(models []ModelInfo) {
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].IsFree() && !models[j].IsFree()
	})
}

// ValidateAPIKey sends a one-token request. Only 401 and 403 mean the key
// is invalid; other statuses, including errors, are treated as a valid key.
// Preflight and transport failures are returned as errors.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	if err := c.preflight(); err != nil {
		return false, err
	}

	body, err := json.Marshal(Request{
		Model:       ValidationModel,
		Messages:    []Message{NewUserMessage("ping")},
		Temperature: 0,
		MaxTokens:   1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.post(ctx, c.httpClient, "/chat/completions", body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		raw, _ := readResponse(resp)
		return false, newAPIError(resp.StatusCode, raw)
	}
	return true, nil
}

// IsAuthError reports whether err means the key was rejected.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
