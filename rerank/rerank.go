// Copyright 2025 Gurubase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rerank scores candidate passages against a query with a
// cross-encoder model served over HTTP.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Score is a single rerank result: the index of the input text and its
// relevance score in [0,1].
type Score struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Reranker scores candidate texts against a query.
//
// A returned error is recoverable: callers degrade the batch to identity
// order with score 0 for every item, so a positive selection threshold
// rejects the whole batch rather than passing unranked contexts forward.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]Score, error)
}

// truncateLimits is the shrinking ladder of per-text character limits tried
// when the rerank service rejects a payload as too large.
var truncateLimits = []int{1300, 1200, 1000, 800, 500, 100}

// Client calls a TEI-style cross-encoder rerank endpoint (POST /rerank with
// a query and a list of texts).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ClientConfig configures the rerank client.
type ClientConfig struct {
	// BaseURL of the rerank service (required).
	BaseURL string

	// APIKey for the service (optional).
	APIKey string

	// Timeout for rerank requests (default: 30s).
	Timeout time.Duration
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

// NewClient creates a rerank client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for reranker")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// Rerank scores texts against query. Texts are truncated client-side; on an
// input-too-large rejection the call is retried with progressively smaller
// truncation limits before giving up.
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]Score, error) {
	if len(texts) == 0 {
		return []Score{}, nil
	}

	var lastErr error
	for _, limit := range truncateLimits {
		scores, err := c.rerankOnce(ctx, query, truncateTexts(texts, limit))
		if err == nil {
			return scores, nil
		}

		lastErr = err
		if !isInputTooLarge(err) {
			return nil, err
		}

		slog.Warn("Rerank payload too large, retrying with smaller truncation",
			"limit", limit,
			"error", err)
	}

	return nil, fmt.Errorf("rerank failed at all truncation limits: %w", lastErr)
}

func (c *Client) rerankOnce(ctx context.Context, query string, texts []string) ([]Score, error) {
	jsonData, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, &inputTooLargeError{status: resp.StatusCode, body: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		if isOversizedBody(body) {
			return nil, &inputTooLargeError{status: resp.StatusCode, body: string(body)}
		}
		return nil, fmt.Errorf("rerank failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var scores []Score
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	return scores, nil
}

type inputTooLargeError struct {
	status int
	body   string
}

func (e *inputTooLargeError) Error() string {
	return fmt.Sprintf("rerank input too large: status %d, body: %s", e.status, e.body)
}

func isInputTooLarge(err error) bool {
	_, ok := err.(*inputTooLargeError)
	return ok
}

// isOversizedBody matches the error strings rerank backends return when the
// input exceeds the model's sequence limit.
func isOversizedBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "input is too large") ||
		strings.Contains(s, "exceeds the maximum") ||
		strings.Contains(s, "must have less than")
}

func truncateTexts(texts []string, limit int) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > limit {
			t = t[:limit]
		}
		out[i] = t
	}
	return out
}

// Noop is the identity reranker used on the selfhosted profile: input order
// is preserved and every item scores 1, so no candidate is threshold-filtered.
type Noop struct{}

// Rerank returns identity scores for texts.
func (Noop) Rerank(ctx context.Context, query string, texts []string) ([]Score, error) {
	scores := make([]Score, len(texts))
	for i := range texts {
		scores[i] = Score{Index: i, Score: 1}
	}
	return scores, nil
}

// Ensure implementations satisfy Reranker.
var (
	_ Reranker = (*Client)(nil)
	_ Reranker = Noop{}
)
