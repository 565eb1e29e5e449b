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

// Package llm implements the LLM-backed relevance judge used for trust
// filtering, over the OpenAI chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gurubase/gurubase-sub000/config"
	"github.com/Gurubase/gurubase-sub000/retrieval"
)

const (
	defaultJudgeBaseURL = "https://api.openai.com/v1"
	defaultJudgeTimeout = 60 * time.Second
)

// systemPrompt frames the judging task. The model sees every context in one
// call and must return exactly one judgment per context, numbered to match.
const systemPrompt = `You are an expert evaluator for %s. You will be given a user question (in up to three phrasings) and %d numbered contexts retrieved for it.

For EACH context, judge how relevant it is to answering the question and assign a score between 0 and 1:
- 1.0: the context directly answers the question
- 0.5: the context is related and partially useful
- 0.0: the context is unrelated to the question

Respond with JSON only, in this exact shape:
{"contexts": [{"context_num": 1, "score": 0.8, "explanation": "..."}, ...]}

You MUST return exactly %d entries, one per context, with context_num matching the context id. Do not skip, merge, or reorder contexts.`

// OpenAIJudge scores context relevance with a single chat completion per
// batch. Implements retrieval.RelevanceJudge.
type OpenAIJudge struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIJudge creates a judge from config.
func NewOpenAIJudge(cfg config.JudgeConfig) (*OpenAIJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("judge API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultJudgeBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := defaultJudgeTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &OpenAIJudge{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// JudgeRelevance submits the formatted contexts and parses one judgment per
// context out of the JSON response. It validates JSON shape only; count and
// numbering checks belong to the caller.
func (j *OpenAIJudge) JudgeRelevance(ctx context.Context, req retrieval.JudgeRequest) (*retrieval.JudgeResponse, error) {
	messages := []chatMessage{
		{
			Role:    "system",
			Content: fmt.Sprintf(systemPrompt, req.GuruSlug, req.NumContexts, req.NumContexts),
		},
		{
			Role:    "user",
			Content: j.userPrompt(req),
		},
	}

	body, err := json.Marshal(chatRequest{
		Model:          j.model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create judge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+j.apiKey)

	httpResp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read judge response: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse judge response (status %d): %w", httpResp.StatusCode, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("judge API error (status %d): %s", httpResp.StatusCode, resp.Error.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge API returned status %d", httpResp.StatusCode)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge API returned no choices")
	}

	content := resp.Choices[0].Message.Content

	var parsed struct {
		Contexts []retrieval.ContextRelevanceJudgment `json:"contexts"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse judge output: %w", err)
	}

	usage := retrieval.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		// Some OpenAI-compatible backends omit usage; estimate locally so
		// accounting never silently reads zero.
		usage.PromptTokens = countMessageTokens(j.model, messages)
		usage.CompletionTokens = countTokens(j.model, content)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &retrieval.JudgeResponse{
		Contexts: parsed.Contexts,
		Usage:    usage,
	}, nil
}

// userPrompt lays out the question phrasings and the context block.
func (j *OpenAIJudge) userPrompt(req retrieval.JudgeRequest) string {
	var enhanced, raw string
	if req.EnhancedQuestion != "" && req.EnhancedQuestion != req.Question {
		enhanced = fmt.Sprintf("Enhanced question: %s", req.EnhancedQuestion)
	}
	if req.UserQuestion != "" && req.UserQuestion != req.Question {
		raw = fmt.Sprintf("Original user phrasing: %s", req.UserQuestion)
	}

	return joinNonEmpty(
		fmt.Sprintf("Question: %s", req.Question),
		enhanced,
		raw,
		"",
		"Contexts:",
		req.FormattedContexts,
	)
}
