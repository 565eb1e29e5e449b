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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// JudgeRequest is the input to one LLM relevance-judging call.
type JudgeRequest struct {
	Question          string
	UserQuestion      string
	EnhancedQuestion  string
	GuruSlug          string
	FormattedContexts string
	NumContexts       int
}

// JudgeResponse carries one judgment per submitted context plus the LLM
// token usage for the call.
type JudgeResponse struct {
	Contexts []ContextRelevanceJudgment `json:"contexts"`
	Usage    TokenUsage                 `json:"-"`
}

// RelevanceJudge scores each formatted context's relevance to the question
// in [0,1]. The prompt template behind it belongs to the enclosing product,
// not to this core.
type RelevanceJudge interface {
	JudgeRelevance(ctx context.Context, req JudgeRequest) (*JudgeResponse, error)
}

// trustFilter judges every candidate's relevance in a single LLM call,
// drops candidates below the trust-score threshold, and computes the
// aggregate trust score of the survivors.
//
// A judgment count that does not match the candidate count is a
// JudgmentCountError: alignment is positional, and proceeding with
// misaligned scores would be worse than failing the request.
func (r *Retriever) trustFilter(ctx context.Context, req Request, items []scored) ([]scored, float64, ProcessedRelevances, TokenUsage, error) {
	var processed ProcessedRelevances

	if len(items) == 0 {
		return nil, 0, processed, TokenUsage{}, nil
	}

	candidates := make([]Candidate, len(items))
	for i, item := range items {
		candidates[i] = item.cand
	}

	resp, err := r.judge.JudgeRelevance(ctx, JudgeRequest{
		Question:          req.Question,
		UserQuestion:      req.UserQuestion,
		EnhancedQuestion:  req.EnhancedQuestion,
		GuruSlug:          req.GuruSlug,
		FormattedContexts: FormatContexts(candidates),
		NumContexts:       len(candidates),
	})
	if err != nil {
		// Judge outages degrade to the no-context outcome rather than
		// failing the request; only a malformed response is fatal.
		slog.Error("Relevance judging failed, returning no contexts",
			"guru", req.GuruSlug,
			"candidates", len(candidates),
			"error", err)
		return nil, 0, processed, TokenUsage{}, nil
	}

	if len(resp.Contexts) != len(items) {
		return nil, 0, processed, resp.Usage, &JudgmentCountError{
			Expected: len(items),
			Got:      len(resp.Contexts),
		}
	}

	judgments := make([]ContextRelevanceJudgment, len(resp.Contexts))
	copy(judgments, resp.Contexts)
	sort.SliceStable(judgments, func(i, j int) bool {
		return judgments[i].ContextNum < judgments[j].ContextNum
	})
	for i, j := range judgments {
		if j.ContextNum != i+1 {
			return nil, 0, processed, resp.Usage, fmt.Errorf(
				"relevance judgment numbering is not contiguous: position %d has context_num %d: %w",
				i+1, j.ContextNum, &JudgmentCountError{Expected: len(items), Got: len(resp.Contexts)})
		}
	}

	var (
		kept  []scored
		total float64
	)

	for i, judgment := range judgments {
		item := items[i]
		judged := JudgedContext{
			Judgment: judgment,
			Link:     item.cand.CanonicalLink(),
			Title:    item.cand.Title(),
		}

		if judgment.Score >= r.cfg.TrustScoreThreshold {
			kept = append(kept, item)
			processed.Kept = append(processed.Kept, judged)
			total += judgment.Score
		} else {
			processed.Removed = append(processed.Removed, judged)
		}
	}

	trustScore := 0.0
	if len(kept) > 0 {
		trustScore = total / float64(len(kept))
	}

	slog.Debug("Trust filtering complete",
		"guru", req.GuruSlug,
		"candidates", len(items),
		"kept", len(kept),
		"removed", len(processed.Removed),
		"trust_score", trustScore)

	return kept, trustScore, processed, resp.Usage, nil
}
