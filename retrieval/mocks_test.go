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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gurubase/gurubase-sub000/config"
	"github.com/Gurubase/gurubase-sub000/rerank"
	"github.com/Gurubase/gurubase-sub000/vector"
)

// fakeProvider serves canned records per collection. Search returns the
// collection's records up to limit; Fetch applies the filter as exact
// metadata matching.
type fakeProvider struct {
	collections map[string][]vector.Record
	searchErr   error
	fetchErr    error
	fetchCalls  int
}

func (p *fakeProvider) Search(ctx context.Context, collection string, vec []float32, limit int, filter *vector.Filter, fields []string) ([]vector.Record, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	records, ok := p.collections[collection]
	if !ok {
		return nil, &vector.CollectionNotFoundError{Collection: collection}
	}

	matched := filterRecords(records, filter)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (p *fakeProvider) Fetch(ctx context.Context, collection string, filter *vector.Filter, limit int, fields []string) ([]vector.Record, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	records, ok := p.collections[collection]
	if !ok {
		return nil, &vector.CollectionNotFoundError{Collection: collection}
	}

	matched := filterRecords(records, filter)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Close() error { return nil }

// filterRecords applies equality conditions against metadata fields. Field
// paths use the "metadata.x" form the production filters use.
func filterRecords(records []vector.Record, filter *vector.Filter) []vector.Record {
	if filter == nil || len(filter.Conditions) == 0 {
		out := make([]vector.Record, len(records))
		copy(out, records)
		return out
	}

	var out []vector.Record
	for _, rec := range records {
		match := true
		for _, cond := range filter.Conditions {
			if cond.Op != vector.OpEq {
				continue
			}
			key := cond.Field
			if len(key) > len("metadata.") && key[:len("metadata.")] == "metadata." {
				key = key[len("metadata."):]
			}
			if fmt.Sprintf("%v", rec.Metadata[key]) != fmt.Sprintf("%v", cond.Value) {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}
	return out
}

// fakeEmbedder returns a fixed vector per input, or nil for inputs listed in
// empty.
type fakeEmbedder struct {
	err   error
	empty map[string]bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if text == "" || e.empty[text] {
		return nil, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) Dimension() int { return 3 }
func (e *fakeEmbedder) Name() string   { return "fake" }

// fakeReranker returns scripted scores by text, or fails.
type fakeReranker struct {
	err error

	// scores maps input text to its rerank score. Unlisted texts score 0.9.
	scores map[string]float64
}

func (r *fakeReranker) Rerank(ctx context.Context, query string, texts []string) ([]rerank.Score, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]rerank.Score, len(texts))
	for i, text := range texts {
		score := 0.9
		if s, ok := r.scores[text]; ok {
			score = s
		}
		out[i] = rerank.Score{Index: i, Score: score}
	}
	return out, nil
}

// fakeJudge returns scripted judgments, one per context in order, or fails.
type fakeJudge struct {
	err error

	// scores are assigned positionally. Contexts beyond len(scores) get 1.0.
	scores []float64

	// extraJudgments appends bogus entries to provoke count mismatches.
	extraJudgments int

	lastRequest JudgeRequest
}

func (j *fakeJudge) JudgeRelevance(ctx context.Context, req JudgeRequest) (*JudgeResponse, error) {
	j.lastRequest = req
	if j.err != nil {
		return nil, j.err
	}

	n := req.NumContexts + j.extraJudgments
	judgments := make([]ContextRelevanceJudgment, n)
	for i := range judgments {
		score := 1.0
		if i < len(j.scores) {
			score = j.scores[i]
		}
		judgments[i] = ContextRelevanceJudgment{ContextNum: i + 1, Score: score}
	}

	return &JudgeResponse{
		Contexts: judgments,
		Usage:    TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil
}

// fakePDFChecker marks the configured links private, or fails.
type fakePDFChecker struct {
	private map[string]bool
	err     error
}

func (c *fakePDFChecker) PrivatePDFLinks(ctx context.Context, links []string) (map[string]bool, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]bool)
	for _, link := range links {
		if c.private[link] {
			out[link] = true
		}
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestRetriever(t *testing.T, cfg *config.Config, provider vector.Provider, reranker rerank.Reranker, judge RelevanceJudge, checker PrivatePDFChecker) *Retriever {
	t.Helper()
	r, err := New(cfg, provider, &fakeEmbedder{}, reranker, judge, checker)
	require.NoError(t, err)
	return r
}

// docRecord builds a document record with the usual metadata shape.
func docRecord(id, text, link, title string, dist float32) vector.Record {
	return vector.Record{
		ID:       id,
		Text:     text,
		Distance: dist,
		Metadata: map[string]any{
			"type":  TypeWebsite,
			"link":  link,
			"title": title,
		},
	}
}
