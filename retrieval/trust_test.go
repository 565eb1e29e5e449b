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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredCandidate(id, text, link string, score float64) scored {
	return scored{
		cand: Candidate{
			Passage: Passage{
				ID:       id,
				Text:     text,
				Metadata: Metadata{Link: link, Raw: map[string]any{"link": link}},
			},
			Kind:   KindDocument,
			Prefix: PrefixText,
		},
		score: score,
	}
}

func TestTrustFilterPartitionsByThreshold(t *testing.T) {
	judge := &fakeJudge{scores: []float64{0.9, 0.04, 0.5}}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	items := []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
		scoredCandidate("c2", "two", "https://a/2", 0.7),
		scoredCandidate("c3", "three", "https://a/3", 0.6),
	}

	kept, trust, processed, usage, err := r.trustFilter(context.Background(), Request{Question: "q", GuruSlug: "anteon"}, items)
	require.NoError(t, err)

	// Default trust threshold is 0.05; 0.04 falls, 0.05+ survives.
	require.Len(t, kept, 2)
	assert.Equal(t, "c1", kept[0].cand.ID)
	assert.Equal(t, "c3", kept[1].cand.ID)

	assert.InDelta(t, (0.9+0.5)/2, trust, 1e-9)

	require.Len(t, processed.Kept, 2)
	require.Len(t, processed.Removed, 1)
	assert.Equal(t, "https://a/2", processed.Removed[0].Link)

	assert.Equal(t, 120, usage.TotalTokens)
}

func TestTrustFilterThresholdIsInclusive(t *testing.T) {
	judge := &fakeJudge{scores: []float64{0.05}}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	kept, _, _, _, err := r.trustFilter(context.Background(), Request{Question: "q"}, []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
	})
	require.NoError(t, err)
	assert.Len(t, kept, 1, "a judgment exactly at the threshold is kept")
}

func TestTrustFilterEmptyInput(t *testing.T) {
	judge := &fakeJudge{}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	kept, trust, processed, usage, err := r.trustFilter(context.Background(), Request{Question: "q"}, nil)
	require.NoError(t, err)

	assert.Empty(t, kept)
	assert.Zero(t, trust)
	assert.Empty(t, processed.Kept)
	assert.Zero(t, usage.TotalTokens)
	assert.Empty(t, judge.lastRequest.FormattedContexts, "no judge call without candidates")
}

func TestTrustFilterJudgeOutageDegradesToNoContext(t *testing.T) {
	judge := &fakeJudge{err: fmt.Errorf("llm timeout")}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	kept, trust, _, _, err := r.trustFilter(context.Background(), Request{Question: "q"}, []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
	})
	require.NoError(t, err, "judge outages degrade, they do not fail the request")
	assert.Empty(t, kept)
	assert.Zero(t, trust)
}

func TestTrustFilterCountMismatchIsFatal(t *testing.T) {
	judge := &fakeJudge{extraJudgments: 1}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	_, _, _, _, err := r.trustFilter(context.Background(), Request{Question: "q"}, []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
	})
	require.Error(t, err)
	assert.True(t, IsJudgmentCountMismatch(err))
}

func TestTrustFilterRealignsJudgmentsByContextNum(t *testing.T) {
	// Judgments arrive out of order; they must attach to candidates by
	// context_num, not by array position.
	judge := &reorderingJudge{}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	items := []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
		scoredCandidate("c2", "two", "https://a/2", 0.7),
	}

	kept, _, processed, _, err := r.trustFilter(context.Background(), Request{Question: "q"}, items)
	require.NoError(t, err)

	require.Len(t, kept, 1)
	assert.Equal(t, "c1", kept[0].cand.ID)
	require.Len(t, processed.Removed, 1)
	assert.Equal(t, "https://a/2", processed.Removed[0].Link)
}

func TestTrustFilterNonContiguousNumberingIsFatal(t *testing.T) {
	judge := &gappyJudge{}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	_, _, _, _, err := r.trustFilter(context.Background(), Request{Question: "q"}, []scored{
		scoredCandidate("c1", "one", "https://a/1", 0.8),
		scoredCandidate("c2", "two", "https://a/2", 0.7),
	})
	require.Error(t, err)
	assert.True(t, IsJudgmentCountMismatch(err))
}

func TestTrustFilterPassesFormattedContexts(t *testing.T) {
	judge := &fakeJudge{}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, judge, nil)

	_, _, _, _, err := r.trustFilter(context.Background(), Request{
		Question:         "polished",
		UserQuestion:     "raw",
		EnhancedQuestion: "expanded",
		GuruSlug:         "anteon",
	}, []scored{
		scoredCandidate("c1", "the content", "https://a/1", 0.8),
	})
	require.NoError(t, err)

	assert.Equal(t, "polished", judge.lastRequest.Question)
	assert.Equal(t, "raw", judge.lastRequest.UserQuestion)
	assert.Equal(t, "expanded", judge.lastRequest.EnhancedQuestion)
	assert.Equal(t, 1, judge.lastRequest.NumContexts)
	assert.Contains(t, judge.lastRequest.FormattedContexts, `<Text context id="1">`)
	assert.Contains(t, judge.lastRequest.FormattedContexts, "the content")
}

// reorderingJudge returns judgments in reverse order: context 2 scores 0.01,
// context 1 scores 0.9.
type reorderingJudge struct{}

func (j *reorderingJudge) JudgeRelevance(ctx context.Context, req JudgeRequest) (*JudgeResponse, error) {
	return &JudgeResponse{Contexts: []ContextRelevanceJudgment{
		{ContextNum: 2, Score: 0.01},
		{ContextNum: 1, Score: 0.9},
	}}, nil
}

// gappyJudge returns the right count but skips a context number.
type gappyJudge struct{}

func (j *gappyJudge) JudgeRelevance(ctx context.Context, req JudgeRequest) (*JudgeResponse, error) {
	return &JudgeResponse{Contexts: []ContextRelevanceJudgment{
		{ContextNum: 1, Score: 0.9},
		{ContextNum: 3, Score: 0.8},
	}}, nil
}
