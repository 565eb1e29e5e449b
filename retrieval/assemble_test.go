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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pdfCandidate(id, text, link, title string, score float64) scored {
	return scored{
		cand: Candidate{
			Passage: Passage{
				ID:   id,
				Text: text,
				Metadata: Metadata{
					Type:  TypePDF,
					Link:  link,
					Title: title,
					Raw:   map[string]any{"type": TypePDF, "link": link, "title": title},
				},
			},
			Kind:   KindDocument,
			Prefix: PrefixText,
		},
		score: score,
	}
}

func TestFormatContextsNumbering(t *testing.T) {
	candidates := []Candidate{
		{
			Passage: Passage{Text: "first passage", Metadata: Metadata{Raw: map[string]any{"link": "https://a/1"}}},
			Kind:    KindDocument,
			Prefix:  PrefixText,
		},
		{
			Passage: Passage{Text: "some code", Metadata: Metadata{Raw: map[string]any{"link": "https://a/2"}}},
			Kind:    KindCode,
			Prefix:  PrefixCode,
		},
	}

	out := FormatContexts(candidates)

	assert.Contains(t, out, `<Text context id="1">`)
	assert.Contains(t, out, `</Text context>`)
	assert.Contains(t, out, `<Code context id="2">`)
	assert.Contains(t, out, `</Code context>`)
	assert.Contains(t, out, "Text: first passage")

	// Blocks are separated by a blank line, numbering matches array order.
	blocks := strings.Split(out, "\n\n")
	require.Len(t, blocks, 2)
	assert.True(t, strings.HasPrefix(blocks[0], `<Text context id="1">`))
	assert.True(t, strings.HasPrefix(blocks[1], `<Code context id="2">`))
}

func TestFormatContextsOmitsSplitNum(t *testing.T) {
	candidates := []Candidate{
		{
			Passage: Passage{
				Text:     "content",
				Metadata: Metadata{Raw: map[string]any{"link": "https://a/1", "split_num": 3}},
			},
			Kind:   KindDocument,
			Prefix: PrefixText,
		},
	}

	out := FormatContexts(candidates)
	assert.NotContains(t, out, "split_num")
	assert.Contains(t, out, "https://a/1")
}

func TestRenderQAOrdersOtherAnswersByScore(t *testing.T) {
	qa := &QARecord{
		Question: Passage{
			Text:     "How to scale?",
			Metadata: Metadata{Question: "How to scale?", Raw: map[string]any{"question": "How to scale?"}},
		},
		Accepted: Passage{Text: "Use more engines."},
		OtherAnswers: []Passage{
			{Text: "low-voted answer", Metadata: Metadata{Score: 1}},
			{Text: "high-voted answer", Metadata: Metadata{Score: 10}},
		},
	}

	out := renderQA(qa)

	assert.Contains(t, out, "Question: How to scale?")
	assert.Contains(t, out, "Accepted Answer: Use more engines.")

	high := strings.Index(out, "high-voted answer")
	low := strings.Index(out, "low-voted answer")
	require.GreaterOrEqual(t, high, 0)
	require.GreaterOrEqual(t, low, 0)
	assert.Less(t, high, low, "other answers render in descending score order")
}

func TestAssembleAlignment(t *testing.T) {
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, &fakeJudge{}, nil)

	kept := []scored{
		scoredCandidate("c1", "first", "https://a/1", 0.9),
		scoredCandidate("c2", "second", "https://a/2", 0.7),
	}

	contexts, references := r.assemble(context.Background(), kept)

	// Rendering preserves kept order, so block i matches score i.
	first := strings.Index(contexts, "first")
	second := strings.Index(contexts, "second")
	assert.Less(t, first, second)

	require.Len(t, references, 2)
	assert.Equal(t, "https://a/1", references[0].Link)
	assert.Equal(t, "https://a/2", references[1].Link)
}

func TestAssembleEmpty(t *testing.T) {
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, &fakeJudge{}, nil)

	contexts, references := r.assemble(context.Background(), nil)
	assert.Empty(t, contexts)
	assert.Nil(t, references)
}

func TestBuildReferencesDeduplicatesByLinkKeepingMaxScore(t *testing.T) {
	kept := []scored{
		scoredCandidate("c1", "one", "https://a/shared", 0.5),
		scoredCandidate("c2", "two", "https://a/other", 0.7),
		scoredCandidate("c3", "three", "https://a/shared", 0.9),
	}

	references := buildReferences(kept, nil)

	require.Len(t, references, 2)
	// The shared link's best score (0.9) beats 0.7, so it sorts first.
	assert.Equal(t, "https://a/shared", references[0].Link)
	assert.Equal(t, "https://a/other", references[1].Link)
}

func TestBuildReferencesSortedByScore(t *testing.T) {
	kept := []scored{
		scoredCandidate("c1", "one", "https://a/low", 0.4),
		scoredCandidate("c2", "two", "https://a/high", 0.95),
		scoredCandidate("c3", "three", "https://a/mid", 0.6),
	}

	references := buildReferences(kept, nil)

	require.Len(t, references, 3)
	assert.Equal(t, "https://a/high", references[0].Link)
	assert.Equal(t, "https://a/mid", references[1].Link)
	assert.Equal(t, "https://a/low", references[2].Link)
}

func TestAssembleRedactsPrivatePDFLinks(t *testing.T) {
	checker := &fakePDFChecker{private: map[string]bool{"https://files/internal.pdf": true}}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, &fakeJudge{}, checker)

	kept := []scored{
		pdfCandidate("p1", "secret content", "https://files/internal.pdf", "Internal Guide", 0.8),
		pdfCandidate("p2", "public content", "https://files/public.pdf", "Public Guide", 0.7),
	}

	contexts, references := r.assemble(context.Background(), kept)

	assert.NotContains(t, contexts, "https://files/internal.pdf")
	assert.Contains(t, contexts, "https://files/public.pdf")
	// The content itself still renders; only the link is withheld.
	assert.Contains(t, contexts, "secret content")

	require.Len(t, references, 2)
	assert.Equal(t, "Internal Guide", references[0].QuestionOrTitle)
	assert.Empty(t, references[0].Link, "private PDFs are cited by title only")
	assert.Equal(t, "https://files/public.pdf", references[1].Link)
}

func TestAssemblePDFLookupFailureFailsClosed(t *testing.T) {
	checker := &fakePDFChecker{err: fmt.Errorf("metadata store down")}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, &fakeJudge{}, checker)

	kept := []scored{
		pdfCandidate("p1", "content", "https://files/maybe-private.pdf", "Guide", 0.8),
	}

	contexts, references := r.assemble(context.Background(), kept)

	assert.NotContains(t, contexts, "https://files/maybe-private.pdf")
	require.Len(t, references, 1)
	assert.Empty(t, references[0].Link)
}

func TestAssembleNonPDFLinksUntouchedByChecker(t *testing.T) {
	checker := &fakePDFChecker{err: fmt.Errorf("metadata store down")}
	r := newTestRetriever(t, testConfig(t), &fakeProvider{}, &fakeReranker{}, &fakeJudge{}, checker)

	kept := []scored{
		scoredCandidate("c1", "website content", "https://a/page", 0.8),
	}

	contexts, references := r.assemble(context.Background(), kept)

	assert.Contains(t, contexts, "https://a/page")
	require.Len(t, references, 1)
	assert.Equal(t, "https://a/page", references[0].Link)
}
