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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Gurubase/gurubase-sub000/config"
	"github.com/Gurubase/gurubase-sub000/embedder"
	"github.com/Gurubase/gurubase-sub000/rerank"
	"github.com/Gurubase/gurubase-sub000/vector"
)

// Retriever is the context-retrieval and trust-filtering pipeline. It is
// constructed once per process with all dependencies injected and is
// read-only thereafter; concurrent Retrieve calls do not interact.
type Retriever struct {
	cfg        *config.Config
	provider   vector.Provider
	embedder   embedder.Embedder
	reranker   rerank.Reranker
	judge      RelevanceJudge
	pdfChecker PrivatePDFChecker
	merger     *Merger
}

// Request is one retrieval call.
type Request struct {
	// Question is the polished question used for the wide search and for
	// reranking.
	Question string

	// UserQuestion is the user's raw phrasing, searched with a narrower
	// limit to catch vocabulary the polishing step may have rewritten.
	UserQuestion string

	// EnhancedQuestion is the query-expanded variant passed through to the
	// relevance judge.
	EnhancedQuestion string

	// GuruSlug names the knowledge domain.
	GuruSlug string

	// LLMEval selects the lower alternate rerank threshold used during
	// offline evaluation runs.
	LLMEval bool
}

// Result is the outcome of one retrieval call. Contexts and RerankedScores
// are positionally aligned: the candidate rendered at index i carries the
// score at index i.
type Result struct {
	// Contexts is the prompt-ready context block.
	Contexts string `json:"contexts"`

	// References are the citation records, deduplicated by link.
	References []Reference `json:"references"`

	// ContextDistances reports the vector distance of each kept context.
	ContextDistances []ContextDistance `json:"context_distances"`

	// RerankedScores pairs each kept context's link with its rerank score.
	RerankedScores []RerankedScore `json:"reranked_scores"`

	// TrustScore is the mean judged relevance of the kept contexts
	// (0 with an empty kept set: no usable context).
	TrustScore float64 `json:"trust_score"`

	// ProcessedRelevances carries the kept/removed judgment partition for
	// out-of-context diagnostics.
	ProcessedRelevances ProcessedRelevances `json:"processed_ctx_relevances"`

	// Usage is the accumulated LLM token usage.
	Usage TokenUsage `json:"usage"`

	// Skips records every candidate the fetchers passed over, with reasons.
	Skips []Skip `json:"-"`
}

// OutOfContext reports the distinguished "no usable context" outcome: the
// trust filter kept nothing, so the caller must record an out-of-context
// event and answer "not enough information" instead of generating.
func (r *Result) OutOfContext() bool {
	return len(r.RerankedScores) == 0
}

// New creates a Retriever. All dependencies are required except pdfChecker,
// which defaults to NoPrivatePDFs.
func New(cfg *config.Config, provider vector.Provider, emb embedder.Embedder, reranker rerank.Reranker, judge RelevanceJudge, pdfChecker PrivatePDFChecker) (*Retriever, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if reranker == nil {
		return nil, fmt.Errorf("reranker is required")
	}
	if judge == nil {
		return nil, fmt.Errorf("relevance judge is required")
	}
	if pdfChecker == nil {
		pdfChecker = NoPrivatePDFs{}
	}

	return &Retriever{
		cfg:        cfg,
		provider:   provider,
		embedder:   emb,
		reranker:   reranker,
		judge:      judge,
		pdfChecker: pdfChecker,
		merger:     NewMerger(provider, cfg.SpliceMergeLimit),
	}, nil
}

// Retrieve runs the full pipeline for one question.
//
// Fetcher failures degrade to empty results for that fetcher only. The one
// error Retrieve propagates is the trust filter's judgment-count mismatch;
// everything else resolves to a (possibly out-of-context) Result.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if req.GuruSlug == "" {
		return nil, fmt.Errorf("guru slug is required")
	}

	requestID := uuid.NewString()
	start := time.Now()

	questionVec := r.embed(ctx, requestID, "question", req.Question)
	userVec := r.embed(ctx, requestID, "user_question", req.UserQuestion)

	if questionVec == nil && userVec == nil {
		slog.Warn("No embeddings available, skipping retrieval",
			"request_id", requestID,
			"guru", req.GuruSlug)
		return &Result{}, nil
	}

	threshold := r.cfg.ActiveRerankThreshold(req.LLMEval)
	results := r.runFetchers(ctx, requestID, req, questionVec, userVec, threshold)

	// Fixed merge order: structured-QA, documents, code. Correctness never
	// depends on fetcher execution order.
	var combined []scored
	var skips []Skip
	for _, res := range results {
		combined = append(combined, res.selected...)
		skips = append(skips, res.skips...)
	}

	kept, trustScore, processed, usage, err := r.trustFilter(ctx, req, combined)
	if err != nil {
		return nil, err
	}

	contexts, references := r.assemble(ctx, kept)

	rerankedScores := make([]RerankedScore, len(kept))
	contextDistances := make([]ContextDistance, len(kept))
	for i, item := range kept {
		rerankedScores[i] = RerankedScore{
			Link:  item.cand.CanonicalLink(),
			Score: item.score,
		}
		contextDistances[i] = ContextDistance{
			ContextID: item.cand.ID,
			Distance:  item.cand.Distance,
		}
	}

	result := &Result{
		Contexts:            contexts,
		References:          references,
		ContextDistances:    contextDistances,
		RerankedScores:      rerankedScores,
		TrustScore:          trustScore,
		ProcessedRelevances: processed,
		Usage:               usage,
		Skips:               skips,
	}

	slog.Info("Retrieval complete",
		"request_id", requestID,
		"guru", req.GuruSlug,
		"candidates", len(combined),
		"kept", len(kept),
		"skipped", len(skips),
		"trust_score", trustScore,
		"out_of_context", result.OutOfContext(),
		"elapsed_ms", time.Since(start).Milliseconds())

	return result, nil
}

// embed generates one embedding, failing soft: embedding errors degrade to
// a nil vector so the affected search leg is skipped, never crashing the
// request.
func (r *Retriever) embed(ctx context.Context, requestID, which, text string) []float32 {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("Embedding failed, skipping search leg",
			"request_id", requestID,
			"which", which,
			"error", err)
		return nil
	}
	return vec
}

// runFetchers executes the three source fetchers and isolates their
// failures: a fetcher error degrades that fetcher to empty and the others
// still flow forward. Results land in fixed slots, so the concurrent path
// produces the same merge order as the sequential one.
func (r *Retriever) runFetchers(ctx context.Context, requestID string, req Request, questionVec, userVec []float32, threshold float64) [3]fetchResult {
	type fetcher struct {
		name string
		run  func(context.Context, Request, []float32, []float32, float64) (fetchResult, error)
	}

	fetchers := [3]fetcher{
		{"structured_qa", r.fetchStructuredQA},
		{"documents", r.fetchDocuments},
		{"code", r.fetchCode},
	}

	var results [3]fetchResult

	runOne := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Fetcher panicked, degrading to empty result",
					"request_id", requestID,
					"fetcher", fetchers[i].name,
					"guru", req.GuruSlug,
					"panic", r)
				results[i] = fetchResult{}
			}
		}()

		res, err := fetchers[i].run(ctx, req, questionVec, userVec, threshold)
		if err != nil {
			slog.Error("Fetcher failed, degrading to empty result",
				"request_id", requestID,
				"fetcher", fetchers[i].name,
				"guru", req.GuruSlug,
				"error", err)
			res = fetchResult{}
		}
		results[i] = res
	}

	if r.cfg.ConcurrentFetchers {
		var g errgroup.Group
		for i := range fetchers {
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range fetchers {
			runOne(i)
		}
	}

	return results
}
