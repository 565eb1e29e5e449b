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
	"log/slog"
	"sort"

	"github.com/Gurubase/gurubase-sub000/vector"
)

// fetchResult is the outcome of one source fetcher: the selected candidates
// paired with their rerank scores, plus the candidates it passed over.
type fetchResult struct {
	selected []scored
	skips    []Skip
}

// gather runs the two candidate-gathering searches: polished question first
// with the wide limit, raw user question second with the narrow limit, in
// that fixed order so first-occurrence dedup by store id is deterministic.
// A nil vector skips its leg. A missing collection degrades to no results.
func (r *Retriever) gather(ctx context.Context, collection string, questionVec, userVec []float32, filter *vector.Filter) ([]vector.Record, error) {
	wide, narrow := r.cfg.GatherLimits()

	legs := []struct {
		vec   []float32
		limit int
	}{
		{questionVec, wide},
		{userVec, narrow},
	}

	var combined []vector.Record
	seen := make(map[string]bool)

	for _, leg := range legs {
		if leg.vec == nil {
			continue
		}

		records, err := r.provider.Search(ctx, collection, leg.vec, leg.limit, filter, nil)
		if err != nil {
			if vector.IsCollectionNotFound(err) {
				slog.Warn("Collection not found, returning no candidates", "collection", collection)
				return nil, nil
			}
			return nil, err
		}

		for _, rec := range records {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			combined = append(combined, rec)
		}
	}

	return combined, nil
}

// selection pairs a gathered record with its rerank score.
type selection struct {
	rec   vector.Record
	score float64
}

// rankSelect reranks the gathered batch against the polished question and
// greedily accepts non-duplicate records above the threshold, stopping at
// the selection cap. When reranking fails the batch keeps its original order
// with score 0 for every item, so any positive threshold rejects it
// entirely: fewer contexts beat unranked ones.
func (r *Retriever) rankSelect(ctx context.Context, query string, records []vector.Record, texts []string, maxSelected int, threshold float64) ([]selection, []Skip) {
	if len(records) == 0 {
		return nil, nil
	}

	ordered := make([]selection, 0, len(records))

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil || scores == nil {
		slog.Warn("Reranking failed, degrading batch to zero scores",
			"count", len(records),
			"error", err)
		for _, rec := range records {
			ordered = append(ordered, selection{rec: rec, score: 0})
		}
	} else {
		sort.SliceStable(scores, func(i, j int) bool {
			return scores[i].Score > scores[j].Score
		})
		for _, s := range scores {
			if s.Index < 0 || s.Index >= len(records) {
				continue
			}
			ordered = append(ordered, selection{rec: records[s.Index], score: s.Score})
		}
	}

	var (
		selected []selection
		skips    []Skip
	)
	seenLinks := make(map[string]bool)

	for _, sel := range ordered {
		link := recordLink(sel.rec)

		switch {
		case len(selected) >= maxSelected:
			skips = append(skips, Skip{ID: sel.rec.ID, Link: link, Reason: SkipCapReached})
		case sel.score <= threshold:
			skips = append(skips, Skip{ID: sel.rec.ID, Link: link, Reason: SkipBelowThreshold})
		case link != "" && seenLinks[link]:
			skips = append(skips, Skip{ID: sel.rec.ID, Link: link, Reason: SkipDuplicateLink})
		default:
			seenLinks[link] = true
			selected = append(selected, sel)
		}
	}

	return selected, skips
}

// fetchDocuments retrieves website, PDF and video passages.
func (r *Retriever) fetchDocuments(ctx context.Context, req Request, questionVec, userVec []float32, threshold float64) (fetchResult, error) {
	collection := r.cfg.TextCollection(req.GuruSlug)

	records, err := r.gather(ctx, collection, questionVec, userVec, nil)
	if err != nil {
		return fetchResult{}, err
	}

	return r.selectPassages(ctx, req.Question, collection, records, r.cfg.DocumentCap, threshold, KindDocument, PrefixText), nil
}

// fetchCode retrieves source-code passages for the guru's repositories.
func (r *Retriever) fetchCode(ctx context.Context, req Request, questionVec, userVec []float32, threshold float64) (fetchResult, error) {
	collection := r.cfg.CodeCollection(req.GuruSlug)

	records, err := r.gather(ctx, collection, questionVec, userVec, nil)
	if err != nil {
		return fetchResult{}, err
	}

	return r.selectPassages(ctx, req.Question, collection, records, r.cfg.CodeCap, threshold, KindCode, PrefixCode), nil
}

// selectPassages runs phase B for single-passage fetchers: rerank, select,
// then splice-merge each survivor back to its full text.
func (r *Retriever) selectPassages(ctx context.Context, query, collection string, records []vector.Record, maxSelected int, threshold float64, kind Kind, prefix Prefix) fetchResult {
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	selections, skips := r.rankSelect(ctx, query, records, texts, maxSelected, threshold)

	result := fetchResult{skips: skips}
	for _, sel := range selections {
		passage, err := recordToPassage(sel.rec)
		if err != nil {
			slog.Warn("Skipping candidate with undecodable metadata", "id", sel.rec.ID, "error", err)
			result.skips = append(result.skips, Skip{ID: sel.rec.ID, Reason: SkipBadMetadata})
			continue
		}

		merged := r.merger.Merge(ctx, collection, passage, fieldMetaLink, passage.Metadata.CanonicalLink())

		result.selected = append(result.selected, scored{
			cand: Candidate{
				Passage: merged,
				Kind:    kind,
				Prefix:  prefix,
			},
			score: sel.score,
		})
	}

	return result
}

// fetchStructuredQA retrieves question/accepted-answer/other-answers
// records. It is skipped entirely on the selfhosted profile.
//
// For each question that clears the rerank threshold, three exact-filter
// fetches follow: the full question record, its accepted answer, and the
// other answers for the same question id. A question missing either its
// full record or its accepted answer is skipped, never failing the batch.
func (r *Retriever) fetchStructuredQA(ctx context.Context, req Request, questionVec, userVec []float32, threshold float64) (fetchResult, error) {
	if r.cfg.SelfHosted() {
		return fetchResult{}, nil
	}

	collection := r.cfg.QACollection(req.GuruSlug)
	filter := vector.NewFilter(vector.Eq(fieldMetaType, TypeQuestion))

	records, err := r.gather(ctx, collection, questionVec, userVec, filter)
	if err != nil {
		return fetchResult{}, err
	}

	// Rerank against the question titles rather than the chunk texts; the
	// title is the whole semantic unit for a structured-QA entry.
	texts := make([]string, len(records))
	for i, rec := range records {
		if q, ok := rec.Metadata["question"].(string); ok && q != "" {
			texts[i] = q
		} else {
			texts[i] = rec.Text
		}
	}

	selections, skips := r.rankSelect(ctx, req.Question, records, texts, r.cfg.StructuredQACap, threshold)

	result := fetchResult{skips: skips}
	for _, sel := range selections {
		seed, err := recordToPassage(sel.rec)
		if err != nil {
			slog.Warn("Skipping candidate with undecodable metadata", "id", sel.rec.ID, "error", err)
			result.skips = append(result.skips, Skip{ID: sel.rec.ID, Reason: SkipBadMetadata})
			continue
		}

		qa, skip := r.fetchQARecord(ctx, collection, seed)
		if skip != nil {
			result.skips = append(result.skips, *skip)
			continue
		}

		question := qa.Question
		question.Distance = seed.Distance

		result.selected = append(result.selected, scored{
			cand: Candidate{
				Passage: question,
				Kind:    KindStructuredQA,
				Prefix:  PrefixText,
				QA:      qa,
			},
			score: sel.score,
		})
	}

	return result, nil
}

// fetchQARecord assembles the three parts of a structured-QA candidate.
// Returns a Skip instead of an error: a missing part drops this candidate
// only, and the fetcher continues with the rest.
func (r *Retriever) fetchQARecord(ctx context.Context, collection string, seed Passage) (*QARecord, *Skip) {
	questionID := seed.Metadata.QuestionID

	questionRecs, err := r.provider.Fetch(ctx, collection, vector.NewFilter(
		vector.Eq(fieldMetaQuestionID, questionID),
		vector.Eq(fieldMetaType, TypeQuestion),
	), r.cfg.SpliceMergeLimit, nil)
	if err != nil || len(questionRecs) == 0 {
		slog.Warn("Structured-QA question record not found, skipping candidate",
			"collection", collection,
			"question_id", questionID,
			"error", err)
		return nil, &Skip{ID: seed.ID, Link: seed.Metadata.CanonicalLink(), Reason: SkipMissingQuestion}
	}

	acceptedRecs, err := r.provider.Fetch(ctx, collection, vector.NewFilter(
		vector.Eq(fieldMetaQuestionID, questionID),
		vector.Eq(fieldMetaType, TypeAnswer),
		vector.Eq(fieldMetaIsAccepted, true),
	), r.cfg.SpliceMergeLimit, nil)
	if err != nil || len(acceptedRecs) == 0 {
		slog.Warn("Structured-QA accepted answer not found, skipping candidate",
			"collection", collection,
			"question_id", questionID,
			"error", err)
		return nil, &Skip{ID: seed.ID, Link: seed.Metadata.CanonicalLink(), Reason: SkipMissingAcceptedAnswer}
	}

	otherRecs, err := r.provider.Fetch(ctx, collection, vector.NewFilter(
		vector.Eq(fieldMetaQuestionID, questionID),
		vector.Eq(fieldMetaType, TypeAnswer),
		vector.Eq(fieldMetaIsAccepted, false),
	), 0, nil)
	if err != nil {
		// Other answers are optional; the record is complete without them.
		slog.Warn("Failed to fetch other answers",
			"collection", collection,
			"question_id", questionID,
			"error", err)
		otherRecs = nil
	}

	questions := mergeByLink(questionRecs)
	accepted := mergeByLink(acceptedRecs)
	if len(questions) == 0 {
		return nil, &Skip{ID: seed.ID, Link: seed.Metadata.CanonicalLink(), Reason: SkipMissingQuestion}
	}
	if len(accepted) == 0 {
		return nil, &Skip{ID: seed.ID, Link: seed.Metadata.CanonicalLink(), Reason: SkipMissingAcceptedAnswer}
	}

	return &QARecord{
		Question:     questions[0],
		Accepted:     accepted[0],
		OtherAnswers: mergeByLink(otherRecs),
	}, nil
}
