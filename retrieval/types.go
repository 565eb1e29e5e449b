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

// Package retrieval turns a raw question into a ranked, deduplicated,
// relevance-filtered set of text and code passages with a computed trust
// score, ready for prompt assembly.
package retrieval

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Source type tags stored in record metadata.
const (
	TypeWebsite    = "WEBSITE"
	TypePDF        = "PDF"
	TypeYouTube    = "YOUTUBE"
	TypeGithubRepo = "GITHUB_REPO"
	TypeQuestion   = "question"
	TypeAnswer     = "answer"
)

// Kind is the candidate kind, decided once at fetch time and matched
// exhaustively downstream.
type Kind int

const (
	// KindDocument is a website, PDF or video passage.
	KindDocument Kind = iota
	// KindCode is a source-code passage.
	KindCode
	// KindStructuredQA is a question with its accepted and other answers.
	KindStructuredQA
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindCode:
		return "code"
	case KindStructuredQA:
		return "structured_qa"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Prefix selects the wrapper tag used when rendering a candidate.
type Prefix string

const (
	// PrefixText wraps prose passages.
	PrefixText Prefix = "Text"
	// PrefixCode wraps code passages.
	PrefixCode Prefix = "Code"
)

// Metadata is the typed view of a record's stored metadata. Raw keeps the
// original map for rendering fields the typed view does not model.
type Metadata struct {
	Type            string  `mapstructure:"type"`
	Link            string  `mapstructure:"link"`
	URL             string  `mapstructure:"url"`
	Title           string  `mapstructure:"title"`
	SplitNum        int     `mapstructure:"split_num"`
	Question        string  `mapstructure:"question"`
	QuestionID      int64   `mapstructure:"question_id"`
	Score           float64 `mapstructure:"score"`
	OwnerReputation int     `mapstructure:"owner_reputation"`
	IsAccepted      bool    `mapstructure:"is_accepted"`

	Raw map[string]any `mapstructure:"-"`
}

// DecodeMetadata converts a raw metadata map into the typed view. Stores
// return numbers as float64 or int64 depending on the backend, so decoding
// is weakly typed.
func DecodeMetadata(raw map[string]any) (Metadata, error) {
	var md Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to build metadata decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	md.Raw = raw
	return md, nil
}

// CanonicalLink is the dedup key for a passage: the link field, falling
// back to url for legacy records.
func (m Metadata) CanonicalLink() string {
	if m.Link != "" {
		return m.Link
	}
	return m.URL
}

// Passage is a retrieved text with its provenance.
type Passage struct {
	// ID is the store-assigned identifier.
	ID string

	// Text is the passage content, possibly a re-merged concatenation of
	// several stored splits.
	Text string

	// Metadata is the typed metadata of the seed record.
	Metadata Metadata

	// Distance is the nearest-neighbor distance of the seed record
	// (informational only, not used for filtering).
	Distance float32
}

// QARecord groups the three parts of a structured-QA candidate.
type QARecord struct {
	Question     Passage
	Accepted     Passage
	OtherAnswers []Passage
}

// Candidate is an in-flight retrieval result.
type Candidate struct {
	Passage

	// Kind tags the candidate variant.
	Kind Kind

	// Prefix governs the wrapper tag used by the context assembler.
	Prefix Prefix

	// QA carries the question/accepted/other-answers parts.
	// Set if and only if Kind == KindStructuredQA.
	QA *QARecord
}

// CanonicalLink is the candidate's dedup key. Structured-QA candidates are
// keyed by their question's link.
func (c Candidate) CanonicalLink() string {
	if c.Kind == KindStructuredQA && c.QA != nil {
		return c.QA.Question.Metadata.CanonicalLink()
	}
	return c.Metadata.CanonicalLink()
}

// Title is the human-readable name used for references: the question text
// for structured-QA candidates, the document title otherwise.
func (c Candidate) Title() string {
	if c.Kind == KindStructuredQA && c.QA != nil {
		if q := c.QA.Question.Metadata.Question; q != "" {
			return q
		}
		return c.QA.Question.Metadata.Title
	}
	return c.Metadata.Title
}

// RerankedScore pairs a candidate's canonical link with its rerank score.
// The reranked-score list returned by Retrieve is positionally aligned with
// the kept candidates.
type RerankedScore struct {
	Link  string  `json:"link"`
	Score float64 `json:"score"`
}

// Reference is a citation record for one unique candidate source.
type Reference struct {
	QuestionOrTitle string `json:"question"`
	Link            string `json:"link,omitempty"`
}

// ContextRelevanceJudgment is one LLM relevance verdict. ContextNum echoes
// the 1-based position of the candidate in the judge prompt.
type ContextRelevanceJudgment struct {
	ContextNum  int     `json:"context_num"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
}

// JudgedContext pairs a judgment with the candidate it scored.
type JudgedContext struct {
	Judgment ContextRelevanceJudgment `json:"judgment"`
	Link     string                   `json:"link"`
	Title    string                   `json:"title"`
}

// ProcessedRelevances partitions judgments by the trust-score threshold.
// Removed entries feed out-of-context diagnostics; they are not part of the
// contexts handed to the answer generator.
type ProcessedRelevances struct {
	Kept    []JudgedContext `json:"kept"`
	Removed []JudgedContext `json:"removed"`
}

// ContextDistance reports the vector distance of one returned context.
type ContextDistance struct {
	ContextID string  `json:"context_id"`
	Distance  float32 `json:"distance"`
}

// TokenUsage accumulates LLM token counts across the retrieval call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// SkipReason names why a fetcher passed over a candidate.
type SkipReason string

const (
	// SkipMissingQuestion: the full question record was not found.
	SkipMissingQuestion SkipReason = "missing_question"
	// SkipMissingAcceptedAnswer: the accepted answer was not found.
	SkipMissingAcceptedAnswer SkipReason = "missing_accepted_answer"
	// SkipDuplicateLink: another candidate with the same canonical link
	// was already selected.
	SkipDuplicateLink SkipReason = "duplicate_link"
	// SkipBelowThreshold: the rerank score did not clear the threshold.
	SkipBelowThreshold SkipReason = "below_rerank_threshold"
	// SkipCapReached: the per-fetcher selection cap was already full.
	SkipCapReached SkipReason = "cap_reached"
	// SkipBadMetadata: the record's metadata could not be decoded.
	SkipBadMetadata SkipReason = "bad_metadata"
)

// Skip records one passed-over candidate with the reason, so callers and
// tests can assert on why an item was dropped instead of inferring it from
// control flow.
type Skip struct {
	ID     string
	Link   string
	Reason SkipReason
}

// scored pairs a candidate with its rerank score. The pair is kept together
// through trust filtering and only split into the parallel Contexts /
// RerankedScores arrays at the external interface boundary.
type scored struct {
	cand  Candidate
	score float64
}
