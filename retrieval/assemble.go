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
)

// PrivatePDFChecker reports which of the given PDF links belong to private
// documents. Implemented by the enclosing product against its document
// metadata store; looked up once per assembly batch, not per candidate.
type PrivatePDFChecker interface {
	PrivatePDFLinks(ctx context.Context, links []string) (map[string]bool, error)
}

// NoPrivatePDFs is a checker for deployments without private documents.
type NoPrivatePDFs struct{}

// PrivatePDFLinks reports no private links.
func (NoPrivatePDFs) PrivatePDFLinks(ctx context.Context, links []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// assemble renders the kept candidates into the prompt-ready context block
// and builds the deduplicated reference list. Candidates stay in reranked
// order; references are sorted by descending rerank score.
func (r *Retriever) assemble(ctx context.Context, kept []scored) (string, []Reference) {
	if len(kept) == 0 {
		return "", nil
	}

	private := r.lookupPrivatePDFs(ctx, kept)

	candidates := make([]Candidate, len(kept))
	for i, item := range kept {
		candidates[i] = redactPrivateLink(item.cand, private)
	}

	return FormatContexts(candidates), buildReferences(kept, private)
}

// lookupPrivatePDFs collects the PDF links of the batch and checks them in
// one call. The check fails closed: if the lookup errors, every PDF link in
// the batch is treated as private rather than risking a leak.
func (r *Retriever) lookupPrivatePDFs(ctx context.Context, kept []scored) map[string]bool {
	var links []string
	for _, item := range kept {
		if item.cand.Kind == KindDocument && item.cand.Metadata.Type == TypePDF {
			if link := item.cand.Metadata.CanonicalLink(); link != "" {
				links = append(links, link)
			}
		}
	}
	if len(links) == 0 {
		return map[string]bool{}
	}

	private, err := r.pdfChecker.PrivatePDFLinks(ctx, links)
	if err != nil {
		slog.Warn("Private PDF lookup failed, redacting all PDF links in batch",
			"links", len(links),
			"error", err)
		private = make(map[string]bool, len(links))
		for _, link := range links {
			private[link] = true
		}
	}

	return private
}

// redactPrivateLink nulls out the link of a private PDF before rendering,
// so the direct link never reaches the prompt text. Title and content stay
// usable.
func redactPrivateLink(c Candidate, private map[string]bool) Candidate {
	if c.Kind != KindDocument || c.Metadata.Type != TypePDF {
		return c
	}
	if !private[c.Metadata.CanonicalLink()] {
		return c
	}

	redacted := c
	redacted.Metadata.Link = ""
	redacted.Metadata.URL = ""

	raw := make(map[string]any, len(c.Metadata.Raw))
	for k, v := range c.Metadata.Raw {
		raw[k] = v
	}
	if _, ok := raw["link"]; ok {
		raw["link"] = nil
	}
	if _, ok := raw["url"]; ok {
		raw["url"] = nil
	}
	redacted.Metadata.Raw = raw

	return redacted
}

// buildReferences builds one citation per unique candidate source,
// deduplicated by canonical link and ordered by descending rerank score.
// When two candidates share a link, the higher score decides its position.
// Private PDFs are cited by title only, with no link.
func buildReferences(kept []scored, private map[string]bool) []Reference {
	type entry struct {
		ref   Reference
		score float64
	}

	var order []string
	byKey := make(map[string]*entry)

	for _, item := range kept {
		link := item.cand.CanonicalLink()
		title := item.cand.Title()

		if item.cand.Kind == KindDocument && item.cand.Metadata.Type == TypePDF && private[link] {
			link = ""
		}

		key := link
		if key == "" {
			key = title
		}
		if key == "" {
			continue
		}

		if existing, ok := byKey[key]; ok {
			if item.score > existing.score {
				existing.score = item.score
			}
			continue
		}

		byKey[key] = &entry{
			ref:   Reference{QuestionOrTitle: title, Link: link},
			score: item.score,
		}
		order = append(order, key)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byKey[order[i]].score > byKey[order[j]].score
	})

	references := make([]Reference, 0, len(order))
	for _, key := range order {
		references = append(references, byKey[key].ref)
	}
	return references
}
