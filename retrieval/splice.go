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
	"strings"

	"github.com/Gurubase/gurubase-sub000/vector"
)

// Metadata field paths used in store filters.
const (
	fieldMetaLink       = "metadata.link"
	fieldMetaType       = "metadata.type"
	fieldMetaQuestionID = "metadata.question_id"
	fieldMetaIsAccepted = "metadata.is_accepted"
)

// Merger reassembles a passage's full text from its stored splits. Long
// documents are indexed as N overlapping chunks; nearest-neighbor search
// returns one of them, and the siblings must be re-fetched and concatenated
// in split order.
type Merger struct {
	provider vector.Provider

	// limit bounds how many sibling splits are fetched (0 = no limit).
	limit int
}

// NewMerger creates a splice merger over the given provider.
func NewMerger(provider vector.Provider, limit int) *Merger {
	return &Merger{provider: provider, limit: limit}
}

// Merge returns seed with its text replaced by the concatenation of all
// stored splits sharing linkField == linkValue, in ascending split order.
//
// Merge is idempotent: a single-split passage comes back unchanged. It never
// mutates the seed's ID, metadata or distance, and degrades to the seed's
// own text when the sibling fetch fails.
func (m *Merger) Merge(ctx context.Context, collection string, seed Passage, linkField, linkValue string) Passage {
	if linkValue == "" {
		return seed
	}

	records, err := m.provider.Fetch(ctx, collection, vector.NewFilter(vector.Eq(linkField, linkValue)), m.limit, nil)
	if err != nil {
		slog.Warn("Failed to fetch sibling splits, keeping seed text",
			"collection", collection,
			"link", linkValue,
			"error", err)
		return seed
	}

	if len(records) <= 1 {
		return seed
	}

	merged := seed
	merged.Text = joinSplits(records)
	return merged
}

// joinSplits orders records by metadata split_num ascending and joins their
// texts with a single space. Records without a split number keep their
// enumeration position (legacy records predate split numbering).
func joinSplits(records []vector.Record) string {
	type split struct {
		num  int
		text string
	}

	splits := make([]split, len(records))
	for i, rec := range records {
		num := i
		if n, ok := splitNum(rec.Metadata); ok {
			num = n
		}
		splits[i] = split{num: num, text: rec.Text}
	}

	sort.SliceStable(splits, func(i, j int) bool {
		return splits[i].num < splits[j].num
	})

	texts := make([]string, len(splits))
	for i, s := range splits {
		texts[i] = s.text
	}
	return strings.Join(texts, " ")
}

func splitNum(metadata map[string]any) (int, bool) {
	switch v := metadata["split_num"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// mergeByLink groups records by canonical link (first-seen order) and
// splice-merges each group into one passage. Used for answer records that
// are already fetched in full, where no second round trip is needed.
func mergeByLink(records []vector.Record) []Passage {
	var order []string
	groups := make(map[string][]vector.Record)

	for _, rec := range records {
		link := recordLink(rec)
		if _, seen := groups[link]; !seen {
			order = append(order, link)
		}
		groups[link] = append(groups[link], rec)
	}

	passages := make([]Passage, 0, len(order))
	for _, link := range order {
		group := groups[link]
		p, err := recordToPassage(group[0])
		if err != nil {
			slog.Warn("Skipping record with undecodable metadata", "id", group[0].ID, "error", err)
			continue
		}
		if len(group) > 1 {
			p.Text = joinSplits(group)
		}
		passages = append(passages, p)
	}

	return passages
}

func recordLink(rec vector.Record) string {
	if link, ok := rec.Metadata["link"].(string); ok && link != "" {
		return link
	}
	if url, ok := rec.Metadata["url"].(string); ok {
		return url
	}
	return ""
}

// recordToPassage converts a raw store record into a typed passage.
func recordToPassage(rec vector.Record) (Passage, error) {
	md, err := DecodeMetadata(rec.Metadata)
	if err != nil {
		return Passage{}, err
	}
	return Passage{
		ID:       rec.ID,
		Text:     rec.Text,
		Metadata: md,
		Distance: rec.Distance,
	}, nil
}
