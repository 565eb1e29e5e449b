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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatContexts renders candidates into numbered, tagged blocks. Numbering
// starts at 1 and is contiguous, matching array order exactly; the trust
// filter relies on this to align judgments positionally, and the same
// rendering feeds the final answer prompt.
func FormatContexts(candidates []Candidate) string {
	blocks := make([]string, len(candidates))
	for i, cand := range candidates {
		blocks[i] = renderCandidate(cand, i+1)
	}
	return strings.Join(blocks, "\n\n")
}

// renderCandidate renders one candidate as a tagged block with its 1-based
// context number.
func renderCandidate(c Candidate, num int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<%s context id=\"%d\">\n", c.Prefix, num)

	if c.Kind == KindStructuredQA && c.QA != nil {
		sb.WriteString(renderQA(c.QA))
	} else {
		fmt.Fprintf(&sb, "Metadata: %s\n", metadataJSON(c.Metadata))
		fmt.Fprintf(&sb, "Text: %s\n", c.Text)
	}

	fmt.Fprintf(&sb, "</%s context>", c.Prefix)
	return sb.String()
}

// renderQA renders the question block, the accepted answer block, and one
// block per other answer sorted descending by each answer's own score.
func renderQA(qa *QARecord) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Question Metadata: %s\n", metadataJSON(qa.Question.Metadata))
	fmt.Fprintf(&sb, "Question: %s\n", qa.Question.Text)
	fmt.Fprintf(&sb, "Accepted Answer: %s\n", qa.Accepted.Text)

	others := make([]Passage, len(qa.OtherAnswers))
	copy(others, qa.OtherAnswers)
	sort.SliceStable(others, func(i, j int) bool {
		return others[i].Metadata.Score > others[j].Metadata.Score
	})

	for _, answer := range others {
		fmt.Fprintf(&sb, "Other Answer (score %v): %s\n", answer.Metadata.Score, answer.Text)
	}

	return sb.String()
}

// metadataJSON renders the raw metadata map as compact JSON with stable key
// order. Internal chunking fields are not part of the prompt surface.
func metadataJSON(md Metadata) string {
	cleaned := make(map[string]any, len(md.Raw))
	for k, v := range md.Raw {
		if k == "split_num" {
			continue
		}
		cleaned[k] = v
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return "{}"
	}
	return string(data)
}
