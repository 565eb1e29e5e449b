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

package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// encodingForModel returns the tokenizer for a model, falling back to
// cl100k_base for models tiktoken does not know. Encodings are cached;
// loading one walks the BPE tables and is not cheap.
func encodingForModel(model string) *tiktoken.Tiktoken {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	encodingCache[model] = enc
	return enc
}

// countTokens estimates the token count of text under the given model's
// tokenizer. Used when the API response omits usage numbers; a rough
// 4-chars-per-token estimate covers the case where no encoding loads at all.
func countTokens(model, text string) int {
	enc := encodingForModel(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// countMessageTokens estimates prompt tokens for a chat request, including
// the per-message framing overhead of the OpenAI chat format.
func countMessageTokens(model string, messages []chatMessage) int {
	total := 3
	for _, msg := range messages {
		total += 3
		total += countTokens(model, msg.Role)
		total += countTokens(model, msg.Content)
	}
	return total
}

// joinNonEmpty joins the non-empty parts with a newline.
func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
