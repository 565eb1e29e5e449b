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

// Package embedder turns question text into dense vectors for
// nearest-neighbor search.
package embedder

import "context"

// Embedder generates dense vector embeddings for text.
//
// Contract: Embed fails soft on empty input, returning (nil, nil). Callers
// must treat a nil vector as "skip retrieval for this source", not crash.
// A returned error indicates the embedding service itself failed.
type Embedder interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// Name returns the embedder name for logging.
	Name() string
}
