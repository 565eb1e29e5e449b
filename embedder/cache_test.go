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

package embedder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how often the backend is actually hit.
type countingEmbedder struct {
	calls int
	fail  bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("backend unavailable")
	}
	if text == "" {
		return nil, nil
	}
	return []float32{1, 2, 3}, nil
}

func (e *countingEmbedder) Dimension() int { return 3 }
func (e *countingEmbedder) Name() string   { return "counting" }

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	first, err := cached.Embed(context.Background(), "what is anteon")
	require.NoError(t, err)

	second, err := cached.Embed(context.Background(), "what is anteon")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedderNormalizesWhitespace(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "what is  anteon")
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "  what is anteon \n")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "reformatted input must share the cache entry")
}

func TestCachedEmbedderReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	first, err := cached.Embed(context.Background(), "q")
	require.NoError(t, err)
	first[0] = 99

	second, err := cached.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, float32(1), second[0], "caller mutation must not poison the cache")
}

func TestCachedEmbedderEmptyInputPassesThrough(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	vec, err := cached.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, vec)

	_, err = cached.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "empty input is never cached")
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "q")
	require.Error(t, err)

	inner.fail = false
	vec, err := cached.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.NotNil(t, vec)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedderRequiresInner(t *testing.T) {
	_, err := NewCachedEmbedder(nil, 16)
	require.Error(t, err)
}
