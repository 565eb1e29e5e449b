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

package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)
	return client
}

func TestRerank(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how to run a load test", req.Query)
		assert.Len(t, req.Texts, 2)

		json.NewEncoder(w).Encode([]Score{
			{Index: 1, Score: 0.91},
			{Index: 0, Score: 0.12},
		})
	})

	scores, err := client.Rerank(context.Background(), "how to run a load test", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 1, scores[0].Index)
	assert.Equal(t, 0.91, scores[0].Score)
}

func TestRerankEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	scores, err := client.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRerankTruncationLadder(t *testing.T) {
	// The service rejects the first two attempts as oversized; the third
	// attempt must arrive with texts truncated to the third ladder limit.
	var attempts int
	var lastTexts []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastTexts = req.Texts

		if attempts < 3 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"input is too large for the model"}`))
			return
		}
		json.NewEncoder(w).Encode([]Score{{Index: 0, Score: 0.5}})
	})

	long := strings.Repeat("x", 5000)
	scores, err := client.Rerank(context.Background(), "q", []string{long})
	require.NoError(t, err)
	require.Len(t, scores, 1)

	assert.Equal(t, 3, attempts)
	require.Len(t, lastTexts, 1)
	assert.Len(t, lastTexts[0], 1000)
}

func TestRerank413TriggersLadder(t *testing.T) {
	var attempts int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		json.NewEncoder(w).Encode([]Score{{Index: 0, Score: 0.7}})
	})

	scores, err := client.Rerank(context.Background(), "q", []string{strings.Repeat("y", 2000)})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 2, attempts)
}

func TestRerankGivesUpAfterLadder(t *testing.T) {
	var attempts int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("each input must have less than 512 tokens"))
	})

	_, err := client.Rerank(context.Background(), "q", []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all truncation limits")
	assert.Equal(t, len(truncateLimits), attempts)
}

func TestRerankNonSizeErrorFailsFast(t *testing.T) {
	var attempts int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model crashed"))
	})

	_, err := client.Rerank(context.Background(), "q", []string{"text"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-size errors must not be retried")
}

func TestNoop(t *testing.T) {
	scores, err := Noop{}.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	for i, s := range scores {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, 1.0, s.Score)
	}
}

func TestTruncateTexts(t *testing.T) {
	texts := truncateTexts([]string{"short", strings.Repeat("a", 200)}, 100)
	assert.Equal(t, "short", texts[0])
	assert.Len(t, texts[1], 100)
}
