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

// Package gurubase is the context-retrieval and trust-filtering core behind
// Gurubase answer generation.
//
// Given a user question, the retrieval pipeline embeds it, gathers candidate
// passages from a guru's vector-store collections (documents, source code,
// and structured Q&A), reranks and selects the best candidates per source,
// judges their relevance with a single LLM call, and assembles the survivors
// into a prompt-ready context block with citation references and a trust
// score.
//
// # Packages
//
//   - retrieval: the pipeline itself (fetch, rerank selection, splice
//     merging, trust filtering, context assembly)
//   - vector: read-only Milvus and Qdrant store clients
//   - embedder: OpenAI and Ollama embedding clients with an LRU cache
//   - rerank: cross-encoder rerank client with oversize-payload retry
//   - llm: the LLM relevance judge used for trust filtering
//   - config: thresholds, limits, and deployment profiles
//
// # Quick Start
//
//	cfg, err := config.Load("config.yaml")
//	provider, err := vector.NewProviderFromConfig(cfg.VectorStore)
//	emb, err := embedder.NewFromConfig(cfg.Embedder, cfg.EmbeddingCacheSize)
//	reranker, err := rerank.NewClient(rerank.ClientConfig{BaseURL: cfg.Reranker.BaseURL})
//	judge, err := llm.NewOpenAIJudge(cfg.Judge)
//
//	r, err := retrieval.New(cfg, provider, emb, reranker, judge, nil)
//	result, err := r.Retrieve(ctx, retrieval.Request{
//		Question: "How do I run a load test?",
//		GuruSlug: "anteon",
//	})
//
// A Result with no reranked scores is the out-of-context outcome: the
// pipeline found nothing trustworthy and the caller should answer "not
// enough information" instead of generating.
package gurubase
