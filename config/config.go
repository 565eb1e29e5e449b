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

// Package config holds the retrieval core's configuration. All thresholds
// and limits are injected here once at process start and read-only
// thereafter; components never consult globals.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Deployment profiles.
const (
	// ProfileCloud is the full-scale deployment: structured-QA enabled,
	// wide candidate gathering, remote reranking service.
	ProfileCloud = "cloud"

	// ProfileSelfHosted is the reduced-scale deployment: structured-QA
	// skipped, small gathering limits, identity reranking.
	ProfileSelfHosted = "selfhosted"
)

// Config configures the retrieval core.
type Config struct {
	// Profile selects the deployment tier (cloud or selfhosted).
	Profile string `yaml:"profile,omitempty"`

	// TrustScoreThreshold is the minimum LLM-judged relevance score a
	// candidate needs to survive trust filtering.
	TrustScoreThreshold float64 `yaml:"trust_score_threshold,omitempty"`

	// RerankThreshold is the minimum rerank score a candidate needs to be
	// selected by a fetcher on live traffic.
	RerankThreshold float64 `yaml:"rerank_threshold,omitempty"`

	// RerankThresholdEval is the lower alternate threshold used during
	// offline LLM evaluation runs.
	RerankThresholdEval float64 `yaml:"rerank_threshold_llm_eval,omitempty"`

	// WideLimit is the candidate-gathering limit for the polished question
	// embedding (default: 20).
	WideLimit int `yaml:"wide_limit,omitempty"`

	// NarrowLimit is the candidate-gathering limit for the raw user
	// question embedding (default: 10).
	NarrowLimit int `yaml:"narrow_limit,omitempty"`

	// SelfHostedLimit replaces both gathering limits on the selfhosted
	// profile (default: 3).
	SelfHostedLimit int `yaml:"self_hosted_limit,omitempty"`

	// DocumentCap is the per-fetcher selection cap for documents (default: 3).
	DocumentCap int `yaml:"document_cap,omitempty"`

	// StructuredQACap is the per-fetcher selection cap for structured-QA
	// records (default: 3).
	StructuredQACap int `yaml:"structured_qa_cap,omitempty"`

	// CodeCap is the per-fetcher selection cap for code passages
	// (default: 2; code passages are verbose).
	CodeCap int `yaml:"code_cap,omitempty"`

	// SpliceMergeLimit bounds how many sibling splits are re-fetched when
	// reassembling a passage (0 = no limit).
	SpliceMergeLimit int `yaml:"splice_merge_limit,omitempty"`

	// ConcurrentFetchers runs the three source fetchers in parallel.
	// Results are merged in a fixed order either way.
	ConcurrentFetchers bool `yaml:"concurrent_fetchers,omitempty"`

	// EmbeddingCacheSize is the LRU size of the content-hash embedding
	// cache (default: 1024; negative disables caching).
	EmbeddingCacheSize int `yaml:"embedding_cache_size,omitempty"`

	// Collection name templates; %s is replaced with the guru slug.
	TextCollectionTemplate string `yaml:"text_collection_template,omitempty"`
	CodeCollectionTemplate string `yaml:"code_collection_template,omitempty"`
	QACollectionTemplate   string `yaml:"qa_collection_template,omitempty"`

	// Component configurations.
	Embedder    EmbedderConfig    `yaml:"embedder,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty"`
	Reranker    RerankerConfig    `yaml:"reranker,omitempty"`
	Judge       JudgeConfig       `yaml:"judge,omitempty"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider is the embedder backend: openai or ollama.
	Provider string `yaml:"provider,omitempty"`

	// APIKey for the provider (required for openai).
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Model name.
	Model string `yaml:"model,omitempty"`

	// Dimension of the embeddings.
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout in seconds for embedding requests.
	Timeout int `yaml:"timeout,omitempty"`
}

// VectorStoreConfig configures the vector store backend.
type VectorStoreConfig struct {
	// Type is the store backend: milvus or qdrant.
	Type string `yaml:"type,omitempty"`

	// Host is the store hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the store port (backend default when 0).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// RerankerConfig configures the remote cross-encoder reranking service.
type RerankerConfig struct {
	// BaseURL of the rerank endpoint (a TEI-style /rerank API).
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey for the rerank service (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout in seconds for rerank requests.
	Timeout int `yaml:"timeout,omitempty"`
}

// JudgeConfig configures the LLM used for trust filtering.
type JudgeConfig struct {
	// APIKey for the LLM API (required).
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Model name (default: gpt-4o-mini).
	Model string `yaml:"model,omitempty"`

	// Timeout in seconds for judge requests.
	Timeout int `yaml:"timeout,omitempty"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults fills in zero-valued fields. The numeric thresholds here are
// starting points, not product constants; every environment tunes them.
func (c *Config) SetDefaults() {
	if c.Profile == "" {
		c.Profile = ProfileCloud
	}
	if c.TrustScoreThreshold == 0 {
		c.TrustScoreThreshold = 0.05
	}
	if c.RerankThreshold == 0 {
		c.RerankThreshold = 0.35
	}
	if c.RerankThresholdEval == 0 {
		c.RerankThresholdEval = 0.25
	}
	if c.WideLimit == 0 {
		c.WideLimit = 20
	}
	if c.NarrowLimit == 0 {
		c.NarrowLimit = 10
	}
	if c.SelfHostedLimit == 0 {
		c.SelfHostedLimit = 3
	}
	if c.DocumentCap == 0 {
		c.DocumentCap = 3
	}
	if c.StructuredQACap == 0 {
		c.StructuredQACap = 3
	}
	if c.CodeCap == 0 {
		c.CodeCap = 2
	}
	if c.EmbeddingCacheSize == 0 {
		c.EmbeddingCacheSize = 1024
	}
	if c.TextCollectionTemplate == "" {
		c.TextCollectionTemplate = "%s_text"
	}
	if c.CodeCollectionTemplate == "" {
		c.CodeCollectionTemplate = "%s_code"
	}
	if c.QACollectionTemplate == "" {
		c.QACollectionTemplate = "%s_qa"
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "openai"
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "milvus"
	}
	if c.Judge.Model == "" {
		c.Judge.Model = "gpt-4o-mini"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileCloud, ProfileSelfHosted:
	default:
		return fmt.Errorf("unknown profile: %s (supported: %s, %s)", c.Profile, ProfileCloud, ProfileSelfHosted)
	}

	if c.TrustScoreThreshold < 0 || c.TrustScoreThreshold > 1 {
		return fmt.Errorf("trust_score_threshold must be in [0,1], got %v", c.TrustScoreThreshold)
	}
	if c.RerankThreshold < 0 || c.RerankThreshold > 1 {
		return fmt.Errorf("rerank_threshold must be in [0,1], got %v", c.RerankThreshold)
	}
	if c.RerankThresholdEval < 0 || c.RerankThresholdEval > 1 {
		return fmt.Errorf("rerank_threshold_llm_eval must be in [0,1], got %v", c.RerankThresholdEval)
	}
	if c.WideLimit <= 0 || c.NarrowLimit <= 0 || c.SelfHostedLimit <= 0 {
		return fmt.Errorf("candidate gathering limits must be positive")
	}
	if c.DocumentCap <= 0 || c.StructuredQACap <= 0 || c.CodeCap <= 0 {
		return fmt.Errorf("selection caps must be positive")
	}

	return nil
}

// SelfHosted reports whether the reduced-scale profile is active.
func (c *Config) SelfHosted() bool {
	return c.Profile == ProfileSelfHosted
}

// ActiveRerankThreshold returns the rerank threshold for the given mode:
// the lower evaluation threshold when llmEval is set, the live one otherwise.
func (c *Config) ActiveRerankThreshold(llmEval bool) float64 {
	if llmEval {
		return c.RerankThresholdEval
	}
	return c.RerankThreshold
}

// GatherLimits returns the (wide, narrow) candidate-gathering limits for
// the active profile.
func (c *Config) GatherLimits() (int, int) {
	if c.SelfHosted() {
		return c.SelfHostedLimit, c.SelfHostedLimit
	}
	return c.WideLimit, c.NarrowLimit
}

// TextCollection returns the document collection name for a guru.
func (c *Config) TextCollection(guruSlug string) string {
	return fmt.Sprintf(c.TextCollectionTemplate, guruSlug)
}

// CodeCollection returns the code collection name for a guru.
func (c *Config) CodeCollection(guruSlug string) string {
	return fmt.Sprintf(c.CodeCollectionTemplate, guruSlug)
}

// QACollection returns the structured-QA collection name for a guru.
func (c *Config) QACollection(guruSlug string) string {
	return fmt.Sprintf(c.QACollectionTemplate, guruSlug)
}
