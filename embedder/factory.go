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
	"fmt"
	"time"

	"github.com/Gurubase/gurubase-sub000/config"
)

// NewFromConfig creates an Embedder from configuration, wrapped with the
// content-hash cache unless caching is disabled (cacheSize < 0).
func NewFromConfig(cfg config.EmbedderConfig, cacheSize int) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Provider {
	case "openai":
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		})
	case "ollama":
		inner, err = NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: openai, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cacheSize)
}
