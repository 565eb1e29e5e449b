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

package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MilvusConfig configures the Milvus vector provider.
type MilvusConfig struct {
	// Host is the Milvus server hostname.
	Host string `yaml:"host"`

	// Port is the Milvus HTTP port (default: 19530).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables HTTPS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// Timeout for HTTP requests (default: 30s).
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MilvusProvider implements Provider over the Milvus HTTP API.
type MilvusProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	config     MilvusConfig
}

// NewMilvusProvider creates a new Milvus provider.
func NewMilvusProvider(cfg MilvusConfig) (*MilvusProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for Milvus")
	}

	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}

	port := cfg.Port
	if port == 0 {
		port = 19530
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &MilvusProvider{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}, nil
}

// Name returns the provider name.
func (p *MilvusProvider) Name() string {
	return "milvus"
}

// Search finds the nearest neighbors of vector in the collection.
func (p *MilvusProvider) Search(ctx context.Context, collection string, vector []float32, limit int, filter *Filter, fields []string) ([]Record, error) {
	vector64 := make([]float64, len(vector))
	for i, v := range vector {
		vector64[i] = float64(v)
	}

	payload := map[string]any{
		"collection_name": collection,
		"vector":          vector64,
		"top_k":           limit,
		"metric_type":     "COSINE",
		"output_fields":   outputFields(fields),
	}

	if expr := filter.Expr(); expr != "" {
		payload["expr"] = expr
	}

	body, err := p.post(ctx, "/api/v1/search", collection, payload)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return convertMilvusResults(result), nil
}

// Fetch returns records matching filter exactly, without ranking.
func (p *MilvusProvider) Fetch(ctx context.Context, collection string, filter *Filter, limit int, fields []string) ([]Record, error) {
	expr := filter.Expr()
	if expr == "" {
		return nil, fmt.Errorf("filter is required for fetch")
	}

	payload := map[string]any{
		"collection_name": collection,
		"expr":            expr,
		"output_fields":   outputFields(fields),
	}
	if limit > 0 {
		payload["limit"] = limit
	}

	body, err := p.post(ctx, "/api/v1/query", collection, payload)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	return convertMilvusResults(result), nil
}

// Close closes the provider.
func (p *MilvusProvider) Close() error {
	return nil
}

// post issues a POST request and returns the response body. Collection-miss
// responses are converted to CollectionNotFoundError so callers can degrade
// to empty results instead of treating the store as down.
func (p *MilvusProvider) post(ctx context.Context, path, collection string, payload map[string]any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := p.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound || isMilvusCollectionMiss(body) {
		return nil, &CollectionNotFoundError{Collection: collection}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s failed: status %d, body: %s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

// isMilvusCollectionMiss matches the error strings Milvus returns for a
// missing collection across server versions.
func isMilvusCollectionMiss(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "can't find collection") ||
		strings.Contains(s, "collection not found") ||
		strings.Contains(s, "collection not exist")
}

func outputFields(fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	return []string{"text", "metadata"}
}

// convertMilvusResults converts a Milvus response to Records.
func convertMilvusResults(result map[string]any) []Record {
	if result == nil {
		return []Record{}
	}

	resultsData, ok := result["results"].([]any)
	if !ok {
		if resultsData, ok = result["data"].([]any); !ok {
			return []Record{}
		}
	}

	records := make([]Record, 0, len(resultsData))
	for _, item := range resultsData {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}

		id := ""
		if idVal, ok := itemMap["id"].(string); ok {
			id = idVal
		} else if idVal, ok := itemMap["id"].(float64); ok {
			id = fmt.Sprintf("%.0f", idVal)
		}

		var distance float32
		if distVal, ok := itemMap["distance"].(float64); ok {
			distance = float32(distVal)
		}

		text := ""
		if textVal, ok := itemMap["text"].(string); ok {
			text = textVal
		}

		metadata := make(map[string]any)
		if meta, ok := itemMap["metadata"].(map[string]any); ok {
			metadata = meta
		} else {
			for k, v := range itemMap {
				if k != "id" && k != "distance" && k != "text" && k != "vector" {
					metadata[k] = v
				}
			}
		}

		records = append(records, Record{
			ID:       id,
			Text:     text,
			Distance: distance,
			Metadata: metadata,
		})
	}

	return records
}

// Ensure MilvusProvider implements Provider.
var _ Provider = (*MilvusProvider)(nil)
