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
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// QdrantProvider implements Provider using the Qdrant gRPC client.
type QdrantProvider struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantProvider creates a new Qdrant provider.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for Qdrant")
	}

	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

// Search finds the nearest neighbors of vector in the collection.
func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, limit int, filter *Filter, fields []string) ([]Record, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    payloadSelector(fields),
	}

	if qf := buildQdrantFilter(filter); qf != nil {
		searchRequest.Filter = qf
	}

	pointsClient := p.client.GetPointsClient()
	searchResult, err := pointsClient.Search(ctx, searchRequest)
	if err != nil {
		return nil, qdrantError(collection, "search", err)
	}

	records := make([]Record, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		rec := convertQdrantPoint(pointID(point.Id), point.Payload)
		// Qdrant reports cosine similarity; callers expect a distance
		// where lower is closer.
		rec.Distance = 1.0 - point.Score
		records = append(records, rec)
	}

	return records, nil
}

// Fetch returns records matching filter exactly, without ranking.
func (p *QdrantProvider) Fetch(ctx context.Context, collection string, filter *Filter, limit int, fields []string) ([]Record, error) {
	qf := buildQdrantFilter(filter)
	if qf == nil {
		return nil, fmt.Errorf("filter is required for fetch")
	}

	scroll := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         qf,
		WithPayload:    payloadSelector(fields),
	}
	if limit > 0 {
		scroll.Limit = qdrant.PtrOf(uint32(limit))
	}

	points, err := p.client.Scroll(ctx, scroll)
	if err != nil {
		return nil, qdrantError(collection, "scroll", err)
	}

	records := make([]Record, 0, len(points))
	for _, point := range points {
		records = append(records, convertQdrantPoint(pointID(point.Id), point.Payload))
	}

	return records, nil
}

// Close closes the client connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// qdrantError converts gRPC NotFound into the typed collection-miss error.
func qdrantError(collection, op string, err error) error {
	if st, ok := status.FromError(err); ok {
		if st.Code() == codes.NotFound || strings.Contains(strings.ToLower(st.Message()), "doesn't exist") {
			return &CollectionNotFoundError{Collection: collection}
		}
	}
	return fmt.Errorf("failed to %s points in %s: %w", op, collection, err)
}

func payloadSelector(fields []string) *qdrant.WithPayloadSelector {
	if len(fields) > 0 {
		return qdrant.NewWithPayloadInclude(fields...)
	}
	return qdrant.NewWithPayload(true)
}

// buildQdrantFilter compiles the typed filter into Qdrant conditions.
func buildQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Conditions) == 0 {
		return nil
	}

	var must, mustNot []*qdrant.Condition
	for _, c := range f.Conditions {
		switch c.Op {
		case OpEq:
			must = append(must, matchCondition(c.Field, c.Value))
		case OpIn:
			must = append(must, keywordsCondition(c.Field, c.Values))
		case OpNotIn:
			mustNot = append(mustNot, keywordsCondition(c.Field, c.Values))
		}
	}

	return &qdrant.Filter{
		Must:    must,
		MustNot: mustNot,
	}
}

func matchCondition(field string, value any) *qdrant.Condition {
	switch v := value.(type) {
	case bool:
		return qdrant.NewMatchBool(field, v)
	case int:
		return qdrant.NewMatchInt(field, int64(v))
	case int64:
		return qdrant.NewMatchInt(field, v)
	default:
		return qdrant.NewMatch(field, fmt.Sprintf("%v", v))
	}
}

func keywordsCondition(field string, values []any) *qdrant.Condition {
	keywords := make([]string, len(values))
	for i, v := range values {
		keywords[i] = fmt.Sprintf("%v", v)
	}
	return qdrant.NewMatchKeywords(field, keywords...)
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	}
	return ""
}

// convertQdrantPoint converts a point payload into a Record. Payloads may
// carry metadata nested under a "metadata" key or flattened at the top
// level; both layouts are accepted.
func convertQdrantPoint(id string, payload map[string]*qdrant.Value) Record {
	fieldsMap := make(map[string]any, len(payload))
	for key, value := range payload {
		fieldsMap[key] = qdrantValue(value)
	}

	text := ""
	if textVal, ok := fieldsMap["text"].(string); ok {
		text = textVal
	}

	metadata := make(map[string]any)
	if meta, ok := fieldsMap["metadata"].(map[string]any); ok {
		metadata = meta
	} else {
		for k, v := range fieldsMap {
			if k != "text" {
				metadata[k] = v
			}
		}
	}

	return Record{
		ID:       id,
		Text:     text,
		Metadata: metadata,
	}
}

func qdrantValue(value *qdrant.Value) any {
	if value == nil {
		return nil
	}
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = qdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		if v.StructValue == nil {
			return nil
		}
		m := make(map[string]any, len(v.StructValue.Fields))
		for k, item := range v.StructValue.Fields {
			m[k] = qdrantValue(item)
		}
		return m
	default:
		return value
	}
}

// Ensure QdrantProvider implements Provider.
var _ Provider = (*QdrantProvider)(nil)
