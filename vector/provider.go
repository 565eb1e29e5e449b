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

// Package vector provides read-only access to the vector stores that hold
// indexed Guru knowledge. Providers expose nearest-neighbor search and
// exact-match fetch over named collections.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// Record is a single stored point returned by a provider.
type Record struct {
	// ID is the store-assigned identifier, unique within a collection.
	ID string

	// Text is the stored passage content.
	Text string

	// Distance is the nearest-neighbor distance from the query vector
	// (lower = closer). Zero for records returned by Fetch.
	Distance float32

	// Metadata holds the record's semantic metadata as stored.
	Metadata map[string]any
}

// Provider is a read-only vector store client.
//
// Both operations must return a CollectionNotFoundError (not a generic
// connectivity error) when the named collection does not exist, so callers
// can degrade to empty results instead of treating the store as down.
type Provider interface {
	// Search returns the nearest neighbors of vector in the collection,
	// optionally restricted by filter. fields selects which stored fields
	// are returned (nil = provider default: text and metadata).
	Search(ctx context.Context, collection string, vector []float32, limit int, filter *Filter, fields []string) ([]Record, error)

	// Fetch returns records matching filter exactly, without ranking.
	// Used for sibling-split and linked-record retrieval.
	Fetch(ctx context.Context, collection string, filter *Filter, limit int, fields []string) ([]Record, error)

	// Name returns the provider name for logging.
	Name() string

	// Close releases provider resources.
	Close() error
}

// CollectionNotFoundError reports a search or fetch against a collection
// that does not exist in the store.
type CollectionNotFoundError struct {
	Collection string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection not found: %s", e.Collection)
}

// IsCollectionNotFound reports whether err is a CollectionNotFoundError.
func IsCollectionNotFound(err error) bool {
	var nf *CollectionNotFoundError
	return errors.As(err, &nf)
}
