// Package vecstore defines the boundary to the persistent vector index.
// The index itself is an external collaborator; this package only fixes
// the contract the pipeline depends on.
package vecstore

import (
	"context"
	"errors"
)

// ErrUnavailable reports a vector store failure. The pipeline never
// retries it; retries, if any, belong to the store's own client.
var ErrUnavailable = errors.New("vector store unavailable")

// ErrReservedMetadata reports caller metadata using a key the store or
// the pipeline reserves for its own payload fields.
var ErrReservedMetadata = errors.New("reserved metadata key")

// Document is an embedded chunk ready for persistence.
type Document struct {
	ID       string
	Scope    string // opaque owner scope partitioning the collection
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// Candidate is one nearest-neighbor row. Distance is cosine distance:
// lower means more similar.
type Candidate struct {
	ID       string
	Distance float32
	Content  string
	Metadata map[string]string
}

// NearestQuery describes a nearest-neighbor lookup.
type NearestQuery struct {
	Vector []float32
	Scope  string
	Limit  int
	// Filter holds exact-match predicates over stored metadata, all of
	// which must hold (conjunctive).
	Filter map[string]string
}

// Repository provides vector persistence and nearest-neighbor search.
type Repository interface {
	// Upsert inserts or updates documents.
	Upsert(ctx context.Context, docs []Document) error
	// Nearest returns up to q.Limit candidates ordered by ascending
	// distance, restricted to q.Scope and q.Filter.
	Nearest(ctx context.Context, q NearestQuery) ([]Candidate, error)
	// Close releases resources.
	Close() error
}
