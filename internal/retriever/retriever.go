// Package retriever ranks stored chunks against a query by cosine
// similarity, with metadata filtering and a minimum-score cutoff.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maiahq/vectordb/internal/vecstore"
)

// ErrInvalidArgument reports caller misuse; it is never retried.
var ErrInvalidArgument = errors.New("invalid search argument")

// Accepted range for the result cap.
const (
	MinResults = 1
	MaxResults = 100
)

// SearchResult is one ranked candidate. Score is 1 - Distance, so
// higher means more similar.
type SearchResult struct {
	ChunkID  string
	Content  string
	Distance float32
	Score    float32
	Metadata map[string]string
}

// Params describes one search call.
type Params struct {
	Query      string
	Scope      string
	MaxResults int
	// Filter holds exact-match metadata predicates, all of which must
	// hold on a candidate's stored metadata.
	Filter map[string]string
	// ScoreThreshold, when set, drops every candidate whose score falls
	// below it. Nil disables the cutoff.
	ScoreThreshold *float32
}

// Embedder produces the query vector. *embedding.Client satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Retriever combines query embedding with a nearest-neighbor lookup.
// It holds no per-call state and is safe for concurrent use.
type Retriever struct {
	embedder Embedder
	store    vecstore.Repository
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Retriever.
func New(embedder Embedder, store vecstore.Repository, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("github.com/maiahq/vectordb/internal/retriever"),
	}
}

// Search embeds the query, delegates the nearest-neighbor lookup, and
// derives scores. Results keep the store's ascending-distance order;
// ties stay in the store's own stable order. Failures from the embedder
// and the store propagate unchanged; nothing is retried here.
func (r *Retriever) Search(ctx context.Context, p Params) ([]SearchResult, error) {
	if p.MaxResults < MinResults || p.MaxResults > MaxResults {
		return nil, fmt.Errorf("%w: max results %d outside [%d, %d]", ErrInvalidArgument, p.MaxResults, MinResults, MaxResults)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}

	ctx, span := r.tracer.Start(ctx, "retriever.search",
		trace.WithAttributes(
			attribute.Int("search.max_results", p.MaxResults),
			attribute.Int("search.filter_keys", len(p.Filter)),
		))
	defer span.End()

	vectors, err := r.embedder.EmbedBatch(ctx, []string{p.Query}, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	candidates, err := r.store.Nearest(ctx, vecstore.NearestQuery{
		Vector: vectors[0],
		Scope:  p.Scope,
		Limit:  p.MaxResults,
		Filter: p.Filter,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		score := 1 - c.Distance
		if p.ScoreThreshold != nil && score < *p.ScoreThreshold {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:  c.ID,
			Content:  c.Content,
			Distance: c.Distance,
			Score:    score,
			Metadata: c.Metadata,
		})
	}

	r.logger.Debug("search complete",
		"candidates", len(candidates),
		"results", len(results),
	)
	return results, nil
}
