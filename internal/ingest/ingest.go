// Package ingest runs the document-to-vector pipeline: split, embed,
// persist.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maiahq/vectordb/internal/chunker"
	"github.com/maiahq/vectordb/internal/vecstore"
)

// Payload keys the pipeline adds next to caller metadata.
const (
	metaChunkIndex = "chunk_index"
	metaTokenCount = "token_count"
)

// reservedMetaKeys may not appear in caller metadata: the first two
// belong to the pipeline, the rest to the vector store's payload.
var reservedMetaKeys = []string{metaChunkIndex, metaTokenCount, "content", "scope"}

// Embedder turns chunk texts into vectors. *embedding.Client satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Options configures one ingestion call.
type Options struct {
	ChunkSize int
	Overlap   int
	Model     string // empty means the embedder's default
}

// Result summarizes a completed ingestion.
type Result struct {
	ChunkIDs   []string
	TokenCount int
}

// Pipeline chunks a document, embeds the chunks in order, and hands the
// (chunk, vector) pairs to the vector store. A document is persisted
// entirely or not at all.
type Pipeline struct {
	splitter *chunker.Splitter
	embedder Embedder
	store    vecstore.Repository
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Pipeline.
func New(splitter *chunker.Splitter, embedder Embedder, store vecstore.Repository, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("github.com/maiahq/vectordb/internal/ingest"),
	}
}

// IngestText splits text, embeds every chunk, and upserts the results
// under the given owner scope. Caller metadata is attached to each
// chunk unchanged, alongside the chunk's index and token count.
func (p *Pipeline) IngestText(ctx context.Context, scope, text string, meta map[string]string, opts Options) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.text",
		trace.WithAttributes(attribute.String("ingest.scope", scope)))
	defer span.End()

	for _, k := range reservedMetaKeys {
		if _, ok := meta[k]; ok {
			err := fmt.Errorf("%w: %q", vecstore.ErrReservedMetadata, k)
			span.RecordError(err)
			return nil, err
		}
	}

	chunks, err := p.splitter.Split(ctx, text, opts.ChunkSize, opts.Overlap)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(chunks) == 0 {
		return &Result{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts, opts.Model)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	result := &Result{ChunkIDs: make([]string, len(chunks))}
	docs := make([]vecstore.Document, len(chunks))
	for i, c := range chunks {
		docMeta := make(map[string]string, len(meta)+2)
		for k, v := range meta {
			docMeta[k] = v
		}
		docMeta[metaChunkIndex] = strconv.Itoa(c.Index)
		docMeta[metaTokenCount] = strconv.Itoa(c.TokenCount)

		id := uuid.NewString()
		docs[i] = vecstore.Document{
			ID:       id,
			Scope:    scope,
			Content:  c.Text,
			Vector:   vectors[i],
			Metadata: docMeta,
		}
		result.ChunkIDs[i] = id
		result.TokenCount += c.TokenCount
	}

	if err := p.store.Upsert(ctx, docs); err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.logger.Info("document ingested",
		"scope", scope,
		"chunks", len(chunks),
		"tokens", result.TokenCount,
	)
	return result, nil
}
