package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/maiahq/vectordb/internal/chunker"
	"github.com/maiahq/vectordb/internal/config"
	"github.com/maiahq/vectordb/internal/embedding"
	"github.com/maiahq/vectordb/internal/embedding/openai"
	"github.com/maiahq/vectordb/internal/ingest"
	"github.com/maiahq/vectordb/internal/metrics"
	"github.com/maiahq/vectordb/internal/observability"
	"github.com/maiahq/vectordb/internal/retriever"
	"github.com/maiahq/vectordb/internal/tokenizer"
	"github.com/maiahq/vectordb/internal/vecstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "vectordb",
		Short: "Document-to-vector retrieval pipeline",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/vectordb.yaml", "Config file path")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the vector collection if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), configPath)
		},
	}

	var (
		scope     string
		chunkSize int
		overlap   int
		metaPairs []string
		jsonOut   bool
	)

	ingestCmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Chunk, embed, and store documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, scope, args, chunkSize, overlap, metaPairs, jsonOut)
		},
	}
	ingestCmd.Flags().StringVar(&scope, "store", "", "Owner scope the documents belong to")
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Max tokens per chunk (0 = config default)")
	ingestCmd.Flags().IntVar(&overlap, "overlap", -1, "Overlap tokens between chunks (-1 = config default)")
	ingestCmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "Metadata attached to every chunk (key=value, repeatable)")
	ingestCmd.Flags().BoolVar(&jsonOut, "json", false, "Output the ingestion report as JSON")
	_ = ingestCmd.MarkFlagRequired("store")

	var (
		maxResults  int
		filterPairs []string
		threshold   float64
	)

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank stored chunks against a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t *float32
			if cmd.Flags().Changed("threshold") {
				f := float32(threshold)
				t = &f
			}
			return runSearch(cmd.Context(), configPath, scope, args[0], maxResults, filterPairs, t, jsonOut)
		},
	}
	searchCmd.Flags().StringVar(&scope, "store", "", "Owner scope to search within")
	searchCmd.Flags().IntVar(&maxResults, "max-results", 10, "Maximum number of results (1-100)")
	searchCmd.Flags().StringArrayVar(&filterPairs, "filter", nil, "Exact-match metadata predicate (key=value, repeatable)")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score")
	searchCmd.Flags().BoolVar(&jsonOut, "json", false, "Output results as JSON")
	_ = searchCmd.MarkFlagRequired("store")

	rootCmd.AddCommand(initCmd, ingestCmd, searchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired pipeline components.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracing   *observability.TracerProvider
	store     *qdrant.Repository
	embedder  *embedding.Client
	splitter  *chunker.Splitter
	pipeline  *ingest.Pipeline
	retriever *retriever.Retriever
}

// newApp constructs every component once; clients are shared, never
// mutated per call.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "vectordb",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	store, err := qdrant.New(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.ForModel(cfg.Embedding.Model)
	if err != nil {
		return nil, err
	}

	provider := openai.New(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	embedder := embedding.NewClient(provider, embedding.Config{
		Model:        cfg.Embedding.Model,
		MaxBatchSize: cfg.Embedding.BatchSize,
		MaxAttempts:  cfg.Embedding.MaxAttempts,
		InitialDelay: cfg.Embedding.InitialDelay,
		MaxDelay:     cfg.Embedding.MaxDelay,
	}, logger)

	splitter := chunker.New(tok)

	return &app{
		cfg:       cfg,
		logger:    logger,
		tracing:   tracing,
		store:     store,
		embedder:  embedder,
		splitter:  splitter,
		pipeline:  ingest.New(splitter, embedder, store, logger),
		retriever: retriever.New(embedder, store, logger),
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", "error", err)
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("shutting down tracing", "error", err)
	}
}

func runInit(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.store.EnsureCollection(ctx, a.cfg.Embedding.Dimension); err != nil {
		return err
	}
	fmt.Printf("Collection %q ready (dimension %d)\n", a.cfg.Vector.Collection, a.cfg.Embedding.Dimension)
	return nil
}

func runIngest(ctx context.Context, configPath, scope string, files []string, chunkSize, overlap int, metaPairs []string, jsonOut bool) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if chunkSize <= 0 {
		chunkSize = a.cfg.Chunking.ChunkSize
	}
	if overlap < 0 {
		overlap = a.cfg.Chunking.Overlap
	}
	meta, err := parsePairs(metaPairs)
	if err != nil {
		return err
	}

	report := metrics.New(scope)
	for _, path := range files {
		text, err := readDocument(path)
		if err != nil {
			report.AddError(err)
			continue
		}

		docMeta := make(map[string]string, len(meta)+1)
		for k, v := range meta {
			docMeta[k] = v
		}
		docMeta["filename"] = filepath.Base(path)

		res, err := a.pipeline.IngestText(ctx, scope, text, docMeta, ingest.Options{
			ChunkSize: chunkSize,
			Overlap:   overlap,
		})
		if err != nil {
			report.AddError(fmt.Errorf("ingesting %s: %w", path, err))
			continue
		}
		report.AddDocument(len(res.ChunkIDs), res.TokenCount)
	}
	report.Finish()

	if jsonOut {
		if err := report.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		report.PrintSummary(os.Stdout)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d of %d documents failed", len(report.Errors), len(files))
	}
	return nil
}

func runSearch(ctx context.Context, configPath, scope, query string, maxResults int, filterPairs []string, threshold *float32, jsonOut bool) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	filter, err := parsePairs(filterPairs)
	if err != nil {
		return err
	}

	results, err := a.retriever.Search(ctx, retriever.Params{
		Query:          query,
		Scope:          scope,
		MaxResults:     maxResults,
		Filter:         filter,
		ScoreThreshold: threshold,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. [%.4f] %s\n", i+1, r.Score, firstLine(r.Content))
		for k, v := range r.Metadata {
			fmt.Printf("      %s=%s\n", k, v)
		}
	}
	return nil
}

// readDocument reads a plain-text document. Only .txt and .md are
// accepted; anything else needs extraction upstream.
func readDocument(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".txt" && ext != ".md" {
		return "", fmt.Errorf("unsupported file type %q: only .txt and .md", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
