package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maiahq/vectordb/internal/observability"
)

// ErrEmbeddingService is the terminal error surfaced after retries are
// exhausted or a non-retryable provider failure occurs.
var ErrEmbeddingService = errors.New("embedding service failure")

// Config configures batching and retry behavior.
type Config struct {
	Model        string        // default embedding model
	MaxBatchSize int           // provider items-per-call limit
	MaxAttempts  int           // attempts per batch, including the first
	InitialDelay time.Duration // backoff before the second attempt
	MaxDelay     time.Duration // cap on the doubling backoff
}

// DefaultConfig returns the provider limits the OpenAI embeddings API
// documents, with the retry envelope used in production.
func DefaultConfig() Config {
	return Config{
		Model:        "text-embedding-3-small",
		MaxBatchSize: 2048,
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Client batches texts through a Provider, absorbing rate-limit and
// transient failures with exponential backoff. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger

	// sleep waits for d or until ctx is done. Injected in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client around the given provider.
func NewClient(provider Provider, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig().InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// EmbedBatch embeds texts with the given model (empty means the
// configured default). The result preserves input order across internal
// batch partitioning: result[i] corresponds to texts[i]. The call either
// fully succeeds or fully fails; no partial vectors are returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if model == "" {
		model = c.cfg.Model
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.MaxBatchSize {
		end := min(start+c.cfg.MaxBatchSize, len(texts))
		batch, err := c.embedWithRetry(ctx, texts[start:end], model)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedWithRetry issues one provider call with exponential backoff on
// retryable failures. Delays double from InitialDelay; the wait yields
// to the scheduler and aborts as soon as ctx is done.
func (c *Client) embedWithRetry(ctx context.Context, batch []string, model string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, c.provider.Name(), model, len(batch))
	defer span.End()

	var lastErr error
	delay := c.cfg.InitialDelay

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
		}

		vectors, err := c.provider.CreateEmbeddings(ctx, batch, model)
		if err == nil {
			return c.checkShape(vectors, len(batch))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		class := ClassOf(err)
		if !class.Retryable() {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
		}
		lastErr = err
		c.logger.Warn("retryable embedding failure",
			"provider", c.provider.Name(),
			"class", class.String(),
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"next_delay", delay,
		)
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("%w: %d attempts exhausted: %w", ErrEmbeddingService, c.cfg.MaxAttempts, lastErr)
}

// checkShape validates the provider kept its ordering and length
// contract: one vector per input, all of equal dimension.
func (c *Client) checkShape(vectors [][]float32, want int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs", ErrEmbeddingService, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: provider returned empty vector at index %d", ErrEmbeddingService, i)
		}
		if len(v) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: inconsistent vector dimensions (%d vs %d)", ErrEmbeddingService, len(v), len(vectors[0]))
		}
	}
	return vectors, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
