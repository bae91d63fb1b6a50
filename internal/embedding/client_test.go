package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeProvider scripts per-call outcomes and records call sizes.
type fakeProvider struct {
	batchSizes []int
	errs       []error // errs[i] is returned on call i; nil means success
	dim        int
}

func (f *fakeProvider) CreateEmbeddings(_ context.Context, texts []string, _ string) ([][]float32, error) {
	call := len(f.batchSizes)
	f.batchSizes = append(f.batchSizes, len(texts))
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
		out[i][0] = float32(i) // marks input position for ordering checks
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestClient(p Provider) (*Client, *[]time.Duration) {
	c := NewClient(p, Config{
		Model:        "test-model",
		MaxBatchSize: 2048,
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}, nil)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestEmbedBatch_EmptyInputMakesNoCalls(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newTestClient(p)
	vectors, err := c.EmbedBatch(context.Background(), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 0 {
		t.Fatalf("expected no vectors, got %d", len(vectors))
	}
	if len(p.batchSizes) != 0 {
		t.Fatalf("expected zero provider calls, got %d", len(p.batchSizes))
	}
}

func TestEmbedBatch_PartitionsAtBatchCap(t *testing.T) {
	p := &fakeProvider{}
	c, _ := newTestClient(p)

	texts := make([]string, 2058)
	for i := range texts {
		texts[i] = "t"
	}
	vectors, err := c.EmbedBatch(context.Background(), texts, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2058 {
		t.Fatalf("expected 2058 vectors, got %d", len(vectors))
	}
	if len(p.batchSizes) != 2 {
		t.Fatalf("expected exactly 2 provider calls, got %d", len(p.batchSizes))
	}
	if p.batchSizes[0] != 2048 || p.batchSizes[1] != 10 {
		t.Fatalf("unexpected partitioning: %v", p.batchSizes)
	}
	// The fake marks vector[0] with the position inside its batch, so
	// original order across the partition boundary is observable.
	if vectors[0][0] != 0 || vectors[2047][0] != 2047 || vectors[2048][0] != 0 || vectors[2057][0] != 9 {
		t.Fatal("vectors are not in input order across batches")
	}
}

func TestEmbedBatch_RetriesRateLimitThenSucceeds(t *testing.T) {
	rateLimited := &ProviderError{Class: FailureRateLimited, Status: 429, Err: errors.New("too many requests")}
	p := &fakeProvider{errs: []error{rateLimited, rateLimited, nil}}
	c, slept := newTestClient(p)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if len(p.batchSizes) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(p.batchSizes))
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("expected backoff %v, got %v", want, *slept)
	}
}

func TestEmbedBatch_FatalFailureDoesNotRetry(t *testing.T) {
	fatal := &ProviderError{Class: FailureFatal, Status: 401, Err: errors.New("invalid api key")}
	p := &fakeProvider{errs: []error{fatal}}
	c, slept := newTestClient(p)

	_, err := c.EmbedBatch(context.Background(), []string{"a"}, "")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if len(p.batchSizes) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(p.batchSizes))
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff, got %v", *slept)
	}
}

func TestEmbedBatch_ExhaustionSurfacesLastError(t *testing.T) {
	transient := &ProviderError{Class: FailureTransient, Status: 503, Err: errors.New("service unavailable")}
	p := &fakeProvider{errs: []error{transient, transient, transient, transient, transient}}
	c, slept := newTestClient(p)

	_, err := c.EmbedBatch(context.Background(), []string{"a"}, "")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != 503 {
		t.Fatalf("expected the last provider error in the chain, got %v", err)
	}
	if len(p.batchSizes) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(p.batchSizes))
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected backoff %v, got %v", want, *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("expected backoff %v, got %v", want, *slept)
		}
	}
}

func TestEmbedBatch_NoPartialResultsAcrossBatches(t *testing.T) {
	// First batch succeeds, second batch fails fatally: the caller gets
	// an error and no vectors at all.
	fatal := &ProviderError{Class: FailureFatal, Status: 400, Err: errors.New("bad request")}
	p := &fakeProvider{errs: []error{nil, fatal}}
	c, _ := newTestClient(p)

	texts := make([]string, 2049)
	for i := range texts {
		texts[i] = "t"
	}
	vectors, err := c.EmbedBatch(context.Background(), texts, "")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if vectors != nil {
		t.Fatal("expected no partial vectors on failure")
	}
}

func TestEmbedBatch_CancelledDuringBackoff(t *testing.T) {
	rateLimited := &ProviderError{Class: FailureRateLimited, Status: 429, Err: errors.New("too many requests")}
	p := &fakeProvider{errs: []error{rateLimited, rateLimited}}
	c, _ := newTestClient(p)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.EmbedBatch(ctx, []string{"a"}, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrEmbeddingService) {
		t.Fatal("cancellation must stay distinct from service failure")
	}
}

func TestEmbedBatch_MismatchedVectorCountFails(t *testing.T) {
	p := &shortProvider{}
	c, _ := newTestClient(p)
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"}, "")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}

// shortProvider drops one vector to violate the 1:1 contract.
type shortProvider struct{}

func (shortProvider) CreateEmbeddings(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts)-1; i++ {
		out = append(out, []float32{1})
	}
	return out, nil
}

func (shortProvider) Name() string { return "short" }
