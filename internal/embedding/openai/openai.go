// Package openai adapts the OpenAI embeddings API to the
// embedding.Provider boundary.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/maiahq/vectordb/internal/embedding"
)

// Client implements embedding.Provider for OpenAI-compatible endpoints.
type Client struct {
	api *gopenai.Client
}

// New creates a provider. An empty baseURL targets api.openai.com.
func New(apiKey, baseURL string) *Client {
	cfg := gopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: gopenai.NewClientWithConfig(cfg)}
}

func (c *Client) Name() string { return "openai" }

// CreateEmbeddings embeds texts and returns one vector per input, in
// input order. Failures are classified here, once, so callers only ever
// switch on embedding.FailureClass.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, gopenai.EmbeddingRequest{
		Input: texts,
		Model: gopenai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &embedding.ProviderError{
			Class: embedding.FailureFatal,
			Err:   fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	// The API reports each embedding's input index; order by it rather
	// than trusting response order.
	data := make([]gopenai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// classify tags an OpenAI client error with its failure class. Rate
// limits and 5xx responses are retryable, connectivity failures are
// transient, everything else is fatal. Context cancellation passes
// through untagged so it stays distinct from service failures.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		return &embedding.ProviderError{
			Class:  embedding.ClassifyStatus(apiErr.HTTPStatusCode),
			Status: apiErr.HTTPStatusCode,
			Err:    err,
		}
	}

	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		return &embedding.ProviderError{
			Class:  embedding.ClassifyStatus(reqErr.HTTPStatusCode),
			Status: reqErr.HTTPStatusCode,
			Err:    err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &embedding.ProviderError{Class: embedding.FailureTransient, Err: err}
	}

	return &embedding.ProviderError{Class: embedding.FailureFatal, Err: err}
}

var _ embedding.Provider = (*Client)(nil)
