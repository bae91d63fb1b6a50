package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maiahq/vectordb/internal/embedding"
)

func serve(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL+"/v1")
}

func TestCreateEmbeddings_OrdersByIndex(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Indexes deliberately out of response order.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [2.0, 2.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 1.0]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	})

	vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"}, "text-embedding-3-small")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1.0 || vectors[1][0] != 2.0 {
		t.Fatalf("vectors not ordered by input index: %v", vectors)
	}
}

func TestCreateEmbeddings_RateLimitIsClassified(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	})

	_, err := c.CreateEmbeddings(context.Background(), []string{"a"}, "text-embedding-3-small")
	var pe *embedding.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *embedding.ProviderError, got %v", err)
	}
	if pe.Class != embedding.FailureRateLimited || pe.Status != http.StatusTooManyRequests {
		t.Fatalf("expected rate_limited/429, got %v/%d", pe.Class, pe.Status)
	}
}

func TestCreateEmbeddings_AuthFailureIsFatal(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
	})

	_, err := c.CreateEmbeddings(context.Background(), []string{"a"}, "text-embedding-3-small")
	var pe *embedding.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *embedding.ProviderError, got %v", err)
	}
	if pe.Class != embedding.FailureFatal {
		t.Fatalf("expected fatal class, got %v", pe.Class)
	}
}

func TestCreateEmbeddings_ServerErrorIsTransient(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	})

	_, err := c.CreateEmbeddings(context.Background(), []string{"a"}, "text-embedding-3-small")
	if got := embedding.ClassOf(err); got != embedding.FailureTransient {
		t.Fatalf("expected transient class, got %v", got)
	}
}

func TestCreateEmbeddings_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listens anymore
	c := New("test-key", srv.URL+"/v1")

	_, err := c.CreateEmbeddings(context.Background(), []string{"a"}, "text-embedding-3-small")
	if got := embedding.ClassOf(err); got != embedding.FailureTransient {
		t.Fatalf("expected transient class, got %v", got)
	}
}
