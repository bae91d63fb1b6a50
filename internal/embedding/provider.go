// Package embedding turns text into fixed-length vectors through an
// external provider, with batching and fault-tolerant retries.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the boundary to an external embedding service. A provider
// returns one vector per input text, in input order, and wraps every
// failure in a *ProviderError so retryability is decided exactly once.
type Provider interface {
	// CreateEmbeddings embeds texts with the given model.
	CreateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// FailureClass is a closed classification of provider failures.
type FailureClass int

const (
	// FailureFatal covers auth errors, bad requests, and anything else
	// that retrying cannot fix.
	FailureFatal FailureClass = iota
	// FailureRateLimited is a rate-limit signal (HTTP 429).
	FailureRateLimited
	// FailureTransient is a transient server or connectivity failure.
	FailureTransient
)

// String implements fmt.Stringer.
func (c FailureClass) String() string {
	switch c {
	case FailureRateLimited:
		return "rate_limited"
	case FailureTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Retryable reports whether a failure of this class should re-enter the
// backoff loop.
func (c FailureClass) Retryable() bool {
	return c == FailureRateLimited || c == FailureTransient
}

// statusClasses maps provider HTTP status codes to failure classes.
// Codes absent from the table are fatal.
var statusClasses = map[int]FailureClass{
	429: FailureRateLimited,
	500: FailureTransient,
	502: FailureTransient,
	503: FailureTransient,
	504: FailureTransient,
}

// ClassifyStatus returns the failure class for a provider HTTP status.
func ClassifyStatus(code int) FailureClass {
	if class, ok := statusClasses[code]; ok {
		return class
	}
	return FailureFatal
}

// ProviderError is a provider failure tagged with its class, produced
// at the provider boundary.
type ProviderError struct {
	Class  FailureClass
	Status int // HTTP status if known, 0 otherwise
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error (%s, status %d): %v", e.Class, e.Status, e.Err)
	}
	return fmt.Sprintf("provider error (%s): %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class from an error chain. Unclassified
// errors are fatal.
func ClassOf(err error) FailureClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return FailureFatal
}
