// Package tokenizer provides model-consistent token counting backed by
// tiktoken. The same encoding is used for chunk sizing and for the token
// counts persisted with each chunk.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens using the BPE encoding of a specific model.
// The encoding is loaded once at construction and is safe for
// concurrent use.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// ForModel loads the encoding matching the given model name
// (e.g. "text-embedding-3-small").
func ForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("loading encoding for model %q: %w", model, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
