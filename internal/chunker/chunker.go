// Package chunker splits raw text into bounded, overlapping chunks
// sized in model tokens.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig reports an unusable chunk size / overlap combination.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Chunk is a contiguous slice of source text prepared for embedding.
type Chunk struct {
	Index      int    // ordinal position within the source document, 0-based
	Text       string // non-empty content
	TokenCount int    // tokens in Text, measured by the splitter's Tokenizer
}

// Tokenizer counts model tokens in a piece of text. The same tokenizer
// drives both chunk sizing and the TokenCount stored on each chunk.
type Tokenizer interface {
	Count(text string) int
}

// Separators tried in order: paragraph, line, word, character.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter produces deterministic chunk sequences. It is stateless and
// safe for concurrent use.
type Splitter struct {
	tok Tokenizer
}

// New creates a Splitter backed by the given tokenizer.
func New(tok Tokenizer) *Splitter {
	return &Splitter{tok: tok}
}

// Split divides text into chunks of at most chunkSize tokens, with each
// chunk after the first carrying up to overlap trailing tokens of its
// predecessor. Identical input always yields identical output.
func (s *Splitter) Split(ctx context.Context, text string, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidConfig, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, chunkSize)
	}

	segments, err := s.split(ctx, text, separators, chunkSize, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = Chunk{Index: i, Text: seg, TokenCount: s.tok.Count(seg)}
	}
	return chunks, nil
}

// split recursively divides text using seps in order, merging pieces
// into segments that respect the token budget and carrying overlap
// pieces across segment boundaries.
func (s *Splitter) split(ctx context.Context, text string, seps []string, chunkSize, overlap int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Base case: the text already fits in one chunk.
	if s.tok.Count(text) <= chunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}, nil
		}
		return nil, nil
	}

	// Pick the first separator that actually occurs in the text. The
	// empty separator (character level) always applies and terminates.
	sep := seps[len(seps)-1]
	var finer []string
	for i, cand := range seps {
		if cand == "" {
			sep = cand
			finer = nil
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			finer = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep != "" {
		pieces = strings.Split(text, sep)
	} else {
		pieces = strings.Split(text, "")
	}

	var (
		segments   []string
		current    []string
		currentLen int
	)

	flush := func() error {
		merged := strings.Join(current, sep)
		if len(finer) > 0 && s.tok.Count(merged) > chunkSize {
			sub, err := s.split(ctx, merged, finer, chunkSize, overlap)
			if err != nil {
				return err
			}
			segments = append(segments, sub...)
			return nil
		}
		if trimmed := strings.TrimSpace(merged); trimmed != "" {
			segments = append(segments, trimmed)
		}
		return nil
	}

	sepLen := s.tok.Count(sep)
	for _, piece := range pieces {
		pieceLen := s.tok.Count(piece)

		if len(current) > 0 && currentLen+sepLen+pieceLen > chunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
			current, currentLen = trailingOverlap(current, s.tok, overlap)
		}

		current = append(current, piece)
		if currentLen > 0 {
			currentLen += sepLen
		}
		currentLen += pieceLen
	}

	if len(current) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// trailingOverlap returns the longest suffix of pieces whose combined
// token count does not exceed budget, preserving order.
func trailingOverlap(pieces []string, tok Tokenizer, budget int) ([]string, int) {
	var (
		keep  []string
		total int
	)
	for i := len(pieces) - 1; i >= 0; i-- {
		n := tok.Count(pieces[i])
		if total+n > budget {
			break
		}
		keep = append([]string{pieces[i]}, keep...)
		total += n
	}
	return keep, total
}
