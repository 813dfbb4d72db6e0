// Package chunker splits page text into overlapping pieces for indexing.
package chunker

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a recursive character text splitter. Lengths are counted in runes.
type Splitter struct {
	splitter textsplitter.RecursiveCharacter
}

// New creates a Splitter producing chunks of at most size runes, carrying up to
// overlap runes from the end of one chunk into the next.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Split breaks text into chunks. Whitespace-only chunks are dropped.
func (s *Splitter) Split(text string) []string {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		slog.Warn("failed to split text", "error", err)
		return nil
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}
