package chunk

import (
	"errors"
	"unicode/utf8"
)

// DefaultSize is the chunk size in characters used when the caller has no
// preference. It keeps a chunk plus prompt well inside common context windows.
const DefaultSize = 3000

var ErrInvalidSize = errors.New("chunk size must be positive")

// Chunk is a contiguous slice of the source text.
type Chunk struct {
	// Index is the 0-based position of the chunk.
	Index int
	// Text holds at most size characters of the source.
	Text string
	// Total is the number of chunks the source was split into.
	Total int
}

// Split cuts text into consecutive chunks of size characters (Unicode code
// points). Boundaries are purely positional; the last chunk may be shorter.
// Empty text yields no chunks.
func Split(text string, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	if text == "" {
		return nil, nil
	}

	total := Count(text, size)
	chunks := make([]Chunk, 0, total)

	start := 0
	runes := 0
	for i := range text {
		if runes == size {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: text[start:i], Total: total})
			start = i
			runes = 0
		}
		runes++
	}
	chunks = append(chunks, Chunk{Index: len(chunks), Text: text[start:], Total: total})

	return chunks, nil
}

// Count returns how many chunks Split produces for text and size.
func Count(text string, size int) int {
	if size <= 0 {
		return 0
	}

	n := utf8.RuneCountInString(text)

	return (n + size - 1) / size
}
