// Package chunker splits parsed document text into overlapping, size-bounded
// passages with source offsets. Splitting is deterministic: the same text and
// configuration always produce the same boundaries.
package chunker

import (
	"fmt"
	"unicode"

	"github.com/bull/docchat/internal/domain"
)

// Piece is one chunk of text with its rune offsets into the source.
type Piece struct {
	Text  string
	Start int
	End   int
}

// Chunker cuts text into windows of at most maxChars runes, with consecutive
// windows overlapping by exactly overlapChars runes. When a cut would land
// mid-sentence, the boundary is pulled back to the nearest paragraph break,
// sentence end, newline, or word gap inside a lookback window.
type Chunker struct {
	maxChars     int
	overlapChars int
	lookback     int
}

// New validates the configuration and returns a Chunker.
// maxChars must exceed overlapChars, which must be non-negative.
func New(maxChars, overlapChars int) (*Chunker, error) {
	if maxChars <= 0 || overlapChars < 0 || overlapChars >= maxChars {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d", domain.ErrInvalidConfig, maxChars, overlapChars)
	}
	lookback := maxChars / 4
	if lookback < 1 {
		lookback = 1
	}
	return &Chunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
		lookback:     lookback,
	}, nil
}

// Split cuts text into pieces covering the whole input with no gaps.
// Empty input yields no pieces rather than an error. Every piece except the
// last has exactly overlapChars runes in common with its successor.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var pieces []Piece
	start := 0
	for {
		end := start + c.maxChars
		if end >= n {
			pieces = append(pieces, Piece{Text: string(runes[start:n]), Start: start, End: n})
			return pieces
		}
		cut := c.snap(runes, start, end)
		pieces = append(pieces, Piece{Text: string(runes[start:cut]), Start: start, End: cut})
		start = cut - c.overlapChars
	}
}

// snap pulls the cut at end back to the best boundary in (floor, end].
// The floor guarantees forward progress: the next chunk's start must land
// strictly after the current one's.
func (c *Chunker) snap(runes []rune, start, end int) int {
	floor := end - c.lookback
	if min := start + c.overlapChars + 1; floor < min {
		floor = min
	}

	// Paragraph break: cut right after a blank line.
	for i := end - 1; i > floor; i-- {
		if runes[i-1] == '\n' && runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence end: terminal punctuation followed by whitespace.
	for i := end - 1; i >= floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	// Line break, then plain word gap.
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	// No clean boundary in the window: hard cut.
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
