package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension is the vector size of the local hash embedder.
const DefaultHashDimension = 256

// Hash is a local, deterministic embedder: a feature-hashed bag of words,
// L2-normalized. It needs no network or credential, which makes it the
// provider of choice for tests and offline runs. Texts sharing vocabulary
// score high under cosine similarity; it captures word overlap, not meaning.
type Hash struct {
	dimension int
}

// NewHash returns a hash embedder. dimension <= 0 selects the default.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &Hash{dimension: dimension}
}

func (h *Hash) Dimension() int {
	return h.dimension
}

func (h *Hash) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *Hash) embedOne(text string) []float32 {
	v := make([]float32, h.dimension)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		hasher := fnv.New32a()
		hasher.Write([]byte(tok))
		v[hasher.Sum32()%uint32(h.dimension)]++
	}

	// A text with no tokens still needs a direction under cosine.
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
