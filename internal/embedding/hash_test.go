package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_OneVectorPerTextInOrder(t *testing.T) {
	h := NewHash(64)

	vectors, err := h.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 64)
	}
}

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(0)
	assert.Equal(t, DefaultHashDimension, h.Dimension())

	a, err := h.Embed(context.Background(), []string{"compaction strategies in storage engines"})
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), []string{"compaction strategies in storage engines"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])
}

func TestHash_Normalized(t *testing.T) {
	h := NewHash(128)

	vectors, err := h.Embed(context.Background(), []string{"some words to hash"})
	require.NoError(t, err)

	var sum float64
	for _, x := range vectors[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5, "vector should be L2-normalized")
}

func TestHash_EmptyTextIsNotDegenerate(t *testing.T) {
	h := NewHash(32)

	vectors, err := h.Embed(context.Background(), []string{"", "   ", "!!!"})
	require.NoError(t, err)
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.Greater(t, sum, 0.0, "vector %d must not be the zero vector", i)
	}
}

func TestHash_SharedVocabularyScoresHigher(t *testing.T) {
	h := NewHash(256)
	ctx := context.Background()

	vectors, err := h.Embed(ctx, []string{
		"What is the capital of France?",
		"Paris is the capital of France.",
		"It has a population of over two million.",
	})
	require.NoError(t, err)

	query, related, unrelated := vectors[0], vectors[1], vectors[2]
	assert.Greater(t, dot(query, related), dot(query, unrelated),
		"text sharing the query's vocabulary should score higher")
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
