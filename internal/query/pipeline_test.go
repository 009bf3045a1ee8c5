package query

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/domain"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/ingest"
	"github.com/bull/docchat/internal/parser"
)

type testEnv struct {
	ingest   *ingest.Pipeline
	query    *Pipeline
	store    docstore.Store
	embedder embedding.Embedder
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	embedder := embedding.NewHash(128)
	idx, err := index.NewMemory(embedder.Dimension())
	require.NoError(t, err)
	ch, err := chunker.New(40, 10)
	require.NoError(t, err)
	store := docstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Logger = logger

	return &testEnv{
		ingest:   ingest.NewPipeline(parser.NewRegistry(), ch, embedder, idx, store, ingest.Config{Logger: logger}),
		query:    NewPipeline(embedder, idx, store, cfg),
		store:    store,
		embedder: embedder,
	}
}

func (e *testEnv) mustIngest(t *testing.T, filename, text string) *domain.Document {
	t.Helper()
	doc, err := e.ingest.Ingest(context.Background(), ingest.Upload{
		Filename: filename,
		MIMEType: "text/plain",
		Data:     []byte(text),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, doc.Status)
	return doc
}

func TestRetrieve_FindsCapitalPassage(t *testing.T) {
	env := newTestEnv(t, Config{})
	doc := env.mustIngest(t, "paris.txt",
		"Paris is the capital of France. The city is known for the Eiffel Tower.")

	passages, err := env.query.Retrieve(context.Background(), Request{
		Question: "What is the capital of France?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	assert.Equal(t, 1, passages[0].Rank)
	assert.Equal(t, doc.ID, passages[0].DocumentID)
	assert.Contains(t, passages[0].Text, "capital of France")

	// Ranks are contiguous from 1 and scores never increase.
	for i, p := range passages {
		assert.Equal(t, i+1, p.Rank)
		if i > 0 {
			assert.LessOrEqual(t, p.Score, passages[i-1].Score)
		}
	}
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	env := newTestEnv(t, Config{})

	passages, err := env.query.Retrieve(context.Background(), Request{Question: "anything?"})
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieve_SkipsDocumentsStillIngesting(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	ready := env.mustIngest(t, "ready.txt", "Paris is the capital of France.")

	// A document mid-ingestion must not appear in unscoped results even if
	// its text would match better.
	stuck := &domain.Document{
		ID:        "stuck-doc",
		Filename:  "stuck.txt",
		Status:    domain.StatusChunking,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.store.Put(ctx, stuck))

	passages, err := env.query.Retrieve(ctx, Request{Question: "capital of France?"})
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	for _, p := range passages {
		assert.Equal(t, ready.ID, p.DocumentID)
	}
}

func TestRetrieve_ScopedToNotReadyDocument(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	doc := &domain.Document{
		ID:        "doc-1",
		Filename:  "pending.txt",
		Status:    domain.StatusEmbedding,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, env.store.Put(ctx, doc))

	_, err := env.query.Retrieve(ctx, Request{
		Question:    "anything?",
		DocumentIDs: []string{"doc-1"},
	})
	assert.ErrorIs(t, err, domain.ErrDocumentNotReady)
}

func TestRetrieve_ScopedToMissingDocument(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := env.query.Retrieve(context.Background(), Request{
		Question:    "anything?",
		DocumentIDs: []string{"no-such-doc"},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetrieve_ScopeRestrictsResults(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mustIngest(t, "paris.txt", "Paris is the capital of France.")
	rome := env.mustIngest(t, "rome.txt", "Rome is the capital of Italy.")

	passages, err := env.query.Retrieve(context.Background(), Request{
		Question:    "What is the capital?",
		TopK:        10,
		DocumentIDs: []string{rome.ID},
	})
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	for _, p := range passages {
		assert.Equal(t, rome.ID, p.DocumentID)
	}
}

func TestRetrieve_InvalidRequests(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.query.Retrieve(ctx, Request{Question: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = env.query.Retrieve(ctx, Request{Question: "fine?", TopK: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRetrieve_MinScoreFiltersWeakMatches(t *testing.T) {
	// A threshold above any attainable cosine similarity filters everything.
	env := newTestEnv(t, Config{MinScore: 1.1, HasMinScore: true})
	env.mustIngest(t, "paris.txt", "Paris is the capital of France.")

	passages, err := env.query.Retrieve(context.Background(), Request{Question: "capital of France?"})
	require.NoError(t, err)
	assert.Empty(t, passages)
}

// fixedEmbedder returns the same vector for every input, letting a test pin
// exact similarity scores.
type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f fixedEmbedder) Dimension() int { return len(f.vec) }

func TestRetrieve_NoThresholdKeepsNegativeScores(t *testing.T) {
	ctx := context.Background()
	idx, err := index.NewMemory(2)
	require.NoError(t, err)
	store := docstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	doc := &domain.Document{
		ID:        "doc-1",
		Filename:  "opposite.txt",
		Status:    domain.StatusReady,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, doc))
	require.NoError(t, idx.Upsert(ctx, "c-1", "doc-1", "opposite direction", []float32{-1, 0}))

	embedder := fixedEmbedder{vec: []float32{1, 0}}

	// An unconfigured threshold must keep everything, including passages
	// with negative cosine similarity.
	pipeline := NewPipeline(embedder, idx, store, Config{Logger: logger})
	passages, err := pipeline.Retrieve(ctx, Request{Question: "anything?"})
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.InDelta(t, -1.0, float64(passages[0].Score), 1e-6)

	// An explicit threshold of zero does filter it.
	pipeline = NewPipeline(embedder, idx, store, Config{MinScore: 0, HasMinScore: true, Logger: logger})
	passages, err = pipeline.Retrieve(ctx, Request{Question: "anything?"})
	require.NoError(t, err)
	assert.Empty(t, passages)
}
