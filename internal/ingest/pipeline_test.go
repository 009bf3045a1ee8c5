package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/domain"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/parser"
)

type testEnv struct {
	pipeline *Pipeline
	store    docstore.Store
	index    *index.Memory
	embedder embedding.Embedder
}

func newTestEnv(t *testing.T, embedder embedding.Embedder, cfg Config) *testEnv {
	t.Helper()

	if embedder == nil {
		embedder = embedding.NewHash(64)
	}
	idx, err := index.NewMemory(embedder.Dimension())
	require.NoError(t, err)
	ch, err := chunker.New(80, 10)
	require.NoError(t, err)
	store := docstore.NewMemory()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{
		pipeline: NewPipeline(parser.NewRegistry(), ch, embedder, idx, store, cfg),
		store:    store,
		index:    idx,
		embedder: embedder,
	}
}

// countVectors searches with a wide net scoped to one document.
func (e *testEnv) countVectors(t *testing.T, documentID string) int {
	t.Helper()
	vec, err := e.embedder.Embed(context.Background(), []string{"anything at all"})
	require.NoError(t, err)
	results, err := e.index.Search(context.Background(), vec[0], 1000, &index.Filter{
		DocumentIDs: []string{documentID},
	})
	require.NoError(t, err)
	return len(results)
}

func TestPipeline_IngestToReady(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	ctx := context.Background()

	text := "Paris is the capital of France. " + strings.Repeat("The city sits on the Seine. ", 8)
	doc, err := env.pipeline.Ingest(ctx, Upload{
		Filename: "paris.txt",
		MIMEType: "text/plain",
		Data:     []byte(text),
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, domain.StatusReady, doc.Status)
	assert.Equal(t, "paris.txt", doc.Filename)
	assert.Equal(t, "paris", doc.Title)

	stored, err := env.store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, stored.Status)
	assert.Empty(t, stored.Error)

	chunks, err := env.store.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.NotEmpty(t, c.ID)
	}

	// Every chunk has a committed vector.
	assert.Equal(t, len(chunks), env.countVectors(t, doc.ID))
}

func TestPipeline_UnsupportedFormatFailsWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	ctx := context.Background()

	doc, err := env.pipeline.Ingest(ctx, Upload{
		Filename: "tool.exe",
		MIMEType: "application/octet-stream",
		Data:     []byte{0x4d, 0x5a},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	require.NotNil(t, doc)
	assert.Equal(t, domain.StatusFailed, doc.Status)

	stored, err := env.store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)

	chunks, err := env.store.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, env.countVectors(t, doc.ID))
}

// flakyEmbedder delegates to a real embedder but fails the nth Embed call.
type flakyEmbedder struct {
	inner  embedding.Embedder
	failOn int

	mu    sync.Mutex
	calls int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if call == f.failOn {
		return nil, fmt.Errorf("%w: provider outage", domain.ErrEmbeddingUnavailable)
	}
	return f.inner.Embed(ctx, texts)
}

func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }

func TestPipeline_EmbeddingFailureKeepsCommittedBatches(t *testing.T) {
	flaky := &flakyEmbedder{inner: embedding.NewHash(64), failOn: 2}

	// One chunk per batch, one batch in flight at a time, so the first
	// batch commits before the second fails.
	env := newTestEnv(t, flaky, Config{CommitBatch: 1, Concurrency: 1})
	ctx := context.Background()

	text := strings.Repeat("alpha beta gamma delta. ", 10)
	doc, err := env.pipeline.Ingest(ctx, Upload{
		Filename: "flaky.txt",
		MIMEType: "text/plain",
		Data:     []byte(text),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, domain.StatusFailed, doc.Status)

	stored, err := env.store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "provider outage")

	// Chunk records survive the failure, and exactly the first batch's
	// vector was committed.
	chunks, err := env.store.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 1, env.countVectors(t, doc.ID))
}

func TestPipeline_DeleteCascades(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	ctx := context.Background()

	doc, err := env.pipeline.Ingest(ctx, Upload{
		Filename: "notes.txt",
		MIMEType: "text/plain",
		Data:     []byte("some text worth indexing and finding later"),
	})
	require.NoError(t, err)
	require.Positive(t, env.countVectors(t, doc.ID))

	require.NoError(t, env.pipeline.Delete(ctx, doc.ID))

	_, err = env.store.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, env.countVectors(t, doc.ID))

	assert.ErrorIs(t, env.pipeline.Delete(ctx, doc.ID), domain.ErrNotFound)
}

func TestPipeline_LockMapDrainsAfterUse(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	ctx := context.Background()

	doc, err := env.pipeline.Ingest(ctx, Upload{
		Filename: "notes.txt",
		MIMEType: "text/plain",
		Data:     []byte("short lived document"),
	})
	require.NoError(t, err)
	require.NoError(t, env.pipeline.Delete(ctx, doc.ID))

	env.pipeline.mu.Lock()
	held := len(env.pipeline.locks)
	env.pipeline.mu.Unlock()
	assert.Zero(t, held)
}

func TestPipeline_Reset(t *testing.T) {
	env := newTestEnv(t, nil, Config{})
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a.txt", "b.txt"} {
		doc, err := env.pipeline.Ingest(ctx, Upload{
			Filename: name,
			MIMEType: "text/plain",
			Data:     []byte("content for " + name),
		})
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}

	require.NoError(t, env.pipeline.Reset(ctx))

	docs, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	for _, id := range ids {
		assert.Zero(t, env.countVectors(t, id))
	}
}
