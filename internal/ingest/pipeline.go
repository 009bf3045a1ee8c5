// Package ingest orchestrates the parse -> chunk -> embed -> index pipeline
// for one uploaded document, tracking progress through the document status
// state machine.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/domain"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
	"github.com/bull/docchat/internal/parser"
)

const (
	// DefaultCommitBatch is how many chunks are embedded and committed to
	// the index at a time. A failure loses at most one batch of work.
	DefaultCommitBatch = 32

	// DefaultConcurrency caps in-flight embedding batches per ingestion.
	DefaultConcurrency = 4
)

// Upload is the raw input at the upload boundary: file bytes plus the
// declared type. Saving and receiving the file is the caller's problem.
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Config tunes one pipeline instance. Zero values select defaults.
type Config struct {
	CommitBatch int
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline drives a document from upload to queryable. Distinct documents
// ingest concurrently; the same document id is serialized by a per-document
// mutex so chunk writes never interleave.
type Pipeline struct {
	parsers  *parser.Registry
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	index    index.Index
	store    docstore.Store

	commitBatch int
	concurrency int
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*docLock
}

// docLock is a per-document mutex with a waiter count, so the entry can be
// dropped from the map once nobody holds or wants it.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewPipeline wires the ingestion components together.
func NewPipeline(
	parsers *parser.Registry,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	idx index.Index,
	store docstore.Store,
	cfg Config,
) *Pipeline {
	if cfg.CommitBatch <= 0 {
		cfg.CommitBatch = DefaultCommitBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		parsers:     parsers,
		chunker:     ch,
		embedder:    embedder,
		index:       idx,
		store:       store,
		commitBatch: cfg.CommitBatch,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		locks:       make(map[string]*docLock),
	}
}

// Ingest runs the full pipeline for one upload. On failure the returned
// document carries status failed with the captured error, and the same
// error is returned; chunks and vectors committed before the failure stay
// in place for the caller to delete and retry.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (*domain.Document, error) {
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Filename:  up.Filename,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	unlock := p.lockDocument(doc.ID)
	defer unlock()

	if err := p.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	start := time.Now()
	p.logger.Info("ingestion started", "document", doc.ID, "filename", up.Filename)

	parsed, err := p.parsers.Parse(up.Filename, up.MIMEType, up.Data)
	if err != nil {
		return p.fail(ctx, doc, err)
	}
	doc.Title = parsed.Title
	doc.RawText = parsed.Text
	if err := p.store.Put(ctx, doc); err != nil {
		return p.fail(ctx, doc, fmt.Errorf("persist parsed text: %w", err))
	}

	if err := p.advance(ctx, doc, domain.StatusChunking); err != nil {
		return p.fail(ctx, doc, err)
	}
	pieces := p.chunker.Split(parsed.Text)
	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Sequence:   i,
			Text:       piece.Text,
			CharStart:  piece.Start,
			CharEnd:    piece.End,
		}
	}
	if err := p.store.PutChunks(ctx, chunks); err != nil {
		return p.fail(ctx, doc, fmt.Errorf("persist chunks: %w", err))
	}
	p.logger.Debug("chunked document", "document", doc.ID, "chunks", len(chunks))

	if err := p.advance(ctx, doc, domain.StatusEmbedding); err != nil {
		return p.fail(ctx, doc, err)
	}
	if err := p.embedAndCommit(ctx, doc.ID, chunks); err != nil {
		return p.fail(ctx, doc, err)
	}

	if err := p.advance(ctx, doc, domain.StatusReady); err != nil {
		return p.fail(ctx, doc, err)
	}

	p.logger.Info("ingestion complete",
		"document", doc.ID,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
	return doc, nil
}

// embedAndCommit embeds chunks in batches, up to the concurrency cap in
// flight, committing each batch's vectors to the index as soon as it
// succeeds. Vectors map back to chunks by position within the batch, so
// commit order between batches does not matter.
func (p *Pipeline) embedAndCommit(ctx context.Context, docID string, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for offset := 0; offset < len(chunks); offset += p.commitBatch {
		batch := chunks[offset:min(offset+p.commitBatch, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			vectors, err := p.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", batch[0].Sequence, batch[len(batch)-1].Sequence, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d chunks",
					domain.ErrEmbeddingUnavailable, len(vectors), len(batch))
			}

			for i, c := range batch {
				if err := p.index.Upsert(gctx, c.ID, docID, c.Text, vectors[i]); err != nil {
					return fmt.Errorf("index chunk %d: %w", c.Sequence, err)
				}
			}
			p.logger.Debug("committed batch", "document", docID,
				"from", batch[0].Sequence, "to", batch[len(batch)-1].Sequence)
			return nil
		})
	}

	return g.Wait()
}

// Delete removes a document from both stores. They are not transactionally
// linked, so vectors go first: a failure then leaves the document visible
// and the delete retryable, never orphaned vectors behind a missing record.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	unlock := p.lockDocument(documentID)
	defer unlock()

	if _, err := p.store.Get(ctx, documentID); err != nil {
		return err
	}
	if err := p.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := p.store.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	p.logger.Info("document deleted", "document", documentID)
	return nil
}

// Reset drops every document and vector.
func (p *Pipeline) Reset(ctx context.Context) error {
	docs, err := p.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := p.store.Delete(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete document %s: %w", doc.ID, err)
		}
	}
	return p.index.Reset(ctx)
}

// advance moves the document forward one status.
func (p *Pipeline) advance(ctx context.Context, doc *domain.Document, status domain.Status) error {
	if err := p.store.UpdateStatus(ctx, doc.ID, status, ""); err != nil {
		return err
	}
	doc.Status = status
	return nil
}

// fail records the terminal error on the document. Previously committed
// chunks and vectors are left in place.
func (p *Pipeline) fail(ctx context.Context, doc *domain.Document, cause error) (*domain.Document, error) {
	p.logger.Warn("ingestion failed", "document", doc.ID, "error", cause)
	if err := p.store.UpdateStatus(ctx, doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		p.logger.Error("recording failure status", "document", doc.ID, "error", err)
	}
	doc.Status = domain.StatusFailed
	doc.Error = cause.Error()
	return doc, cause
}

// lockDocument serializes work on one document id. The returned unlock also
// releases the map entry once the last holder is gone, so the lock map does
// not grow with every document ever touched.
func (p *Pipeline) lockDocument(id string) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &docLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}
