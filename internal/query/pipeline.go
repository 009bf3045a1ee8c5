// Package query answers questions against the indexed corpus: embed the
// question, run a similarity search, return ranked passages.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/domain"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/index"
)

// DefaultTopK is the passage count when the request leaves it unset.
const DefaultTopK = 3

// Request asks a question, optionally scoped to specific documents.
// An empty DocumentIDs means the whole ready corpus.
type Request struct {
	Question    string
	TopK        int
	DocumentIDs []string
}

// Config tunes one query pipeline.
type Config struct {
	// MinScore drops passages scoring below it when HasMinScore is set.
	// Without the flag no threshold applies, so even negative-similarity
	// passages are returned.
	MinScore    float32
	HasMinScore bool
	Logger      *slog.Logger
}

// Pipeline retrieves passages for questions. Queries only ever see ready
// documents: explicit scope is checked per document, and unscoped queries
// are narrowed to the ready set before searching.
type Pipeline struct {
	embedder    embedding.Embedder
	index       index.Index
	store       docstore.Store
	minScore    float32
	hasMinScore bool
	logger      *slog.Logger
}

// NewPipeline wires the retrieval components together.
func NewPipeline(embedder embedding.Embedder, idx index.Index, store docstore.Store, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		embedder:    embedder,
		index:       idx,
		store:       store,
		minScore:    cfg.MinScore,
		hasMinScore: cfg.HasMinScore,
		logger:      cfg.Logger,
	}
}

// Retrieve returns the best-matching passages for the question, ranked from
// 1. An empty corpus (or one with nothing ready yet) yields no passages and
// no error; an explicitly scoped document that is missing or not ready is
// an error.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) ([]domain.Passage, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidConfig)
	}
	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, topK)
	}

	scope, err := p.resolveScope(ctx, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		p.logger.Debug("no ready documents, skipping search")
		return nil, nil
	}

	start := time.Now()
	vectors, err := p.embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := p.index.Search(ctx, vectors[0], topK, &index.Filter{DocumentIDs: scope})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	passages := make([]domain.Passage, 0, len(results))
	for _, r := range results {
		if p.hasMinScore && r.Score < p.minScore {
			continue
		}
		passages = append(passages, domain.Passage{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Text:       r.Text,
			Score:      r.Score,
			Rank:       len(passages) + 1,
		})
	}

	p.logger.Debug("retrieved passages",
		"passages", len(passages),
		"documents", len(scope),
		"duration", time.Since(start),
	)
	return passages, nil
}

// resolveScope turns the requested document ids into the set the search may
// touch. Explicit ids must name ready documents; no ids means every ready
// document, so partially ingested ones never leak into answers.
func (p *Pipeline) resolveScope(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, id := range requested {
			doc, err := p.store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if doc.Status != domain.StatusReady {
				return nil, fmt.Errorf("%w: document %s is %s", domain.ErrDocumentNotReady, id, doc.Status)
			}
		}
		return requested, nil
	}

	docs, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var ready []string
	for _, doc := range docs {
		if doc.Status == domain.StatusReady {
			ready = append(ready, doc.ID)
		}
	}
	return ready, nil
}
