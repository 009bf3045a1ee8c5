// Package index stores chunk vectors and serves nearest-neighbor retrieval
// under cosine similarity. The contract is storage-agnostic: the in-memory
// implementation and the Qdrant-backed one are interchangeable behind the
// Index interface, differing only in latency and durability.
package index

import "context"

// Result is one search hit, best first.
type Result struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float32
}

// Filter restricts a search to the given documents. It is applied before
// ranking, so a small topK against one document still returns up to topK
// results from that document alone.
type Filter struct {
	DocumentIDs []string
}

// Index is the vector index contract. The similarity metric (cosine) and
// vector dimension are fixed at construction.
type Index interface {
	// Upsert stores a chunk vector. Re-upserting the same chunk id
	// replaces its vector rather than duplicating it.
	Upsert(ctx context.Context, chunkID, documentID, text string, vector []float32) error

	// DeleteDocument removes every vector belonging to a document,
	// atomically with respect to concurrent searches.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns up to topK results sorted by descending similarity.
	// Ties break by insertion order, earlier first.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Result, error)

	// Reset drops every vector in the index.
	Reset(ctx context.Context) error

	Dimension() int
	Close() error
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
