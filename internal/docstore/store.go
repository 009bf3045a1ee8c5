// Package docstore persists documents, their chunks, and ingestion status.
// The contract is storage-agnostic: the in-memory implementation and the
// SQLite-backed one are interchangeable. Status changes go through
// UpdateStatus, which enforces the ingestion state machine.
package docstore

import (
	"context"

	"github.com/bull/docchat/internal/domain"
)

// Store is the document store contract.
//
// Deleting a document removes its chunk records but NOT its vectors: the
// store and the vector index are not transactionally linked, so the
// ingestion pipeline owns cross-store cascade.
type Store interface {
	// Put creates or replaces a document record.
	Put(ctx context.Context, doc *domain.Document) error

	// Get returns a document or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns all documents in creation order.
	List(ctx context.Context) ([]*domain.Document, error)

	// UpdateStatus advances the document's status. Illegal transitions
	// fail with ErrInvalidTransition; errMsg is recorded when the target
	// status is failed.
	UpdateStatus(ctx context.Context, id string, status domain.Status, errMsg string) error

	// PutChunks stores chunk records, replacing any with the same id.
	PutChunks(ctx context.Context, chunks []domain.Chunk) error

	// Chunks returns a document's chunks ordered by sequence.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Delete removes a document and its chunk records, or ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

// checkTransition validates a status change against the state machine.
func checkTransition(id string, from, to domain.Status) error {
	if !from.CanTransition(to) {
		return &TransitionError{DocumentID: id, From: from, To: to}
	}
	return nil
}

// TransitionError details an illegal status change. It unwraps to
// domain.ErrInvalidTransition.
type TransitionError struct {
	DocumentID string
	From       domain.Status
	To         domain.Status
}

func (e *TransitionError) Error() string {
	return "document " + e.DocumentID + ": invalid status transition " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error {
	return domain.ErrInvalidTransition
}
