package domain

import "errors"

var (
	// ErrInvalidConfig reports bad caller parameters. Never retried.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedFormat reports an upload type no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmbeddingUnavailable reports that the embedding provider is
	// unreachable or rejected the credential. Terminal after retry budget.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrRateLimited reports provider throttling. Retryable with backoff.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrIncompatibleDimension reports a vector whose dimension does not
	// match the index's configured embedding model.
	ErrIncompatibleDimension = errors.New("incompatible vector dimension")

	// ErrInvalidTransition reports an illegal document status change.
	// Indicates an orchestration bug, not an expected runtime condition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDocumentNotReady reports a query scoped to a document that has
	// not finished ingestion.
	ErrDocumentNotReady = errors.New("document not ready")

	// ErrNotFound reports a missing document or chunk.
	ErrNotFound = errors.New("not found")

	// ErrDegenerateVector reports a zero vector, which has no direction
	// under cosine similarity.
	ErrDegenerateVector = errors.New("degenerate zero vector")
)
