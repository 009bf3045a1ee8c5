// Package domain defines the entities shared by the ingestion and query
// pipelines and the error taxonomy surfaced by every component.
package domain

import "time"

// Status tracks a document's progress through the ingestion pipeline.
// Transitions move strictly forward; failed is reachable from any other
// state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
)

// next maps each status to the single forward transition it allows.
var next = map[Status]Status{
	StatusPending:   StatusChunking,
	StatusChunking:  StatusEmbedding,
	StatusEmbedding: StatusReady,
}

// CanTransition reports whether moving from s to target is a legal
// state-machine step. Failed is a sink: reachable from any other state,
// escapable by none. Ready only regresses to failed.
func (s Status) CanTransition(target Status) bool {
	if s == StatusFailed {
		return false
	}
	if target == StatusFailed {
		return true
	}
	return next[s] == target
}

// Document is an uploaded file tracked through ingestion.
type Document struct {
	ID        string
	Filename  string
	Title     string
	RawText   string
	Status    Status
	Error     string // populated when Status is failed
	CreatedAt time.Time
}

// Chunk is a bounded contiguous span of a document's text, the unit of
// retrieval. CharStart and CharEnd are rune offsets into the parsed text.
type Chunk struct {
	ID         string
	DocumentID string
	Sequence   int
	Text       string
	CharStart  int
	CharEnd    int
}

// Passage is a retrieved chunk handed to the external answer generator.
// Passages are ephemeral query output and never persisted.
type Passage struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float32
	Rank       int
}
