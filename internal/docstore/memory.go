package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bull/docchat/internal/domain"
)

// Memory keeps documents and chunks in process memory. Values are copied on
// the way in and out so callers never share mutable state with the store.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]*domain.Document
	chunks map[string][]domain.Chunk // by document id, ordered by sequence
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]*domain.Document),
		chunks: make(map[string][]domain.Chunk),
	}
}

func (m *Memory) Put(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *doc
	m.docs[doc.ID] = &stored
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	out := *doc
	return &out, nil
}

func (m *Memory) List(_ context.Context) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		d := *doc
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status domain.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if err := checkTransition(id, doc.Status, status); err != nil {
		return err
	}
	doc.Status = status
	if status == domain.StatusFailed {
		doc.Error = errMsg
	}
	return nil
}

func (m *Memory) PutChunks(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		existing := m.chunks[c.DocumentID]
		replaced := false
		for i := range existing {
			if existing[i].ID == c.ID {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			m.chunks[c.DocumentID] = append(existing, c)
		}
	}
	for id := range m.chunks {
		sort.Slice(m.chunks[id], func(i, j int) bool {
			return m.chunks[id][i].Sequence < m.chunks[id][j].Sequence
		})
	}
	return nil
}

func (m *Memory) Chunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Chunk, len(m.chunks[documentID]))
	copy(out, m.chunks[documentID])
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
