package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bull/docchat/internal/domain"
)

// Memory is a brute-force in-memory index: cosine over every stored vector.
// A single RWMutex makes deletes atomic with respect to searches — a reader
// sees a document fully present or fully absent, never half-removed.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	seq       uint64
	entries   map[string]*memEntry
}

type memEntry struct {
	chunkID    string
	documentID string
	text       string
	vector     []float32
	norm       float64
	seq        uint64 // insertion order, kept across re-upserts for tie-breaking
}

// NewMemory returns an empty in-memory index for vectors of the given
// dimension.
func NewMemory(dimension int) (*Memory, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", domain.ErrInvalidConfig, dimension)
	}
	return &Memory{
		dimension: dimension,
		entries:   make(map[string]*memEntry),
	}, nil
}

func (m *Memory) Dimension() int {
	return m.dimension
}

func (m *Memory) Upsert(_ context.Context, chunkID, documentID, text string, vector []float32) error {
	if len(vector) != m.dimension {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d",
			domain.ErrIncompatibleDimension, len(vector), m.dimension)
	}
	if isZero(vector) {
		return fmt.Errorf("%w: chunk %s", domain.ErrDegenerateVector, chunkID)
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[chunkID]; ok {
		existing.documentID = documentID
		existing.text = text
		existing.vector = stored
		existing.norm = norm(stored)
		return nil
	}

	m.seq++
	m.entries[chunkID] = &memEntry{
		chunkID:    chunkID,
		documentID: documentID,
		text:       text,
		vector:     stored,
		norm:       norm(stored),
		seq:        m.seq,
	}
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		if e.documentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, topK int, filter *Filter) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k %d", domain.ErrInvalidConfig, topK)
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			domain.ErrIncompatibleDimension, len(vector), m.dimension)
	}
	if isZero(vector) {
		return nil, fmt.Errorf("%w: query vector", domain.ErrDegenerateVector)
	}

	var scope map[string]struct{}
	if filter != nil && len(filter.DocumentIDs) > 0 {
		scope = make(map[string]struct{}, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			scope[id] = struct{}{}
		}
	}

	queryNorm := norm(vector)

	type scored struct {
		result Result
		seq    uint64
	}

	m.mu.RLock()
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if scope != nil {
			if _, ok := scope[e.documentID]; !ok {
				continue
			}
		}
		candidates = append(candidates, scored{
			result: Result{
				ChunkID:    e.chunkID,
				DocumentID: e.documentID,
				Text:       e.text,
				Score:      float32(dot(vector, e.vector) / (queryNorm * e.norm)),
			},
			seq: e.seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Result, 0, topK)
	for _, c := range candidates[:topK] {
		results = append(results, c.result)
	}
	return results, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memEntry)
	m.seq = 0
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
