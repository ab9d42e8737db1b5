package index

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process brute-force cosine index. Entries are grouped by
// document and swapped atomically, so readers always see a complete chunk
// set per document. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]Entry
}

var _ Index = (*Memory)(nil)
var _ Counter = (*Memory)(nil)

// NewMemory creates an empty index accepting vectors of the given dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		docs:      make(map[string][]Entry),
	}
}

// ReplaceDocument swaps every entry of the document in one critical section.
// Vectors are normalized on insert.
func (m *Memory) ReplaceDocument(_ context.Context, documentID string, entries []Entry) error {
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != m.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), m.dimension)
		}
		e.Vector = normalize(e.Vector)
		e.DocumentID = documentID
		normalized[i] = e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(normalized) == 0 {
		delete(m.docs, documentID)
		return nil
	}
	m.docs[documentID] = normalized
	return nil
}

// DeleteByDocument removes all entries of the document. Deleting an unknown
// document is a no-op.
func (m *Memory) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

// Search returns up to topK entries by descending cosine similarity, ties
// broken by ascending chunk ID for determinism.
func (m *Memory) Search(_ context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), m.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}
	query := normalize(vector)

	m.mu.RLock()
	var matches []Match
	for _, entries := range m.docs {
		for _, e := range entries {
			if filter.Category != "" && e.Category != filter.Category {
				continue
			}
			if filter.Difficulty != "" && e.Difficulty != filter.Difficulty {
				continue
			}
			matches = append(matches, Match{
				ChunkID:    e.ChunkID,
				DocumentID: e.DocumentID,
				Score:      dot(e.Vector, query),
			})
		}
	}
	m.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len reports the number of indexed entries, for status reporting.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entries := range m.docs {
		n += len(entries)
	}
	return n
}

// Count reports the number of indexed entries. It satisfies Counter so the
// memory index plugs into the same status surface as Qdrant.
func (m *Memory) Count(_ context.Context) (uint64, error) {
	return uint64(m.Len()), nil
}
