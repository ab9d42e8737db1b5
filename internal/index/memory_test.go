package index

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(chunkID, docID string, vector []float32) Entry {
	return Entry{ChunkID: chunkID, DocumentID: docID, Vector: vector, Category: "math"}
}

func TestMemory_SearchOrdering(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("c1", "doc-1", []float32{1, 0}),
		entry("c2", "doc-1", []float32{0.7, 0.7}),
		entry("c3", "doc-1", []float32{0, 1}),
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "c1", matches[0].ChunkID)
	assert.Equal(t, "c2", matches[1].ChunkID)
	assert.Equal(t, "c3", matches[2].ChunkID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-5)
}

func TestMemory_NormalizesOnStore(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	// Same direction at wildly different magnitudes must score identically.
	require.NoError(t, m.ReplaceDocument(ctx, "a", []Entry{entry("small", "a", []float32{0.001, 0})}))
	require.NoError(t, m.ReplaceDocument(ctx, "b", []Entry{entry("large", "b", []float32{1000, 0})}))

	matches, err := m.Search(ctx, []float32{5, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.InDelta(t, float64(matches[0].Score), float64(matches[1].Score), 1e-5)
}

func TestMemory_TieBreakByChunkID(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("zzz", "doc-1", []float32{1, 0}),
		entry("aaa", "doc-1", []float32{1, 0}),
		entry("mmm", "doc-1", []float32{1, 0}),
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "aaa", matches[0].ChunkID)
	assert.Equal(t, "mmm", matches[1].ChunkID)
	assert.Equal(t, "zzz", matches[2].ChunkID)
}

func TestMemory_TopKTruncation(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("c1", "doc-1", []float32{1, 0}),
		entry("c2", "doc-1", []float32{0.9, 0.1}),
		entry("c3", "doc-1", []float32{0.8, 0.2}),
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = m.Search(ctx, []float32{1, 0}, 0, Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemory_CategoryFilter(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	mathEntry := entry("c1", "doc-1", []float32{1, 0})
	englishEntry := entry("c2", "doc-1", []float32{1, 0})
	englishEntry.Category = "english"
	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{mathEntry, englishEntry}))

	matches, err := m.Search(ctx, []float32{1, 0}, 10, Filter{Category: "english"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c2", matches[0].ChunkID)
}

func TestMemory_ReplaceAndDelete(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("old-1", "doc-1", []float32{1, 0}),
		entry("old-2", "doc-1", []float32{0, 1}),
	}))

	// Replacement must fully supersede the old chunk set.
	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("new-1", "doc-1", []float32{1, 0}),
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new-1", matches[0].ChunkID)

	require.NoError(t, m.DeleteByDocument(ctx, "doc-1"))
	matches, err = m.Search(ctx, []float32{1, 0}, 10, Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, m.Len())

	// Deleting an absent document is a no-op.
	require.NoError(t, m.DeleteByDocument(ctx, "ghost"))
}

func TestMemory_DimensionChecks(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	err := m.ReplaceDocument(ctx, "doc-1", []Entry{entry("c1", "doc-1", []float32{1, 0})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = m.Search(ctx, []float32{1, 0}, 5, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemory_Count(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.ReplaceDocument(ctx, "doc-1", []Entry{
		entry("c1", "doc-1", []float32{1, 0}),
		entry("c2", "doc-1", []float32{0, 1}),
	}))
	require.NoError(t, m.ReplaceDocument(ctx, "doc-2", []Entry{
		entry("c3", "doc-2", []float32{1, 0}),
	}))

	n, err = m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	require.NoError(t, m.DeleteByDocument(ctx, "doc-1"))
	n, err = m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSortMatches_ScoreThenChunkID(t *testing.T) {
	matches := []Match{
		{ChunkID: "zzz", Score: 0.9},
		{ChunkID: "aaa", Score: 0.9},
		{ChunkID: "top", Score: 0.95},
		{ChunkID: "mmm", Score: 0.9},
		{ChunkID: "low", Score: 0.5},
	}

	sortMatches(matches)

	want := []string{"top", "aaa", "mmm", "zzz", "low"}
	for i, id := range want {
		assert.Equal(t, id, matches[i].ChunkID, "position %d", i)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	out := normalize([]float32{0, 0, 0})
	for _, v := range out {
		assert.False(t, math.IsNaN(float64(v)))
		assert.Zero(t, v)
	}
}
