//go:build integration

package index

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQdrant connects to a local Qdrant instance, skipping the test
// when none is running.
func setupTestQdrant(t *testing.T) *Qdrant {
	t.Helper()
	q, err := NewQdrant("localhost", 6334, 4)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	require.NoError(t, q.EnsureCollection(context.Background()))
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQdrant_ReplaceSearchDelete(t *testing.T) {
	q := setupTestQdrant(t)
	ctx := context.Background()

	docID := uuid.New().String()
	chunkA := uuid.New().String()
	chunkB := uuid.New().String()

	require.NoError(t, q.ReplaceDocument(ctx, docID, []Entry{
		{ChunkID: chunkA, DocumentID: docID, Vector: []float32{1, 0, 0, 0}, Category: "math"},
		{ChunkID: chunkB, DocumentID: docID, Vector: []float32{0, 1, 0, 0}, Category: "english"},
	}))

	matches, err := q.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, chunkA, matches[0].ChunkID)
	assert.Equal(t, docID, matches[0].DocumentID)

	filtered, err := q.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{Category: "english"})
	require.NoError(t, err)
	for _, m := range filtered {
		assert.NotEqual(t, chunkA, m.ChunkID)
	}

	require.NoError(t, q.DeleteByDocument(ctx, docID))
	matches, err = q.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{})
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, docID, m.DocumentID)
	}
}

func TestQdrant_Count(t *testing.T) {
	q := setupTestQdrant(t)
	ctx := context.Background()

	before, err := q.Count(ctx)
	require.NoError(t, err)

	docID := uuid.New().String()
	require.NoError(t, q.ReplaceDocument(ctx, docID, []Entry{
		{ChunkID: uuid.New().String(), DocumentID: docID, Vector: []float32{1, 0, 0, 0}, Category: "math"},
	}))
	t.Cleanup(func() { _ = q.DeleteByDocument(ctx, docID) })

	after, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestQdrant_DimensionMismatch(t *testing.T) {
	q := setupTestQdrant(t)

	_, err := q.Search(context.Background(), []float32{1, 0}, 5, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
