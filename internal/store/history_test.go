package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planly/study-kb-server/internal/knowledge"
)

func TestAppendSearchHistory_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &knowledge.SearchHistoryEntry{
		UserID:          "user-1",
		Query:           "how to plan math revision",
		MatchedChunks:   []string{"c1", "c2"},
		RelevanceScores: []float32{0.91, 0.74},
	}
	require.NoError(t, s.AppendSearchHistory(ctx, entry))
	assert.NotZero(t, entry.ID)

	entries, err := s.ListSearchHistory(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Query, entries[0].Query)
	assert.Equal(t, []string{"c1", "c2"}, entries[0].MatchedChunks)
	assert.Equal(t, []float32{0.91, 0.74}, entries[0].RelevanceScores)
	assert.False(t, entries[0].Failed)
}

func TestAppendSearchHistory_EmptyMatchesAndFailedFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Zero-result and degraded retrievals are recorded too.
	entry := &knowledge.SearchHistoryEntry{
		UserID: "user-1",
		Query:  "unanswerable",
		Failed: true,
	}
	require.NoError(t, s.AppendSearchHistory(ctx, entry))

	entries, err := s.ListSearchHistory(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed)
	assert.Empty(t, entries[0].MatchedChunks)
	assert.Empty(t, entries[0].RelevanceScores)
}

func TestAppendSearchHistory_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendSearchHistory(ctx, &knowledge.SearchHistoryEntry{UserID: "u"})
	assert.ErrorIs(t, err, knowledge.ErrValidation)

	err = s.AppendSearchHistory(ctx, &knowledge.SearchHistoryEntry{
		Query:           "q",
		MatchedChunks:   []string{"c1"},
		RelevanceScores: []float32{0.5, 0.4},
	})
	assert.ErrorIs(t, err, knowledge.ErrValidation)
}

func TestListSearchHistory_NewestFirstAndScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendSearchHistory(ctx, &knowledge.SearchHistoryEntry{UserID: "a", Query: q}))
	}
	require.NoError(t, s.AppendSearchHistory(ctx, &knowledge.SearchHistoryEntry{UserID: "b", Query: "other"}))

	entries, err := s.ListSearchHistory(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Query)
	assert.Equal(t, "second", entries[1].Query)
}
