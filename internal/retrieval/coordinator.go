// Package retrieval answers knowledge base queries: embed, rank, hydrate
// and assemble context, degrading gracefully when the embedder is down.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/planly/study-kb-server/internal/embedding"
	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/store"
)

const (
	// DefaultTopK is the result count used when a caller does not specify one.
	DefaultTopK = 5

	// DefaultMinScore is the relevance threshold applied by default. Matches
	// below it are considered noise rather than context.
	DefaultMinScore = 0.7

	// chatTopK bounds how many references feed a single chat turn.
	chatTopK = 3

	// oversampleFactor widens the index candidate set so that score and
	// consistency filtering still leaves enough results to fill topK.
	oversampleFactor = 3
)

// SearchOptions tunes a single search call. Zero values select defaults;
// a negative MinScore disables the relevance threshold entirely.
type SearchOptions struct {
	Category string
	TopK     int
	MinScore float32
}

// Coordinator runs the query path against the vector index and the chunk
// store. Every search appends exactly one history entry, failed or not.
type Coordinator struct {
	store    *store.Store
	embedder embedding.Embedder
	index    index.Index
	logger   *slog.Logger
}

// NewCoordinator wires a retrieval coordinator. logger may be nil.
func NewCoordinator(st *store.Store, emb embedding.Embedder, idx index.Index, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: st, embedder: emb, index: idx, logger: logger}
}

// Search embeds the query, ranks candidates and returns up to topK results
// at or above the relevance threshold. An embedder outage is not an error:
// the call records a failed history entry and returns empty results, so a
// chat turn proceeds without context rather than aborting.
func (c *Coordinator) Search(ctx context.Context, query, userID string, opts SearchOptions) ([]knowledge.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", knowledge.ErrValidation)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	} else if minScore < 0 {
		minScore = 0
	}

	vectors, err := c.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		c.logger.Warn("query embedding failed, returning empty results",
			"user_id", userID, "error", err)
		c.appendHistory(ctx, &knowledge.SearchHistoryEntry{
			UserID: userID,
			Query:  query,
			Failed: true,
		})
		return nil, nil
	}

	matches, err := c.index.Search(ctx, vectors[0], topK*oversampleFactor, index.Filter{Category: opts.Category})
	if err != nil {
		c.appendHistory(ctx, &knowledge.SearchHistoryEntry{
			UserID: userID,
			Query:  query,
			Failed: true,
		})
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results, histErr := c.hydrate(ctx, matches, topK, minScore)
	if histErr != nil {
		c.appendHistory(ctx, &knowledge.SearchHistoryEntry{
			UserID: userID,
			Query:  query,
			Failed: true,
		})
		return nil, histErr
	}

	entry := &knowledge.SearchHistoryEntry{
		UserID:          userID,
		Query:           query,
		MatchedChunks:   make([]string, len(results)),
		RelevanceScores: make([]float32, len(results)),
	}
	for i, r := range results {
		entry.MatchedChunks[i] = r.ChunkID
		entry.RelevanceScores[i] = r.Score
	}
	c.appendHistory(ctx, entry)

	return results, nil
}

// GetContextForChat returns an assembled reference block for a chat message,
// or an empty string when nothing relevant is stored or the embedder is
// unavailable. The result never exceeds maxContextLength runes.
func (c *Coordinator) GetContextForChat(ctx context.Context, message, userID string, maxContextLength int) (string, error) {
	if maxContextLength <= 0 {
		maxContextLength = DefaultContextLength
	}
	results, err := c.Search(ctx, message, userID, SearchOptions{TopK: chatTopK})
	if err != nil {
		return "", err
	}
	return BuildContext(results, maxContextLength), nil
}

// hydrate loads chunk content for ranked matches, dropping candidates below
// minScore and index entries whose chunk row no longer exists.
func (c *Coordinator) hydrate(ctx context.Context, matches []index.Match, topK int, minScore float32) ([]knowledge.SearchResult, error) {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		ids = append(ids, m.ChunkID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := c.store.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading chunk content: %w", err)
	}

	results := make([]knowledge.SearchResult, 0, topK)
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		chunk, ok := chunks[m.ChunkID]
		if !ok {
			c.logger.Error("index entry has no chunk row",
				"chunk_id", m.ChunkID, "document_id", m.DocumentID,
				"error", knowledge.ErrIndexInconsistency)
			continue
		}
		results = append(results, knowledge.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Score:      m.Score,
			Category:   chunk.Category,
			Difficulty: chunk.Difficulty,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// appendHistory records the search synchronously with one retry on failure.
// A persistent logging failure is reported but never fails the search.
func (c *Coordinator) appendHistory(ctx context.Context, entry *knowledge.SearchHistoryEntry) {
	op := func() error {
		return c.store.AppendSearchHistory(ctx, entry)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 1)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		c.logger.Error("search history append failed",
			"user_id", entry.UserID, "query", entry.Query, "error", err)
	}
}
