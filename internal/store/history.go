package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/planly/study-kb-server/internal/knowledge"
)

// AppendSearchHistory records one retrieval attempt. The history table is
// append-only; nothing ever updates or deletes its rows.
func (s *Store) AppendSearchHistory(ctx context.Context, entry *knowledge.SearchHistoryEntry) error {
	if entry.Query == "" {
		return fmt.Errorf("%w: query is required", knowledge.ErrValidation)
	}
	if len(entry.MatchedChunks) != len(entry.RelevanceScores) {
		return fmt.Errorf("%w: %d chunk ids with %d scores", knowledge.ErrValidation,
			len(entry.MatchedChunks), len(entry.RelevanceScores))
	}

	if entry.MatchedChunks == nil {
		entry.MatchedChunks = []string{}
	}
	if entry.RelevanceScores == nil {
		entry.RelevanceScores = []float32{}
	}
	chunksJSON, err := json.Marshal(entry.MatchedChunks)
	if err != nil {
		return fmt.Errorf("marshaling matched chunks: %w", err)
	}
	scoresJSON, err := json.Marshal(entry.RelevanceScores)
	if err != nil {
		return fmt.Errorf("marshaling scores: %w", err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (user_id, query, matched_chunks, relevance_scores, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.Query, string(chunksJSON), string(scoresJSON), entry.Failed, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending search history: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// ListSearchHistory returns a user's most recent retrievals, newest first.
// Limit defaults to 50.
func (s *Store) ListSearchHistory(ctx context.Context, userID string, limit int) ([]knowledge.SearchHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, query, matched_chunks, relevance_scores, failed, created_at
		FROM search_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing search history: %w", err)
	}
	defer rows.Close()

	var entries []knowledge.SearchHistoryEntry
	for rows.Next() {
		var e knowledge.SearchHistoryEntry
		var chunksJSON, scoresJSON string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &chunksJSON, &scoresJSON, &e.Failed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(chunksJSON), &e.MatchedChunks); err != nil {
			return nil, fmt.Errorf("unmarshaling matched chunks: %w", err)
		}
		if err := json.Unmarshal([]byte(scoresJSON), &e.RelevanceScores); err != nil {
			return nil, fmt.Errorf("unmarshaling scores: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}
