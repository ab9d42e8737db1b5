package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/planly/study-kb-server/internal/knowledge"
)

// encodeVector serializes an embedding as little-endian float32 bytes.
func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 embedding blob.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// ReplaceChunks atomically swaps the document's chunk set for the given
// fully-embedded one and marks the document vectorized. The write is guarded
// by the content hash captured when chunking started: if the document
// content changed in between, nothing is committed and ErrStaleContent is
// returned so the newer update's rechunk cycle wins.
func (s *Store) ReplaceChunks(ctx context.Context, docID, contentHash string, chunks []knowledge.Chunk) error {
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return fmt.Errorf("chunk %d carries index %d; indexes must be contiguous from 0", i, c.ChunkIndex)
		}
		if len(c.Embedding) == 0 || c.EmbeddingModel == "" {
			return fmt.Errorf("chunk %d has no embedding; refusing to mark document vectorized", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chunk replacement: %w", err)
	}
	defer tx.Rollback()

	var storedHash string
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM documents WHERE id = ?`, docID).Scan(&storedHash)
	if err != nil {
		return fmt.Errorf("loading document %q: %w", docID, knowledge.ErrNotFound)
	}
	if storedHash != contentHash {
		return fmt.Errorf("document %q: %w", docID, knowledge.ErrStaleContent)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		c.DocumentID = docID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, content, chunk_index, embedding_model,
				embedding, category, sub_category, difficulty_level, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.DocumentID, c.Content, c.ChunkIndex, c.EmbeddingModel,
			encodeVector(c.Embedding), c.Category, c.SubCategory, c.Difficulty, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET vectorized = 1, chunk_count = ?, updated_at = ? WHERE id = ?
	`, len(chunks), now, docID)
	if err != nil {
		return fmt.Errorf("marking document vectorized: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk replacement: %w", err)
	}

	s.logger.Debug("replaced chunk set", "document_id", docID, "chunks", len(chunks))
	return nil
}

// ChunksByDocument returns the document's chunks ordered by chunk index.
func (s *Store) ChunksByDocument(ctx context.Context, docID string) ([]knowledge.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, embedding_model,
			embedding, category, sub_category, difficulty_level, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByIDs returns the chunks for the given IDs, keyed by chunk ID.
// Missing IDs are simply absent from the result; the caller decides whether
// that is an inconsistency.
func (s *Store) ChunksByIDs(ctx context.Context, ids []string) (map[string]knowledge.Chunk, error) {
	if len(ids) == 0 {
		return map[string]knowledge.Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, embedding_model,
			embedding, category, sub_category, difficulty_level, created_at
		FROM chunks WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by id: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]knowledge.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}

// EmbeddedChunks streams every chunk that carries an embedding, used to
// rebuild the vector index at startup.
func (s *Store) EmbeddedChunks(ctx context.Context) ([]knowledge.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, embedding_model,
			embedding, category, sub_category, difficulty_level, created_at
		FROM chunks WHERE embedding IS NOT NULL ORDER BY document_id, chunk_index
	`)
	if err != nil {
		return nil, fmt.Errorf("querying embedded chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]knowledge.Chunk, error) {
	var chunks []knowledge.Chunk
	for rows.Next() {
		var c knowledge.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &c.EmbeddingModel,
			&blob, &c.Category, &c.SubCategory, &c.Difficulty, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
