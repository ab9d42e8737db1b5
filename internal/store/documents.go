package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planly/study-kb-server/internal/knowledge"
)

const documentColumns = `id, title, content, category, sub_category, summary, keywords,
	source, author, difficulty_level, applicable_stage,
	vectorized, chunk_count, content_hash, created_at, updated_at`

// HashContent returns the optimistic-concurrency token for document content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddDocument validates and persists a new document with vectorized=false.
// The caller-visible ID and content hash are filled in on the passed value.
func (s *Store) AddDocument(ctx context.Context, doc *knowledge.Document) error {
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: content is required", knowledge.ErrValidation)
	}
	if strings.TrimSpace(doc.Category) == "" {
		return fmt.Errorf("%w: category is required", knowledge.ErrValidation)
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Vectorized = false
	doc.ChunkCount = 0
	doc.ContentHash = HashContent(doc.Content)

	keywordsJSON, err := json.Marshal(doc.Keywords)
	if err != nil {
		return fmt.Errorf("marshaling keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
	`, doc.ID, doc.Title, doc.Content, doc.Category, doc.SubCategory, doc.Summary,
		string(keywordsJSON), doc.Source, doc.Author, doc.Difficulty, doc.Stage,
		doc.ContentHash, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("added document", "id", doc.ID, "category", doc.Category, "content_length", len(doc.Content))
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*knowledge.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %q: %w", id, knowledge.ErrNotFound)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents in creation order, optionally filtered by
// category, difficulty and preparation stage. Limit defaults to 50.
func (s *Store) ListDocuments(ctx context.Context, f knowledge.ListFilter) ([]knowledge.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var conds []string
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Difficulty != "" {
		conds = append(conds, "difficulty_level = ?")
		args = append(args, f.Difficulty)
	}
	if f.Stage != "" {
		conds = append(conds, "applicable_stage = ?")
		args = append(args, f.Stage)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at, id LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []knowledge.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// UpdateDocument applies a partial update. A content change deletes the
// existing chunk set and resets vectorized inside the same transaction, as
// the precondition for re-chunking. The second return value reports whether
// content changed and a rechunk cycle is required.
func (s *Store) UpdateDocument(ctx context.Context, id string, patch knowledge.DocumentPatch) (*knowledge.Document, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("document %q: %w", id, knowledge.ErrNotFound)
		}
		return nil, false, fmt.Errorf("loading document: %w", err)
	}

	contentChanged := applyPatch(doc, patch)
	if strings.TrimSpace(doc.Content) == "" {
		return nil, false, fmt.Errorf("%w: content is required", knowledge.ErrValidation)
	}
	if strings.TrimSpace(doc.Category) == "" {
		return nil, false, fmt.Errorf("%w: category is required", knowledge.ErrValidation)
	}

	doc.UpdatedAt = time.Now().UTC()
	if contentChanged {
		// Invalidate before any re-chunking is attempted.
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
			return nil, false, fmt.Errorf("invalidating chunks: %w", err)
		}
		doc.Vectorized = false
		doc.ChunkCount = 0
		doc.ContentHash = HashContent(doc.Content)
	}

	keywordsJSON, err := json.Marshal(doc.Keywords)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling keywords: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET
			title = ?, content = ?, category = ?, sub_category = ?, summary = ?,
			keywords = ?, source = ?, author = ?, difficulty_level = ?, applicable_stage = ?,
			vectorized = ?, chunk_count = ?, content_hash = ?, updated_at = ?
		WHERE id = ?
	`, doc.Title, doc.Content, doc.Category, doc.SubCategory, doc.Summary,
		string(keywordsJSON), doc.Source, doc.Author, doc.Difficulty, doc.Stage,
		doc.Vectorized, doc.ChunkCount, doc.ContentHash, doc.UpdatedAt, id)
	if err != nil {
		return nil, false, fmt.Errorf("updating document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing update: %w", err)
	}

	s.logger.Debug("updated document", "id", id, "content_changed", contentChanged)
	return doc, contentChanged, nil
}

// DeleteDocument removes a document and cascades to its chunks in one
// transaction. Returns false when the ID does not exist.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return false, fmt.Errorf("deleting chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading delete result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted document", "id", id)
	return true, nil
}

// applyPatch copies non-nil patch fields onto doc and reports whether the
// content changed.
func applyPatch(doc *knowledge.Document, patch knowledge.DocumentPatch) bool {
	contentChanged := false
	if patch.Content != nil && *patch.Content != doc.Content {
		doc.Content = *patch.Content
		contentChanged = true
	}
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Category != nil {
		doc.Category = *patch.Category
	}
	if patch.SubCategory != nil {
		doc.SubCategory = *patch.SubCategory
	}
	if patch.Summary != nil {
		doc.Summary = *patch.Summary
	}
	if patch.Keywords != nil {
		doc.Keywords = *patch.Keywords
	}
	if patch.Source != nil {
		doc.Source = *patch.Source
	}
	if patch.Author != nil {
		doc.Author = *patch.Author
	}
	if patch.Difficulty != nil {
		doc.Difficulty = *patch.Difficulty
	}
	if patch.Stage != nil {
		doc.Stage = *patch.Stage
	}
	return contentChanged
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*knowledge.Document, error) {
	var doc knowledge.Document
	var keywordsJSON string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Category, &doc.SubCategory,
		&doc.Summary, &keywordsJSON, &doc.Source, &doc.Author, &doc.Difficulty, &doc.Stage,
		&doc.Vectorized, &doc.ChunkCount, &doc.ContentHash, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &doc.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshaling keywords: %w", err)
	}
	return &doc, nil
}
