// Package knowledge defines the domain model shared by the knowledge base
// components: documents, chunks, search results and the audit history.
package knowledge

import "time"

// Document is a stored knowledge-base article with study-planning metadata.
// A document owns zero or more chunks; the chunks exist only while the
// document's content is unchanged.
type Document struct {
	ID          string
	Title       string
	Content     string
	Category    string // e.g. "math", "english", "study-methods"
	SubCategory string
	Summary     string
	Keywords    []string
	Source      string
	Author      string
	Difficulty  string // "basic", "intermediate", "advanced"
	Stage       string // applicable preparation stage
	Vectorized  bool
	ChunkCount  int
	ContentHash string // SHA-256 of Content, optimistic concurrency token
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentPatch describes a partial update to a document. Nil fields are
// left untouched.
type DocumentPatch struct {
	Title       *string
	Content     *string
	Category    *string
	SubCategory *string
	Summary     *string
	Keywords    *[]string
	Source      *string
	Author      *string
	Difficulty  *string
	Stage       *string
}

// Chunk is a bounded sub-span of a document's text, the unit of embedding
// and retrieval. Immutable after creation except for the embedding fields.
type Chunk struct {
	ID             string
	DocumentID     string
	Content        string
	ChunkIndex     int
	EmbeddingModel string
	Embedding      []float32
	Category       string
	SubCategory    string
	Difficulty     string
	CreatedAt      time.Time
}

// SearchResult is a single retrieval hit returned to callers.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float32
	Category   string
	Difficulty string
}

// SearchHistoryEntry records one retrieval attempt. Entries are append-only
// and never mutated or deleted.
type SearchHistoryEntry struct {
	ID              int64
	UserID          string
	Query           string
	MatchedChunks   []string
	RelevanceScores []float32
	Failed          bool // true when the embedder was unavailable
	CreatedAt       time.Time
}

// ListFilter restricts and pages a document listing. Zero values mean
// "no restriction".
type ListFilter struct {
	Category   string
	Difficulty string
	Stage      string
	Offset     int
	Limit      int
}
