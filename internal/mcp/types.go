// Package mcp exposes the study knowledge base over the Model Context
// Protocol.
package mcp

import "time"

// DocumentInfo is the wire representation of a stored document.
type DocumentInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Keywords    []string  `json:"keywords"`
	Source      string    `json:"source,omitempty"`
	Author      string    `json:"author,omitempty"`
	Difficulty  string    `json:"difficulty_level,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Vectorized  bool      `json:"vectorized"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AddDocumentInput defines the input parameters for the add_document tool.
type AddDocumentInput struct {
	// Title is the document title.
	Title string `json:"title" jsonschema:"Title of the study material"`
	// Content is the full document text.
	Content string `json:"content" jsonschema:"Full text content of the study material"`
	// Category is the top-level subject area.
	Category string `json:"category" jsonschema:"Subject category (e.g. math or study-methods)"`
	// SubCategory refines the category.
	SubCategory string `json:"sub_category,omitempty" jsonschema:"Optional sub-category"`
	// Summary is an optional short description; generated when omitted.
	Summary string `json:"summary,omitempty" jsonschema:"Optional summary; generated automatically when omitted"`
	// Keywords are optional search hints.
	Keywords []string `json:"keywords,omitempty" jsonschema:"Optional keywords for the document"`
	// Source records where the material came from.
	Source string `json:"source,omitempty" jsonschema:"Optional source reference (URL or file path)"`
	// Author is the material's author.
	Author string `json:"author,omitempty" jsonschema:"Optional author name"`
	// Difficulty grades the material.
	Difficulty string `json:"difficulty_level,omitempty" jsonschema:"Optional difficulty level (beginner/intermediate/advanced)"`
	// Stage places the material in a study plan phase.
	Stage string `json:"stage,omitempty" jsonschema:"Optional study plan stage"`
}

// AddDocumentOutput reports the stored document.
type AddDocumentOutput struct {
	// DocumentID is the new document's ID.
	DocumentID string `json:"document_id"`
	// Vectorized reports whether the document is searchable yet.
	Vectorized bool `json:"vectorized"`
	// ChunkCount is the number of chunks created.
	ChunkCount int `json:"chunk_count"`
	// Message carries a warning when vectorization is pending.
	Message string `json:"message,omitempty"`
}

// UpdateDocumentInput defines the input parameters for the update_document
// tool. Omitted fields keep their current values.
type UpdateDocumentInput struct {
	// ID is the document to update.
	ID string `json:"id" jsonschema:"ID of the document to update"`
	// Title replaces the title when present.
	Title *string `json:"title,omitempty" jsonschema:"New title"`
	// Content replaces the content when present; triggers re-vectorization.
	Content *string `json:"content,omitempty" jsonschema:"New content; replacing content re-chunks and re-embeds the document"`
	// Category replaces the category when present.
	Category *string `json:"category,omitempty" jsonschema:"New category"`
	// SubCategory replaces the sub-category when present.
	SubCategory *string `json:"sub_category,omitempty" jsonschema:"New sub-category"`
	// Summary replaces the summary when present.
	Summary *string `json:"summary,omitempty" jsonschema:"New summary"`
	// Keywords replaces the keyword list when present.
	Keywords *[]string `json:"keywords,omitempty" jsonschema:"New keyword list"`
	// Source replaces the source reference when present.
	Source *string `json:"source,omitempty" jsonschema:"New source reference (URL or file path)"`
	// Author replaces the author when present.
	Author *string `json:"author,omitempty" jsonschema:"New author name"`
	// Difficulty replaces the difficulty when present.
	Difficulty *string `json:"difficulty_level,omitempty" jsonschema:"New difficulty level"`
	// Stage replaces the stage when present.
	Stage *string `json:"stage,omitempty" jsonschema:"New study plan stage"`
}

// UpdateDocumentOutput returns the updated document.
type UpdateDocumentOutput struct {
	Document DocumentInfo `json:"document"`
	// Message carries a warning when re-vectorization is pending.
	Message string `json:"message,omitempty"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	// ID is the document to delete.
	ID string `json:"id" jsonschema:"ID of the document to delete"`
}

// DeleteDocumentOutput reports whether the document existed.
type DeleteDocumentOutput struct {
	Deleted bool `json:"deleted"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	// Category filters by subject category.
	Category string `json:"category,omitempty" jsonschema:"Filter by category"`
	// Difficulty filters by difficulty level.
	Difficulty string `json:"difficulty_level,omitempty" jsonschema:"Filter by difficulty level"`
	// Stage filters by study plan stage.
	Stage string `json:"stage,omitempty" jsonschema:"Filter by study plan stage"`
	// Offset skips the first N documents.
	Offset int `json:"offset,omitempty" jsonschema:"Pagination offset"`
	// Limit caps the page size.
	Limit int `json:"limit,omitempty" jsonschema:"Maximum documents to return"`
}

// ListDocumentsOutput contains one page of documents.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// SearchKnowledgeInput defines the input parameters for the search_knowledge tool.
type SearchKnowledgeInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// UserID attributes the search in history.
	UserID string `json:"user_id,omitempty" jsonschema:"User the search is performed for"`
	// Category restricts results to one subject category.
	Category string `json:"category,omitempty" jsonschema:"Restrict results to one category"`
	// TopK is the maximum number of results.
	TopK int `json:"top_k,omitempty" jsonschema:"Maximum number of results"`
	// MinScore is the minimum relevance threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum relevance score threshold (0-1)"`
}

// SearchMatch is a single chunk match.
type SearchMatch struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Category   string  `json:"category,omitempty"`
	Difficulty string  `json:"difficulty_level,omitempty"`
}

// SearchKnowledgeOutput contains the search results.
type SearchKnowledgeOutput struct {
	Results []SearchMatch `json:"results"`
	// Message provides informational context (e.g. degraded search).
	Message string `json:"message,omitempty"`
}

// GetStudyContextInput defines the input parameters for the get_study_context tool.
type GetStudyContextInput struct {
	// Message is the chat message to find context for.
	Message string `json:"message" jsonschema:"The chat message to find study context for"`
	// UserID attributes the lookup in history.
	UserID string `json:"user_id,omitempty" jsonschema:"User the context is assembled for"`
	// MaxLength bounds the assembled context in characters.
	MaxLength int `json:"max_length,omitempty" jsonschema:"Maximum context length in characters"`
}

// GetStudyContextOutput contains the assembled context block.
type GetStudyContextOutput struct {
	// Context is the reference block, empty when nothing relevant is stored.
	Context string `json:"context"`
}

// StatusInput defines the input parameters for the kb_status tool.
// The tool takes no parameters.
type StatusInput struct{}

// StatusOutput reports knowledge base counts and consistency findings.
type StatusOutput struct {
	TotalDocuments    int      `json:"total_documents"`
	VectorizedDocs    int      `json:"vectorized_documents"`
	TotalChunks       int      `json:"total_chunks"`
	IndexedPoints     uint64   `json:"indexed_points"`
	SearchQueries     int      `json:"search_queries"`
	ConsistencyReport []string `json:"consistency_report"`
	Consistent        bool     `json:"consistent"`
}
