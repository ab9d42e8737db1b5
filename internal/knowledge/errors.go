package knowledge

import "errors"

var (
	// ErrValidation indicates missing or invalid required document fields.
	// Surfaced immediately to the caller, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown document or chunk ID.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingUnavailable indicates the embedding backend is
	// unconfigured or unreachable. Retried with backoff during ingestion;
	// at query time retrieval degrades to an empty context instead.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIndexInconsistency indicates a broken invariant between the
	// document store and the vector index, e.g. an index entry whose chunk
	// no longer exists. Logged as a defect, never silently patched.
	ErrIndexInconsistency = errors.New("index inconsistency detected")

	// ErrStaleContent indicates a vectorization commit was aborted because
	// the document content changed while embeddings were generated. The
	// newer update owns the rechunk cycle.
	ErrStaleContent = errors.New("document content changed during vectorization")
)
