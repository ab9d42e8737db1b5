// Package ingest owns the document lifecycle: add, update and delete, plus
// the vectorization cycle that keeps the chunk store and the vector index
// consistent with document content.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/planly/study-kb-server/internal/chunker"
	"github.com/planly/study-kb-server/internal/embedding"
	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/metadata"
	"github.com/planly/study-kb-server/internal/store"
)

// Pipeline orchestrates chunking, embedding and the atomic commit of a
// document's derived artifacts. Writes to a single document's chunk set are
// serialized by a per-document mutex; the embedding call itself runs outside
// any lock so a slow upstream never blocks other documents.
type Pipeline struct {
	store     *store.Store
	embedder  embedding.Embedder
	index     index.Index
	generator *metadata.Generator // optional; nil skips summary generation
	chunkSize int
	overlap   int
	logger    *slog.Logger

	locks sync.Map // document ID -> *sync.Mutex
}

// NewPipeline creates an ingestion pipeline with default chunking settings.
// generator may be nil.
func NewPipeline(st *store.Store, emb embedding.Embedder, idx index.Index, gen *metadata.Generator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		embedder:  emb,
		index:     idx,
		generator: gen,
		chunkSize: chunker.DefaultChunkSize,
		overlap:   chunker.DefaultOverlap,
		logger:    logger,
	}
}

// SetChunking overrides the chunk window parameters. Intended for
// configuration at startup, not concurrent use.
func (p *Pipeline) SetChunking(chunkSize, overlap int) error {
	if _, err := chunker.Split("probe", chunkSize, overlap); err != nil {
		return err
	}
	p.chunkSize = chunkSize
	p.overlap = overlap
	return nil
}

// AddDocument validates and persists a new document, then runs the
// vectorization cycle. The document ID is returned even when vectorization
// fails: the document then stays persisted with vectorized=false and zero
// chunks, and a later Vectorize call can finish the job.
func (p *Pipeline) AddDocument(ctx context.Context, doc *knowledge.Document) (string, error) {
	if p.generator != nil && doc.Summary == "" {
		meta, err := p.generator.Generate(ctx, doc.Title, doc.Content)
		if err != nil {
			p.logger.Warn("metadata generation failed, continuing without summary",
				"title", doc.Title, "error", err)
		} else {
			doc.Summary = meta.Summary
			if len(doc.Keywords) == 0 {
				doc.Keywords = meta.Keywords
			}
		}
	}

	if err := p.store.AddDocument(ctx, doc); err != nil {
		return "", err
	}

	if err := p.Vectorize(ctx, doc.ID); err != nil {
		return doc.ID, fmt.Errorf("document %s stored but not vectorized: %w", doc.ID, err)
	}
	return doc.ID, nil
}

// UpdateDocument applies a partial update. When content changes the store
// invalidates the old chunk set transactionally; this method then clears the
// index entries and runs a fresh vectorization cycle before returning.
func (p *Pipeline) UpdateDocument(ctx context.Context, id string, patch knowledge.DocumentPatch) (*knowledge.Document, error) {
	doc, contentChanged, err := p.store.UpdateDocument(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if !contentChanged {
		return doc, nil
	}

	mu := p.lockFor(id)
	mu.Lock()
	err = p.index.DeleteByDocument(ctx, id)
	mu.Unlock()
	if err != nil {
		return doc, fmt.Errorf("clearing index for document %s: %w", id, err)
	}

	if err := p.Vectorize(ctx, id); err != nil {
		return doc, fmt.Errorf("document %s updated but not vectorized: %w", id, err)
	}
	return p.store.GetDocument(ctx, id)
}

// DeleteDocument removes the document, cascading to chunks and index
// entries. Returns false when the ID does not exist.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) (bool, error) {
	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	ok, err := p.store.DeleteDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := p.index.DeleteByDocument(ctx, id); err != nil {
		// The document is gone but index entries survived; retrieval will
		// drop them as inconsistencies, but this still needs operator eyes.
		p.logger.Error("index cascade failed after document delete",
			"document_id", id, "error", err)
		return true, fmt.Errorf("deleting index entries for %s: %w", id, err)
	}
	return true, nil
}

// Vectorize chunks and embeds the document's current content, committing
// the new chunk set and index entries atomically. If the content changes
// while embeddings are in flight, the commit is abandoned and the newer
// update's cycle wins.
func (p *Pipeline) Vectorize(ctx context.Context, id string) error {
	doc, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	contentHash := doc.ContentHash

	texts, err := chunker.Split(doc.Content, p.chunkSize, p.overlap)
	if err != nil {
		return fmt.Errorf("chunking document %s: %w", id, err)
	}
	if len(texts) == 0 {
		return fmt.Errorf("document %s has no content to vectorize", id)
	}

	// Remote call happens before any lock is taken.
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", id, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]knowledge.Chunk, len(texts))
	entries := make([]index.Entry, len(texts))
	for i, text := range texts {
		chunkID := uuid.New().String()
		chunks[i] = knowledge.Chunk{
			ID:             chunkID,
			DocumentID:     id,
			Content:        text,
			ChunkIndex:     i,
			EmbeddingModel: p.embedder.Model(),
			Embedding:      vectors[i],
			Category:       doc.Category,
			SubCategory:    doc.SubCategory,
			Difficulty:     doc.Difficulty,
		}
		entries[i] = index.Entry{
			ChunkID:    chunkID,
			DocumentID: id,
			Vector:     vectors[i],
			Category:   doc.Category,
			Difficulty: doc.Difficulty,
		}
	}

	mu := p.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	// Cheap staleness probe before touching the index.
	current, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if current.ContentHash != contentHash {
		p.logger.Debug("skipping stale vectorization", "document_id", id)
		return nil
	}

	if err := p.index.ReplaceDocument(ctx, id, entries); err != nil {
		return fmt.Errorf("storing vectors for document %s: %w", id, err)
	}

	if err := p.store.ReplaceChunks(ctx, id, contentHash, chunks); err != nil {
		if restoreErr := p.restoreIndex(ctx, id); restoreErr != nil {
			p.logger.Error("index restore failed after aborted chunk commit",
				"document_id", id, "error", restoreErr)
		}
		if errors.Is(err, knowledge.ErrStaleContent) {
			p.logger.Debug("vectorization lost the content race", "document_id", id)
			return nil
		}
		return fmt.Errorf("committing chunks for document %s: %w", id, err)
	}

	p.logger.Info("vectorized document", "document_id", id, "chunks", len(chunks))
	return nil
}

// RebuildIndex reloads every embedded chunk from the store into the vector
// index. Used at startup when the index is in-process and empty.
func (p *Pipeline) RebuildIndex(ctx context.Context) (int, error) {
	chunks, err := p.store.EmbeddedChunks(ctx)
	if err != nil {
		return 0, err
	}

	byDoc := make(map[string][]index.Entry)
	for _, c := range chunks {
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], index.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Vector:     c.Embedding,
			Category:   c.Category,
			Difficulty: c.Difficulty,
		})
	}

	total := 0
	for docID, entries := range byDoc {
		if err := p.index.ReplaceDocument(ctx, docID, entries); err != nil {
			return total, fmt.Errorf("rebuilding index for document %s: %w", docID, err)
		}
		total += len(entries)
	}

	p.logger.Info("rebuilt vector index", "documents", len(byDoc), "entries", total)
	return total, nil
}

// restoreIndex resets the document's index entries to whatever chunk set is
// currently committed in the store. Caller must hold the document lock.
func (p *Pipeline) restoreIndex(ctx context.Context, id string) error {
	chunks, err := p.store.ChunksByDocument(ctx, id)
	if err != nil {
		return err
	}
	entries := make([]index.Entry, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		entries = append(entries, index.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Vector:     c.Embedding,
			Category:   c.Category,
			Difficulty: c.Difficulty,
		})
	}
	return p.index.ReplaceDocument(ctx, id, entries)
}

func (p *Pipeline) lockFor(id string) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
