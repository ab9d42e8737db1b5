package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/store"
)

// fakeEmbedder produces deterministic vectors without network calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeEmbedder) Model() string { return "fake-embedder" }

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: upstream unavailable", knowledge.ErrEmbeddingUnavailable)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), float32(i + 1), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *index.Memory, *fakeEmbedder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "kb.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := &fakeEmbedder{}
	idx := index.NewMemory(emb.Dimension())
	return NewPipeline(st, emb, idx, nil, slog.Default()), st, idx, emb
}

func studyDoc(content string) *knowledge.Document {
	return &knowledge.Document{
		Title:      "Spaced Repetition Basics",
		Content:    content,
		Category:   "study-methods",
		Difficulty: "beginner",
	}
}

func TestAddDocument_Vectorizes(t *testing.T) {
	p, st, idx, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.SetChunking(40, 10))

	content := "Spaced repetition schedules reviews at increasing intervals so material is recalled just before it would be forgotten."
	id, err := p.AddDocument(ctx, studyDoc(content))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.True(t, doc.Vectorized)
	assert.Greater(t, doc.ChunkCount, 1)

	chunks, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)
	assert.Equal(t, doc.ChunkCount, idx.Len())

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "fake-embedder", c.EmbeddingModel)
		assert.Len(t, c.Embedding, 3)
		assert.Equal(t, doc.Category, c.Category)
	}
}

func TestAddDocument_EmbedFailureKeepsDocument(t *testing.T) {
	p, st, idx, emb := newTestPipeline(t)
	ctx := context.Background()

	emb.setFail(true)
	id, err := p.AddDocument(ctx, studyDoc("Short note on active recall."))
	require.Error(t, err)
	assert.ErrorIs(t, err, knowledge.ErrEmbeddingUnavailable)
	require.NotEmpty(t, id, "document ID is returned even when vectorization fails")

	doc, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.False(t, doc.Vectorized)
	assert.Zero(t, doc.ChunkCount)
	assert.Zero(t, idx.Len())

	// Recovery: a later explicit vectorization finishes the job.
	emb.setFail(false)
	require.NoError(t, p.Vectorize(ctx, id))
	doc, err = st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.True(t, doc.Vectorized)
	assert.Equal(t, doc.ChunkCount, idx.Len())
}

func TestUpdateDocument_ContentChangeRevectorizes(t *testing.T) {
	p, st, idx, _ := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.AddDocument(ctx, studyDoc("Original notes on the Feynman technique."))
	require.NoError(t, err)

	before, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	newContent := "Rewritten notes: explain the concept in plain words, find the gaps, simplify again."
	doc, err := p.UpdateDocument(ctx, id, knowledge.DocumentPatch{Content: &newContent})
	require.NoError(t, err)
	assert.True(t, doc.Vectorized)
	assert.Equal(t, newContent, doc.Content)

	after, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, after)
	assert.NotEqual(t, before[0].ID, after[0].ID, "content change must mint new chunks")
	assert.Equal(t, len(after), idx.Len())
}

func TestUpdateDocument_MetadataOnlyKeepsChunks(t *testing.T) {
	p, st, _, emb := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.AddDocument(ctx, studyDoc("Interleaving mixes problem types within one session."))
	require.NoError(t, err)

	before, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	callsBefore := emb.calls

	title := "Interleaved Practice"
	doc, err := p.UpdateDocument(ctx, id, knowledge.DocumentPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Interleaved Practice", doc.Title)
	assert.True(t, doc.Vectorized)

	after, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, callsBefore, emb.calls, "metadata-only update must not re-embed")
}

func TestUpdateDocument_EmbedFailureLeavesInvalidated(t *testing.T) {
	p, st, idx, emb := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.AddDocument(ctx, studyDoc("Notes that will be replaced."))
	require.NoError(t, err)

	emb.setFail(true)
	newContent := "Replacement content that cannot be embedded right now."
	_, err = p.UpdateDocument(ctx, id, knowledge.DocumentPatch{Content: &newContent})
	require.Error(t, err)
	assert.ErrorIs(t, err, knowledge.ErrEmbeddingUnavailable)

	doc, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newContent, doc.Content, "content update commits even when embedding fails")
	assert.False(t, doc.Vectorized)
	assert.Zero(t, doc.ChunkCount)

	chunks, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, idx.Len(), "stale vectors must not survive a content change")
}

func TestDeleteDocument_CascadesIndex(t *testing.T) {
	p, st, idx, _ := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.AddDocument(ctx, studyDoc("Disposable document."))
	require.NoError(t, err)
	require.Positive(t, idx.Len())

	ok, err := p.DeleteDocument(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, idx.Len())

	_, err = st.GetDocument(ctx, id)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)

	ok, err = p.DeleteDocument(ctx, "missing-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebuildIndex(t *testing.T) {
	p, st, idx, emb := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.AddDocument(ctx, studyDoc("First document about mind mapping."))
	require.NoError(t, err)
	_, err = p.AddDocument(ctx, studyDoc("Second document about Cornell note taking."))
	require.NoError(t, err)
	want := idx.Len()
	require.Positive(t, want)

	// Simulate a fresh process: new empty index, rebuilt from the store.
	fresh := index.NewMemory(emb.Dimension())
	p2 := NewPipeline(st, emb, fresh, nil, slog.Default())
	total, err := p2.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, total)
	assert.Equal(t, want, fresh.Len())
}

func TestConcurrentVectorize_SameDocument(t *testing.T) {
	p, st, idx, _ := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.AddDocument(ctx, studyDoc("Document hammered by concurrent vectorization."))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Vectorize(ctx, id))
		}()
	}
	wg.Wait()

	doc, err := st.GetDocument(ctx, id)
	require.NoError(t, err)
	chunks, err := st.ChunksByDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)
	assert.Equal(t, doc.ChunkCount, idx.Len(), "index holds exactly one entry per committed chunk")
}
