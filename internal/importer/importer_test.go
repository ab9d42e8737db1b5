package importer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/ingest"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/store"
)

type stubEmbedder struct{}

func (stubEmbedder) Model() string { return "stub-embedder" }

func (stubEmbedder) Dimension() int { return 3 }

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i), 0}
	}
	return out, nil
}

func newTestImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "kb.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pipeline := ingest.NewPipeline(st, stubEmbedder{}, index.NewMemory(3), nil, slog.Default())
	return NewImporter(pipeline, st, slog.Default()), st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestImportDirectory(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "math", "algebra.md"),
		"# Algebra Basics\n\nSolving linear equations.\n\n## Factoring\n\nSplit into products.\n")
	writeFile(t, filepath.Join(root, "history", "rome.txt"),
		"The Roman Republic preceded the Empire.")
	writeFile(t, filepath.Join(root, "notes.md"),
		"No heading here, just prose.")
	writeFile(t, filepath.Join(root, "ignored.pdf"), "binary-ish")

	result, err := im.ImportDirectory(ctx, root, "general")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFiles, "non-knowledge files are not counted")
	assert.Equal(t, 3, result.Imported)
	assert.Empty(t, result.Failed)
	assert.Positive(t, result.TotalChunks)

	docs, err := st.ListDocuments(ctx, knowledge.ListFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	byTitle := map[string]knowledge.Document{}
	for _, d := range docs {
		byTitle[d.Title] = d
	}

	algebra, ok := byTitle["Algebra Basics"]
	require.True(t, ok, "markdown title should come from the first heading")
	assert.Equal(t, "math", algebra.Category)
	assert.Contains(t, algebra.Keywords, "Factoring")
	assert.True(t, algebra.Vectorized)

	rome, ok := byTitle["rome"]
	require.True(t, ok, "txt title should fall back to the file name")
	assert.Equal(t, "history", rome.Category)

	notes, ok := byTitle["notes"]
	require.True(t, ok, "heading-less markdown falls back to the file name")
	assert.Equal(t, "general", notes.Category, "root-level files use the default category")
}

func TestImportDirectory_CollectsFailures(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "good.md"), "# Good\n\nContent.\n")
	writeFile(t, filepath.Join(root, "empty.md"), "   \n")

	result, err := im.ImportDirectory(ctx, root, "general")
	require.NoError(t, err, "per-file failures must not abort the batch")
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "empty.md", result.Failed[0].Path)
	assert.NotEmpty(t, result.Failed[0].Reason)
}

func TestImportJSONFile(t *testing.T) {
	im, st := newTestImporter(t)
	ctx := context.Background()

	batch := `[
		{
			"title": "Pomodoro Technique",
			"content": "Work in timed intervals with short breaks.",
			"category": "study-methods",
			"sub_category": "time-management",
			"difficulty_level": "beginner",
			"stage": "foundation",
			"keywords": ["pomodoro", "focus"],
			"source": "handbook",
			"author": "Planly Team"
		},
		{
			"title": "Broken Entry",
			"content": "",
			"category": "study-methods"
		}
	]`
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o644))

	result, err := im.ImportJSONFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Path, "Broken Entry")

	docs, err := st.ListDocuments(ctx, knowledge.ListFilter{Category: "study-methods"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "Pomodoro Technique", doc.Title)
	assert.Equal(t, "time-management", doc.SubCategory)
	assert.Equal(t, "beginner", doc.Difficulty)
	assert.Equal(t, "foundation", doc.Stage)
	assert.Equal(t, []string{"pomodoro", "focus"}, doc.Keywords)
	assert.Equal(t, "Planly Team", doc.Author)
	assert.True(t, doc.Vectorized)
}

func TestImportJSONFile_MalformedFile(t *testing.T) {
	im, _ := newTestImporter(t)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := im.ImportJSONFile(context.Background(), path)
	require.Error(t, err)
}

func TestImportDirectory_Empty(t *testing.T) {
	im, _ := newTestImporter(t)

	result, err := im.ImportDirectory(context.Background(), t.TempDir(), "general")
	require.NoError(t, err)
	assert.Zero(t, result.TotalFiles)
	assert.Zero(t, result.Imported)
}

func TestFirstPathElement(t *testing.T) {
	cases := []struct {
		rel  string
		want string
	}{
		{"math/algebra.md", "math"},
		{"notes.md", ""},
		{filepath.Join("a", "b", "c.md"), "a"},
	}
	for _, tc := range cases {
		if got := firstPathElement(tc.rel); got != tc.want {
			t.Errorf("firstPathElement(%q) = %q, want %q", tc.rel, got, tc.want)
		}
	}
}
