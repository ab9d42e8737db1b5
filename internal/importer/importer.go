// Package importer loads knowledge files in bulk: a local directory, a
// JSON batch file, or a GitHub repository directory.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/planly/study-kb-server/internal/github"
	"github.com/planly/study-kb-server/internal/ingest"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/markdown"
	"github.com/planly/study-kb-server/internal/store"
)

// Result contains statistics about one import run.
type Result struct {
	TotalFiles  int
	Imported    int
	TotalChunks int
	Failed      []FailedFile
	CommitSHA   string // set for GitHub imports
	Duration    time.Duration
}

// FailedFile records one file that could not be imported.
type FailedFile struct {
	Path   string
	Reason string
}

// Importer feeds documents through the ingestion pipeline, collecting
// per-file failures instead of aborting the batch.
type Importer struct {
	pipeline  *ingest.Pipeline
	store     *store.Store
	inspector *markdown.Inspector
	logger    *slog.Logger
}

// NewImporter creates a batch importer. logger may be nil.
func NewImporter(pipeline *ingest.Pipeline, st *store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		pipeline:  pipeline,
		store:     st,
		inspector: markdown.NewInspector(),
		logger:    logger,
	}
}

// ImportDirectory walks root for .md and .txt files and ingests each one.
// The title comes from the first markdown heading, falling back to the file
// name; the category comes from the file's first subdirectory under root,
// falling back to defaultCategory.
func (im *Importer) ImportDirectory(ctx context.Context, root, defaultCategory string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isKnowledgeFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	result.TotalFiles = len(paths)
	im.logger.Info("importing directory", "root", root, "files", len(paths))

	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		chunks, err := im.importLocalFile(ctx, path, rel, defaultCategory)
		if err != nil {
			im.logger.Warn("failed to import file", "path", rel, "error", err)
			result.Failed = append(result.Failed, FailedFile{Path: rel, Reason: err.Error()})
			continue
		}
		result.Imported++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	im.logResult("directory import complete", result)
	return result, nil
}

func (im *Importer) importLocalFile(ctx context.Context, path, rel, defaultCategory string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return 0, fmt.Errorf("file is empty")
	}

	category := defaultCategory
	if dir := firstPathElement(rel); dir != "" {
		category = dir
	}

	doc := &knowledge.Document{
		Title:    im.titleFor(rel, content),
		Content:  string(content),
		Category: category,
		Source:   rel,
		Keywords: im.keywordsFor(rel, content),
	}
	return im.ingestOne(ctx, doc)
}

// batchEntry is one document in a JSON batch file.
type batchEntry struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	Source      string   `json:"source"`
	Author      string   `json:"author"`
	Difficulty  string   `json:"difficulty_level"`
	Stage       string   `json:"stage"`
}

// ImportJSONFile ingests a JSON array of documents. Entries failing
// validation or vectorization are collected, not fatal.
func (im *Importer) ImportJSONFile(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var entries []batchEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	result := &Result{TotalFiles: len(entries)}
	im.logger.Info("importing JSON batch", "path", path, "entries", len(entries))

	for i, e := range entries {
		doc := &knowledge.Document{
			Title:       e.Title,
			Content:     e.Content,
			Category:    e.Category,
			SubCategory: e.SubCategory,
			Summary:     e.Summary,
			Keywords:    e.Keywords,
			Source:      e.Source,
			Author:      e.Author,
			Difficulty:  e.Difficulty,
			Stage:       e.Stage,
		}
		chunks, err := im.ingestOne(ctx, doc)
		if err != nil {
			name := fmt.Sprintf("entry %d (%s)", i, e.Title)
			im.logger.Warn("failed to import entry", "entry", name, "error", err)
			result.Failed = append(result.Failed, FailedFile{Path: name, Reason: err.Error()})
			continue
		}
		result.Imported++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	im.logResult("JSON import complete", result)
	return result, nil
}

// ImportGitHub ingests every knowledge file under the source's repository
// directory. Documents record the file's raw URL as their source; the head
// commit SHA is returned in the result for audit.
func (im *Importer) ImportGitHub(ctx context.Context, src *github.Source, category string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	sha, err := src.LatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving head commit: %w", err)
	}
	result.CommitSHA = sha

	paths, err := src.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	result.TotalFiles = len(paths)
	im.logger.Info("importing from GitHub", "files", len(paths), "commit", sha)

	for _, path := range paths {
		chunks, err := im.importRemoteFile(ctx, src, path, category)
		if err != nil {
			im.logger.Warn("failed to import file", "path", path, "error", err)
			result.Failed = append(result.Failed, FailedFile{Path: path, Reason: err.Error()})
			continue
		}
		result.Imported++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	im.logResult("GitHub import complete", result)
	return result, nil
}

func (im *Importer) importRemoteFile(ctx context.Context, src *github.Source, path, category string) (int, error) {
	fetched, err := src.FetchFile(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	content := []byte(fetched.Content)
	doc := &knowledge.Document{
		Title:    im.titleFor(path, content),
		Content:  fetched.Content,
		Category: category,
		Source:   fetched.URL,
		Keywords: im.keywordsFor(path, content),
	}
	return im.ingestOne(ctx, doc)
}

// ingestOne adds the document and reports how many chunks it produced.
func (im *Importer) ingestOne(ctx context.Context, doc *knowledge.Document) (int, error) {
	id, err := im.pipeline.AddDocument(ctx, doc)
	if err != nil {
		return 0, err
	}
	stored, err := im.store.GetDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	return stored.ChunkCount, nil
}

// titleFor extracts a document title from markdown headings, falling back
// to the file name without extension.
func (im *Importer) titleFor(path string, content []byte) string {
	if strings.HasSuffix(path, ".md") {
		title, err := im.inspector.ExtractTitle(content)
		if err == nil && title != "" {
			return title
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// keywordsFor seeds keywords from markdown section titles.
func (im *Importer) keywordsFor(path string, content []byte) []string {
	if !strings.HasSuffix(path, ".md") {
		return nil
	}
	titles, err := im.inspector.SectionTitles(content)
	if err != nil {
		return nil
	}
	return titles
}

func (im *Importer) logResult(msg string, r *Result) {
	im.logger.Info(msg,
		"imported", r.Imported,
		"failed", len(r.Failed),
		"chunks", r.TotalChunks,
		"duration", r.Duration,
	)
}

func firstPathElement(rel string) string {
	rel = filepath.ToSlash(rel)
	if i := strings.Index(rel, "/"); i > 0 {
		return rel[:i]
	}
	return ""
}

func isKnowledgeFile(name string) bool {
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt")
}
