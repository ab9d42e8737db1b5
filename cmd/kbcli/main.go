// Package main provides the kbcli tool for managing the study knowledge base.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/planly/study-kb-server/internal/config"
	"github.com/planly/study-kb-server/internal/embedding"
	"github.com/planly/study-kb-server/internal/github"
	"github.com/planly/study-kb-server/internal/importer"
	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/ingest"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/metadata"
	"github.com/planly/study-kb-server/internal/retrieval"
	"github.com/planly/study-kb-server/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "kbcli",
	Short: "Study knowledge base management tool",
	Long:  "CLI tool for importing, searching and inspecting the study knowledge base",
}

var (
	importDir      string
	importJSON     string
	importOwner    string
	importRepo     string
	importPath     string
	importCategory string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import study material in bulk",
	Long: `Import knowledge files from a local directory, a JSON batch file,
or a GitHub repository directory.

Exactly one source must be given:
  --dir     local directory of .md/.txt files
  --json    JSON batch file (array of documents)
  --owner + --repo [--path]  GitHub repository directory

Environment variables:
  KB_DB_PATH     SQLite database path (default: study-kb.db)
  QDRANT_HOST    Qdrant hostname; unset uses the in-memory index
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
	RunE: runImport,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantically search stored study material",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base counts and consistency findings",
	RunE:  runStatus,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	listCategory string
	listLimit    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents in creation order",
	RunE:  runList,
}

var historyUser string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent searches for a user",
	RunE:  runHistory,
}

var (
	searchCategory string
	searchTopK     int
	searchMinScore float64
)

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "local directory to import")
	importCmd.Flags().StringVar(&importJSON, "json", "", "JSON batch file to import")
	importCmd.Flags().StringVar(&importOwner, "owner", "", "GitHub repository owner")
	importCmd.Flags().StringVar(&importRepo, "repo", "", "GitHub repository name")
	importCmd.Flags().StringVar(&importPath, "path", "", "directory within the GitHub repository")
	importCmd.Flags().StringVar(&importCategory, "category", "general", "default category for imported documents")

	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict results to one category")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum relevance score")

	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum documents to list")

	historyCmd.Flags().StringVar(&historyUser, "user", "", "user whose history to show")

	rootCmd.AddCommand(importCmd, searchCmd, statusCmd, deleteCmd, listCmd, historyCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components behind one setup path.
type app struct {
	cfg         *config.Config
	store       *store.Store
	pipeline    *ingest.Pipeline
	coordinator *retrieval.Coordinator
	index       index.Counter
	close       func()
}

// setup opens the store, selects the index and wires the pipeline. When
// needEmbedder is false a missing API key is tolerated (read-only commands).
func setup(ctx context.Context, needEmbedder bool) (*app, error) {
	cfg := config.Load()
	logger := slog.Default()

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var embedder embedding.Embedder
	var generator *metadata.Generator
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		if needEmbedder {
			st.Close()
			return nil, err
		}
		embedder = embedding.Unavailable{}
	} else {
		embedder = embedding.NewOpenAIEmbedder(embeddingClient, 0)
		if cfg.GenerateMetadata {
			generator = metadata.NewGenerator(embeddingClient.Client())
		}
	}

	var idx index.Index
	var counter index.Counter
	closeIdx := func() {}
	if cfg.UseQdrant() {
		qdrant, err := index.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, embedder.Dimension())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		if err := qdrant.EnsureCollection(ctx); err != nil {
			qdrant.Close()
			st.Close()
			return nil, fmt.Errorf("failed to ensure collection: %w", err)
		}
		idx = qdrant
		counter = qdrant
		closeIdx = func() { qdrant.Close() }
	} else {
		mem := index.NewMemory(embedder.Dimension())
		idx = mem
		counter = mem
	}

	pipeline := ingest.NewPipeline(st, embedder, idx, generator, logger)
	if err := pipeline.SetChunking(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		closeIdx()
		st.Close()
		return nil, err
	}

	if !cfg.UseQdrant() {
		if _, err := pipeline.RebuildIndex(ctx); err != nil {
			closeIdx()
			st.Close()
			return nil, fmt.Errorf("failed to rebuild index: %w", err)
		}
	}

	return &app{
		cfg:         cfg,
		store:       st,
		pipeline:    pipeline,
		coordinator: retrieval.NewCoordinator(st, embedder, idx, logger),
		index:       counter,
		close: func() {
			closeIdx()
			st.Close()
		},
	}, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sources := 0
	if importDir != "" {
		sources++
	}
	if importJSON != "" {
		sources++
	}
	if importOwner != "" || importRepo != "" {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of --dir, --json or --owner/--repo must be given")
	}

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	im := importer.NewImporter(a.pipeline, a.store, slog.Default())

	var result *importer.Result
	switch {
	case importDir != "":
		fmt.Printf("Importing directory %s...\n", importDir)
		result, err = im.ImportDirectory(ctx, importDir, importCategory)
	case importJSON != "":
		fmt.Printf("Importing batch file %s...\n", importJSON)
		result, err = im.ImportJSONFile(ctx, importJSON)
	default:
		fmt.Printf("Importing from github.com/%s/%s...\n", importOwner, importRepo)
		var src *github.Source
		src, err = github.NewSource(importOwner, importRepo, importPath)
		if err != nil {
			return err
		}
		result, err = im.ImportGitHub(ctx, src, importCategory)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Import complete!")
	fmt.Printf("  Documents: %d/%d\n", result.Imported, result.TotalFiles)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.CommitSHA != "" {
		fmt.Printf("  Commit: %s\n", result.CommitSHA)
	}

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.Join(args, " ")

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.coordinator.Search(ctx, query, "kbcli", retrieval.SearchOptions{
		Category: searchCategory,
		TopK:     searchTopK,
		MinScore: float32(searchMinScore),
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No matching study material found.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (document %s)\n", i+1, r.Score, r.ChunkID, r.DocumentID)
		fmt.Printf("   %s\n", snippet(r.Content, 160))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	fmt.Printf("Documents:      %d (%d vectorized)\n", stats.Documents, stats.Vectorized)
	fmt.Printf("Chunks:         %d\n", stats.Chunks)
	if points, err := a.index.Count(ctx); err != nil {
		fmt.Printf("Indexed points: unavailable (%v)\n", err)
	} else {
		fmt.Printf("Indexed points: %d\n", points)
	}
	fmt.Printf("Search queries: %d\n", stats.SearchQueries)

	problems, err := a.store.CheckConsistency(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}
	if len(problems) == 0 {
		fmt.Println("Consistency:    OK")
		return nil
	}
	fmt.Println("Consistency problems:")
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := a.pipeline.DeleteDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("No document with ID %s\n", args[0])
		return nil
	}
	fmt.Printf("Deleted document %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.store.ListDocuments(ctx, knowledge.ListFilter{
		Category: listCategory,
		Limit:    listLimit,
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents stored.")
		return nil
	}
	for _, d := range docs {
		marker := " "
		if d.Vectorized {
			marker = "*"
		}
		fmt.Printf("%s %s  %-24s %s (%d chunks)\n", marker, d.ID, d.Category, d.Title, d.ChunkCount)
	}
	fmt.Println()
	fmt.Println("* = vectorized")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if historyUser == "" {
		return fmt.Errorf("--user is required")
	}

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.ListSearchHistory(ctx, historyUser, 0)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No search history.")
		return nil
	}
	for _, e := range entries {
		status := fmt.Sprintf("%d matches", len(e.MatchedChunks))
		if e.Failed {
			status = "failed"
		}
		fmt.Printf("%s  %-10s %-40q %s\n", e.CreatedAt.Format(time.RFC3339), e.UserID, e.Query, status)
	}
	return nil
}

// snippet shortens content for terminal output.
func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
