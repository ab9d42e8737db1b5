// Package main provides the MCP server entry point for the study knowledge base.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/planly/study-kb-server/internal/config"
	"github.com/planly/study-kb-server/internal/embedding"
	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/ingest"
	mcpserver "github.com/planly/study-kb-server/internal/mcp"
	"github.com/planly/study-kb-server/internal/metadata"
	"github.com/planly/study-kb-server/internal/retrieval"
	"github.com/planly/study-kb-server/internal/store"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg := config.Load()
	logger := slog.Default()

	// Open the document store
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	// Embedding backend: degrade rather than refuse to start when no API
	// key is configured.
	var embedder embedding.Embedder
	var generator *metadata.Generator
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Printf("embedding backend unavailable, search will return empty results: %v", err)
		embedder = embedding.Unavailable{}
	} else {
		embedder = embedding.NewOpenAIEmbedder(embeddingClient, 0) // default batch size
		if cfg.GenerateMetadata {
			generator = metadata.NewGenerator(embeddingClient.Client())
		}
	}

	// Vector index: Qdrant when configured, in-memory otherwise.
	var idx index.Index
	var counter index.Counter
	var indexHealth mcpserver.HealthChecker
	if cfg.UseQdrant() {
		qdrant, err := index.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, embedder.Dimension())
		if err != nil {
			log.Fatalf("failed to connect to Qdrant: %v", err)
		}
		defer qdrant.Close()
		if err := qdrant.EnsureCollection(ctx); err != nil {
			log.Fatalf("failed to ensure collection: %v", err)
		}
		idx = qdrant
		counter = qdrant
		indexHealth = qdrant
	} else {
		mem := index.NewMemory(embedder.Dimension())
		idx = mem
		counter = mem
	}

	pipeline := ingest.NewPipeline(st, embedder, idx, generator, logger)
	if err := pipeline.SetChunking(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		log.Fatalf("invalid chunking settings: %v", err)
	}

	// The in-memory index starts empty; reload it from committed chunks.
	if !cfg.UseQdrant() {
		if _, err := pipeline.RebuildIndex(ctx); err != nil {
			log.Fatalf("failed to rebuild index: %v", err)
		}
	}

	coordinator := retrieval.NewCoordinator(st, embedder, idx, logger)

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:       st,
		Pipeline:    pipeline,
		Coordinator: coordinator,
		Index:       counter,
	})

	// HTTP endpoints: landing page, health check, MCP Streamable HTTP.
	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(st, indexHealth))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server))

	if cfg.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		addr := "0.0.0.0:" + cfg.Port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: run MCP server over stdin/stdout for local clients
		// Also start HTTP health endpoint in background for local testing
		go func() {
			addr := "0.0.0.0:" + cfg.Port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting Study KB MCP Server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
}
