package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/ingest"
	"github.com/planly/study-kb-server/internal/retrieval"
	"github.com/planly/study-kb-server/internal/store"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server      *mcp.Server
	store       *store.Store
	pipeline    *ingest.Pipeline
	coordinator *retrieval.Coordinator
}

// Config holds server dependencies. Index is optional; when set, kb_status
// includes the index point count.
type Config struct {
	Store       *store.Store
	Pipeline    *ingest.Pipeline
	Coordinator *retrieval.Coordinator
	Index       index.Counter
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "study-kb-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_document",
		Description: "Add study material to the knowledge base. The document is chunked and embedded so it becomes semantically searchable.",
	}, makeAddHandler(cfg.Pipeline, cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_document",
		Description: "Update a stored document. Fields left out keep their values; replacing content re-chunks and re-embeds the document.",
	}, makeUpdateHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its chunks and vectors.",
	}, makeDeleteHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List stored documents with optional category, difficulty and stage filters, in creation order.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Semantically search stored study material. Returns matching chunks with relevance scores.",
	}, makeSearchHandler(cfg.Coordinator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_study_context",
		Description: "Assemble a bounded reference block of relevant study material for a chat message. Returns an empty string when nothing relevant is stored.",
	}, makeContextHandler(cfg.Coordinator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "kb_status",
		Description: "Report knowledge base counts and the result of an internal consistency check.",
	}, makeStatusHandler(cfg.Store, cfg.Index))

	return &Server{
		server:      server,
		store:       cfg.Store,
		pipeline:    cfg.Pipeline,
		coordinator: cfg.Coordinator,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
