package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/planly/study-kb-server/internal/index"
	"github.com/planly/study-kb-server/internal/ingest"
	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/retrieval"
	"github.com/planly/study-kb-server/internal/store"
)

// makeAddHandler creates the add_document tool handler. A vectorization
// failure is reported in the output message rather than failing the call:
// the document is stored and can be vectorized later.
func makeAddHandler(pipeline *ingest.Pipeline, st *store.Store) func(
	context.Context, *mcp.CallToolRequest, AddDocumentInput,
) (*mcp.CallToolResult, AddDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AddDocumentInput) (
		*mcp.CallToolResult, AddDocumentOutput, error,
	) {
		doc := &knowledge.Document{
			Title:       input.Title,
			Content:     input.Content,
			Category:    input.Category,
			SubCategory: input.SubCategory,
			Summary:     input.Summary,
			Keywords:    input.Keywords,
			Source:      input.Source,
			Author:      input.Author,
			Difficulty:  input.Difficulty,
			Stage:       input.Stage,
		}

		id, err := pipeline.AddDocument(ctx, doc)
		if err != nil {
			if id == "" {
				return nil, AddDocumentOutput{}, fmt.Errorf("add document: %w", err)
			}
			return nil, AddDocumentOutput{
				DocumentID: id,
				Message:    fmt.Sprintf("Document stored but not yet searchable: %v", err),
			}, nil
		}

		stored, err := st.GetDocument(ctx, id)
		if err != nil {
			return nil, AddDocumentOutput{}, fmt.Errorf("load stored document: %w", err)
		}
		return nil, AddDocumentOutput{
			DocumentID: id,
			Vectorized: stored.Vectorized,
			ChunkCount: stored.ChunkCount,
		}, nil
	}
}

// makeUpdateHandler creates the update_document tool handler.
func makeUpdateHandler(pipeline *ingest.Pipeline) func(
	context.Context, *mcp.CallToolRequest, UpdateDocumentInput,
) (*mcp.CallToolResult, UpdateDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input UpdateDocumentInput) (
		*mcp.CallToolResult, UpdateDocumentOutput, error,
	) {
		patch := knowledge.DocumentPatch{
			Title:       input.Title,
			Content:     input.Content,
			Category:    input.Category,
			SubCategory: input.SubCategory,
			Summary:     input.Summary,
			Keywords:    input.Keywords,
			Source:      input.Source,
			Author:      input.Author,
			Difficulty:  input.Difficulty,
			Stage:       input.Stage,
		}

		doc, err := pipeline.UpdateDocument(ctx, input.ID, patch)
		if err != nil {
			if doc == nil {
				return nil, UpdateDocumentOutput{}, fmt.Errorf("update document: %w", err)
			}
			// The metadata update committed; only re-vectorization failed.
			return nil, UpdateDocumentOutput{
				Document: toDocumentInfo(doc),
				Message:  fmt.Sprintf("Document updated but not yet searchable: %v", err),
			}, nil
		}
		return nil, UpdateDocumentOutput{Document: toDocumentInfo(doc)}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
func makeDeleteHandler(pipeline *ingest.Pipeline) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		deleted, err := pipeline.DeleteDocument(ctx, input.ID)
		if err != nil {
			return nil, DeleteDocumentOutput{}, fmt.Errorf("delete document: %w", err)
		}
		return nil, DeleteDocumentOutput{Deleted: deleted}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(st *store.Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := st.ListDocuments(ctx, knowledge.ListFilter{
			Category:   input.Category,
			Difficulty: input.Difficulty,
			Stage:      input.Stage,
			Offset:     input.Offset,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("list documents: %w", err)
		}

		infos := make([]DocumentInfo, len(docs))
		for i := range docs {
			infos[i] = toDocumentInfo(&docs[i])
		}
		return nil, ListDocumentsOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// makeSearchHandler creates the search_knowledge tool handler. An embedder
// outage yields an empty result set with an explanatory message, matching
// the coordinator's degradation contract.
func makeSearchHandler(coord *retrieval.Coordinator) func(
	context.Context, *mcp.CallToolRequest, SearchKnowledgeInput,
) (*mcp.CallToolResult, SearchKnowledgeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchKnowledgeInput) (
		*mcp.CallToolResult, SearchKnowledgeOutput, error,
	) {
		results, err := coord.Search(ctx, input.Query, input.UserID, retrieval.SearchOptions{
			Category: input.Category,
			TopK:     input.TopK,
			MinScore: float32(input.MinScore),
		})
		if err != nil {
			if errors.Is(err, knowledge.ErrValidation) {
				return nil, SearchKnowledgeOutput{}, err
			}
			return nil, SearchKnowledgeOutput{}, fmt.Errorf("search failed: %w", err)
		}

		matches := make([]SearchMatch, len(results))
		for i, r := range results {
			matches[i] = SearchMatch{
				ChunkID:    r.ChunkID,
				DocumentID: r.DocumentID,
				Content:    r.Content,
				Score:      float64(r.Score),
				Category:   r.Category,
				Difficulty: r.Difficulty,
			}
		}

		out := SearchKnowledgeOutput{Results: matches}
		if len(matches) == 0 {
			out.Message = "No matching study material found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeContextHandler creates the get_study_context tool handler.
func makeContextHandler(coord *retrieval.Coordinator) func(
	context.Context, *mcp.CallToolRequest, GetStudyContextInput,
) (*mcp.CallToolResult, GetStudyContextOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetStudyContextInput) (
		*mcp.CallToolResult, GetStudyContextOutput, error,
	) {
		block, err := coord.GetContextForChat(ctx, input.Message, input.UserID, input.MaxLength)
		if err != nil {
			return nil, GetStudyContextOutput{}, fmt.Errorf("assemble context: %w", err)
		}
		return nil, GetStudyContextOutput{Context: block}, nil
	}
}

// makeStatusHandler creates the kb_status tool handler, combining store
// counts with the index point count and an invariant check over chunks and
// vectorized flags. An unreachable index is reported as a consistency
// problem rather than failing the whole status call.
func makeStatusHandler(st *store.Store, counter index.Counter) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := st.GetStats(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("collect stats: %w", err)
		}

		problems, err := st.CheckConsistency(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("check consistency: %w", err)
		}
		if problems == nil {
			problems = []string{}
		}

		var points uint64
		if counter != nil {
			points, err = counter.Count(ctx)
			if err != nil {
				problems = append(problems, fmt.Sprintf("index point count unavailable: %v", err))
			}
		}

		return nil, StatusOutput{
			TotalDocuments:    stats.Documents,
			VectorizedDocs:    stats.Vectorized,
			TotalChunks:       stats.Chunks,
			IndexedPoints:     points,
			SearchQueries:     stats.SearchQueries,
			ConsistencyReport: problems,
			Consistent:        len(problems) == 0,
		}, nil
	}
}

func toDocumentInfo(doc *knowledge.Document) DocumentInfo {
	keywords := doc.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return DocumentInfo{
		ID:          doc.ID,
		Title:       doc.Title,
		Category:    doc.Category,
		SubCategory: doc.SubCategory,
		Summary:     doc.Summary,
		Keywords:    keywords,
		Source:      doc.Source,
		Author:      doc.Author,
		Difficulty:  doc.Difficulty,
		Stage:       doc.Stage,
		Vectorized:  doc.Vectorized,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
