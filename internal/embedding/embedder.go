// Package embedding maps text to fixed-dimension vectors. The production
// implementation calls the OpenAI embeddings API; callers depend on the
// Embedder interface so tests can substitute a deterministic backend.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/planly/study-kb-server/internal/knowledge"
)

const (
	// Model is the OpenAI model used for generating embeddings.
	Model = "text-embedding-3-small"

	// Dimension is the vector size produced by Model.
	Dimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits. OpenAI accepts up to 2048 texts per batch.
	DefaultBatchSize = 500

	// requestTimeout bounds each remote call so a slow upstream cannot
	// stall ingestion or retrieval indefinitely.
	requestTimeout = 30 * time.Second
)

// Embedder converts an ordered sequence of texts into one vector per input,
// in the same order. Identical inputs yield identical vectors (modulo
// backend determinism), so retries are safe. Implementations must fail with
// knowledge.ErrEmbeddingUnavailable instead of substituting placeholder
// vectors.
type Embedder interface {
	Model() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder generates embeddings via the OpenAI API, batching requests
// and retrying rate-limit errors with exponential backoff.
type OpenAIEmbedder struct {
	client    *Client
	batchSize int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder with the given client and optional
// batch size (0 means DefaultBatchSize).
func NewOpenAIEmbedder(client *Client, batchSize int) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    client,
		batchSize: batchSize,
	}
}

// Model returns the embedding model name recorded on chunks.
func (e *OpenAIEmbedder) Model() string { return Model }

// Dimension returns the fixed vector size.
func (e *OpenAIEmbedder) Dimension() int { return Dimension }

// Embed generates embeddings for the given texts, one vector per input in
// input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch. Rate-limit
// errors (HTTP 429) retry with exponential backoff; everything else is
// permanent and reported as ErrEmbeddingUnavailable.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		resp, err := e.client.client.Embeddings.New(reqCtx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: Model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			if len(data.Embedding) == 0 {
				return backoff.Permanent(fmt.Errorf("empty embedding at position %d", i))
			}
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrEmbeddingUnavailable, err)
	}
	return embeddings, nil
}

// Unavailable is the Embedder used when no embedding backend is configured.
// Every call fails with knowledge.ErrEmbeddingUnavailable: retrieval then
// degrades to empty results and ingested documents stay unvectorized until
// a backend is configured and they are vectorized again.
type Unavailable struct{}

var _ Embedder = Unavailable{}

func (Unavailable) Model() string { return Model }

func (Unavailable) Dimension() int { return Dimension }

func (Unavailable) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: no embedding backend configured", knowledge.ErrEmbeddingUnavailable)
}

// isRateLimitError checks for an HTTP 429 from the API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors to the float32 storage type.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
