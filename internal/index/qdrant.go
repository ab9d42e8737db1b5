package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantCollection is the single collection holding all chunk vectors.
const QdrantCollection = "kb_chunks"

// Qdrant is the production Index backed by a Qdrant server over gRPC.
type Qdrant struct {
	client    *qdrant.Client
	dimension int
}

var _ Index = (*Qdrant)(nil)
var _ Counter = (*Qdrant)(nil)

// NewQdrant connects to Qdrant and validates health with retry, failing
// fast if the server stays unreachable.
func NewQdrant(host string, port int, dimension int) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	q := &Qdrant{client: client, dimension: dimension}
	if err := q.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}
	return q, nil
}

// healthCheckWithRetry probes the server with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunk collection with cosine distance and
// payload indexes for the filterable fields. Idempotent.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	for _, name := range collections {
		if name == QdrantCollection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: QdrantCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	// Without payload indexes, filtered search degrades badly.
	for _, field := range []string{"document_id", "category", "difficulty"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: QdrantCollection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("creating index for field %s: %w", field, err)
		}
	}
	return nil
}

// ReplaceDocument deletes the document's existing points and upserts the
// new set. The upsert is a single batched call with wait semantics; the
// brief window between delete and upsert shows the document as absent, never
// as a mix of old and new chunks.
func (q *Qdrant) ReplaceDocument(ctx context.Context, documentID string, entries []Entry) error {
	if err := q.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		if len(e.Vector) != q.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), q.dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ChunkID),
			Vectors: qdrant.NewVectors(normalize(e.Vector)...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": documentID,
				"category":    e.Category,
				"difficulty":  e.Difficulty,
			}),
		}
	}
	return q.upsertWithRetry(ctx, points)
}

// upsertWithRetry performs the upsert with exponential backoff.
func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: QdrantCollection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// DeleteByDocument removes every point belonging to the document.
func (q *Qdrant) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: QdrantCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("deleting points for document %s: %w", documentID, err)
	}
	return nil
}

// Search performs cosine similarity search with optional metadata filters.
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), q.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	var must []*qdrant.Condition
	if filter.Category != "" {
		must = append(must, qdrant.NewMatch("category", filter.Category))
	}
	if filter.Difficulty != "" {
		must = append(must, qdrant.NewMatch("difficulty", filter.Difficulty))
	}
	var qf *qdrant.Filter
	if len(must) > 0 {
		qf = &qdrant.Filter{Must: must}
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: QdrantCollection,
		Query:          qdrant.NewQuery(normalize(vector)...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ChunkID:    r.Id.GetUuid(),
			DocumentID: r.Payload["document_id"].GetStringValue(),
			Score:      r.Score,
		})
	}
	// Qdrant orders by score only; re-sort so equal-score results tie-break
	// the same way the memory index does.
	sortMatches(matches)
	return matches, nil
}

// Count returns the number of indexed points, for status reporting.
func (q *Qdrant) Count(ctx context.Context) (uint64, error) {
	collection, err := q.client.GetCollectionInfo(ctx, QdrantCollection)
	if err != nil {
		return 0, fmt.Errorf("getting collection info: %w", err)
	}
	return collection.GetPointsCount(), nil
}

// Close closes the gRPC connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
