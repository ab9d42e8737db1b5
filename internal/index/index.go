// Package index provides similarity search over chunk embeddings. Two
// implementations exist: an in-process brute-force index for local use and
// tests, and a Qdrant-backed index for production deployments. Both speak
// cosine similarity over L2-normalized vectors so scores stay comparable
// across embedding-model versions that share dimensionality.
package index

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch indicates a vector whose size differs from the
// index's configured dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is one chunk vector with the metadata needed for filtered search.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
	Category   string
	Difficulty string
}

// Match is a search hit. Score is cosine similarity against the query.
type Match struct {
	ChunkID    string
	DocumentID string
	Score      float32
}

// Filter restricts a search by chunk metadata. Zero values match everything.
type Filter struct {
	Category   string
	Difficulty string
}

// Index is the similarity-search structure derived from the chunk store.
// ReplaceDocument atomically swaps all entries of one document so a
// concurrent search never observes a partial mix of old and new chunks;
// DeleteByDocument removes them as part of the document-deletion cascade.
type Index interface {
	ReplaceDocument(ctx context.Context, documentID string, entries []Entry) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
}

// Counter reports how many points an index holds. Both implementations
// satisfy it; status surfaces use it without widening Index.
type Counter interface {
	Count(ctx context.Context) (uint64, error)
}

// sortMatches orders matches by descending score, ties broken by ascending
// chunk ID so equal-score results come back in a stable order.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
}

// normalize returns the L2-normalized copy of v. A zero vector is returned
// unchanged; it will never score above any real match.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
