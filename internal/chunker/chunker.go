// Package chunker splits document text into fixed-size overlapping windows
// for embedding. Splitting is a pure function: no I/O, deterministic output.
package chunker

import "fmt"

// Defaults match the knowledge-base ingestion settings.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 100
)

// Split cuts text into windows of chunkSize runes, each overlapping the
// previous one by overlap runes. The last window truncates to the remaining
// tail. Empty input yields no chunks.
//
// overlap must be strictly less than chunkSize so every window makes forward
// progress; violating that is a caller bug and returns an error rather than
// looping forever.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
