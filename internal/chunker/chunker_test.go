package chunker

import (
	"strings"
	"testing"
)

func TestSplit_ExactWindows(t *testing.T) {
	text := strings.Repeat("A", 1200)

	chunks, err := Split(text, 500, 100)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	wantLens := []int{500, 500, 400}
	for i, want := range wantLens {
		if got := len([]rune(chunks[i])); got != want {
			t.Errorf("Chunk %d length: expected %d, got %d", i, want, got)
		}
	}
}

func TestSplit_ChunkCountFormula(t *testing.T) {
	// For len(T) > overlap, chunk count must equal
	// ceil((len(T)-overlap)/(chunkSize-overlap)).
	cases := []struct {
		length, size, overlap int
	}{
		{101, 100, 20},
		{500, 500, 100},
		{501, 500, 100},
		{900, 500, 100},
		{1200, 500, 100},
		{4999, 500, 100},
		{10000, 300, 0},
	}

	for _, tc := range cases {
		text := strings.Repeat("x", tc.length)
		chunks, err := Split(text, tc.size, tc.overlap)
		if err != nil {
			t.Fatalf("Split(%d,%d,%d) failed: %v", tc.length, tc.size, tc.overlap, err)
		}

		step := tc.size - tc.overlap
		want := (tc.length - tc.overlap + step - 1) / step
		if len(chunks) != want {
			t.Errorf("Split(len=%d,size=%d,overlap=%d): expected %d chunks, got %d",
				tc.length, tc.size, tc.overlap, want, len(chunks))
		}
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	// Dropping the overlapping prefix of every chunk after the first must
	// reconstruct the input exactly; no characters lost at boundaries.
	texts := []string{
		"The quick brown fox jumps over the lazy dog. " + strings.Repeat("abcdefghij", 37),
		strings.Repeat("0123456789", 123) + "tail",
	}

	for _, text := range texts {
		chunks, err := Split(text, 50, 10)
		if err != nil {
			t.Fatalf("Split failed: %v", err)
		}

		var b strings.Builder
		for i, chunk := range chunks {
			runes := []rune(chunk)
			if i == 0 {
				b.WriteString(chunk)
				continue
			}
			b.WriteString(string(runes[10:]))
		}
		if b.String() != text {
			t.Errorf("Reconstruction mismatch: got %d runes, want %d", b.Len(), len([]rune(text)))
		}
	}
}

func TestSplit_MultiByteRunes(t *testing.T) {
	text := strings.Repeat("数学公式与英语阅读理解训练", 40) // 12 runes each, 36 bytes

	chunks, err := Split(text, 100, 25)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if !strings.HasPrefix(text, chunks[0]) {
		t.Fatalf("Chunk 0 is not a prefix of the input")
	}
	for i, chunk := range chunks {
		if i < len(chunks)-1 && len([]rune(chunk)) != 100 {
			t.Errorf("Chunk %d: expected 100 runes, got %d", i, len([]rune(chunk)))
		}
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	chunks, err := Split("", 500, 100)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestSplit_ShortInput(t *testing.T) {
	chunks, err := Split("short", 500, 100)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("Expected single chunk %q, got %v", "short", chunks)
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	if _, err := Split("text", 0, 0); err == nil {
		t.Error("Expected error for zero chunk size")
	}
	if _, err := Split("text", 100, -1); err == nil {
		t.Error("Expected error for negative overlap")
	}
	if _, err := Split("text", 100, 100); err == nil {
		t.Error("Expected error for overlap equal to chunk size")
	}
	if _, err := Split("text", 100, 150); err == nil {
		t.Error("Expected error for overlap larger than chunk size")
	}
}
