package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"KB_DB_PATH", "QDRANT_HOST", "QDRANT_PORT", "PORT", "SERVER_MODE", "KB_CHUNK_SIZE", "KB_CHUNK_OVERLAP", "KB_GENERATE_METADATA"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.DBPath != "study-kb.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.UseQdrant() {
		t.Error("Expected in-memory index by default")
	}
	if cfg.QdrantPort != 6334 {
		t.Errorf("QdrantPort: got %d", cfg.QdrantPort)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port: got %q", cfg.Port)
	}
	if cfg.ServerMode {
		t.Error("Expected stdio mode by default")
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Errorf("Chunking: got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.GenerateMetadata {
		t.Error("Expected metadata generation off by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KB_DB_PATH", "/tmp/custom.db")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("KB_CHUNK_SIZE", "300")
	t.Setenv("KB_CHUNK_OVERLAP", "50")

	cfg := Load()
	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if !cfg.UseQdrant() || cfg.QdrantHost != "qdrant.internal" {
		t.Errorf("QdrantHost: got %q", cfg.QdrantHost)
	}
	if cfg.QdrantPort != 7000 {
		t.Errorf("QdrantPort: got %d", cfg.QdrantPort)
	}
	if !cfg.ServerMode {
		t.Error("Expected server mode")
	}
	if cfg.ChunkSize != 300 || cfg.ChunkOverlap != 50 {
		t.Errorf("Chunking: got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-number")
	if got := Load().QdrantPort; got != 6334 {
		t.Errorf("Expected default port for malformed value, got %d", got)
	}
}
