// Package config reads server configuration from the environment.
package config

import (
	"fmt"
	"os"
)

// Config holds all runtime settings for the knowledge base server.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string
	// QdrantHost selects the Qdrant-backed index when set; empty means the
	// in-memory index, rebuilt from the database at startup.
	QdrantHost string
	// QdrantPort is the Qdrant gRPC port.
	QdrantPort int
	// Port is the HTTP listen port.
	Port string
	// ServerMode serves MCP over HTTP instead of stdio when true.
	ServerMode bool
	// ChunkSize is the chunk window size in characters.
	ChunkSize int
	// ChunkOverlap is the window overlap in characters.
	ChunkOverlap int
	// GenerateMetadata enables LLM summary/keyword generation on ingest.
	GenerateMetadata bool
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	return &Config{
		DBPath:           getEnv("KB_DB_PATH", "study-kb.db"),
		QdrantHost:       getEnv("QDRANT_HOST", ""),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		Port:             getEnv("PORT", "8080"),
		ServerMode:       getEnv("SERVER_MODE", "false") == "true",
		ChunkSize:        getEnvInt("KB_CHUNK_SIZE", 500),
		ChunkOverlap:     getEnvInt("KB_CHUNK_OVERLAP", 100),
		GenerateMetadata: getEnv("KB_GENERATE_METADATA", "false") == "true",
	}
}

// UseQdrant reports whether the Qdrant index is configured.
func (c *Config) UseQdrant() bool {
	return c.QdrantHost != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
