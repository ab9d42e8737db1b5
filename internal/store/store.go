// Package store persists knowledge documents, their chunks and the search
// audit history in SQLite. The vector index is a derived structure; the
// rows here are the source of truth for the vectorized invariant.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/planly/study-kb-server/internal/knowledge"
	"github.com/planly/study-kb-server/internal/store/migrations"
)

// Store is a SQLite-backed document store. It is safe for concurrent use;
// writes to a single document's chunk set are additionally serialized by
// the ingest pipeline.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the knowledge database at dbPath, running any
// pending migrations. The parent directory is created if missing.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL keeps readers unblocked during ingestion writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath, logger: logger}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Health verifies the database connection is usable.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs all pending migrations in version order.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Stats summarizes the stored corpus for status reporting.
type Stats struct {
	Documents     int
	Vectorized    int
	Chunks        int
	SearchQueries int
}

// GetStats returns corpus-level counts.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM documents WHERE vectorized = 1", &stats.Vectorized},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM search_history", &stats.SearchQueries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting: %w", err)
		}
	}
	return stats, nil
}

// CheckConsistency verifies the invariants between documents and their
// chunk sets. Violations indicate the cascade/invalidation contract was
// broken elsewhere; they are reported, never repaired here.
func (s *Store) CheckConsistency(ctx context.Context) ([]string, error) {
	var problems []string

	// Orphan chunks. The foreign key should make this impossible.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c
		LEFT JOIN documents d ON d.id = c.document_id
		WHERE d.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("checking orphan chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning orphan chunk: %w", err)
		}
		problems = append(problems, fmt.Sprintf("chunk %s has no owning document", id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orphan chunks: %w", err)
	}

	// vectorized must mean: chunk_count rows, all with embeddings.
	docRows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.vectorized, d.chunk_count,
		       COUNT(c.id), COUNT(c.embedding)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("checking vectorized flags: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id string
		var vectorized bool
		var declared, actual, embedded int
		if err := docRows.Scan(&id, &vectorized, &declared, &actual, &embedded); err != nil {
			return nil, fmt.Errorf("scanning document counts: %w", err)
		}
		switch {
		case vectorized && (declared != actual || actual != embedded || actual == 0):
			problems = append(problems, fmt.Sprintf(
				"document %s marked vectorized but has %d/%d chunks with embeddings (declared %d)",
				id, embedded, actual, declared))
		case !vectorized && actual > 0:
			problems = append(problems, fmt.Sprintf(
				"document %s not vectorized yet owns %d chunks", id, actual))
		}
	}
	if err := docRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	for _, p := range problems {
		s.logger.Error("store consistency violation", "problem", p, "error", knowledge.ErrIndexInconsistency)
	}
	return problems, nil
}
