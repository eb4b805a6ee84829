// ABOUTME: SQLite metadata store mapping internal IDs to chunk provenance
// ABOUTME: Uses modernc.org/sqlite for pure-Go SQLite support
package index

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/harper/docrag/internal/models"
	_ "modernc.org/sqlite"
)

// metaSchema is the chunks.db schema
const metaSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    internal_id INTEGER PRIMARY KEY,
    chunk_id TEXT NOT NULL UNIQUE,
    source_id TEXT NOT NULL,
    text TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);
`

// metaRow is a chunk keyed by internal ID as stored in chunks.db
type metaRow struct {
	id    uint64
	chunk models.Chunk
}

// writeMetaStore creates a fresh chunks.db at path holding rows
func writeMetaStore(path string, rows []row) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Exec(metaSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO chunks (internal_id, chunk_id, source_id, text, start_offset, end_offset)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		c := r.chunk
		if _, err := stmt.Exec(int64(r.id), c.ChunkID, c.SourceID, c.Text, c.StartOffset, c.EndOffset); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// readMetaStore loads every row of chunks.db in ascending internal ID order
func readMetaStore(path string) ([]metaRow, error) {
	// sql.Open would create a missing file; a missing store is corruption
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("metadata store missing: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.Query(`SELECT internal_id, chunk_id, source_id, text, start_offset, end_offset
		FROM chunks ORDER BY internal_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []metaRow
	for rows.Next() {
		var (
			id int64
			c  models.Chunk
		)
		if err := rows.Scan(&id, &c.ChunkID, &c.SourceID, &c.Text, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("invalid internal ID %d", id)
		}
		out = append(out, metaRow{id: uint64(id), chunk: c})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return out, nil
}
