// ABOUTME: Document is the uniform (source_id, raw_text) shape handed to ingestion
// ABOUTME: Source IDs are derived from the file path so re-ingesting is an update
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Document is extracted UTF-8 text plus a stable identifier for its origin
type Document struct {
	SourceID string `json:"source_id"`
	RawText  string `json:"raw_text"`
	Path     string `json:"path,omitempty"`
}

// SourceIDForPath derives a deterministic source ID from a file path.
// Relative and absolute spellings of the same file map to the same ID.
func SourceIDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(sum[:8])
}
