// ABOUTME: Chunk is a bounded, overlap-aware segment of a document's text
// ABOUTME: Carries provenance (source ID and byte offsets) for traceable citations
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// chunkNamespace scopes name-based chunk UUIDs to this project
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docrag:chunk"))

// Chunk is the unit of retrieval
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	SourceID    string `json:"source_id"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// NewChunkID returns the stable ID for the span [start, end) of a source.
// The same span of the same source always yields the same ID.
func NewChunkID(sourceID string, start, end int) string {
	name := fmt.Sprintf("%s#%d-%d", sourceID, start, end)
	return "chunk_" + uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Len returns the length of the chunk's span in bytes
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// Validate checks the chunk's identity and offset invariants
func (c Chunk) Validate() error {
	if c.ChunkID == "" {
		return fmt.Errorf("chunk ID cannot be empty")
	}
	if c.SourceID == "" {
		return fmt.Errorf("chunk %s: source ID cannot be empty", c.ChunkID)
	}
	if c.StartOffset < 0 || c.StartOffset >= c.EndOffset {
		return fmt.Errorf("chunk %s: invalid offsets [%d,%d)", c.ChunkID, c.StartOffset, c.EndOffset)
	}
	return nil
}

// OverlapFraction returns how much two spans overlap relative to the shorter one.
// Chunks from different sources never overlap.
func (c Chunk) OverlapFraction(other Chunk) float64 {
	if c.SourceID != other.SourceID {
		return 0
	}
	lo := max(c.StartOffset, other.StartOffset)
	hi := min(c.EndOffset, other.EndOffset)
	if hi <= lo {
		return 0
	}
	shorter := min(c.Len(), other.Len())
	if shorter <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}
