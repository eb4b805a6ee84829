// ABOUTME: Embedding and retrieval result models for vector search
// ABOUTME: Defines Embedding, IndexEntry, ScoredChunk and RetrievalResult
package models

// Embedding is a dense vector tagged with the model that produced it
type Embedding struct {
	ModelID string    `json:"model_id"`
	Vector  []float32 `json:"vector"`
}

// Dimension returns the vector length
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// IndexEntry is a chunk and its embedding as stored in a vector index
type IndexEntry struct {
	InternalID uint64    `json:"internal_id"`
	Chunk      Chunk     `json:"chunk"`
	Embedding  Embedding `json:"embedding"`
}

// ScoredChunk is a chunk returned by similarity search
type ScoredChunk struct {
	InternalID uint64  `json:"internal_id"`
	Chunk      Chunk   `json:"chunk"`
	Score      float64 `json:"score"`
}

// RetrievalResult is ordered by descending score
type RetrievalResult []ScoredChunk

// Texts returns the chunk texts in result order
func (r RetrievalResult) Texts() []string {
	texts := make([]string, len(r))
	for i, sc := range r {
		texts[i] = sc.Chunk.Text
	}
	return texts
}
