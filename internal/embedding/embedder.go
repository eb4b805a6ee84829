// ABOUTME: Embedder interface shared by ingestion and retrieval
// ABOUTME: Also holds the vector math used to normalise and compare embeddings
package embedding

import (
	"context"
	"math"

	"github.com/harper/docrag/internal/models"
)

// Embedder maps text to fixed-dimension vectors from one model
type Embedder interface {
	ModelID() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedMany preserves input order
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedQuery embeds text and tags the vector with the embedder's model ID
func EmbedQuery(ctx context.Context, e Embedder, text string) (models.Embedding, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return models.Embedding{}, err
	}
	return models.Embedding{ModelID: e.ModelID(), Vector: vec}, nil
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Cosine returns the cosine similarity of a and b, 0 if either is zero
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SquaredL2 returns the squared Euclidean distance between a and b
func SquaredL2(a, b []float32) float64 {
	var d float64
	for i := range a {
		x := float64(a[i]) - float64(b[i])
		d += x * x
	}
	return d
}
