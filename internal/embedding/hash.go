// ABOUTME: HashEmbedder is a deterministic local embedding model based on feature hashing
// ABOUTME: Needs no network; used for offline indexes, benchmarks and tests
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashModelPrefix prefixes the model ID of every HashEmbedder
const HashModelPrefix = "hash:"

// DefaultHashDimension is used when no dimension is configured
const DefaultHashDimension = 256

// HashEmbedder hashes word unigrams and bigrams into a signed bag-of-features
// vector. Texts sharing vocabulary score high under cosine similarity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder with the given dimension
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash embedder dimension must be positive, got %d", dim)
	}
	return &HashEmbedder{dim: dim}, nil
}

// ModelID returns "hash:<dim>"
func (h *HashEmbedder) ModelID() string {
	return fmt.Sprintf("%s%d", HashModelPrefix, h.dim)
}

// Dimension returns the vector length
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// Embed returns the unit-length feature vector for text
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	Normalize(vec)
	return vec, nil
}

// EmbedMany embeds each text in order
func (h *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lowercases text and splits it into letter/digit runs.
// Han characters become single-rune tokens since they are not space separated.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
