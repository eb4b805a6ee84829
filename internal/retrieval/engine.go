// ABOUTME: Retrieval engine turning a query into an ordered, deduplicated context set
// ABOUTME: Embeds the query, over-fetches candidates, applies the score floor and overlap dedup
package retrieval

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/util"
)

// Defaults for Options
const (
	DefaultCandidateMultiplier = 3
	DefaultDedupOverlap        = 0.5
	DefaultRetryDelay          = 500 * time.Millisecond
)

// Searcher is the part of the vector index the engine needs
type Searcher interface {
	Search(query models.Embedding, topK int) (models.RetrievalResult, error)
	Len() int
}

// Options tunes retrieval
type Options struct {
	// CandidateMultiplier inflates the search size when filtering may drop results
	CandidateMultiplier int
	// DedupOverlap is the overlap fraction above which same-source chunks are
	// considered duplicates. Nil selects the default, zero treats any overlap
	// as a duplicate and a negative value disables dedup.
	DedupOverlap *float64
	// RetryDelay is the base backoff before the single query-embedding retry
	RetryDelay time.Duration
	Logger     *log.Logger
}

// Engine retrieves context for queries
type Engine struct {
	embedder   embedding.Embedder
	index      Searcher
	multiplier int
	dedup      float64
	retryDelay time.Duration
	logger     *log.Logger
}

// NewEngine creates an Engine over index using embedder for queries
func NewEngine(embedder embedding.Embedder, index Searcher, opts Options) *Engine {
	e := &Engine{
		embedder:   embedder,
		index:      index,
		multiplier: opts.CandidateMultiplier,
		dedup:      DefaultDedupOverlap,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if e.multiplier < 1 {
		e.multiplier = DefaultCandidateMultiplier
	}
	if opts.DedupOverlap != nil {
		e.dedup = *opts.DedupOverlap
	}
	if e.retryDelay <= 0 {
		e.retryDelay = DefaultRetryDelay
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	return e
}

// Retrieve returns at most topK chunks relevant to query, best first.
// A nil floor keeps every score. An empty index or nothing above the floor
// is an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, floor *float64) (models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, models.Errorf(models.KindInvalidArgument, "top_k must be positive, got %d", topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.Errorf(models.KindInvalidArgument, "query cannot be empty")
	}
	if e.index.Len() == 0 {
		return models.RetrievalResult{}, nil
	}

	q, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	n := e.index.Len()
	candidates := topK
	if floor != nil || e.dedupEnabled() {
		if topK > n/e.multiplier {
			candidates = n
		} else {
			candidates = topK * e.multiplier
		}
	}
	candidates = max(min(candidates, n), 1)

	raw, err := e.index.Search(q, candidates)
	if err != nil {
		return nil, err
	}

	result := make(models.RetrievalResult, 0, min(topK, len(raw)))
	for _, sc := range raw {
		if floor != nil && sc.Score < *floor {
			// Results are sorted, nothing further can clear the floor
			break
		}
		if e.dedupEnabled() && duplicates(result, sc, e.dedup) {
			continue
		}
		result = append(result, sc)
		if len(result) == topK {
			break
		}
	}
	return result, nil
}

func (e *Engine) dedupEnabled() bool {
	return e.dedup >= 0
}

// embedQuery embeds the query, retrying once when the embedder is unavailable
func (e *Engine) embedQuery(ctx context.Context, query string) (models.Embedding, error) {
	q, err := embedding.EmbedQuery(ctx, e.embedder, query)
	if err == nil || !errors.Is(err, models.ErrEmbeddingUnavailable) {
		return q, err
	}

	e.logger.Printf("Warning: query embedding failed, retrying: %v", err)
	if err := util.Backoff(ctx, e.retryDelay, 1); err != nil {
		return models.Embedding{}, models.Errorf(models.KindEmbeddingUnavailable, "query embedding canceled: %w", err)
	}
	return embedding.EmbedQuery(ctx, e.embedder, query)
}

// duplicates reports whether sc overlaps an already kept chunk of the same source.
// Kept chunks always score at least as high, so the higher-scoring one survives.
func duplicates(kept models.RetrievalResult, sc models.ScoredChunk, threshold float64) bool {
	for _, k := range kept {
		if k.Chunk.OverlapFraction(sc.Chunk) > threshold {
			return true
		}
	}
	return false
}
