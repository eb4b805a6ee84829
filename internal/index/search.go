// ABOUTME: Exhaustive similarity search over an index snapshot
// ABOUTME: Scores are higher-is-better for both metrics; ties go to the lower internal ID
package index

import (
	"sort"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
)

// Search returns up to topK chunks most similar to query, best first.
// An empty index yields an empty result.
func (idx *Index) Search(query models.Embedding, topK int) (models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, models.Errorf(models.KindInvalidArgument, "top_k must be positive, got %d", topK)
	}
	if err := idx.checkEmbedding(query); err != nil {
		return nil, err
	}

	rows := idx.snap.Load().rows
	if len(rows) == 0 {
		return models.RetrievalResult{}, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(rows))
	for i, r := range rows {
		scores[i] = scored{pos: i, score: idx.score(query.Vector, r.vec)}
	}

	// Rows are in ascending ID order, so position breaks ties by ID
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].pos < scores[j].pos
	})

	n := min(topK, len(scores))
	result := make(models.RetrievalResult, n)
	for i := 0; i < n; i++ {
		r := rows[scores[i].pos]
		result[i] = models.ScoredChunk{
			InternalID: r.id,
			Chunk:      r.chunk,
			Score:      scores[i].score,
		}
	}
	return result, nil
}

func (idx *Index) score(query, vec []float32) float64 {
	if idx.cfg.Metric == MetricL2 {
		return 1 / (1 + embedding.SquaredL2(query, vec))
	}
	return embedding.Cosine(query, vec)
}
