// ABOUTME: In-memory vector index with incremental add and delete
// ABOUTME: Writers serialise on a mutex; searches read an immutable published snapshot
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harper/docrag/internal/models"
)

// Metric selects how similarity is scored
type Metric string

const (
	// MetricCosine scores by cosine similarity
	MetricCosine Metric = "cosine"
	// MetricL2 scores by 1/(1+d) where d is squared Euclidean distance
	MetricL2 Metric = "l2"
)

// ParseMetric validates a metric name; empty selects cosine
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	}
	return "", fmt.Errorf("unknown metric %q (want cosine or l2)", s)
}

// Config fixes the model, dimension and metric of an index for its lifetime
type Config struct {
	ModelID   string
	Dimension int
	Metric    Metric
}

// Validate checks the config
func (c Config) Validate() error {
	if c.ModelID == "" {
		return models.Errorf(models.KindInvalidArgument, "index model ID cannot be empty")
	}
	if c.Dimension <= 0 {
		return models.Errorf(models.KindInvalidArgument, "index dimension must be positive, got %d", c.Dimension)
	}
	if _, err := ParseMetric(string(c.Metric)); err != nil {
		return models.Errorf(models.KindInvalidArgument, "%v", err)
	}
	return nil
}

// Entry is a chunk to add together with its embedding
type Entry struct {
	Chunk     models.Chunk
	Embedding models.Embedding
}

// row is one stored entry. Rows are never mutated after publication.
type row struct {
	id    uint64
	chunk models.Chunk
	vec   []float32
}

// snapshot is an immutable view of the index, rows in ascending id order
type snapshot struct {
	rows []row
}

// Stats summarises an index
type Stats struct {
	ModelID   string    `json:"model_id"`
	Dimension int       `json:"dimension"`
	Metric    Metric    `json:"metric"`
	Count     int       `json:"count"`
	Sources   int       `json:"sources"`
	NextID    uint64    `json:"next_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index maps internal IDs to vectors and chunks, keeping both key sets identical
type Index struct {
	cfg Config

	// mu serialises writers. Readers of byChunk take the read lock.
	mu        sync.RWMutex
	byChunk   map[string]uint64
	nextID    uint64
	createdAt time.Time
	updatedAt time.Time

	snap atomic.Pointer[snapshot]
}

// New creates an empty index
func New(cfg Config) (*Index, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	idx := &Index{
		cfg:       cfg,
		byChunk:   make(map[string]uint64),
		nextID:    1,
		createdAt: now,
		updatedAt: now,
	}
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// Config returns the index configuration
func (idx *Index) Config() Config {
	return idx.cfg
}

// Add appends entries without rebuilding the index and returns their internal IDs.
// Every entry is checked before any is applied.
func (idx *Index) Add(entries []Entry) ([]uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkEntries(entries, nil); err != nil {
		return nil, err
	}
	rows := idx.snap.Load().rows
	ids := idx.appendRows(&rows, entries)
	idx.publish(rows)
	return ids, nil
}

// ReplaceSource removes every chunk of sourceID and adds entries in one swap.
// Searches observe either the old chunks or the new ones, never a mix.
func (idx *Index) ReplaceSource(sourceID string, entries []Entry) (removed int, ids []uint64, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range entries {
		if e.Chunk.SourceID != sourceID {
			return 0, nil, models.Errorf(models.KindInvalidArgument,
				"chunk %s belongs to source %s, not %s", e.Chunk.ChunkID, e.Chunk.SourceID, sourceID)
		}
	}

	current := idx.snap.Load().rows
	replaced := make(map[string]bool)
	for _, r := range current {
		if r.chunk.SourceID == sourceID {
			replaced[r.chunk.ChunkID] = true
		}
	}
	if err := idx.checkEntries(entries, replaced); err != nil {
		return 0, nil, err
	}

	rows := current
	if len(replaced) > 0 {
		rows = filterRows(current, func(r row) bool { return r.chunk.SourceID != sourceID })
		for chunkID := range replaced {
			delete(idx.byChunk, chunkID)
		}
	}
	ids = idx.appendRows(&rows, entries)

	if len(replaced) == 0 && len(entries) == 0 {
		return 0, nil, nil
	}
	idx.publish(rows)
	return len(replaced), ids, nil
}

// Delete removes chunks by chunk ID and returns how many were present.
// Unknown IDs are ignored, so repeating a delete is a no-op.
func (idx *Index) Delete(chunkIDs []string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doomed := make(map[uint64]bool)
	for _, chunkID := range chunkIDs {
		if id, ok := idx.byChunk[chunkID]; ok {
			doomed[id] = true
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	rows := filterRows(idx.snap.Load().rows, func(r row) bool { return !doomed[r.id] })
	for _, chunkID := range chunkIDs {
		delete(idx.byChunk, chunkID)
	}
	idx.publish(rows)
	return len(doomed)
}

// DeleteSource removes every chunk of a source
func (idx *Index) DeleteSource(sourceID string) int {
	removed, _, _ := idx.ReplaceSource(sourceID, nil)
	return removed
}

// Get returns the chunk stored under chunkID
func (idx *Index) Get(chunkID string) (models.IndexEntry, bool) {
	idx.mu.RLock()
	id, ok := idx.byChunk[chunkID]
	rows := idx.snap.Load().rows
	idx.mu.RUnlock()
	if !ok {
		return models.IndexEntry{}, false
	}

	i := sort.Search(len(rows), func(i int) bool { return rows[i].id >= id })
	if i == len(rows) || rows[i].id != id {
		return models.IndexEntry{}, false
	}
	return rows[i].entry(idx.cfg.ModelID), true
}

// ChunksBySource returns a source's chunks ordered by start offset
func (idx *Index) ChunksBySource(sourceID string) []models.Chunk {
	var chunks []models.Chunk
	for _, r := range idx.snap.Load().rows {
		if r.chunk.SourceID == sourceID {
			chunks = append(chunks, r.chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartOffset < chunks[j].StartOffset })
	return chunks
}

// Sources returns the distinct source IDs in the index, sorted
func (idx *Index) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, r := range idx.snap.Load().rows {
		if !seen[r.chunk.SourceID] {
			seen[r.chunk.SourceID] = true
			sources = append(sources, r.chunk.SourceID)
		}
	}
	sort.Strings(sources)
	return sources
}

// Len returns the number of stored chunks
func (idx *Index) Len() int {
	return len(idx.snap.Load().rows)
}

// Stats reports counts and configuration
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return Stats{
		ModelID:   idx.cfg.ModelID,
		Dimension: idx.cfg.Dimension,
		Metric:    idx.cfg.Metric,
		Count:     idx.Len(),
		Sources:   len(idx.Sources()),
		NextID:    idx.nextID,
		CreatedAt: idx.createdAt,
		UpdatedAt: idx.updatedAt,
	}
}

// Verify checks that vectors and metadata share exactly the same keys
func (idx *Index) Verify() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows := idx.snap.Load().rows
	if len(rows) != len(idx.byChunk) {
		return models.Errorf(models.KindIndexCorrupt,
			"%d vectors but %d metadata entries", len(rows), len(idx.byChunk))
	}
	var prev uint64
	for _, r := range rows {
		if r.id <= prev {
			return models.Errorf(models.KindIndexCorrupt, "internal IDs out of order at %d", r.id)
		}
		prev = r.id
		if r.id >= idx.nextID {
			return models.Errorf(models.KindIndexCorrupt, "internal ID %d not below high-water mark %d", r.id, idx.nextID)
		}
		if len(r.vec) != idx.cfg.Dimension {
			return models.Errorf(models.KindIndexCorrupt, "vector %d has %d dimensions", r.id, len(r.vec))
		}
		if id, ok := idx.byChunk[r.chunk.ChunkID]; !ok || id != r.id {
			return models.Errorf(models.KindIndexCorrupt, "chunk %s has no matching metadata", r.chunk.ChunkID)
		}
	}
	return nil
}

// checkEntries validates a batch against the config and existing chunk IDs.
// IDs in replacing are about to be removed and may be reused.
func (idx *Index) checkEntries(entries []Entry, replacing map[string]bool) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := idx.checkEmbedding(e.Embedding); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if err := e.Chunk.Validate(); err != nil {
			return models.Errorf(models.KindInvalidArgument, "entry %d: %v", i, err)
		}
		if seen[e.Chunk.ChunkID] {
			return models.Errorf(models.KindInvalidArgument, "duplicate chunk %s in batch", e.Chunk.ChunkID)
		}
		seen[e.Chunk.ChunkID] = true
		if _, exists := idx.byChunk[e.Chunk.ChunkID]; exists && !replacing[e.Chunk.ChunkID] {
			return models.Errorf(models.KindInvalidArgument, "chunk %s already indexed", e.Chunk.ChunkID)
		}
	}
	return nil
}

func (idx *Index) checkEmbedding(emb models.Embedding) error {
	if emb.ModelID != idx.cfg.ModelID {
		return models.Errorf(models.KindDimensionOrModelMismatch,
			"embedding from model %q, index uses %q", emb.ModelID, idx.cfg.ModelID)
	}
	if len(emb.Vector) != idx.cfg.Dimension {
		return models.Errorf(models.KindDimensionOrModelMismatch,
			"embedding has %d dimensions, index uses %d", len(emb.Vector), idx.cfg.Dimension)
	}
	for _, x := range emb.Vector {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return models.Errorf(models.KindInvalidArgument, "embedding contains non-finite values")
		}
	}
	return nil
}

// appendRows assigns IDs and appends entries to rows. Caller holds mu.
// Appending into spare capacity is safe: published snapshots never read past their own length.
func (idx *Index) appendRows(rows *[]row, entries []Entry) []uint64 {
	ids := make([]uint64, len(entries))
	for i, e := range entries {
		id := idx.nextID
		idx.nextID++

		vec := make([]float32, len(e.Embedding.Vector))
		copy(vec, e.Embedding.Vector)

		*rows = append(*rows, row{id: id, chunk: e.Chunk, vec: vec})
		idx.byChunk[e.Chunk.ChunkID] = id
		ids[i] = id
	}
	return ids
}

func (idx *Index) publish(rows []row) {
	idx.updatedAt = time.Now().UTC()
	idx.snap.Store(&snapshot{rows: rows})
}

// filterRows copies the rows kept by keep into a fresh slice
func filterRows(rows []row, keep func(row) bool) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (r row) entry(modelID string) models.IndexEntry {
	vec := make([]float32, len(r.vec))
	copy(vec, r.vec)
	return models.IndexEntry{
		InternalID: r.id,
		Chunk:      r.chunk,
		Embedding:  models.Embedding{ModelID: modelID, Vector: vec},
	}
}
