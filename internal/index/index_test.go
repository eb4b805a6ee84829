// ABOUTME: Tests for index mutation, search ordering and snapshot consistency
// ABOUTME: Includes the concurrent add/search check that searches never see partial state

package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/harper/docrag/internal/models"
)

const testModel = "test-model"

func newTestIndex(t *testing.T, dim int, metric Metric) *Index {
	t.Helper()
	idx, err := New(Config{ModelID: testModel, Dimension: dim, Metric: metric})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return idx
}

func entry(source string, start int, vec ...float32) Entry {
	end := start + 10
	return Entry{
		Chunk: models.Chunk{
			ChunkID:     models.NewChunkID(source, start, end),
			SourceID:    source,
			Text:        fmt.Sprintf("%s text at %d", source, start),
			StartOffset: start,
			EndOffset:   end,
		},
		Embedding: models.Embedding{ModelID: testModel, Vector: vec},
	}
}

func query(vec ...float32) models.Embedding {
	return models.Embedding{ModelID: testModel, Vector: vec}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no model", Config{Dimension: 3}},
		{"zero dim", Config{ModelID: "m"}},
		{"bad metric", Config{ModelID: "m", Dimension: 3, Metric: "dot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("New() error = %v, want InvalidArgument", err)
			}
		})
	}
}

func TestIndex_AddAndSearch(t *testing.T) {
	idx := newTestIndex(t, 3, MetricCosine)

	ids, err := idx.Add([]Entry{
		entry("a", 0, 1, 0, 0),
		entry("a", 10, 0, 1, 0),
		entry("b", 0, 0.9, 0.1, 0),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("Add() ids = %v, want [1 2 3]", ids)
	}
	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}

	res, err := idx.Search(query(1, 0, 0), 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(res))
	}
	if res[0].InternalID != 1 || res[1].InternalID != 3 {
		t.Errorf("Search() order = [%d %d], want [1 3]", res[0].InternalID, res[1].InternalID)
	}
	if res[0].Score < res[1].Score {
		t.Error("results not in descending score order")
	}
}

func TestIndex_SearchTopK(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)

	if _, err := idx.Search(query(1, 0), 0); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Search(topK=0) error = %v, want InvalidArgument", err)
	}
	if _, err := idx.Search(query(1, 0), -1); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("Search(topK=-1) error = %v, want InvalidArgument", err)
	}

	res, err := idx.Search(query(1, 0), 5)
	if err != nil {
		t.Fatalf("Search() on empty index error = %v", err)
	}
	if len(res) != 0 {
		t.Errorf("empty index returned %d results", len(res))
	}

	if _, err := idx.Add([]Entry{entry("a", 0, 1, 0), entry("a", 10, 0, 1)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	res, _ = idx.Search(query(1, 0), 10)
	if len(res) != 2 {
		t.Errorf("Search(topK > n) returned %d, want 2", len(res))
	}
}

func TestIndex_TiesPreferLowerID(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	if _, err := idx.Add([]Entry{
		entry("a", 0, 0, 1),
		entry("a", 10, 1, 0),
		entry("a", 20, 1, 0),
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	res, _ := idx.Search(query(1, 0), 2)
	if res[0].InternalID != 2 || res[1].InternalID != 3 {
		t.Errorf("tie order = [%d %d], want [2 3]", res[0].InternalID, res[1].InternalID)
	}
}

func TestIndex_L2Metric(t *testing.T) {
	idx := newTestIndex(t, 2, MetricL2)
	if _, err := idx.Add([]Entry{entry("a", 0, 3, 0), entry("a", 10, 1, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	res, _ := idx.Search(query(0, 0), 2)
	if res[0].InternalID != 2 {
		t.Errorf("nearest = %d, want 2", res[0].InternalID)
	}
	// d = 1 for the nearest vector
	if res[0].Score != 0.5 {
		t.Errorf("score = %v, want 0.5", res[0].Score)
	}
}

func TestIndex_AddIsAllOrNothing(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	if _, err := idx.Add([]Entry{entry("a", 0, 1, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		name    string
		batch   []Entry
		wantErr error
	}{
		{"wrong dimension", []Entry{entry("b", 0, 1, 0), entry("b", 10, 1, 0, 0)}, models.ErrDimensionOrModelMismatch},
		{"wrong model", []Entry{{Chunk: entry("b", 0).Chunk, Embedding: models.Embedding{ModelID: "other", Vector: []float32{1, 0}}}}, models.ErrDimensionOrModelMismatch},
		{"duplicate in batch", []Entry{entry("b", 0, 1, 0), entry("b", 0, 0, 1)}, models.ErrInvalidArgument},
		{"already present", []Entry{entry("b", 0, 1, 0), entry("a", 0, 0, 1)}, models.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.Add(tt.batch)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
			}
			if idx.Len() != 1 {
				t.Errorf("Len() = %d after failed Add, want 1", idx.Len())
			}
			if err := idx.Verify(); err != nil {
				t.Errorf("Verify() error = %v", err)
			}
		})
	}
}

func TestIndex_SearchMismatch(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)

	if _, err := idx.Search(query(1, 0, 0), 1); !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("Search(wrong dim) error = %v", err)
	}
	other := models.Embedding{ModelID: "other", Vector: []float32{1, 0}}
	if _, err := idx.Search(other, 1); !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("Search(wrong model) error = %v", err)
	}
}

func TestIndex_DeleteIdempotent(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	e1, e2 := entry("a", 0, 1, 0), entry("a", 10, 0, 1)
	if _, err := idx.Add([]Entry{e1, e2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if n := idx.Delete([]string{e1.Chunk.ChunkID, "chunk_unknown"}); n != 1 {
		t.Errorf("Delete() = %d, want 1", n)
	}
	after := idx.Len()
	if n := idx.Delete([]string{e1.Chunk.ChunkID}); n != 0 {
		t.Errorf("second Delete() = %d, want 0", n)
	}
	if idx.Len() != after {
		t.Errorf("Len() changed on repeated delete: %d -> %d", after, idx.Len())
	}

	res, _ := idx.Search(query(1, 0), 5)
	for _, sc := range res {
		if sc.Chunk.ChunkID == e1.Chunk.ChunkID {
			t.Error("deleted chunk returned by Search")
		}
	}
	if _, ok := idx.Get(e1.Chunk.ChunkID); ok {
		t.Error("deleted chunk returned by Get")
	}
	if err := idx.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestIndex_IDsNeverReused(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	e := entry("a", 0, 1, 0)

	ids1, _ := idx.Add([]Entry{e})
	idx.Delete([]string{e.Chunk.ChunkID})
	ids2, err := idx.Add([]Entry{e})
	if err != nil {
		t.Fatalf("re-Add() error = %v", err)
	}
	if ids2[0] <= ids1[0] {
		t.Errorf("internal ID reused: %d then %d", ids1[0], ids2[0])
	}
}

func TestIndex_ReplaceSource(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	if _, err := idx.Add([]Entry{entry("a", 0, 1, 0), entry("a", 10, 1, 0), entry("b", 0, 0, 1)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// The chunk at offset 0 is kept by ID, offset 10 disappears, offset 20 is new
	removed, ids, err := idx.ReplaceSource("a", []Entry{entry("a", 0, 1, 0), entry("a", 20, 0.5, 0.5)})
	if err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if removed != 2 || len(ids) != 2 {
		t.Errorf("ReplaceSource() = (%d, %v), want (2, two ids)", removed, ids)
	}

	chunks := idx.ChunksBySource("a")
	if len(chunks) != 2 || chunks[0].StartOffset != 0 || chunks[1].StartOffset != 20 {
		t.Errorf("ChunksBySource(a) = %+v", chunks)
	}
	if err := idx.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	if _, _, err := idx.ReplaceSource("a", []Entry{entry("b", 30, 1, 0)}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("ReplaceSource(foreign chunk) error = %v, want InvalidArgument", err)
	}
}

func TestIndex_DeleteSourceAndSources(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	if _, err := idx.Add([]Entry{entry("b", 0, 1, 0), entry("a", 0, 1, 0), entry("a", 10, 0, 1)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	sources := idx.Sources()
	if len(sources) != 2 || sources[0] != "a" || sources[1] != "b" {
		t.Errorf("Sources() = %v, want [a b]", sources)
	}

	if n := idx.DeleteSource("a"); n != 2 {
		t.Errorf("DeleteSource(a) = %d, want 2", n)
	}
	if n := idx.DeleteSource("a"); n != 0 {
		t.Errorf("second DeleteSource(a) = %d, want 0", n)
	}

	stats := idx.Stats()
	if stats.Count != 1 || stats.Sources != 1 || stats.NextID != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestIndex_GetReturnsCopy(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)
	e := entry("a", 0, 1, 0)
	if _, err := idx.Add([]Entry{e}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Mutating the caller's slice after Add must not change the index
	e.Embedding.Vector[0] = 42

	got, ok := idx.Get(e.Chunk.ChunkID)
	if !ok {
		t.Fatal("Get() missing chunk")
	}
	if got.Embedding.Vector[0] != 1 {
		t.Errorf("stored vector = %v, want [1 0]", got.Embedding.Vector)
	}
	got.Embedding.Vector[0] = 7
	again, _ := idx.Get(e.Chunk.ChunkID)
	if again.Embedding.Vector[0] != 1 {
		t.Error("Get() exposes internal vector storage")
	}
}

func TestIndex_ConcurrentAddSearch(t *testing.T) {
	idx := newTestIndex(t, 2, MetricCosine)

	const writers = 4
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			source := fmt.Sprintf("src%d", w)
			for i := 0; i < perWriter; i++ {
				e := entry(source, i*10, 1, float32(i))
				if _, err := idx.Add([]Entry{e}); err != nil {
					t.Errorf("Add() error = %v", err)
					return
				}
				if i%3 == 0 {
					idx.Delete([]string{e.Chunk.ChunkID})
				}
			}
		}(w)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := idx.Search(query(1, 1), 20)
				if err != nil {
					t.Errorf("Search() error = %v", err)
					return
				}
				for _, sc := range res {
					if sc.Chunk.ChunkID == "" || sc.Chunk.SourceID == "" {
						t.Errorf("Search() returned entry %d without metadata", sc.InternalID)
						return
					}
					if sc.Chunk.ChunkID != models.NewChunkID(sc.Chunk.SourceID, sc.Chunk.StartOffset, sc.Chunk.EndOffset) {
						t.Errorf("Search() returned mismatched metadata for %d", sc.InternalID)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	// 17 of every 50 adds are deleted (i = 0, 3, ..., 48)
	want := writers * (perWriter - 17)
	if idx.Len() != want {
		t.Errorf("Len() = %d, want %d", idx.Len(), want)
	}
	if err := idx.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}
