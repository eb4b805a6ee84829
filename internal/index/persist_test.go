// ABOUTME: Tests for index persistence, load validation and legacy migration
// ABOUTME: Uses t.TempDir() for on-disk layouts and corrupts them deliberately

package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
)

func persistedIndex(t *testing.T) (*Index, string) {
	t.Helper()
	idx := newTestIndex(t, 3, MetricCosine)
	if _, err := idx.Add([]Entry{
		entry("a", 0, 1, 0, 0),
		entry("a", 10, 0, 1, 0),
		entry("b", 0, 0, 0, 1),
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	idx.Delete([]string{entry("a", 10).Chunk.ChunkID})

	dir := filepath.Join(t.TempDir(), "index")
	if err := idx.Persist(dir); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	return idx, dir
}

func TestPersistLoad_RoundTrip(t *testing.T) {
	idx, dir := persistedIndex(t)

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := loaded.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if loaded.Len() != idx.Len() {
		t.Errorf("Len() = %d, want %d", loaded.Len(), idx.Len())
	}
	if loaded.Stats().NextID != idx.Stats().NextID {
		t.Errorf("NextID = %d, want %d", loaded.Stats().NextID, idx.Stats().NextID)
	}

	queries := []models.Embedding{query(1, 0, 0), query(0, 0, 1), query(0.3, 0.3, 0.3)}
	for _, q := range queries {
		want, _ := idx.Search(q, 5)
		got, err := loaded.Search(q, 5)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("Search(%v) returned %d, want %d", q.Vector, len(got), len(want))
		}
		for i := range want {
			if got[i].InternalID != want[i].InternalID || got[i].Chunk != want[i].Chunk || got[i].Score != want[i].Score {
				t.Errorf("Search(%v)[%d] = %+v, want %+v", q.Vector, i, got[i], want[i])
			}
		}
	}

	// New IDs continue past the persisted high-water mark
	ids, err := loaded.Add([]Entry{entry("c", 0, 1, 1, 0)})
	if err != nil {
		t.Fatalf("Add() after load error = %v", err)
	}
	if ids[0] != 4 {
		t.Errorf("next ID after load = %d, want 4", ids[0])
	}
}

func TestPersist_ReplacesExisting(t *testing.T) {
	idx, dir := persistedIndex(t)

	idx.DeleteSource("b")
	if err := idx.Persist(dir); err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("Len() = %d, want 1", loaded.Len())
	}

	// No temp or backup directories left behind
	entries, _ := os.ReadDir(filepath.Dir(dir))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") || strings.Contains(e.Name(), ".bak-") {
			t.Errorf("leftover %s", e.Name())
		}
	}
}

func TestPersistLoad_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 4, MetricL2)
	dir := filepath.Join(t.TempDir(), "empty")
	if err := idx.Persist(dir); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 0 || loaded.Config().Metric != MetricL2 {
		t.Errorf("loaded = %+v", loaded.Stats())
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, models.ErrIndexNotFound) {
		t.Errorf("Load(missing) error = %v, want IndexNotFound", err)
	}

	empty := t.TempDir()
	if _, err := Load(empty); !errors.Is(err, models.ErrIndexNotFound) {
		t.Errorf("Load(empty dir) error = %v, want IndexNotFound", err)
	}
}

func TestLoad_ForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("my notes"))

	if _, err := Load(dir); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("Load(non-index dir) error = %v, want IndexCorrupt", err)
	}
}

func TestPersist_RefusesForeignDirectory(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "mydocs")
	notes := filepath.Join(dir, "notes.txt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, notes, []byte("my notes"))

	idx := newTestIndex(t, 3, MetricCosine)
	if _, err := idx.Add([]Entry{entry("a", 0, 1, 0, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	err := idx.Persist(dir)
	if !errors.Is(err, models.ErrIndexCorrupt) {
		t.Fatalf("Persist(non-index dir) error = %v, want IndexCorrupt", err)
	}
	if b, err := os.ReadFile(notes); err != nil || string(b) != "my notes" {
		t.Errorf("existing file changed: %q, %v", b, err)
	}
	entries, _ := os.ReadDir(parent)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") || strings.Contains(e.Name(), ".bak-") {
			t.Errorf("leftover %s", e.Name())
		}
	}

	file := filepath.Join(parent, "plain-file")
	writeFile(t, file, []byte("x"))
	if err := idx.Persist(file); err == nil {
		t.Error("Persist over a regular file should fail")
	}
}

func TestPersist_IntoEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex(t, 3, MetricCosine)
	if _, err := idx.Add([]Entry{entry("a", 0, 1, 0, 0)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := idx.Persist(dir); err != nil {
		t.Fatalf("Persist(empty dir) error = %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("Len = %d, want 1", loaded.Len())
	}
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, dir string)
	}{
		{"malformed manifest", func(t *testing.T, dir string) {
			writeFile(t, filepath.Join(dir, ManifestFile), []byte("{not json"))
		}},
		{"wrong format version", func(t *testing.T, dir string) {
			editManifest(t, dir, func(m *Manifest) { m.FormatVersion = 7 })
		}},
		{"count disagrees with vectors", func(t *testing.T, dir string) {
			editManifest(t, dir, func(m *Manifest) { m.Count = 1 })
		}},
		{"truncated vectors", func(t *testing.T, dir string) {
			path := filepath.Join(dir, VectorFile)
			b, _ := os.ReadFile(path)
			writeFile(t, path, b[:len(b)-3])
		}},
		{"missing metadata", func(t *testing.T, dir string) {
			if err := os.Remove(filepath.Join(dir, MetaFile)); err != nil {
				t.Fatal(err)
			}
		}},
		{"garbage metadata", func(t *testing.T, dir string) {
			writeFile(t, filepath.Join(dir, MetaFile), []byte("this is not a database file at all, not even close"))
		}},
		{"vector id without metadata", func(t *testing.T, dir string) {
			path := filepath.Join(dir, VectorFile)
			b, _ := os.ReadFile(path)
			binary.LittleEndian.PutUint64(b[0:8], 2)
			writeFile(t, path, b)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dir := persistedIndex(t)
			tt.corrupt(t, dir)

			_, err := Load(dir)
			if !errors.Is(err, models.ErrIndexCorrupt) {
				t.Errorf("Load() error = %v, want IndexCorrupt", err)
			}
		})
	}
}

func TestLoadFor(t *testing.T) {
	_, dir := persistedIndex(t)

	if _, err := LoadFor(dir, testModel, 3); err != nil {
		t.Errorf("LoadFor(matching) error = %v", err)
	}
	if _, err := LoadFor(dir, "other-model", 3); !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("LoadFor(other model) error = %v", err)
	}
	if _, err := LoadFor(dir, testModel, 8); !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("LoadFor(other dim) error = %v", err)
	}
}

func TestLoad_LegacyLayoutNeedsMigration(t *testing.T) {
	dir := t.TempDir()
	writeLegacy(t, dir, testModel, 2, legacyChunks(), []float32{1, 0, 0, 1})

	if _, err := Load(dir); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("Load(legacy) error = %v, want IndexCorrupt", err)
	}
}

func TestRebuildFrom_ReusesVectors(t *testing.T) {
	dir := t.TempDir()
	chunks := legacyChunks()
	writeLegacy(t, dir, testModel, 2, chunks, []float32{1, 0, 0, 1})

	idx, err := RebuildFrom(context.Background(), dir, Config{ModelID: testModel, Dimension: 2}, nil)
	if err != nil {
		t.Fatalf("RebuildFrom() error = %v", err)
	}
	if idx.Len() != len(chunks) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(chunks))
	}
	for _, c := range chunks {
		got, ok := idx.Get(c.ChunkID)
		if !ok {
			t.Fatalf("chunk %s missing after rebuild", c.ChunkID)
		}
		if got.Chunk != c {
			t.Errorf("chunk %s = %+v, want %+v", c.ChunkID, got.Chunk, c)
		}
	}

	res, _ := idx.Search(query(0, 1), 1)
	if res[0].Chunk.ChunkID != chunks[1].ChunkID {
		t.Errorf("nearest = %s, want %s", res[0].Chunk.ChunkID, chunks[1].ChunkID)
	}
}

func TestRebuildFrom_ReembedsOnModelChange(t *testing.T) {
	dir := t.TempDir()
	chunks := legacyChunks()
	writeLegacy(t, dir, "old-model", 2, chunks, []float32{1, 0, 0, 1})

	emb, _ := embedding.NewHashEmbedder(16)
	cfg := Config{ModelID: emb.ModelID(), Dimension: emb.Dimension()}

	idx, err := RebuildFrom(context.Background(), dir, cfg, emb)
	if err != nil {
		t.Fatalf("RebuildFrom() error = %v", err)
	}
	if idx.Len() != len(chunks) || idx.Config().Dimension != 16 {
		t.Errorf("rebuilt index = %+v", idx.Stats())
	}

	if _, err := RebuildFrom(context.Background(), dir, cfg, nil); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("RebuildFrom(no embedder) error = %v, want InvalidArgument", err)
	}

	mismatched, _ := embedding.NewHashEmbedder(8)
	if _, err := RebuildFrom(context.Background(), dir, cfg, mismatched); !errors.Is(err, models.ErrDimensionOrModelMismatch) {
		t.Errorf("RebuildFrom(wrong embedder) error = %v, want DimensionOrModelMismatch", err)
	}
}

func TestRebuildFrom_MissingVectorsReembeds(t *testing.T) {
	dir := t.TempDir()
	writeLegacy(t, dir, testModel, 2, legacyChunks(), nil)

	emb, _ := embedding.NewHashEmbedder(2)
	cfg := Config{ModelID: emb.ModelID(), Dimension: 2}
	if _, err := RebuildFrom(context.Background(), dir, cfg, emb); err != nil {
		t.Errorf("RebuildFrom() error = %v", err)
	}
}

func legacyChunks() []models.Chunk {
	return []models.Chunk{
		{ChunkID: models.NewChunkID("doc", 0, 20), SourceID: "doc", Text: "tomatoes like sun", StartOffset: 0, EndOffset: 20},
		{ChunkID: models.NewChunkID("doc", 15, 40), SourceID: "doc", Text: "basil likes water", StartOffset: 15, EndOffset: 40},
	}
}

func writeLegacy(t *testing.T, dir, model string, dim int, chunks []models.Chunk, vectors []float32) {
	t.Helper()
	m := LegacyManifest{IndexVersion: 1, ModelID: model, Dim: dim, Normalize: true}
	mb, _ := json.Marshal(m)
	writeFile(t, filepath.Join(dir, LegacyManifestFile), mb)

	var lines []byte
	for _, c := range chunks {
		b, _ := json.Marshal(c)
		lines = append(append(lines, b...), '\n')
	}
	writeFile(t, filepath.Join(dir, LegacyChunksFile), lines)

	if vectors != nil {
		buf := make([]byte, 4*len(vectors))
		for i, v := range vectors {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		writeFile(t, filepath.Join(dir, LegacyVectorFile), buf)
	}
}

func editManifest(t *testing.T, dir string, edit func(*Manifest)) {
	t.Helper()
	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	edit(&m)
	out, _ := json.Marshal(m)
	writeFile(t, path, out)
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
}
