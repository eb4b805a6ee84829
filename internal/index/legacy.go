// ABOUTME: Reads format 1 indexes (manifest + chunks.jsonl + flat vectors.f32)
// ABOUTME: RebuildFrom migrates them into a current index, reusing vectors when possible
package index

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/models"
)

// Format 1 file names
const (
	LegacyManifestFile = "index_manifest.json"
	LegacyChunksFile   = "chunks.jsonl"
	LegacyVectorFile   = "vectors.f32"
)

// rebuildBatch bounds how many chunks are re-embedded per call
const rebuildBatch = 64

// LegacyManifest describes a format 1 index
type LegacyManifest struct {
	IndexVersion int    `json:"index_version"`
	CreatedAt    string `json:"created_at"`
	ModelID      string `json:"model_id"`
	Dim          int    `json:"dim"`
	Normalize    bool   `json:"normalize"`
	VectorFile   string `json:"vector_file"`
	ChunksFile   string `json:"chunks_file"`
}

// LegacyIndex is a loaded format 1 index. Vectors are row-major, one per chunk.
type LegacyIndex struct {
	Manifest LegacyManifest
	Chunks   []models.Chunk
	Vectors  []float32
}

// LoadLegacy reads a format 1 index from dir. The vector file is optional:
// a missing or mis-sized one leaves Vectors nil so the index is re-embedded.
func LoadLegacy(dir string) (*LegacyIndex, error) {
	b, err := os.ReadFile(filepath.Join(dir, LegacyManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.Errorf(models.KindIndexNotFound, "no format 1 index in %s", dir)
	}
	if err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "cannot read legacy manifest: %w", err)
	}

	var m LegacyManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "invalid legacy manifest JSON: %w", err)
	}
	if m.VectorFile == "" {
		m.VectorFile = LegacyVectorFile
	}
	if m.ChunksFile == "" {
		m.ChunksFile = LegacyChunksFile
	}

	chunks, err := loadLegacyChunks(filepath.Join(dir, m.ChunksFile))
	if err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "%v", err)
	}

	legacy := &LegacyIndex{Manifest: m, Chunks: chunks}
	if m.Dim > 0 {
		legacy.Vectors = loadLegacyVectors(filepath.Join(dir, m.VectorFile), len(chunks), m.Dim)
	}
	return legacy, nil
}

func loadLegacyChunks(path string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open chunks file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var out []models.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c models.Chunk
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("invalid chunks JSONL %s: %w", path, err)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read chunks file %s: %w", path, err)
	}
	return out, nil
}

func loadLegacyVectors(path string, n, dim int) []float32 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	expected := int64(n * dim * 4)
	if err != nil || st.Size() != expected {
		return nil
	}
	out := make([]float32, n*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil
	}
	return out
}

// vectorsUsable reports whether the legacy vectors can be carried over to cfg
func (l *LegacyIndex) vectorsUsable(cfg Config) bool {
	return l.Vectors != nil &&
		l.Manifest.ModelID == cfg.ModelID &&
		l.Manifest.Dim == cfg.Dimension &&
		len(l.Vectors) == len(l.Chunks)*cfg.Dimension
}

// RebuildFrom builds a current index from the format 1 index in legacyDir.
// Chunk identities and provenance are kept exactly; internal IDs are fresh.
// Legacy vectors are reused when model and dimension match cfg, otherwise
// every chunk is re-embedded with e.
func RebuildFrom(ctx context.Context, legacyDir string, cfg Config, e embedding.Embedder) (*Index, error) {
	legacy, err := LoadLegacy(legacyDir)
	if err != nil {
		return nil, err
	}
	return rebuild(ctx, legacy, cfg, e)
}

func rebuild(ctx context.Context, legacy *LegacyIndex, cfg Config, e embedding.Embedder) (*Index, error) {
	idx, err := New(cfg)
	if err != nil {
		return nil, err
	}
	cfg = idx.cfg

	entries := make([]Entry, len(legacy.Chunks))
	for i, c := range legacy.Chunks {
		entries[i].Chunk = c
	}

	if legacy.vectorsUsable(cfg) {
		for i := range entries {
			vec := legacy.Vectors[i*cfg.Dimension : (i+1)*cfg.Dimension]
			entries[i].Embedding = models.Embedding{ModelID: cfg.ModelID, Vector: vec}
		}
	} else {
		if e == nil {
			return nil, models.Errorf(models.KindInvalidArgument, "legacy vectors unusable and no embedder given")
		}
		if e.ModelID() != cfg.ModelID || e.Dimension() != cfg.Dimension {
			return nil, models.Errorf(models.KindDimensionOrModelMismatch,
				"embedder %s (%d dims) does not match index %s (%d dims)",
				e.ModelID(), e.Dimension(), cfg.ModelID, cfg.Dimension)
		}
		for start := 0; start < len(entries); start += rebuildBatch {
			end := min(start+rebuildBatch, len(entries))
			texts := make([]string, 0, end-start)
			for _, en := range entries[start:end] {
				texts = append(texts, en.Chunk.Text)
			}
			vecs, err := e.EmbedMany(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("re-embedding legacy chunks: %w", err)
			}
			if len(vecs) != len(texts) {
				return nil, models.Errorf(models.KindEmbeddingUnavailable,
					"embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			for i, vec := range vecs {
				entries[start+i].Embedding = models.Embedding{ModelID: cfg.ModelID, Vector: vec}
			}
		}
	}

	if _, err := idx.Add(entries); err != nil {
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}
	return idx, nil
}
