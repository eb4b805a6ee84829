// ABOUTME: Persists and loads an index directory (manifest, binary vectors, sqlite metadata)
// ABOUTME: Writes go to a temp sibling that is swapped in atomically under a file lock
package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/harper/docrag/internal/models"
)

// FormatVersion is the on-disk layout version written by Persist
const FormatVersion = 2

// Layout file names
const (
	ManifestFile = "manifest.json"
	VectorFile   = "vectors.bin"
	MetaFile     = "chunks.db"
)

// Manifest describes a persisted index
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	ModelID       string    `json:"model_id"`
	Dimension     int       `json:"dimension"`
	Metric        Metric    `json:"metric"`
	Count         int       `json:"count"`
	NextID        uint64    `json:"next_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	VectorFile    string    `json:"vector_file"`
	MetaFile      string    `json:"meta_file"`
}

// Persist writes the index to location, replacing any index already there.
// A crash mid-write leaves the previous index intact.
func (idx *Index) Persist(location string) error {
	location = filepath.Clean(location)
	parent := filepath.Dir(location)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create index parent %s: %w", parent, err)
	}

	lock := flock.New(location + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("cannot lock index %s: %w", location, err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := checkReplaceable(location); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	rows := idx.snap.Load().rows
	manifest := Manifest{
		FormatVersion: FormatVersion,
		ModelID:       idx.cfg.ModelID,
		Dimension:     idx.cfg.Dimension,
		Metric:        idx.cfg.Metric,
		Count:         len(rows),
		NextID:        idx.nextID,
		CreatedAt:     idx.createdAt,
		UpdatedAt:     idx.updatedAt,
		VectorFile:    VectorFile,
		MetaFile:      MetaFile,
	}

	tmp := filepath.Join(parent, "."+filepath.Base(location)+".tmp-"+uuid.NewString())
	if err := writeLayout(tmp, manifest, rows); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := atomicSwap(tmp, location); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("cannot swap index into %s: %w", location, err)
	}
	return nil
}

func writeLayout(dir string, manifest Manifest, rows []row) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}
	if err := writeVectors(filepath.Join(dir, manifest.VectorFile), rows); err != nil {
		return err
	}
	if err := writeMetaStore(filepath.Join(dir, manifest.MetaFile), rows); err != nil {
		return err
	}

	// Manifest last: its presence marks a complete layout
	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}

// writeVectors writes little-endian [id uint64][dim x float32] records
func writeVectors(path string, rows []row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, r := range rows {
		if err := binary.Write(bw, binary.LittleEndian, r.id); err != nil {
			_ = f.Close()
			return fmt.Errorf("cannot write vectors: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, r.vec); err != nil {
			_ = f.Close()
			return fmt.Errorf("cannot write vectors: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads a persisted index. A missing index is IndexNotFound; any
// inconsistency between manifest, vectors and metadata is IndexCorrupt.
func Load(location string) (*Index, error) {
	location = filepath.Clean(location)
	info, err := os.Stat(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.Errorf(models.KindIndexNotFound, "no index at %s", location)
	}
	if err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "cannot stat %s: %w", location, err)
	}
	if !info.IsDir() {
		return nil, models.Errorf(models.KindIndexCorrupt, "%s is not a directory", location)
	}

	lock := flock.New(location + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("cannot lock index %s: %w", location, err)
	}
	defer func() { _ = lock.Unlock() }()

	manifest, err := readManifest(location)
	if err != nil {
		return nil, err
	}
	idx, err := loadLayout(location, manifest)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// LoadFor loads an index and checks it was built by the given model and dimension
func LoadFor(location, modelID string, dimension int) (*Index, error) {
	idx, err := Load(location)
	if err != nil {
		return nil, err
	}
	if idx.cfg.ModelID != modelID || idx.cfg.Dimension != dimension {
		return nil, models.Errorf(models.KindDimensionOrModelMismatch,
			"index at %s was built with %s (%d dims), requested %s (%d dims)",
			location, idx.cfg.ModelID, idx.cfg.Dimension, modelID, dimension)
	}
	return idx, nil
}

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if _, legacyErr := os.Stat(filepath.Join(dir, LegacyManifestFile)); legacyErr == nil {
			return m, models.Errorf(models.KindIndexCorrupt,
				"%s holds a format 1 index; migrate it before loading", dir)
		}
		empty, emptyErr := dirEmpty(dir)
		if emptyErr != nil {
			return m, models.Errorf(models.KindIndexCorrupt, "cannot read %s: %w", dir, emptyErr)
		}
		if !empty {
			return m, models.Errorf(models.KindIndexCorrupt,
				"%s holds files but no %s; it is not an index directory", dir, ManifestFile)
		}
		return m, models.Errorf(models.KindIndexNotFound, "no manifest in %s", dir)
	}
	if err != nil {
		return m, models.Errorf(models.KindIndexCorrupt, "cannot read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, models.Errorf(models.KindIndexCorrupt, "invalid manifest JSON: %w", err)
	}

	if m.FormatVersion != FormatVersion {
		return m, models.Errorf(models.KindIndexCorrupt,
			"unsupported format version %d (want %d)", m.FormatVersion, FormatVersion)
	}
	cfg := Config{ModelID: m.ModelID, Dimension: m.Dimension, Metric: m.Metric}
	if err := cfg.Validate(); err != nil {
		return m, models.Errorf(models.KindIndexCorrupt, "invalid manifest: %v", err)
	}
	if m.Count < 0 || (m.Count > 0 && uint64(m.Count) >= m.NextID) {
		return m, models.Errorf(models.KindIndexCorrupt, "count %d inconsistent with next_id %d", m.Count, m.NextID)
	}
	if m.VectorFile == "" {
		m.VectorFile = VectorFile
	}
	if m.MetaFile == "" {
		m.MetaFile = MetaFile
	}
	return m, nil
}

func loadLayout(dir string, m Manifest) (*Index, error) {
	vecs, ids, err := readVectors(filepath.Join(dir, m.VectorFile), m.Count, m.Dimension)
	if err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "%v", err)
	}

	meta, err := readMetaStore(filepath.Join(dir, m.MetaFile))
	if err != nil {
		return nil, models.Errorf(models.KindIndexCorrupt, "%v", err)
	}
	if len(meta) != len(ids) {
		return nil, models.Errorf(models.KindIndexCorrupt,
			"%d vectors but %d metadata rows", len(ids), len(meta))
	}

	idx := &Index{
		cfg:       Config{ModelID: m.ModelID, Dimension: m.Dimension, Metric: m.Metric},
		byChunk:   make(map[string]uint64, len(ids)),
		nextID:    max(m.NextID, 1),
		createdAt: m.CreatedAt,
		updatedAt: m.UpdatedAt,
	}

	rows := make([]row, len(ids))
	var prev uint64
	for i, id := range ids {
		if id <= prev || id >= idx.nextID {
			return nil, models.Errorf(models.KindIndexCorrupt, "vector ID %d out of order or above next_id", id)
		}
		prev = id
		if meta[i].id != id {
			return nil, models.Errorf(models.KindIndexCorrupt,
				"vector ID %d has no metadata (found %d)", id, meta[i].id)
		}
		c := meta[i].chunk
		if err := c.Validate(); err != nil {
			return nil, models.Errorf(models.KindIndexCorrupt, "%v", err)
		}
		if _, dup := idx.byChunk[c.ChunkID]; dup {
			return nil, models.Errorf(models.KindIndexCorrupt, "duplicate chunk %s", c.ChunkID)
		}
		idx.byChunk[c.ChunkID] = id
		rows[i] = row{id: id, chunk: c, vec: vecs[i]}
	}

	idx.snap.Store(&snapshot{rows: rows})
	return idx, nil
}

// readVectors reads count records of dimension dim, checking the exact file size
func readVectors(path string, count, dim int) ([][]float32, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open vector file: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot stat vector file: %w", err)
	}
	recordSize := int64(8 + 4*dim)
	expected := int64(count) * recordSize
	if st.Size() != expected {
		return nil, nil, fmt.Errorf("vector file size mismatch: got %d want %d (count=%d dim=%d)",
			st.Size(), expected, count, dim)
	}

	br := bufio.NewReader(io.LimitReader(f, expected))
	vecs := make([][]float32, count)
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, &ids[i]); err != nil {
			return nil, nil, fmt.Errorf("cannot read vector ID: %w", err)
		}
		vecs[i] = make([]float32, dim)
		if err := binary.Read(br, binary.LittleEndian, vecs[i]); err != nil {
			return nil, nil, fmt.Errorf("cannot read vector: %w", err)
		}
	}
	return vecs, ids, nil
}

// checkReplaceable refuses to let Persist overwrite anything at location
// other than a previously persisted index or an empty directory
func checkReplaceable(location string) error {
	info, err := os.Stat(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", location, err)
	}
	if !info.IsDir() {
		return models.Errorf(models.KindIndexCorrupt, "%s exists and is not a directory", location)
	}
	if _, err := os.Stat(filepath.Join(location, ManifestFile)); err == nil {
		return nil
	}
	empty, err := dirEmpty(location)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", location, err)
	}
	if !empty {
		return models.Errorf(models.KindIndexCorrupt,
			"%s is not an index directory; refusing to replace its contents", location)
	}
	return nil
}

func dirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// atomicSwap replaces destDir with srcDir by renaming, restoring the old
// directory if the final rename fails
func atomicSwap(srcDir, destDir string) error {
	backup := destDir + ".bak-" + uuid.NewString()
	hadOld := false
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
		hadOld = true
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		if hadOld {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	if hadOld {
		_ = os.RemoveAll(backup)
	}
	return nil
}
