// ABOUTME: Ingestion pipeline: document -> segmenter -> embedder -> vector index
// ABOUTME: Re-ingesting a source replaces its chunks atomically and reuses unchanged vectors
package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/embedding"
	"github.com/harper/docrag/internal/extract"
	"github.com/harper/docrag/internal/index"
	"github.com/harper/docrag/internal/models"
)

// Store is the part of the vector index ingestion writes to
type Store interface {
	Config() index.Config
	Get(chunkID string) (models.IndexEntry, bool)
	ChunksBySource(sourceID string) []models.Chunk
	ReplaceSource(sourceID string, entries []index.Entry) (int, []uint64, error)
	DeleteSource(sourceID string) int
	Persist(location string) error
}

// Options configures an Ingester
type Options struct {
	// AutoPersist writes the index to Location after every changed document
	AutoPersist bool
	Location    string
	Logger      *log.Logger
}

// Result describes the outcome for one document
type Result struct {
	SourceID  string `json:"source_id"`
	Path      string `json:"path,omitempty"`
	Chunks    int    `json:"chunks"`
	Embedded  int    `json:"embedded"`
	Removed   int    `json:"removed"`
	Unchanged bool   `json:"unchanged"`
}

// Failure records a file that could not be ingested
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Report summarises a directory ingestion
type Report struct {
	Ingested []Result  `json:"ingested"`
	Failed   []Failure `json:"failed"`
}

// Ingester indexes documents
type Ingester struct {
	segmenter *core.Segmenter
	embedder  embedding.Embedder
	store     Store
	loader    *extract.Registry
	opts      Options
	logger    *log.Logger
}

// NewIngester creates an Ingester. The embedder must match the store's model and dimension.
func NewIngester(segmenter *core.Segmenter, embedder embedding.Embedder, store Store, loader *extract.Registry, opts Options) (*Ingester, error) {
	cfg := store.Config()
	if embedder.ModelID() != cfg.ModelID || embedder.Dimension() != cfg.Dimension {
		return nil, models.Errorf(models.KindDimensionOrModelMismatch,
			"embedder %s (%d dims) does not match index %s (%d dims)",
			embedder.ModelID(), embedder.Dimension(), cfg.ModelID, cfg.Dimension)
	}
	if opts.AutoPersist && opts.Location == "" {
		return nil, fmt.Errorf("auto-persist needs an index location")
	}
	if loader == nil {
		loader = extract.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Ingester{
		segmenter: segmenter,
		embedder:  embedder,
		store:     store,
		loader:    loader,
		opts:      opts,
		logger:    logger,
	}, nil
}

// IngestDocument segments, embeds and indexes doc, replacing any earlier
// version of the same source. Embedding happens before the index is touched,
// so a failure leaves the previous version in place.
func (ing *Ingester) IngestDocument(ctx context.Context, doc models.Document) (Result, error) {
	if doc.SourceID == "" {
		return Result{}, models.Errorf(models.KindInvalidArgument, "document source ID cannot be empty")
	}

	res := Result{SourceID: doc.SourceID, Path: doc.Path}
	chunks := ing.segmenter.Segment(doc)
	res.Chunks = len(chunks)

	if sameChunks(ing.store.ChunksBySource(doc.SourceID), chunks) {
		res.Unchanged = true
		return res, nil
	}

	entries := make([]index.Entry, len(chunks))
	var texts []string
	var pending []int
	for i, c := range chunks {
		entries[i].Chunk = c
		// Same chunk ID and text means the stored vector is still valid
		if prev, ok := ing.store.Get(c.ChunkID); ok && prev.Chunk.Text == c.Text {
			entries[i].Embedding = prev.Embedding
			continue
		}
		texts = append(texts, c.Text)
		pending = append(pending, i)
	}

	if len(texts) > 0 {
		vecs, err := ing.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("embedding %s: %w", doc.SourceID, err)
		}
		if len(vecs) != len(texts) {
			return res, models.Errorf(models.KindEmbeddingUnavailable,
				"embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for j, i := range pending {
			entries[i].Embedding = models.Embedding{ModelID: ing.embedder.ModelID(), Vector: vecs[j]}
		}
	}
	res.Embedded = len(texts)

	removed, _, err := ing.store.ReplaceSource(doc.SourceID, entries)
	if err != nil {
		return res, fmt.Errorf("indexing %s: %w", doc.SourceID, err)
	}
	res.Removed = removed

	if err := ing.persist(); err != nil {
		return res, err
	}
	return res, nil
}

// IngestFile extracts and ingests one file
func (ing *Ingester) IngestFile(ctx context.Context, path string) (Result, error) {
	doc, err := ing.loader.Load(path)
	if err != nil {
		return Result{Path: path}, err
	}
	return ing.IngestDocument(ctx, doc)
}

// IngestDir ingests every supported file under dir. Files that fail are
// skipped and reported; only cancellation or an unreadable root aborts.
func (ing *Ingester) IngestDir(ctx context.Context, dir string) (Report, error) {
	var report Report

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			report.Failed = append(report.Failed, Failure{Path: path, Err: walkErr.Error()})
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !ing.loader.Supports(path) {
			return nil
		}

		res, err := ing.IngestFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ing.logger.Printf("Warning: skipping %s: %v", path, err)
			report.Failed = append(report.Failed, Failure{Path: path, Err: err.Error()})
			return nil
		}
		report.Ingested = append(report.Ingested, res)
		return nil
	})
	return report, err
}

// RemoveFile drops every chunk of the file at path
func (ing *Ingester) RemoveFile(path string) (int, error) {
	return ing.RemoveSource(models.SourceIDForPath(path))
}

// RemoveSource drops every chunk of a source
func (ing *Ingester) RemoveSource(sourceID string) (int, error) {
	removed := ing.store.DeleteSource(sourceID)
	if removed == 0 {
		return 0, nil
	}
	return removed, ing.persist()
}

func (ing *Ingester) persist() error {
	if !ing.opts.AutoPersist {
		return nil
	}
	if err := ing.store.Persist(ing.opts.Location); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	return nil
}

// sameChunks reports whether stored chunks match a fresh segmentation exactly
func sameChunks(stored, fresh []models.Chunk) bool {
	if len(stored) != len(fresh) {
		return false
	}
	for i := range fresh {
		if stored[i] != fresh[i] {
			return false
		}
	}
	return true
}
