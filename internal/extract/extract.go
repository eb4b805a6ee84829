// ABOUTME: Document extraction boundary: picks an extractor by file extension
// ABOUTME: Every extractor returns plain UTF-8 text for the (source_id, raw_text) contract
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harper/docrag/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor turns one file format into plain text
type Extractor interface {
	Extract(path string) (string, error)
	Extensions() []string
}

// Registry maps lowercase file extensions to extractors
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates a registry with the built-in text and docx extractors
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(NewTextExtractor())
	r.Register(NewDocxExtractor())
	return r
}

// Register adds an extractor for each of its extensions, replacing earlier ones
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Supports reports whether path has a registered extension
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, sorted
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load extracts path into a Document whose source ID is derived from the path
func (r *Registry) Load(path string) (models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return models.Document{}, fmt.Errorf("%s: %w (%q)", path, ErrUnsupportedFormat, ext)
	}

	text, err := e.Extract(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("extracting %s: %w", path, err)
	}
	return models.Document{
		SourceID: models.SourceIDForPath(path),
		RawText:  text,
		Path:     path,
	}, nil
}
