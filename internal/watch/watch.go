// ABOUTME: Directory watcher that keeps the index in step with files on disk
// ABOUTME: Created or written files are re-ingested; removed or renamed files are dropped
package watch

import (
	"context"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/harper/docrag/internal/ingest"
)

// Handler applies file changes to the index
type Handler interface {
	IngestFile(ctx context.Context, path string) (ingest.Result, error)
	RemoveFile(path string) (int, error)
}

// Operation is the kind of change applied for a file
type Operation string

const (
	OpIngested Operation = "ingested"
	OpRemoved  Operation = "removed"
)

// Event reports one applied change
type Event struct {
	Path      string
	Operation Operation
	Result    ingest.Result
	Removed   int
	Err       error
}

// Watcher watches a directory tree using fsnotify
type Watcher struct {
	watcher  *fsnotify.Watcher
	handler  Handler
	supports func(path string) bool
	logger   *log.Logger
	// OnEvent, when set, is called after each applied change
	OnEvent func(Event)
}

// New creates a Watcher. supports filters the files that are acted on.
func New(handler Handler, supports func(path string) bool, logger *log.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Watcher{
		watcher:  w,
		handler:  handler,
		supports: supports,
		logger:   logger,
	}, nil
}

// Watch monitors dir and its subdirectories until ctx is done
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.addTree(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Warning: watcher error: %v", err)
		}
	}
}

// Close stops the underlying watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.addNewTree(ctx, path)
			return
		}
	}
	if !w.supports(path) || isHidden(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		removed, err := w.handler.RemoveFile(path)
		w.emit(Event{Path: path, Operation: OpRemoved, Removed: removed, Err: err})
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.ingest(ctx, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := w.handler.IngestFile(ctx, path)
	if err != nil {
		w.logger.Printf("Warning: cannot ingest %s: %v", path, err)
	}
	w.emit(Event{Path: path, Operation: OpIngested, Result: res, Err: err})
}

// addNewTree watches a directory that appeared while watching and ingests
// the files it already holds, as left by a move or a recursive copy
func (w *Watcher) addNewTree(ctx context.Context, dir string) {
	if isHidden(dir) {
		return
	}
	if err := w.addTree(dir); err != nil {
		w.logger.Printf("Warning: cannot watch %s: %v", dir, err)
		return
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Printf("Warning: cannot read %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir && isHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.supports(path) && !isHidden(path) {
			w.ingest(ctx, path)
		}
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		w.logger.Printf("Warning: cannot scan %s: %v", dir, err)
	}
}

func (w *Watcher) emit(ev Event) {
	if w.OnEvent != nil {
		w.OnEvent(ev)
	}
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
