// Package watch reports changes to individual files.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event is a change to a watched file.
type Event struct {
	Path    string
	Removed bool
}

// Watcher watches individual files. It watches their parent directories so
// that replace-by-rename writes are seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int
}

// New creates a watcher with nothing watched.
func New(logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:     fw,
		logger: logger,
		files:  make(map[string]bool),
		dirs:   make(map[string]int),
	}, nil
}

// Watch starts reporting changes to path.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	return nil
}

// Unwatch stops reporting changes to path.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	delete(w.files, path)
	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fs.Remove(dir); err != nil {
			w.logger.Debug("unwatch directory", "dir", dir, "err", err)
		}
	}
}

// Watching reports whether path is watched.
func (w *Watcher) Watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(path)]
}

// Run delivers events for watched files to fn until ctx is cancelled or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.Watching(path) {
				continue
			}
			fn(Event{Path: path, Removed: event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "err", err)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
