package watcher

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Watcher = (*Watcher)(nil)

// skipDirectories are never descended into.
var skipDirectories = map[string]bool{
	".git":   true,
	".jj":    true,
	".cache": true,
}

const eventChannelBuffer = 100

// Watcher implements ports.Watcher with fsnotify, adding every directory
// below each root and following directories created later.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    ports.Logger
	events    chan ports.WatchEvent
	stopOnce  sync.Once
}

// NewWatcher creates a watcher. Errors reported by the OS are logged.
func NewWatcher(logger ports.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create file watcher")
	}
	return &Watcher{
		fsWatcher: fw,
		logger:    logger,
		events:    make(chan ports.WatchEvent, eventChannelBuffer),
	}, nil
}

// Start implements ports.Watcher.
func (w *Watcher) Start(ctx context.Context, roots ...string) error {
	for _, root := range roots {
		if err := os.MkdirAll(root, domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create watch root"), "root", root)
		}
		for dir := range walkDirs(root) {
			if err := w.fsWatcher.Add(dir); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to watch directory"), "dir", dir)
			}
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Stop implements ports.Watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	return err
}

// Events implements ports.Watcher.
func (w *Watcher) Events() iter.Seq[ports.WatchEvent] {
	return func(yield func(ports.WatchEvent) bool) {
		for event := range w.events {
			if !yield(event) {
				return
			}
		}
	}
}

// walkDirs yields root and every directory below it that is not skipped.
func walkDirs(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // unreadable directories are skipped
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && skipDirectories[d.Name()] {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			op, ok := convertOp(event.Op)
			if !ok {
				continue
			}

			select {
			case w.events <- ports.WatchEvent{Path: event.Name, Operation: op}:
			case <-ctx.Done():
				return
			}

			if op == ports.OpCreate {
				w.followNewDirectory(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// followNewDirectory starts watching a directory created after Start and
// reports the files that landed in it before the watch was in place.
func (w *Watcher) followNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || skipDirectories[info.Name()] {
		return
	}
	for dir := range walkDirs(path) {
		if err := w.fsWatcher.Add(dir); err != nil {
			w.logger.Warn("failed to watch directory", "dir", dir, "error", err)
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			select {
			case w.events <- ports.WatchEvent{Path: filepath.Join(dir, entry.Name()), Operation: ports.OpCreate}:
			default:
			}
		}
	}
}

func convertOp(op fsnotify.Op) (ports.WatchOp, bool) {
	switch {
	case op.Has(fsnotify.Write):
		return ports.OpWrite, true
	case op.Has(fsnotify.Create):
		return ports.OpCreate, true
	case op.Has(fsnotify.Remove):
		return ports.OpRemove, true
	case op.Has(fsnotify.Rename):
		return ports.OpRename, true
	default:
		return 0, false
	}
}
