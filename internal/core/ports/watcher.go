package ports

import (
	"context"
	"iter"
)

// WatchOp is the kind of file system change.
type WatchOp uint8

const (
	// OpCreate means a file or directory appeared.
	OpCreate WatchOp = iota + 1
	// OpWrite means a file was written.
	OpWrite
	// OpRemove means a file or directory was removed.
	OpRemove
	// OpRename means a file or directory was renamed away.
	OpRename
)

// WatchEvent is one file system change.
type WatchEvent struct {
	Path      string
	Operation WatchOp
}

// Watcher observes directory trees for changes.
//
//go:generate mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks
type Watcher interface {
	// Start watches every root recursively until ctx ends or Stop is called.
	Start(ctx context.Context, roots ...string) error
	// Stop releases all resources.
	Stop() error
	// Events yields changes until the watcher stops.
	Events() iter.Seq[WatchEvent]
}
