package sources

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// Filesystem serves objects from a local directory tree.
type Filesystem struct {
	id   string
	root string
}

// NewFilesystem creates a backend rooted at cfg.Path.
func NewFilesystem(cfg domain.SourceConfig) *Filesystem {
	return &Filesystem{id: cfg.ID, root: filepath.Clean(cfg.Path)}
}

// ID implements ports.SourceBackend.
func (f *Filesystem) ID() string { return f.id }

// Root returns the directory objects are served from.
func (f *Filesystem) Root() string { return f.root }

// Resolve maps an object path to its file on disk.
func (f *Filesystem) Resolve(objPath string) (string, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

// Fetch implements ports.SourceBackend.
func (f *Filesystem) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient(err)
	}
	full, err := f.Resolve(objPath)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // path is confined to the source root by Resolve
	file, err := os.Open(full)
	if err != nil {
		return nil, f.classify(err, objPath)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, f.classify(err, objPath)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, notFound(f.id, objPath)
	}
	return file, nil
}

// Exists implements ports.SourceBackend.
func (f *Filesystem) Exists(ctx context.Context, objPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.Transient(err)
	}
	full, err := f.Resolve(objPath)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, f.classify(err, objPath)
	}
	return !info.IsDir(), nil
}

func (f *Filesystem) classify(err error, objPath string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(f.id, objPath)
	}
	return domain.Transient(annotate(zerr.Wrap(err, domain.ErrSourceRequestFailed.Error()), f.id, objPath))
}
