package sharedcache

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

// Filesystem is a shared cache on a directory, typically a network mount.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: filepath.Clean(root)}
}

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Get implements Store.
func (f *Filesystem) Get(ctx context.Context, key string, w io.Writer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	//nolint:gosec // key is built by ObjectName
	file, err := os.Open(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(w, file); err != nil {
		return false, err
	}
	return true, nil
}

// Put implements Store. The object appears atomically via rename; an
// existing object is left untouched.
func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := f.path(key)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "dir", dir)
	}
	tmp, err := os.CreateTemp(dir, domain.TmpFilePrefix+"*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	return nil
}
