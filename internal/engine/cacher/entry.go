package cacher

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// entryDir returns the directory holding the payload and sidecar of hash.
// Entries fan out over 256 subdirectories per kind.
func (c *Cacher) entryDir(kind domain.CacheKind, hash string) string {
	return filepath.Join(c.dir, string(kind), hash[:2])
}

func (c *Cacher) payloadPath(kind domain.CacheKind, hash string) string {
	return filepath.Join(c.entryDir(kind, hash), hash)
}

func (c *Cacher) metaPath(kind domain.CacheKind, hash string) string {
	return c.payloadPath(kind, hash) + domain.MetaFileSuffix
}

// readMeta loads the sidecar of hash. A missing sidecar is reported as
// (nil, nil).
func (c *Cacher) readMeta(kind domain.CacheKind, hash string) (*domain.EntryMeta, error) {
	path := c.metaPath(kind, hash)
	//nolint:gosec // path is derived from the cache directory and a hex hash
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", path)
	}
	var meta domain.EntryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheMetaCorrupt.Error()), "path", path)
	}
	return &meta, nil
}

// writeMeta replaces the sidecar of hash atomically.
func (c *Cacher) writeMeta(hash string, meta *domain.EntryMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	dir := c.entryDir(meta.Kind, hash)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "dir", dir)
	}
	tmp, err := os.CreateTemp(dir, domain.TmpFilePrefix+"*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := os.Rename(tmpName, c.metaPath(meta.Kind, hash)); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	return nil
}

// removeEntry deletes the sidecar, payload and index record of hash and
// forgets its verification. Only Open uses it, before any handle exists.
func (c *Cacher) removeEntry(kind domain.CacheKind, hash string) (removed bool, err error) {
	c.verified.Delete(hash)
	var errs []error
	removed, err = removeFile(c.metaPath(kind, hash))
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := removeFile(c.payloadPath(kind, hash)); err != nil {
		errs = append(errs, err)
	}
	if err := c.index.Delete(hash); err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// lockFor returns the publication lock of hash.
func (c *Cacher) lockFor(hash string) *sync.Mutex {
	n, err := strconv.ParseUint(hash[:2], 16, 8)
	if err != nil {
		n = uint64(hash[0])
	}
	return &c.locks[n]
}

// unpublish deletes the sidecar and index record of hash if the sidecar
// still describes the entry seen. A nil seen matches a sidecar that cannot
// be read. The payload goes too when withPayload is set; otherwise it is
// replaced by the next publish or removed when the cache is reopened. A
// positive entry's size leaves the usage once.
func (c *Cacher) unpublish(kind domain.CacheKind, hash string, seen *domain.EntryMeta, withPayload bool) (bool, error) {
	mu := c.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	cur, err := c.readMeta(kind, hash)
	if !sameGeneration(seen, cur, err) {
		return false, nil
	}

	c.verified.Delete(hash)
	var errs []error
	removed, err := removeFile(c.metaPath(kind, hash))
	if err != nil {
		errs = append(errs, err)
	}
	if withPayload {
		if _, err := removeFile(c.payloadPath(kind, hash)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.index.Delete(hash); err != nil {
		errs = append(errs, err)
	}
	if removed && seen != nil && seen.State == domain.EntryPositive {
		c.usage.Add(-seen.Size)
	}
	return removed, errors.Join(errs...)
}

// sameGeneration reports whether the sidecar read as (cur, readErr) is the
// one observed as seen.
func sameGeneration(seen, cur *domain.EntryMeta, readErr error) bool {
	if seen == nil {
		return readErr != nil
	}
	if readErr != nil || cur == nil {
		return false
	}
	return cur.State == seen.State &&
		cur.CreatedAt.Equal(seen.CreatedAt) &&
		cur.Checksum == seen.Checksum
}

// removeFile deletes path and reports whether it existed.
func removeFile(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, zerr.With(zerr.Wrap(err, domain.ErrCacheWriteFailed.Error()), "path", path)
}

// statFile returns the size of the regular file at path.
func statFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", path)
	}
	return info.Size(), nil
}

// checksumFile returns the xxhash of the file at path.
func checksumFile(path string) (uint64, error) {
	//nolint:gosec // path is inside the cache directory
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// generation identifies one publication of an entry.
func generation(meta *domain.EntryMeta) int64 {
	return meta.CreatedAt.UnixNano()
}
