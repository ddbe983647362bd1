package cacher

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

// maxNegativeMessage bounds the failure text stored in a negative sidecar.
const maxNegativeMessage = 512

// fill is the single flight for hash: it re-checks the disk, then computes,
// validates and publishes the entry, or stores the failure.
func (c *Cacher) fill(ctx context.Context, req ports.CacheRequest, hash string) error {
	key := req.Key
	c.pinWait(hash)
	defer c.unpin(hash)

	meta, err := c.readMeta(key.Kind, hash)
	if err != nil {
		c.logger.Warn("dropping unreadable cache entry", "key", key.String(), "error", err)
	}
	if meta != nil {
		switch {
		case meta.State == domain.EntryPositive && c.verify(req, hash, meta) == nil:
			return nil
		case meta.State == domain.EntryNegative && !meta.Expired(c.now()):
			return negativeError(meta)
		default:
			if _, err := c.unpublish(key.Kind, hash, meta, false); err != nil {
				c.logger.Warn("failed to remove cache entry", "key", meta.Key, "error", err)
			}
		}
	}

	start := time.Now()
	err = c.compute(ctx, req, hash)
	c.metrics.CacheCompute(key.Kind, time.Since(start), err)
	if err != nil {
		c.storeNegative(key, hash, err)
		return err
	}
	return nil
}

// compute produces the payload into a temporary file next to its final
// location and publishes it with a rename followed by the sidecar.
func (c *Cacher) compute(ctx context.Context, req ports.CacheRequest, hash string) error {
	key := req.Key
	dir := c.entryDir(key.Kind, hash)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "dir", dir)
	}
	tmp, err := os.CreateTemp(dir, domain.TmpFilePrefix+"*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	w := &payloadWriter{file: tmp, digest: xxhash.New(), limit: c.budget}
	fromShared := c.fetchShared(ctx, req, w, tmpName)
	if !fromShared {
		if err := runCompute(ctx, req.Compute, w); err != nil {
			if w.exceeded {
				return tooLarge(key, c.budget)
			}
			return err
		}
		if w.exceeded {
			return tooLarge(key, c.budget)
		}
		if req.Validate != nil {
			if err := req.Validate(tmpName); err != nil {
				return err
			}
		}
	}

	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	meta := &domain.EntryMeta{
		Key:       key.String(),
		Kind:      key.Kind,
		State:     domain.EntryPositive,
		Size:      w.size,
		Checksum:  w.digest.Sum64(),
		CreatedAt: c.now(),
	}
	payload := c.payloadPath(key.Kind, hash)
	if err := c.publish(hash, tmpName, meta); err != nil {
		return err
	}
	c.metrics.CacheUsage(c.usage.Load())

	if fromShared {
		c.metrics.CacheLookup(key.Kind, ports.OutcomeShared)
	} else if c.shared != nil {
		c.shared.Submit(key, payload)
	}

	if c.usage.Load() > c.budget {
		if _, err := c.Sweep(); err != nil {
			c.logger.Warn("cache sweep failed", "error", err)
		}
	}
	return nil
}

// publish moves the payload into place and writes its sidecar, accounting
// the entry's size once the sidecar is visible.
func (c *Cacher) publish(hash, tmpName string, meta *domain.EntryMeta) error {
	mu := c.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	payload := c.payloadPath(meta.Kind, hash)
	if err := os.Rename(tmpName, payload); err != nil {
		return zerr.Wrap(err, domain.ErrCacheWriteFailed.Error())
	}
	if err := c.writeMeta(hash, meta); err != nil {
		_, _ = removeFile(payload)
		return err
	}
	c.verified.Store(hash, verification{generation: generation(meta), checksum: meta.Checksum})
	c.usage.Add(meta.Size)

	err := c.index.Put(domain.EntryRecord{
		Hash:       hash,
		Kind:       meta.Kind,
		Size:       meta.Size,
		LastAccess: meta.CreatedAt,
	})
	if err != nil {
		c.logger.Warn("failed to journal cache entry", "key", meta.Key, "error", err)
	}
	return nil
}

// fetchShared fills w from the shared tier and reports whether it holds a
// valid payload. Any failure leaves w empty.
func (c *Cacher) fetchShared(ctx context.Context, req ports.CacheRequest, w *payloadWriter, tmpName string) bool {
	if c.shared == nil {
		return false
	}
	ok, err := c.shared.Fetch(ctx, req.Key, w)
	if err == nil && ok && !w.exceeded && req.Validate != nil {
		err = req.Validate(tmpName)
	}
	if err == nil && ok && !w.exceeded {
		return true
	}
	if err != nil {
		c.logger.Warn("ignoring shared cache entry", "key", req.Key.String(), "error", err)
	}
	if err := w.reset(); err != nil {
		c.logger.Warn("failed to reset cache payload", "key", req.Key.String(), "error", err)
	}
	return false
}

// storeNegative records a failed computation for its kind's time-to-live.
func (c *Cacher) storeNegative(key domain.CacheKey, hash string, cause error) {
	if domain.IsCancellation(cause) {
		return
	}
	kind := domain.KindOf(cause)
	ttl, ok := c.negative.TTL(kind)
	if !ok {
		return
	}

	msg := cause.Error()
	if len(msg) > maxNegativeMessage {
		msg = msg[:maxNegativeMessage]
	}
	now := c.now()
	meta := &domain.EntryMeta{
		Key:       key.String(),
		Kind:      key.Kind,
		State:     domain.EntryNegative,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Reason:    kind.String(),
		Message:   msg,
	}
	mu := c.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	if err := c.writeMeta(hash, meta); err != nil {
		c.logger.Warn("failed to store negative cache entry", "key", meta.Key, "error", err)
		return
	}
	err := c.index.Put(domain.EntryRecord{
		Hash:       hash,
		Kind:       key.Kind,
		LastAccess: now,
		Negative:   true,
		ExpiresAt:  meta.ExpiresAt,
	})
	if err != nil {
		c.logger.Warn("failed to journal negative cache entry", "key", meta.Key, "error", err)
	}
}

func runCompute(ctx context.Context, fn ports.ComputeFunc, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(domain.ErrComputePanicked, "panic", fmt.Sprint(r))
		}
	}()
	return fn(ctx, w)
}

func tooLarge(key domain.CacheKey, budget int64) error {
	err := zerr.With(domain.ErrCacheEntryTooLarge, "key", key.String())
	return domain.ResourceExhausted(zerr.With(err, "budget", budget))
}

// payloadWriter writes to the temporary payload while hashing it, and
// refuses to grow past the disk budget.
type payloadWriter struct {
	file     *os.File
	digest   *xxhash.Digest
	size     int64
	limit    int64
	exceeded bool
}

func (w *payloadWriter) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > w.limit {
		w.exceeded = true
		return 0, zerr.With(domain.ErrCacheEntryTooLarge, "budget", w.limit)
	}
	n, err := w.file.Write(p)
	_, _ = w.digest.Write(p[:n])
	w.size += int64(n)
	return n, err
}

func (w *payloadWriter) reset() error {
	w.digest.Reset()
	w.size = 0
	w.exceeded = false
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}
