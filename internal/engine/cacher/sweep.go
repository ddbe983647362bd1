package cacher

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// Open reconciles the index with the entries on disk: it deletes leftover
// temporary files, orphaned payloads, and expired or unreadable entries, and
// journals entries the index does not know about.
func (c *Cacher) Open() error {
	if err := os.MkdirAll(c.dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrCacheCreateFailed.Error()), "dir", c.dir)
	}
	records, err := c.index.List()
	if err != nil {
		return err
	}
	known := make(map[string]domain.EntryRecord, len(records))
	for _, rec := range records {
		known[rec.Hash] = rec
	}

	seen := make(map[string]struct{}, len(records))
	var usage int64
	now := c.now()

	for _, kind := range domain.CacheKinds {
		root := filepath.Join(c.dir, string(kind))
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}

			name := d.Name()
			if strings.HasPrefix(name, domain.TmpFilePrefix) {
				_, err := removeFile(path)
				return err
			}
			hash, isMeta := strings.CutSuffix(name, domain.MetaFileSuffix)
			if !isMeta {
				if _, err := os.Stat(path + domain.MetaFileSuffix); errors.Is(err, fs.ErrNotExist) {
					_, err := removeFile(path)
					return err
				}
				return nil
			}

			meta, ok := c.reconcile(kind, hash, now)
			if !ok {
				return nil
			}
			seen[hash] = struct{}{}
			usage += meta.Size
			return c.journal(hash, meta, known)
		})
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "dir", root)
		}
	}

	for hash := range known {
		if _, ok := seen[hash]; !ok {
			if err := c.index.Delete(hash); err != nil {
				return err
			}
		}
	}

	c.usage.Store(usage)
	c.metrics.CacheUsage(usage)
	return nil
}

// reconcile checks one sidecar found on disk and removes the entry when it
// cannot be served.
func (c *Cacher) reconcile(kind domain.CacheKind, hash string, now time.Time) (*domain.EntryMeta, bool) {
	meta, err := c.readMeta(kind, hash)
	keep := err == nil && meta != nil && meta.Kind == kind
	if keep {
		switch meta.State {
		case domain.EntryPositive:
			size, err := statFile(c.payloadPath(kind, hash))
			keep = err == nil && size == meta.Size
		case domain.EntryNegative:
			keep = !meta.Expired(now)
			meta.Size = 0
		default:
			keep = false
		}
	}
	if !keep {
		if _, err := c.removeEntry(kind, hash); err != nil {
			c.logger.Warn("failed to remove stale cache entry", "hash", hash, "error", err)
		}
		return nil, false
	}
	return meta, true
}

// journal makes the index agree with meta, keeping a known access time.
func (c *Cacher) journal(hash string, meta *domain.EntryMeta, known map[string]domain.EntryRecord) error {
	rec := domain.EntryRecord{
		Hash:       hash,
		Kind:       meta.Kind,
		Size:       meta.Size,
		LastAccess: meta.CreatedAt,
		Negative:   meta.State == domain.EntryNegative,
		ExpiresAt:  meta.ExpiresAt,
	}
	if old, ok := known[hash]; ok {
		if old.LastAccess.After(rec.LastAccess) {
			rec.LastAccess = old.LastAccess
		}
		if old == rec {
			return nil
		}
	}
	return c.index.Put(rec)
}

// Sweep removes expired negative entries and evicts least recently used
// positive entries until usage fits the budget. Pinned entries are skipped.
func (c *Cacher) Sweep() (domain.SweepStats, error) {
	return c.sweep(c.budget, false)
}

// Clear removes every unpinned entry.
func (c *Cacher) Clear() (domain.SweepStats, error) {
	return c.sweep(0, true)
}

func (c *Cacher) sweep(budget int64, all bool) (domain.SweepStats, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	var stats domain.SweepStats
	records, err := c.index.List()
	if err != nil {
		return stats, err
	}

	now := c.now()
	positives := make([]domain.EntryRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Negative {
			positives = append(positives, rec)
			continue
		}
		if !all && now.Before(rec.ExpiresAt) {
			continue
		}
		if c.removeNegative(rec, all, now) {
			stats.ExpiredRemoved++
		}
	}

	slices.SortFunc(positives, func(a, b domain.EntryRecord) int {
		if n := a.LastAccess.Compare(b.LastAccess); n != 0 {
			return n
		}
		return cmp.Compare(a.Hash, b.Hash)
	})

	for _, rec := range positives {
		if c.usage.Load() <= budget {
			break
		}
		size, pinned := c.evict(rec)
		if pinned {
			stats.SkippedPinned++
			continue
		}
		if size == 0 {
			continue
		}
		stats.Evicted++
		stats.EvictedBytes += size
		c.metrics.CacheEvicted(rec.Kind, size)
	}

	stats.RemainingBytes = c.usage.Load()
	c.metrics.CacheUsage(stats.RemainingBytes)
	return stats, nil
}

// removeNegative removes the negative entry behind rec if the sidecar still
// holds a negative entry due for removal. The index may be stale: the key can
// have been recomputed since it was listed.
func (c *Cacher) removeNegative(rec domain.EntryRecord, all bool, now time.Time) bool {
	if c.claim(rec.Hash) != claimEvict {
		return false
	}
	defer c.release(rec.Hash)

	meta, err := c.readMeta(rec.Kind, rec.Hash)
	if err != nil || meta == nil || meta.State != domain.EntryNegative {
		return false
	}
	if !all && !meta.Expired(now) {
		return false
	}
	removed, err := c.unpublish(rec.Kind, rec.Hash, meta, false)
	if err != nil {
		c.logger.Warn("failed to remove negative cache entry", "hash", rec.Hash, "error", err)
	}
	return removed
}

// evict removes one positive entry unless it is pinned, and returns the
// bytes freed.
func (c *Cacher) evict(rec domain.EntryRecord) (freed int64, pinned bool) {
	if c.claim(rec.Hash) != claimEvict {
		return 0, true
	}
	defer c.release(rec.Hash)

	meta, err := c.readMeta(rec.Kind, rec.Hash)
	if err != nil || meta == nil || meta.State != domain.EntryPositive {
		// Demoted or replaced by a negative entry since the index was listed.
		return 0, false
	}
	removed, err := c.unpublish(rec.Kind, rec.Hash, meta, true)
	if err != nil {
		c.logger.Warn("failed to evict cache entry", "hash", rec.Hash, "error", err)
	}
	if !removed {
		return 0, false
	}
	return meta.Size, false
}

// Run sweeps on the configured interval until ctx ends.
func (c *Cacher) Run(ctx context.Context) error {
	interval := c.interval
	if interval <= 0 {
		interval = domain.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Sweep(); err != nil {
				c.logger.Error(err)
			}
		}
	}
}

// Stats summarizes the journaled entries.
func (c *Cacher) Stats() (domain.CacheStats, error) {
	records, err := c.index.List()
	if err != nil {
		return domain.CacheStats{}, err
	}
	stats := domain.CacheStats{
		BudgetBytes:  c.budget,
		PinnedHashes: c.pinned(),
		ByKind:       make(map[domain.CacheKind]int64, len(domain.CacheKinds)),
	}
	for _, rec := range records {
		stats.Entries++
		if rec.Negative {
			stats.Negative++
			continue
		}
		stats.Bytes += rec.Size
		stats.ByKind[rec.Kind] += rec.Size
	}
	return stats, nil
}
