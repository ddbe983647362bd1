// Package cacher implements the fetch-through disk cache every downloaded
// object and derived index goes through.
//
// An entry is a payload file plus a JSON sidecar under
// <dir>/<kind>/<hash[:2]>/<hash>. Failures are stored as sidecar-only
// negative entries until their time-to-live ends. Concurrent requests for
// the same key share one computation, and a reference-counted handle pins
// a positive entry against eviction for as long as it is held.
package cacher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// Options configures a Cacher.
type Options struct {
	Dir           string
	MaxDiskBytes  int64
	SweepInterval time.Duration
	Negative      domain.NegativePolicy
	Index         ports.EntryIndex
	// Shared is the optional second tier consulted before computing.
	Shared  ports.SharedCache
	Logger  ports.Logger
	Metrics ports.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type verification struct {
	generation int64
	checksum   uint64
}

// Cacher implements ports.Cache.
type Cacher struct {
	dir      string
	budget   int64
	interval time.Duration
	negative domain.NegativePolicy
	index    ports.EntryIndex
	shared   ports.SharedCache
	logger   ports.Logger
	metrics  ports.Metrics
	now      func() time.Time

	group    singleflight.Group
	verified *xsync.MapOf[string, verification]
	usage    atomic.Int64

	// refs counts open handles per hash; -1 marks an entry being evicted.
	refs *xsync.MapOf[string, int]

	// evicting holds a channel per claimed hash, closed on release.
	evicting *xsync.MapOf[string, chan struct{}]

	// locks serialize publishing and unpublishing a sidecar, striped by the
	// entry's fan-out directory.
	locks [256]sync.Mutex

	sweepMu sync.Mutex
}

var _ ports.Cache = (*Cacher)(nil)

// New creates a Cacher. Open must be called before the first Get.
func New(opts Options) *Cacher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	budget := opts.MaxDiskBytes
	if budget <= 0 {
		budget = domain.DefaultMaxDiskBytes
	}
	return &Cacher{
		dir:      opts.Dir,
		budget:   budget,
		interval: opts.SweepInterval,
		negative: opts.Negative,
		index:    opts.Index,
		shared:   opts.Shared,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      now,
		refs:     xsync.NewMapOf[string, int](),
		evicting: xsync.NewMapOf[string, chan struct{}](),
		verified: xsync.NewMapOf[string, verification](),
	}
}

// Dir returns the cache root.
func (c *Cacher) Dir() string { return c.dir }

// Budget returns the disk budget in bytes.
func (c *Cacher) Budget() int64 { return c.budget }

// Usage returns the bytes currently held by positive entries.
func (c *Cacher) Usage() int64 { return c.usage.Load() }

// Get implements ports.Cache.
func (c *Cacher) Get(ctx context.Context, req ports.CacheRequest) (ports.CacheHandle, error) {
	hash := req.Key.Hash()

	// A waiter can lose the entry to eviction between the shared computation
	// finishing and pinning it; one more round recomputes it.
	for attempt := 0; ; attempt++ {
		h, done, err := c.lookup(req, hash)
		if done {
			return h, err
		}
		c.metrics.CacheLookup(req.Key.Kind, ports.OutcomeMiss)

		ch := c.group.DoChan(hash, func() (any, error) {
			return nil, c.fill(context.WithoutCancel(ctx), req, hash)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}

		h, done, err = c.lookup(req, hash)
		if done || attempt > 0 {
			if !done {
				err = domain.Transient(zerr.With(domain.ErrCacheReadFailed, "key", req.Key.String()))
			}
			return h, err
		}
	}
}

// lookup answers req from disk. done is false when the entry is absent or
// was demoted and must be computed.
func (c *Cacher) lookup(req ports.CacheRequest, hash string) (ports.CacheHandle, bool, error) {
	if !c.pin(hash) {
		return nil, false, nil
	}

	meta, err := c.readMeta(req.Key.Kind, hash)
	if err != nil {
		c.unpin(hash)
		c.logger.Warn("dropping unreadable cache entry", "key", req.Key.String(), "error", err)
		c.demote(req.Key.Kind, hash, nil)
		return nil, false, nil
	}
	if meta == nil {
		c.unpin(hash)
		return nil, false, nil
	}

	switch meta.State {
	case domain.EntryNegative:
		c.unpin(hash)
		if meta.Expired(c.now()) {
			// fill replaces it under the single flight.
			return nil, false, nil
		}
		c.metrics.CacheLookup(req.Key.Kind, ports.OutcomeNegative)
		return nil, true, negativeError(meta)
	case domain.EntryPositive:
		if err := c.verify(req, hash, meta); err != nil {
			c.unpin(hash)
			c.metrics.CacheLookup(req.Key.Kind, ports.OutcomeInvalid)
			c.logger.Warn("cache entry failed validation", "key", meta.Key, "error", err)
			c.demote(req.Key.Kind, hash, meta)
			return nil, false, nil
		}
		if err := c.index.Touch(hash, c.now()); err != nil {
			c.logger.Warn("failed to record cache access", "key", meta.Key, "error", err)
		}
		c.metrics.CacheLookup(req.Key.Kind, ports.OutcomeHit)
		return c.newHandle(req.Key, hash, meta.Size), true, nil
	default:
		c.unpin(hash)
		c.demote(req.Key.Kind, hash, meta)
		return nil, false, nil
	}
}

// verify checks a positive entry before it is served. Size is checked on
// every read; the checksum and the caller's validator run once per
// generation of the entry.
func (c *Cacher) verify(req ports.CacheRequest, hash string, meta *domain.EntryMeta) error {
	path := c.payloadPath(meta.Kind, hash)
	size, err := statFile(path)
	if err != nil {
		return err
	}
	if size != meta.Size {
		err := zerr.With(domain.ErrCacheReadFailed, "expected_size", meta.Size)
		return zerr.With(err, "actual_size", size)
	}

	want := verification{generation: generation(meta), checksum: meta.Checksum}
	if v, ok := c.verified.Load(hash); ok && v == want {
		return nil
	}
	sum, err := checksumFile(path)
	if err != nil {
		return zerr.Wrap(err, domain.ErrCacheReadFailed.Error())
	}
	if sum != meta.Checksum {
		return zerr.With(domain.ErrCacheReadFailed, "reason", "checksum mismatch")
	}
	if req.Validate != nil {
		if err := req.Validate(path); err != nil {
			return err
		}
	}
	c.verified.Store(hash, want)
	return nil
}

// demote removes an entry that can no longer be served, provided it is
// still the one described by meta. A nil meta stands for an unreadable
// sidecar. The payload of a pinned entry stays for its open handles.
func (c *Cacher) demote(kind domain.CacheKind, hash string, meta *domain.EntryMeta) {
	withPayload := true
	switch c.claim(hash) {
	case claimBusy:
		// An eviction is already removing it.
		return
	case claimPinned:
		withPayload = false
	default:
		defer c.release(hash)
	}
	if _, err := c.unpublish(kind, hash, meta, withPayload); err != nil {
		c.logger.Warn("failed to remove cache entry", "hash", hash, "error", err)
	}
}

// Invalidate implements ports.Cache.
func (c *Cacher) Invalidate(key domain.CacheKey) error {
	hash := key.Hash()
	meta, err := c.readMeta(key.Kind, hash)
	if err != nil {
		c.demote(key.Kind, hash, nil)
		return nil
	}
	if meta == nil {
		return nil
	}
	c.demote(key.Kind, hash, meta)
	return nil
}

// InvalidateNegative removes the entry for key only when it is negative.
// It reports whether an entry was removed.
func (c *Cacher) InvalidateNegative(key domain.CacheKey) (bool, error) {
	hash := key.Hash()
	meta, err := c.readMeta(key.Kind, hash)
	if err != nil || meta == nil || meta.State != domain.EntryNegative {
		return false, err
	}
	return c.unpublish(key.Kind, hash, meta, false)
}

func negativeError(meta *domain.EntryMeta) error {
	err := zerr.With(domain.ErrNegativeCached, "key", meta.Key)
	err = zerr.With(err, "expires_at", meta.ExpiresAt.Format(time.RFC3339))
	if meta.Message != "" {
		err = zerr.With(err, "cause", meta.Message)
	}
	return domain.WithKind(domain.ParseErrorKind(meta.Reason), err)
}
