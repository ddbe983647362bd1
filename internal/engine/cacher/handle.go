package cacher

import (
	"runtime"
	"sync"

	"go.trai.ch/symcache/internal/core/domain"
)

// handle pins one positive entry until Release.
type handle struct {
	c    *Cacher
	key  domain.CacheKey
	hash string
	path string
	size int64
	once sync.Once
}

// newHandle wraps a pin already taken by the caller.
func (c *Cacher) newHandle(key domain.CacheKey, hash string, size int64) *handle {
	return &handle{
		c:    c,
		key:  key,
		hash: hash,
		path: c.payloadPath(key.Kind, hash),
		size: size,
	}
}

func (h *handle) Key() domain.CacheKey { return h.key }
func (h *handle) Path() string         { return h.path }
func (h *handle) Size() int64          { return h.size }

// Release unpins the entry. It is safe to call more than once.
func (h *handle) Release() {
	h.once.Do(func() { h.c.unpin(h.hash) })
}

// pin takes a reference on hash. It fails while the entry is being evicted.
func (c *Cacher) pin(hash string) bool {
	pinned := false
	c.refs.Compute(hash, func(old int, _ bool) (int, bool) {
		if old < 0 {
			return old, false
		}
		pinned = true
		return old + 1, false
	})
	return pinned
}

// pinWait takes a reference on hash, waiting out an eviction in progress.
func (c *Cacher) pinWait(hash string) {
	for !c.pin(hash) {
		if done, ok := c.evicting.Load(hash); ok {
			<-done
			continue
		}
		// Between release dropping the channel and clearing the claim.
		runtime.Gosched()
	}
}

func (c *Cacher) unpin(hash string) {
	c.refs.Compute(hash, func(old int, _ bool) (int, bool) {
		if old <= 1 {
			return 0, true
		}
		return old - 1, false
	})
}

type claimResult int

const (
	claimEvict claimResult = iota
	claimPinned
	claimBusy
)

// claim marks an unreferenced hash as being evicted. Only claimEvict must
// be followed by release.
func (c *Cacher) claim(hash string) claimResult {
	result := claimEvict
	c.refs.Compute(hash, func(old int, _ bool) (int, bool) {
		switch {
		case old > 0:
			result = claimPinned
			return old, false
		case old < 0:
			result = claimBusy
			return old, false
		default:
			c.evicting.Store(hash, make(chan struct{}))
			return -1, false
		}
	})
	return result
}

// release ends a claim and wakes the callers waiting in pinWait.
func (c *Cacher) release(hash string) {
	done, _ := c.evicting.LoadAndDelete(hash)
	c.refs.Compute(hash, func(int, bool) (int, bool) {
		return 0, true
	})
	if done != nil {
		close(done)
	}
}

// pinned returns the number of hashes with open handles.
func (c *Cacher) pinned() int {
	n := 0
	c.refs.Range(func(_ string, refs int) bool {
		if refs > 0 {
			n++
		}
		return true
	})
	return n
}
