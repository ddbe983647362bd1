package ports

import (
	"context"
	"io"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
)

//go:generate mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks

// ComputeFunc produces the payload of a cache entry by writing it to w.
type ComputeFunc func(ctx context.Context, w io.Writer) error

// ValidateFunc self-checks a payload file before it is published or served.
type ValidateFunc func(path string) error

// CacheRequest describes one fetch-through lookup.
type CacheRequest struct {
	Key      domain.CacheKey
	Compute  ComputeFunc
	Validate ValidateFunc
}

// CacheHandle pins a positive entry on disk until Release is called.
type CacheHandle interface {
	Key() domain.CacheKey
	Path() string
	Size() int64
	Release()
}

// Cache is the fetch-through cache engine.
type Cache interface {
	// Get returns the entry for req.Key, computing it at most once across
	// concurrent callers when absent.
	Get(ctx context.Context, req CacheRequest) (CacheHandle, error)
	// Invalidate removes the entry for key, positive or negative.
	Invalidate(key domain.CacheKey) error
}

// EntryIndex journals size and access time of every entry for eviction.
type EntryIndex interface {
	Put(rec domain.EntryRecord) error
	Get(hash string) (domain.EntryRecord, bool, error)
	Touch(hash string, at time.Time) error
	Delete(hash string) error
	List() ([]domain.EntryRecord, error)
	Close() error
}

// SharedCache is the optional second cache tier shared between instances.
type SharedCache interface {
	// Fetch copies the shared entry for key into w and reports whether it existed.
	Fetch(ctx context.Context, key domain.CacheKey, w io.Writer) (bool, error)
	// Submit queues the payload at path for upload; it never blocks.
	Submit(key domain.CacheKey, path string)
}
