// Package sharedcache implements the optional second cache tier that lets
// several instances reuse each other's downloaded objects and built indices.
package sharedcache

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

// Store is one shared cache location.
type Store interface {
	// Get copies the object at key into w and reports whether it existed.
	Get(ctx context.Context, key string, w io.Writer) (bool, error)
	// Put stores r at key unless an object is already there.
	Put(ctx context.Context, key string, r io.Reader) error
}

// Store types.
const (
	TypeFilesystem = "filesystem"
	TypeGCS        = "gcs"
)

// ObjectName returns the shared name of key: "<kind>/v<version>/<hash>".
func ObjectName(key domain.CacheKey) string {
	return string(key.Kind) + "/v" + strconv.FormatUint(uint64(key.Version), 10) + "/" + key.Hash()
}

type upload struct {
	key  domain.CacheKey
	path string
}

// Shared implements ports.SharedCache. Uploads are queued and drained by a
// fixed number of workers; a full queue drops the upload.
type Shared struct {
	store  Store
	logger ports.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan upload
	wg     sync.WaitGroup
	stop   context.CancelFunc
}

var _ ports.SharedCache = (*Shared)(nil)

// New starts concurrency upload workers in front of store.
func New(store Store, logger ports.Logger, queueSize, concurrency int) *Shared {
	queueSize = max(queueSize, 1)
	concurrency = max(concurrency, 1)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Shared{
		store:  store,
		logger: logger,
		queue:  make(chan upload, queueSize),
		stop:   cancel,
	}
	for range concurrency {
		s.wg.Go(func() { s.work(ctx) })
	}
	return s
}

// Open builds the store described by cfg and starts its workers.
func Open(ctx context.Context, cfg domain.SharedCacheConfig, logger ports.Logger) (*Shared, error) {
	var store Store
	switch cfg.Type {
	case TypeFilesystem:
		if cfg.Path == "" {
			return nil, zerr.With(domain.ErrInvalidConfig, "field", "shared_cache.path")
		}
		store = NewFilesystem(cfg.Path)
	case TypeGCS:
		if cfg.Bucket == "" {
			return nil, zerr.With(domain.ErrInvalidConfig, "field", "shared_cache.bucket")
		}
		gcs, err := NewGCS(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = gcs
	default:
		return nil, zerr.With(domain.ErrInvalidConfig, "shared_cache.type", cfg.Type)
	}
	return New(store, logger, cfg.QueueSize, cfg.Concurrency), nil
}

// Fetch implements ports.SharedCache.
func (s *Shared) Fetch(ctx context.Context, key domain.CacheKey, w io.Writer) (bool, error) {
	ok, err := s.store.Get(ctx, ObjectName(key), w)
	if err != nil {
		err = zerr.Wrap(err, domain.ErrSharedCacheFailed.Error())
		return false, zerr.With(err, "key", key.String())
	}
	return ok, nil
}

// Submit implements ports.SharedCache.
func (s *Shared) Submit(key domain.CacheKey, path string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- upload{key: key, path: path}:
	default:
		s.logger.Warn("shared cache queue full, dropping upload", "key", key.String())
	}
}

// Close stops accepting uploads and waits for the queued ones to finish.
func (s *Shared) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.stop()
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Shared) work(ctx context.Context) {
	for u := range s.queue {
		if err := s.put(ctx, u); err != nil {
			s.logger.Warn("shared cache upload failed", "key", u.key.String(), "error", err)
		}
	}
}

func (s *Shared) put(ctx context.Context, u upload) error {
	//nolint:gosec // path comes from the local cache directory
	f, err := os.Open(u.path)
	if err != nil {
		if os.IsNotExist(err) {
			// Evicted locally before the upload ran.
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()
	return s.store.Put(ctx, ObjectName(u.key), f)
}
