// Package derived builds the per-module indices the walker and symbolicator
// read: a symbol index and an unwind index, each cached on disk next to the
// object it was parsed from and kept decoded in memory while hot.
package derived

import (
	"context"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/engine/workpool"
	"go.trai.ch/zerr"
)

// builder is shared by the symbol and unwind index builders.
type builder[T any] struct {
	kind     domain.CacheKind
	version  uint32
	cache    ports.Cache
	pool     *workpool.Pool
	loaded   *lru.Cache[string, *T]
	validate ports.ValidateFunc
	parse    func(r io.ReaderAt, size int64) (*T, error)
	encode   func(*T) []byte
	decode   func([]byte) (*T, error)
}

// build returns the decoded index of object and a handle pinning its file.
func (b *builder[T]) build(ctx context.Context, object ports.CacheHandle) (*T, ports.CacheHandle, error) {
	key := domain.DerivedKey(b.kind, object.Key(), b.version)
	h, err := b.cache.Get(ctx, ports.CacheRequest{
		Key:      key,
		Compute:  b.compute(object),
		Validate: b.validate,
	})
	if err != nil {
		return nil, nil, err
	}

	hash := key.Hash()
	if t, ok := b.loaded.Get(hash); ok {
		return t, h, nil
	}

	t, err := workpool.Run(ctx, b.pool, func(context.Context) (*T, error) {
		data, err := os.ReadFile(h.Path())
		if err != nil {
			return nil, domain.Transient(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()))
		}
		return b.decode(data)
	})
	if err != nil {
		h.Release()
		if domain.KindOf(err) == domain.KindMalformed {
			_ = b.cache.Invalidate(key)
		}
		return nil, nil, err
	}
	b.loaded.Add(hash, t)
	return t, h, nil
}

// compute parses the raw object on the worker pool and writes the encoded
// index.
func (b *builder[T]) compute(object ports.CacheHandle) ports.ComputeFunc {
	return func(ctx context.Context, w io.Writer) error {
		return b.pool.Do(ctx, func(context.Context) error {
			f, err := os.Open(object.Path())
			if err != nil {
				return domain.Transient(zerr.With(zerr.Wrap(err, domain.ErrCacheReadFailed.Error()), "path", object.Path()))
			}
			defer func() { _ = f.Close() }()

			t, err := b.parse(f, object.Size())
			if err != nil {
				if domain.KindOf(err) == domain.KindUnknown {
					err = domain.Malformed(err)
				}
				return err
			}
			_, err = w.Write(b.encode(t))
			return err
		})
	}
}

// Len returns the number of decoded indices held in memory.
func (b *builder[T]) Len() int {
	return b.loaded.Len()
}
