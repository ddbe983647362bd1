package derived

import (
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/engine/workpool"
)

// UnwindIndexBuilder turns a cached debug file into call-frame-unwind rules.
type UnwindIndexBuilder struct {
	builder[domain.UnwindTable]
}

// NewUnwindIndexBuilder keeps up to cacheSize decoded tables in memory.
func NewUnwindIndexBuilder(cache ports.Cache, parser ports.DebugParser, pool *workpool.Pool, cacheSize int) (*UnwindIndexBuilder, error) {
	loaded, err := lru.New[string, *domain.UnwindTable](max(cacheSize, 1))
	if err != nil {
		return nil, err
	}
	return &UnwindIndexBuilder{builder[domain.UnwindTable]{
		kind:     domain.CacheUnwindIndex,
		version:  UnwindIndexVersion,
		cache:    cache,
		pool:     pool,
		loaded:   loaded,
		validate: headerValidator(unwindMagic, UnwindIndexVersion),
		parse: func(r io.ReaderAt, size int64) (*domain.UnwindTable, error) {
			t, err := parser.Unwind(r, size)
			if err != nil {
				return nil, err
			}
			t.Normalize()
			return t, nil
		},
		encode: EncodeUnwind,
		decode: DecodeUnwind,
	}}, nil
}

// Build returns the unwind table of object. The returned handle keeps the
// index file pinned and must be released by the caller.
func (b *UnwindIndexBuilder) Build(ctx context.Context, object ports.CacheHandle) (*domain.UnwindTable, ports.CacheHandle, error) {
	return b.build(ctx, object)
}
