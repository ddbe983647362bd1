package derived

import (
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/engine/workpool"
)

// SymbolIndexBuilder turns a cached debug file into an address-sorted
// symbol index.
type SymbolIndexBuilder struct {
	builder[domain.SymbolTable]
}

// NewSymbolIndexBuilder keeps up to cacheSize decoded indices in memory.
func NewSymbolIndexBuilder(cache ports.Cache, parser ports.DebugParser, pool *workpool.Pool, cacheSize int) (*SymbolIndexBuilder, error) {
	loaded, err := lru.New[string, *domain.SymbolTable](max(cacheSize, 1))
	if err != nil {
		return nil, err
	}
	return &SymbolIndexBuilder{builder[domain.SymbolTable]{
		kind:     domain.CacheSymbolIndex,
		version:  SymbolIndexVersion,
		cache:    cache,
		pool:     pool,
		loaded:   loaded,
		validate: headerValidator(symbolMagic, SymbolIndexVersion),
		parse: func(r io.ReaderAt, size int64) (*domain.SymbolTable, error) {
			t, err := parser.Symbols(r, size)
			if err != nil {
				return nil, err
			}
			t.Normalize()
			return t, nil
		},
		encode: EncodeSymbols,
		decode: DecodeSymbols,
	}}, nil
}

// Build returns the symbol index of object. The returned handle keeps the
// index file pinned and must be released by the caller.
func (b *SymbolIndexBuilder) Build(ctx context.Context, object ports.CacheHandle) (*domain.SymbolTable, ports.CacheHandle, error) {
	return b.build(ctx, object)
}
