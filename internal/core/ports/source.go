package ports

import (
	"context"
	"io"

	"go.trai.ch/symcache/internal/core/domain"
)

//go:generate mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks

// SourceBackend fetches named blobs from one configured location.
// Errors are tagged domain.KindNotFound or domain.KindTransient.
type SourceBackend interface {
	// ID returns the configured source id.
	ID() string
	// Fetch opens the object at path. The caller closes the reader.
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
	// Exists reports whether the object at path is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// SourceFactory builds (and memoizes) backends from their configuration.
type SourceFactory interface {
	Backend(ctx context.Context, cfg domain.SourceConfig) (SourceBackend, error)
}
