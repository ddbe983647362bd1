package sharedcache

import (
	"context"
	"io"
)

// Bucket mirrors the internal bucket interface for tests.
type Bucket interface {
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	NewWriterIfAbsent(ctx context.Context, key string) io.WriteCloser
}

// NewGCSWithBucket builds a GCS store on a fake bucket.
func NewGCSWithBucket(prefix string, b Bucket) *GCS {
	return &GCS{prefix: prefix, bucket: b}
}
