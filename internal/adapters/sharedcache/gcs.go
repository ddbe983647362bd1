package sharedcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"google.golang.org/api/googleapi"
)

// bucket is the subset of a GCS bucket the shared cache uses.
type bucket interface {
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	// NewWriterIfAbsent returns a writer whose Close fails with a
	// precondition error when the object already exists.
	NewWriterIfAbsent(ctx context.Context, key string) io.WriteCloser
}

// GCS is a shared cache in a Google Cloud Storage bucket.
type GCS struct {
	prefix string
	bucket bucket
	client *storage.Client
}

// NewGCS connects to the bucket named by cfg.
func NewGCS(ctx context.Context, cfg domain.SharedCacheConfig) (*GCS, error) {
	client, err := sources.NewGCSClient(ctx, cfg.CredentialsFile, "")
	if err != nil {
		return nil, err
	}
	return &GCS{
		prefix: strings.Trim(cfg.Prefix, "/"),
		bucket: gcsBucket{handle: client.Bucket(cfg.Bucket)},
		client: client,
	}, nil
}

func (g *GCS) name(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

// Get implements Store.
func (g *GCS) Get(ctx context.Context, key string, w io.Writer) (bool, error) {
	rc, err := g.bucket.NewReader(ctx, g.name(key))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(w, rc); err != nil {
		return false, err
	}
	return true, nil
}

// Put implements Store. Objects are written once; a concurrent or earlier
// upload of the same key wins.
func (g *GCS) Put(ctx context.Context, key string, r io.Reader) error {
	w := g.bucket.NewWriterIfAbsent(ctx, g.name(key))
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	err := w.Close()
	if isPreconditionFailed(err) {
		return nil
	}
	return err
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.handle.Object(key).NewReader(ctx)
}

func (b gcsBucket) NewWriterIfAbsent(ctx context.Context, key string) io.WriteCloser {
	return b.handle.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
}
