package sources

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// objectStore is the subset of a bucket client the bucket backends need.
type objectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) error
}

// GCS fetches objects from a Google Cloud Storage bucket.
type GCS struct {
	id     string
	prefix string
	store  objectStore
	client *storage.Client
}

// NewGCS creates a backend for cfg using the credentials file when set and
// application default credentials otherwise.
func NewGCS(ctx context.Context, cfg domain.SourceConfig) (*GCS, error) {
	client, err := NewGCSClient(ctx, cfg.CredentialsFile, cfg.Endpoint)
	if err != nil {
		return nil, zerr.With(err, "source", cfg.ID)
	}
	return &GCS{
		id:     cfg.ID,
		prefix: cfg.Prefix,
		store:  gcsBucket{bucket: client.Bucket(cfg.Bucket)},
		client: client,
	}, nil
}

// NewGCSClient builds a storage client. An endpoint without credentials
// targets an emulator and skips authentication.
func NewGCSClient(ctx context.Context, credentialsFile, endpoint string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
		if credentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrInvalidSourceConfig.Error())
	}
	return client, nil
}

// ID implements ports.SourceBackend.
func (g *GCS) ID() string { return g.id }

// Fetch implements ports.SourceBackend.
func (g *GCS) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return nil, err
	}
	rc, err := g.store.Open(ctx, objectKey(g.prefix, clean))
	if err != nil {
		return nil, classifyGCS(err, g.id, objPath)
	}
	return rc, nil
}

// Exists implements ports.SourceBackend.
func (g *GCS) Exists(ctx context.Context, objPath string) (bool, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return false, nil
	}
	err = g.store.Stat(ctx, objectKey(g.prefix, clean))
	if err == nil {
		return true, nil
	}
	err = classifyGCS(err, g.id, objPath)
	if domain.KindOf(err) == domain.KindNotFound {
		return false, nil
	}
	return false, err
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func classifyGCS(err error, source, objPath string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return notFound(source, objPath)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound {
			return notFound(source, objPath)
		}
		return classifyStatus(apiErr.Code, source, objPath)
	}
	return transient(err, source, objPath)
}

type gcsBucket struct {
	bucket *storage.BucketHandle
}

func (b gcsBucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.bucket.Object(key).NewReader(ctx)
}

func (b gcsBucket) Stat(ctx context.Context, key string) error {
	_, err := b.bucket.Object(key).Attrs(ctx)
	return err
}
