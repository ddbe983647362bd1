package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
)

// Registry builds backends from their configuration and memoizes them by a
// fingerprint of the config, so repeated requests share clients and rate
// limiters.
type Registry struct {
	logger   ports.Logger
	metrics  ports.Metrics
	client   *http.Client
	backends *xsync.MapOf[uint64, ports.SourceBackend]
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient makes HTTP and symbol API backends share client instead
// of building one per source.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		r.client = client
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger ports.Logger, metrics ports.Metrics, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger,
		metrics:  metrics,
		backends: xsync.NewMapOf[uint64, ports.SourceBackend](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.SourceFactory = (*Registry)(nil)

// Backend implements ports.SourceFactory.
func (r *Registry) Backend(ctx context.Context, cfg domain.SourceConfig) (ports.SourceBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fp, err := fingerprint(cfg)
	if err != nil {
		return nil, err
	}
	if b, ok := r.backends.Load(fp); ok {
		return b, nil
	}

	inner, err := r.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := NewRetrying(NewDecompressing(inner), cfg.Retry, limiterFor(cfg), r.logger, r.metrics)
	if actual, loaded := r.backends.LoadOrStore(fp, b); loaded {
		_ = b.Close()
		return actual, nil
	}
	return b, nil
}

func (r *Registry) build(ctx context.Context, cfg domain.SourceConfig) (ports.SourceBackend, error) {
	switch cfg.Type {
	case domain.SourceFilesystem:
		return NewFilesystem(cfg), nil
	case domain.SourceHTTP:
		return NewHTTP(cfg, r.client)
	case domain.SourceSymbolAPI:
		return NewSymbolAPI(cfg, r.client)
	case domain.SourceGCS:
		return NewGCS(ctx, cfg)
	case domain.SourceS3:
		return NewS3(ctx, cfg)
	default:
		return nil, zerr.With(domain.ErrUnknownSourceType, "type", string(cfg.Type))
	}
}

// Len returns the number of memoized backends.
func (r *Registry) Len() int {
	return r.backends.Size()
}

// Close releases every backend holding network clients.
func (r *Registry) Close() error {
	var errs []error
	r.backends.Range(func(key uint64, b ports.SourceBackend) bool {
		if err := closeBackend(b); err != nil {
			errs = append(errs, err)
		}
		r.backends.Delete(key)
		return true
	})
	return errors.Join(errs...)
}

func fingerprint(cfg domain.SourceConfig) (uint64, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrInvalidSourceConfig.Error())
	}
	return xxhash.Sum64(data), nil
}
