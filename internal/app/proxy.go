package app

import (
	"context"
	"errors"
	"io"

	"go.trai.ch/symcache/internal/adapters/proxy" //nolint:depguard // Wired in app layer
	"golang.org/x/sync/errgroup"
)

// ServeProxy serves cached objects over HTTP on addr, or on the configured
// listen address when addr is empty, while keeping the cache maintained.
// It returns when ctx ends.
func (s *Service) ServeProxy(ctx context.Context, addr string, accessLog io.Writer) error {
	if addr == "" {
		addr = s.cfg.Proxy.Listen
	}
	srv := proxy.New(proxy.Options{
		Objects:   s,
		Metrics:   s.MetricsHandler(),
		Logger:    s.logger,
		AccessLog: accessLog,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	g.Go(func() error {
		return s.Run(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
