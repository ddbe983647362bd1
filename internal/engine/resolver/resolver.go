// Package resolver locates the debug file of each module in the configured
// sources, caches it, and builds its symbol and unwind indices.
package resolver

import (
	"context"
	"io"
	"sync"

	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many modules are resolved at once.
const DefaultConcurrency = 8

// SymbolBuilder builds the symbol index of a cached object.
type SymbolBuilder interface {
	Build(ctx context.Context, object ports.CacheHandle) (*domain.SymbolTable, ports.CacheHandle, error)
}

// UnwindBuilder builds the unwind index of a cached object.
type UnwindBuilder interface {
	Build(ctx context.Context, object ports.CacheHandle) (*domain.UnwindTable, ports.CacheHandle, error)
}

// Resolver turns module descriptors into resolved modules.
type Resolver struct {
	sources ports.SourceFactory
	cache   ports.Cache
	symbols SymbolBuilder
	unwind  UnwindBuilder
	tracer  ports.Tracer
	logger  ports.Logger
	limit   int
}

// New creates a Resolver resolving at most limit modules concurrently.
func New(
	factory ports.SourceFactory,
	cache ports.Cache,
	symbols SymbolBuilder,
	unwind UnwindBuilder,
	tracer ports.Tracer,
	logger ports.Logger,
	limit int,
) *Resolver {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Resolver{
		sources: factory,
		cache:   cache,
		symbols: symbols,
		unwind:  unwind,
		tracer:  tracer,
		logger:  logger,
		limit:   limit,
	}
}

// Object is a debug file fetched from a source and pinned in the cache.
type Object struct {
	Handle ports.CacheHandle
	Source string
	Path   string
}

// PathsFunc lists the candidate object paths for a source layout.
type PathsFunc func(layout domain.SourceLayout) []string

// source is an opened backend. err is set when the backend could not be built.
type source struct {
	id      string
	layout  domain.SourceLayout
	backend ports.SourceBackend
	err     error
}

// Resolve resolves every module against cfgs. The result has one entry per
// module, in order. Module failures are reported through the entry's status;
// only cancellation of ctx fails the call. The caller releases every module.
func (r *Resolver) Resolve(
	ctx context.Context,
	modules []domain.ModuleDescriptor,
	cfgs []domain.SourceConfig,
	strategy domain.FetchStrategy,
) ([]*domain.ResolvedModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	srcs := r.open(ctx, cfgs)

	out := make([]*domain.ResolvedModule, len(modules))
	var g errgroup.Group
	g.SetLimit(r.limit)
	for i := range modules {
		g.Go(func() error {
			out[i] = r.resolveModule(ctx, srcs, modules[i], strategy)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for _, m := range out {
			m.Release()
		}
		return nil, err
	}
	return out, nil
}

// Fetch returns the object stored under the first candidate path any
// source has, following strategy.
func (r *Resolver) Fetch(
	ctx context.Context,
	cfgs []domain.SourceConfig,
	strategy domain.FetchStrategy,
	paths PathsFunc,
) (Object, error) {
	return r.fetch(ctx, r.open(ctx, cfgs), strategy, paths)
}

func (r *Resolver) open(ctx context.Context, cfgs []domain.SourceConfig) []source {
	srcs := make([]source, len(cfgs))
	for i, cfg := range cfgs {
		srcs[i] = source{id: cfg.ID, layout: cfg.EffectiveLayout()}
		backend, err := r.sources.Backend(ctx, cfg)
		if err != nil {
			r.logger.Warn("source unavailable", "source", cfg.ID, "error", err)
			srcs[i].err = err
			continue
		}
		srcs[i].backend = backend
	}
	return srcs
}

func (r *Resolver) resolveModule(
	ctx context.Context,
	srcs []source,
	desc domain.ModuleDescriptor,
	strategy domain.FetchStrategy,
) *domain.ResolvedModule {
	ctx, span := r.tracer.Start(ctx, "resolve module",
		ports.WithAttribute("module", desc.Name),
		ports.WithAttribute("debug_id", desc.DebugID),
	)
	defer span.End()

	m := &domain.ResolvedModule{Descriptor: desc}
	obj, err := r.fetch(ctx, srcs, strategy, func(layout domain.SourceLayout) []string {
		return sources.CandidatePaths(layout, desc)
	})
	if err != nil {
		span.RecordError(err)
		m.Status = domain.StatusForKind(domain.KindOf(err))
		m.Reason = err.Error()
		r.logUnresolved(m)
		return m
	}
	m.Hold(obj.Handle)
	m.Source = obj.Source
	m.ObjectPath = obj.Handle.Path()
	span.SetAttribute("source", obj.Source)

	var (
		wg                  sync.WaitGroup
		symbols             *domain.SymbolTable
		unwind              *domain.UnwindTable
		symHandle, uwHandle ports.CacheHandle
		symErr, uwErr       error
	)
	wg.Go(func() {
		symbols, symHandle, symErr = r.symbols.Build(ctx, obj.Handle)
	})
	wg.Go(func() {
		unwind, uwHandle, uwErr = r.unwind.Build(ctx, obj.Handle)
	})
	wg.Wait()

	if symErr == nil {
		m.Hold(symHandle)
		m.Symbols = symbols
		m.SymbolIndexPath = symHandle.Path()
	}
	if uwErr == nil {
		m.Hold(uwHandle)
		m.Unwind = unwind
		m.UnwindIndexPath = uwHandle.Path()
	}

	switch {
	case symErr == nil && uwErr == nil:
		m.Status = domain.ModuleFound
	case symErr == nil:
		m.Status = domain.ModuleSymbolsOnly
		m.Reason = uwErr.Error()
	case uwErr == nil:
		m.Status = domain.ModuleUnwindOnly
		m.Reason = symErr.Error()
	default:
		span.RecordError(symErr)
		m.Status = domain.StatusForKind(domain.KindOf(symErr))
		m.Reason = symErr.Error()
		m.Release()
	}
	if m.Status != domain.ModuleFound {
		r.logUnresolved(m)
	}
	return m
}

func (r *Resolver) logUnresolved(m *domain.ResolvedModule) {
	r.logger.Warn("module not fully resolved",
		"module", m.Descriptor.Name,
		"debug_id", m.Descriptor.DebugID,
		"status", string(m.Status),
		"reason", m.Reason,
	)
}

func (r *Resolver) fetch(ctx context.Context, srcs []source, strategy domain.FetchStrategy, paths PathsFunc) (Object, error) {
	if len(srcs) == 0 {
		return Object{}, domain.NotFound(domain.ErrNoSourcesConfigured)
	}
	if strategy == domain.StrategyRace {
		return r.race(ctx, srcs, paths)
	}
	return r.sequential(ctx, srcs, paths)
}

// sequential consults sources in priority order and stops at the first hit.
func (r *Resolver) sequential(ctx context.Context, srcs []source, paths PathsFunc) (Object, error) {
	var failure error
	for _, s := range srcs {
		obj, err := r.fetchFrom(ctx, s, paths(s.layout))
		if err == nil {
			return obj, nil
		}
		if ctx.Err() != nil {
			return Object{}, ctx.Err()
		}
		failure = worse(failure, err)
	}
	return Object{}, failure
}

// race consults every source concurrently. The hit from the lowest-index
// source wins regardless of completion order.
func (r *Resolver) race(ctx context.Context, srcs []source, paths PathsFunc) (Object, error) {
	type result struct {
		obj Object
		err error
	}
	results := make([]result, len(srcs))

	var wg sync.WaitGroup
	for i, s := range srcs {
		wg.Go(func() {
			obj, err := r.fetchFrom(ctx, s, paths(s.layout))
			results[i] = result{obj: obj, err: err}
		})
	}
	wg.Wait()

	winner := -1
	var failure error
	for i, res := range results {
		switch {
		case res.err != nil:
			failure = worse(failure, res.err)
		case winner < 0:
			winner = i
		default:
			res.obj.Handle.Release()
		}
	}
	if ctx.Err() != nil {
		if winner >= 0 {
			results[winner].obj.Handle.Release()
		}
		return Object{}, ctx.Err()
	}
	if winner < 0 {
		return Object{}, failure
	}
	return results[winner].obj, nil
}

// fetchFrom tries each candidate path of one source in order.
func (r *Resolver) fetchFrom(ctx context.Context, s source, paths []string) (Object, error) {
	if s.err != nil {
		return Object{}, s.err
	}
	var failure error
	for _, p := range paths {
		h, err := r.cache.Get(ctx, ports.CacheRequest{
			Key:     domain.ObjectKey(s.id, p),
			Compute: download(s.backend, p),
		})
		if err == nil {
			return Object{Handle: h, Source: s.id, Path: p}, nil
		}
		if ctx.Err() != nil {
			return Object{}, ctx.Err()
		}
		failure = worse(failure, err)
	}
	if failure == nil {
		err := zerr.With(domain.ErrNotFound, "source", s.id)
		return Object{}, domain.NotFound(err)
	}
	return Object{}, failure
}

func download(backend ports.SourceBackend, objPath string) ports.ComputeFunc {
	return func(ctx context.Context, w io.Writer) error {
		rc, err := backend.Fetch(ctx, objPath)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		_, err = io.Copy(w, rc)
		return err
	}
}

// worse keeps the more informative of two failures. A source that failed
// outranks one that simply did not have the object; otherwise the first
// failure stays.
func worse(current, next error) error {
	if current == nil {
		return next
	}
	if domain.KindOf(current) == domain.KindNotFound && domain.KindOf(next) != domain.KindNotFound {
		return next
	}
	return current
}
