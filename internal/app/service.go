package app

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"go.trai.ch/symcache/internal/adapters/index"       //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/metrics"     //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/sharedcache" //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/sources"     //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/engine/cacher"
	"go.trai.ch/symcache/internal/engine/resolver"
	"go.trai.ch/symcache/internal/engine/symbolicator"
	"go.trai.ch/symcache/internal/engine/walker"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Service symbolicates dumps against one opened cache.
type Service struct {
	cfg      *domain.Config
	logger   ports.Logger
	metrics  *metrics.Prometheus
	tracer   ports.Tracer
	dumps    ports.DumpReader
	watcher  ports.Watcher
	index    *index.Index
	shared   *sharedcache.Shared
	cache    *cacher.Cacher
	resolver *resolver.Resolver
	walker   *walker.Walker
}

var _ ports.Symbolicator = (*Service)(nil)

// Config returns the configuration the service was opened with.
func (s *Service) Config() *domain.Config {
	return s.cfg
}

// Close flushes pending shared-cache uploads and closes the index.
func (s *Service) Close() error {
	var errs error
	if s.shared != nil {
		errs = errors.Join(errs, s.shared.Close())
	}
	if s.index != nil {
		errs = errors.Join(errs, s.index.Close())
	}
	return errs
}

// Run keeps the cache within budget and invalidates negative entries of
// filesystem sources as files appear, until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.cache.Run(ctx)
	})
	g.Go(func() error {
		return s.watchSources(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// MetricsHandler serves the prometheus registry, or nil without metrics.
func (s *Service) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Handler()
}

// Symbolicate implements ports.Symbolicator. Module failures are reported
// per module; only an unreadable dump, invalid sources or the end of ctx
// fail the request.
func (s *Service) Symbolicate(ctx context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error) {
	srcs, err := s.requestSources(req.Sources)
	if err != nil {
		return nil, err
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.Symbolication.Strategy
	}
	maxFrames := req.MaxFrames
	if maxFrames <= 0 {
		maxFrames = s.cfg.Symbolication.MaxFrames
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Symbolication.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "symbolicate",
		ports.WithAttribute("request_id", requestID),
		ports.WithAttribute("dump", req.DumpRef),
	)
	defer span.End()

	result, err := s.symbolicate(ctx, req.DumpRef, srcs, strategy, maxFrames)
	if err != nil {
		span.RecordError(err)
		err = zerr.With(zerr.Wrap(err, domain.ErrSymbolicationFailed.Error()), "request_id", requestID)
		return nil, err
	}
	result.RequestID = requestID
	return result, nil
}

func (s *Service) requestSources(srcs []domain.SourceConfig) ([]domain.SourceConfig, error) {
	if len(srcs) == 0 {
		srcs = s.cfg.Sources
	}
	if len(srcs) == 0 {
		return nil, domain.ErrNoSourcesConfigured
	}
	if err := domain.ValidateSources(srcs); err != nil {
		return nil, err
	}
	return srcs, nil
}

func (s *Service) symbolicate(
	ctx context.Context,
	ref string,
	srcs []domain.SourceConfig,
	strategy domain.FetchStrategy,
	maxFrames int,
) (*domain.SymbolicationResult, error) {
	dump, err := s.dumps.Read(ctx, ref)
	if err != nil {
		return nil, err
	}

	resolved := make([]*domain.ResolvedModule, len(dump.Modules))
	defer func() {
		for _, m := range resolved {
			if m != nil {
				m.Release()
			}
		}
	}()

	if err := s.resolveInto(ctx, resolved, dump.Modules, candidateModules(dump), srcs, strategy); err != nil {
		return nil, err
	}

	unwind := func(i int) domain.UnwindLookup {
		if m := resolved[i]; m.HasUnwind() {
			return m.Unwind
		}
		return nil
	}
	raws := make([]domain.RawThread, 0, len(dump.Threads))
	for _, th := range dump.Threads {
		regions := dump.Memory
		if th.Stack != nil {
			regions = append(slices.Clip(regions), *th.Stack)
		}
		raw, err := s.walker.Walk(ctx, walker.Input{
			Arch:      dump.Arch,
			Thread:    th,
			Memory:    domain.NewMemory(regions...),
			Modules:   dump.Modules,
			Unwind:    unwind,
			MaxFrames: maxFrames,
		})
		if err != nil {
			if domain.IsCancellation(err) {
				return nil, err
			}
			s.logger.Warn("thread walk failed", "thread", th.ID, "error", err)
			raw.Error = err.Error()
		}
		raws = append(raws, raw)
	}

	modules := symbolicator.NewModules(dump.Modules, resolved)
	referenced := modules.Referenced(raws)

	var late []int
	for i, ref := range referenced {
		if ref && resolved[i] == nil {
			late = append(late, i)
		}
	}
	if err := s.resolveInto(ctx, resolved, dump.Modules, late, srcs, strategy); err != nil {
		return nil, err
	}

	result := &domain.SymbolicationResult{
		Arch:    dump.Arch,
		Threads: make([]domain.SymbolicatedThread, len(raws)),
		Modules: []domain.ModuleReport{},
	}
	for i, raw := range raws {
		result.Threads[i] = symbolicator.Thread(raw, modules)
	}
	for i, m := range resolved {
		if m == nil {
			continue
		}
		report := m.Report()
		report.Referenced = referenced[i]
		result.Modules = append(result.Modules, report)
	}
	return result, nil
}

// resolveInto resolves the modules at idxs and stores them in out.
func (s *Service) resolveInto(
	ctx context.Context,
	out []*domain.ResolvedModule,
	modules []domain.ModuleDescriptor,
	idxs []int,
	srcs []domain.SourceConfig,
	strategy domain.FetchStrategy,
) error {
	if len(idxs) == 0 {
		return nil
	}
	descs := make([]domain.ModuleDescriptor, len(idxs))
	for i, idx := range idxs {
		descs[i] = modules[idx]
	}
	got, err := s.resolver.Resolve(ctx, descs, srcs, strategy)
	if err != nil {
		return err
	}
	for i, idx := range idxs {
		out[idx] = got[i]
	}
	return nil
}

// candidateModules lists the modules a walk can reach: those mapping a
// register value, a word of captured stack or a pre-walked frame.
func candidateModules(dump *domain.Dump) []int {
	hit := make([]bool, len(dump.Modules))
	mark := func(addr uint64) {
		if i := domain.ModuleAt(dump.Modules, addr); i >= 0 {
			hit[i] = true
		}
	}
	word := dump.Arch.PointerSize()
	for _, th := range dump.Threads {
		for _, v := range th.Registers {
			mark(v)
		}
		for _, f := range th.Frames {
			mark(f.InstructionAddr)
		}
		if th.Stack == nil {
			continue
		}
		mem := domain.NewMemory(*th.Stack)
		end := th.Stack.Base + uint64(len(th.Stack.Data))
		for addr := th.Stack.Base; addr+word <= end; addr += word {
			if v, ok := mem.ReadUint64(addr); ok {
				mark(v)
			}
		}
	}

	var out []int
	for i, ok := range hit {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// LookupRequest names one module and optional addresses to symbolicate in it.
type LookupRequest struct {
	Module   domain.ModuleDescriptor
	Sources  []domain.SourceConfig
	Strategy domain.FetchStrategy
	// Offsets are module-relative addresses.
	Offsets []uint64
}

// LookupResult is the resolution report of one module.
type LookupResult struct {
	Module domain.ModuleReport  `json:"module"`
	Frames []domain.StackFrame `json:"frames,omitempty"`
}

// Lookup resolves a single module and symbolicates the requested offsets.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	srcs, err := s.requestSources(req.Sources)
	if err != nil {
		return nil, err
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.Symbolication.Strategy
	}

	desc := req.Module
	if desc.Size == 0 {
		desc.Size = ^uint64(0) - desc.BaseAddress
	}
	mods, err := s.resolver.Resolve(ctx, []domain.ModuleDescriptor{desc}, srcs, strategy)
	if err != nil {
		return nil, err
	}
	m := mods[0]
	defer m.Release()

	out := &LookupResult{Module: m.Report()}
	out.Module.Referenced = len(req.Offsets) > 0
	modules := symbolicator.NewModules([]domain.ModuleDescriptor{desc}, mods)
	for _, off := range req.Offsets {
		// Each offset is its own innermost frame, not a return address.
		f := domain.RawFrame{InstructionAddr: desc.BaseAddress + off, Trust: domain.TrustContext}
		th := symbolicator.Thread(domain.RawThread{Frames: []domain.RawFrame{f}}, modules)
		for _, sf := range th.Frames {
			sf.Index = len(out.Frames)
			out.Frames = append(out.Frames, sf)
		}
	}
	return out, nil
}

// Object fetches the symstore object "<name>/<id>/<file>" through the
// cache. Symstore sources are asked for the path as is; other layouts for
// the paths they would store the same debug file under.
func (s *Service) Object(ctx context.Context, name, id, file string) (resolver.Object, error) {
	srcs, err := s.requestSources(nil)
	if err != nil {
		return resolver.Object{}, err
	}
	literal := name + "/" + id + "/" + file
	desc := domain.ModuleDescriptor{Name: file, DebugName: name, DebugID: id}
	return s.resolver.Fetch(ctx, srcs, s.cfg.Symbolication.Strategy, func(layout domain.SourceLayout) []string {
		if layout == domain.LayoutSymstore {
			return []string{literal}
		}
		return sources.CandidatePaths(layout, desc)
	})
}

// OpenObject implements proxy.Objects.
func (s *Service) OpenObject(ctx context.Context, name, id, file string) (ports.CacheHandle, error) {
	obj, err := s.Object(ctx, name, id, file)
	if err != nil {
		return nil, err
	}
	return obj.Handle, nil
}

// Stats summarizes the cache.
func (s *Service) Stats() (domain.CacheStats, error) {
	return s.cache.Stats()
}

// Sweep evicts least recently used entries until the cache fits its budget.
func (s *Service) Sweep() (domain.SweepStats, error) {
	return s.cache.Sweep()
}

// Clean removes every entry that is not in use.
func (s *Service) Clean() (domain.SweepStats, error) {
	return s.cache.Clear()
}
