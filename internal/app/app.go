// Package app implements the application layer for symcache.
package app

import (
	"context"
	"os"

	"go.trai.ch/symcache/internal/adapters/index"       //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/metrics"     //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/adapters/sharedcache" //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/engine/cacher"
	"go.trai.ch/symcache/internal/engine/derived"
	"go.trai.ch/symcache/internal/engine/resolver"
	"go.trai.ch/symcache/internal/engine/walker"
	"go.trai.ch/symcache/internal/engine/workpool"
	"go.trai.ch/zerr"
)

// App holds the long-lived adapters. The cache and engines depend on the
// configuration and are built by Open.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	metrics      *metrics.Prometheus
	sources      ports.SourceFactory
	tracer       ports.Tracer
	parser       ports.DebugParser
	dumps        ports.DumpReader
	watcher      ports.Watcher
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	m *metrics.Prometheus,
	factory ports.SourceFactory,
	tracer ports.Tracer,
	parser ports.DebugParser,
	dumps ports.DumpReader,
	watcher ports.Watcher,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		metrics:      m,
		sources:      factory,
		tracer:       tracer,
		parser:       parser,
		dumps:        dumps,
		watcher:      watcher,
	}
}

// Logger returns the application logger.
func (a *App) Logger() ports.Logger {
	return a.logger
}

// SetJSONLogs switches the logger between JSON and pretty output.
func (a *App) SetJSONLogs(enabled bool) {
	if l, ok := a.logger.(interface{ SetJSON(enable bool) }); ok {
		l.SetJSON(enabled)
	}
}

// OpenOptions selects the configuration to open.
type OpenOptions struct {
	// ConfigPath is an explicit symcache.yaml. When empty the file is
	// discovered from WorkDir upwards.
	ConfigPath string
	WorkDir    string
}

// LoadConfig reads the configuration selected by opts.
func (a *App) LoadConfig(opts OpenOptions) (*domain.Config, error) {
	if opts.ConfigPath != "" {
		return a.configLoader.LoadFile(opts.ConfigPath)
	}
	dir := opts.WorkDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
		}
		dir = wd
	}
	return a.configLoader.Load(dir)
}

// Open loads the configuration and builds a Service on it.
func (a *App) Open(ctx context.Context, opts OpenOptions) (*Service, error) {
	cfg, err := a.LoadConfig(opts)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	if cfg.JSONLogs {
		a.SetJSONLogs(true)
	}
	return a.NewService(ctx, cfg)
}

// NewService opens the cache described by cfg and assembles the engines.
// The caller closes the Service.
func (a *App) NewService(ctx context.Context, cfg *domain.Config) (*Service, error) {
	idx, err := index.Open(index.Config{Path: domain.IndexPath(cfg.Cache.Dir), Logger: a.logger})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		logger:  a.logger,
		metrics: a.metrics,
		tracer:  a.tracer,
		dumps:   a.dumps,
		watcher: a.watcher,
		index:   idx,
	}

	var shared ports.SharedCache
	if cfg.SharedCache.Enabled() {
		sc, err := sharedcache.Open(ctx, cfg.SharedCache, a.logger)
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		s.shared = sc
		shared = sc
	}

	var m ports.Metrics = metrics.Nop{}
	if a.metrics != nil {
		m = a.metrics
	}
	s.cache = cacher.New(cacher.Options{
		Dir:           cfg.Cache.Dir,
		MaxDiskBytes:  cfg.Cache.MaxDiskBytes,
		SweepInterval: cfg.Cache.SweepInterval,
		Negative:      cfg.Cache.Negative,
		Index:         idx,
		Shared:        shared,
		Logger:        a.logger,
		Metrics:       m,
	})
	if err := s.cache.Open(); err != nil {
		_ = s.Close()
		return nil, err
	}

	sym := cfg.Symbolication
	pool := workpool.New(sym.Workers, sym.WorkerQueue)
	symbols, err := derived.NewSymbolIndexBuilder(s.cache, a.parser, pool, sym.IndexCacheSize)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	unwind, err := derived.NewUnwindIndexBuilder(s.cache, a.parser, pool, sym.IndexCacheSize)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.resolver = resolver.New(a.sources, s.cache, symbols, unwind, a.tracer, a.logger, sym.MaxConcurrentModules)
	s.walker = walker.New(sym.MaxFrames, sym.ScanWords)
	return s, nil
}
