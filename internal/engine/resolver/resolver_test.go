package resolver_test

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/index"
	"go.trai.ch/symcache/internal/adapters/metrics"
	"go.trai.ch/symcache/internal/adapters/telemetry"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/core/ports/mocks"
	"go.trai.ch/symcache/internal/engine/cacher"
	"go.trai.ch/symcache/internal/engine/derived"
	"go.trai.ch/symcache/internal/engine/resolver"
	"go.trai.ch/symcache/internal/engine/workpool"
	"go.uber.org/mock/gomock"
)

var module = domain.ModuleDescriptor{
	Name:        "/usr/bin/app",
	DebugName:   "app",
	DebugID:     "0123456789ABCDEF0123456789ABCDEF0",
	BaseAddress: 0x400000,
	Size:        0x10000,
}

const objectPath = "app/0123456789ABCDEF0123456789ABCDEF0/app.sym"

type env struct {
	ctrl     *gomock.Controller
	parser   *mocks.MockDebugParser
	factory  *mocks.MockSourceFactory
	backends map[string]*mocks.MockSourceBackend
	resolver *resolver.Resolver
}

func newEnv(t *testing.T, ids ...string) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	idx, err := index.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	cache := cacher.New(cacher.Options{
		Dir:      t.TempDir(),
		Negative: domain.DefaultNegativePolicy(),
		Index:    idx,
		Logger:   log,
		Metrics:  metrics.Nop{},
	})
	require.NoError(t, cache.Open())

	parser := mocks.NewMockDebugParser(ctrl)
	pool := workpool.New(4, 16)
	symbols, err := derived.NewSymbolIndexBuilder(cache, parser, pool, 8)
	require.NoError(t, err)
	unwind, err := derived.NewUnwindIndexBuilder(cache, parser, pool, 8)
	require.NoError(t, err)

	e := &env{
		ctrl:     ctrl,
		parser:   parser,
		factory:  mocks.NewMockSourceFactory(ctrl),
		backends: make(map[string]*mocks.MockSourceBackend),
	}
	for _, id := range ids {
		e.backends[id] = mocks.NewMockSourceBackend(ctrl)
	}
	e.factory.EXPECT().Backend(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cfg domain.SourceConfig) (ports.SourceBackend, error) {
			return e.backends[cfg.ID], nil
		}).AnyTimes()

	e.resolver = resolver.New(e.factory, cache, symbols, unwind, telemetry.NewNoOpTracer(), log, 4)
	return e
}

func (e *env) sources() []domain.SourceConfig {
	var out []domain.SourceConfig
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := e.backends[id]; ok {
			out = append(out, domain.SourceConfig{ID: id, Type: domain.SourceFilesystem, Path: "/" + id})
		}
	}
	return out
}

func (e *env) parses() {
	e.parser.EXPECT().Symbols(gomock.Any(), gomock.Any()).DoAndReturn(
		func(io.ReaderAt, int64) (*domain.SymbolTable, error) {
			return &domain.SymbolTable{
				Functions: []domain.Function{{Addr: 0x1000, Size: 0x100, Name: "main"}},
			}, nil
		}).AnyTimes()
	e.parser.EXPECT().Unwind(gomock.Any(), gomock.Any()).DoAndReturn(
		func(io.ReaderAt, int64) (*domain.UnwindTable, error) {
			return &domain.UnwindTable{
				Records: []domain.CFIRecord{{Start: 0x1000, Size: 0x100, Init: ".cfa: $rsp 8 + .ra: .cfa -8 + ^"}},
			}, nil
		}).AnyTimes()
}

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func notFound() error {
	return domain.NotFound(domain.ErrNotFound)
}

func TestResolve_Found(t *testing.T) {
	e := newEnv(t, "a")
	e.parses()
	e.backends["a"].EXPECT().Fetch(gomock.Any(), objectPath).Return(body("MODULE app"), nil).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	defer mods[0].Release()

	m := mods[0]
	assert.Equal(t, domain.ModuleFound, m.Status)
	assert.Equal(t, "a", m.Source)
	assert.FileExists(t, m.ObjectPath)
	assert.FileExists(t, m.SymbolIndexPath)
	assert.FileExists(t, m.UnwindIndexPath)
	require.True(t, m.HasSymbols())
	require.True(t, m.HasUnwind())
	assert.Equal(t, "main", m.Symbols.Lookup(0x1010)[0].Function)
}

func TestResolve_Missing(t *testing.T) {
	e := newEnv(t, "a")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, notFound()).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	require.Len(t, mods, 1)

	assert.Equal(t, domain.ModuleMissing, mods[0].Status)
	assert.False(t, mods[0].HasSymbols())
	assert.NotEmpty(t, mods[0].Reason)
}

func TestResolve_MissingIsNegativelyCached(t *testing.T) {
	e := newEnv(t, "a")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, notFound()).Times(1)

	for range 3 {
		mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
		require.NoError(t, err)
		assert.Equal(t, domain.ModuleMissing, mods[0].Status)
	}
}

func TestResolve_SequentialStopsAtFirstHit(t *testing.T) {
	e := newEnv(t, "a", "b", "c")
	e.parses()
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, notFound()).Times(1)
	e.backends["b"].EXPECT().Fetch(gomock.Any(), objectPath).Return(body("MODULE app"), nil).Times(1)
	e.backends["c"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	defer mods[0].Release()

	assert.Equal(t, domain.ModuleFound, mods[0].Status)
	assert.Equal(t, "b", mods[0].Source)
}

func TestResolve_RacePrefersLowestIndex(t *testing.T) {
	e := newEnv(t, "a", "b")
	e.parses()
	e.backends["a"].EXPECT().Fetch(gomock.Any(), objectPath).DoAndReturn(
		func(context.Context, string) (io.ReadCloser, error) {
			time.Sleep(20 * time.Millisecond)
			return body("MODULE app from a"), nil
		}).Times(1)
	e.backends["b"].EXPECT().Fetch(gomock.Any(), objectPath).Return(body("MODULE app from b"), nil).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategyRace)
	require.NoError(t, err)
	defer mods[0].Release()

	assert.Equal(t, domain.ModuleFound, mods[0].Status)
	assert.Equal(t, "a", mods[0].Source)
}

func TestResolve_TransientFailureOutranksMissing(t *testing.T) {
	e := newEnv(t, "a", "b")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).
		Return(nil, domain.Transient(domain.ErrSourceRequestFailed)).Times(1)
	e.backends["b"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, notFound()).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	assert.Equal(t, domain.ModuleFetchFailed, mods[0].Status)
}

func TestResolve_PartialIndices(t *testing.T) {
	e := newEnv(t, "a")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(body("garbage"), nil).Times(1)
	e.parser.EXPECT().Symbols(gomock.Any(), gomock.Any()).
		Return(nil, domain.Malformed(domain.ErrSymbolParseFailed)).Times(1)
	e.parser.EXPECT().Unwind(gomock.Any(), gomock.Any()).Return(&domain.UnwindTable{}, nil).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	defer mods[0].Release()

	assert.Equal(t, domain.ModuleUnwindOnly, mods[0].Status)
	assert.False(t, mods[0].HasSymbols())
	assert.True(t, mods[0].HasUnwind())
}

func TestResolve_MalformedObject(t *testing.T) {
	e := newEnv(t, "a")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(body("garbage"), nil).Times(1)
	e.parser.EXPECT().Symbols(gomock.Any(), gomock.Any()).
		Return(nil, domain.Malformed(domain.ErrUnsupportedFormat)).Times(1)
	e.parser.EXPECT().Unwind(gomock.Any(), gomock.Any()).
		Return(nil, domain.Malformed(domain.ErrUnsupportedFormat)).Times(1)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	assert.Equal(t, domain.ModuleMalformed, mods[0].Status)
}

func TestResolve_ConcurrentModules(t *testing.T) {
	e := newEnv(t, "a")
	e.parses()

	var fetches atomic.Int32
	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p string) (io.ReadCloser, error) {
			fetches.Add(1)
			return body("MODULE " + p), nil
		}).AnyTimes()

	var modules []domain.ModuleDescriptor
	for i, id := range []string{"11111111111111111111111111111111", "22222222222222222222222222222222", "33333333333333333333333333333333"} {
		m := module
		m.DebugID = id
		m.BaseAddress = uint64(0x100000 * (i + 1))
		modules = append(modules, m)
	}

	mods, err := e.resolver.Resolve(context.Background(), modules, e.sources(), domain.StrategySequential)
	require.NoError(t, err)
	require.Len(t, mods, len(modules))
	for i, m := range mods {
		assert.Equal(t, modules[i], m.Descriptor)
		assert.Equal(t, domain.ModuleFound, m.Status)
		m.Release()
	}
	assert.Equal(t, int32(len(modules)), fetches.Load())
}

func TestResolve_NoSources(t *testing.T) {
	e := newEnv(t)

	mods, err := e.resolver.Resolve(context.Background(), []domain.ModuleDescriptor{module}, nil, domain.StrategySequential)
	require.NoError(t, err)
	assert.Equal(t, domain.ModuleMissing, mods[0].Status)
}

func TestResolve_CancellationAborts(t *testing.T) {
	e := newEnv(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.backends["a"].EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (io.ReadCloser, error) {
			cancel()
			return nil, notFound()
		}).Times(1)

	mods, err := e.resolver.Resolve(ctx, []domain.ModuleDescriptor{module}, e.sources(), domain.StrategySequential)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, mods)
}

func TestFetch_LiteralPath(t *testing.T) {
	e := newEnv(t, "a")
	e.backends["a"].EXPECT().Fetch(gomock.Any(), "app.pdb/ABC1/app.pdb").Return(body("PDB"), nil).Times(1)

	obj, err := e.resolver.Fetch(context.Background(), e.sources(), domain.StrategySequential,
		func(domain.SourceLayout) []string { return []string{"app.pdb/ABC1/app.pdb"} })
	require.NoError(t, err)
	defer obj.Handle.Release()

	assert.Equal(t, "a", obj.Source)
	assert.Equal(t, int64(3), obj.Handle.Size())
}
