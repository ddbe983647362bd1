package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/cmd/symcache/commands"
	"go.trai.ch/symcache/internal/app"
	"go.trai.ch/symcache/internal/build"
	"go.trai.ch/symcache/internal/core/domain"
)

type mockApp struct {
	service  *mockService
	openErr  error
	opts     app.OpenOptions
	jsonLogs bool
}

func (m *mockApp) Open(_ context.Context, opts app.OpenOptions) (commands.Service, error) {
	m.opts = opts
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.service, nil
}

func (m *mockApp) SetJSONLogs(enabled bool) {
	m.jsonLogs = enabled
}

type mockService struct {
	symbolicateFunc func(ctx context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error)
	lookupFunc      func(ctx context.Context, req app.LookupRequest) (*app.LookupResult, error)
	stats           domain.CacheStats
	sweep           domain.SweepStats
	cleaned         bool
	listen          string
	closed          bool
}

func (m *mockService) Symbolicate(ctx context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error) {
	return m.symbolicateFunc(ctx, req)
}

func (m *mockService) Lookup(ctx context.Context, req app.LookupRequest) (*app.LookupResult, error) {
	return m.lookupFunc(ctx, req)
}

func (m *mockService) Stats() (domain.CacheStats, error) { return m.stats, nil }

func (m *mockService) Sweep() (domain.SweepStats, error) { return m.sweep, nil }

func (m *mockService) Clean() (domain.SweepStats, error) {
	m.cleaned = true
	return m.sweep, nil
}

func (m *mockService) ServeProxy(_ context.Context, addr string, _ io.Writer) error {
	m.listen = addr
	return nil
}

func (m *mockService) Close() error {
	m.closed = true
	return nil
}

func execute(t *testing.T, a commands.Application, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(a)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, new(bytes.Buffer))
	cli.SetArgs(args)
	err := cli.Execute(context.Background())
	return buf.String(), err
}

func TestCommands_Symbolicate(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured domain.SymbolicationRequest
		svc := &mockService{
			symbolicateFunc: func(_ context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error) {
				captured = req
				return &domain.SymbolicationResult{RequestID: "req-1", Arch: domain.ArchAMD64}, nil
			},
		}
		mock := &mockApp{service: svc}

		out, err := execute(t, mock,
			"symbolicate", "crash.json",
			"--config", "symcache.yaml",
			"--symbols", "/syms/a", "-s", "/syms/b",
			"--layout", "symstore",
			"--strategy", "race",
			"--max-frames", "12",
			"--timeout", "3s",
			"--json",
		)
		require.NoError(t, err)

		assert.Equal(t, "symcache.yaml", mock.opts.ConfigPath)
		assert.Equal(t, "crash.json", captured.DumpRef)
		assert.Equal(t, domain.StrategyRace, captured.Strategy)
		assert.Equal(t, 12, captured.MaxFrames)
		assert.Equal(t, 3*time.Second, captured.Timeout)
		require.Len(t, captured.Sources, 2)
		assert.Equal(t, domain.SourceConfig{
			ID:     "dir1",
			Type:   domain.SourceFilesystem,
			Layout: domain.LayoutSymstore,
			Path:   "/syms/a",
		}, captured.Sources[0])
		assert.Equal(t, "dir2", captured.Sources[1].ID)
		assert.True(t, svc.closed)

		var res domain.SymbolicationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "req-1", res.RequestID)
	})

	t.Run("uses configured sources without flags", func(t *testing.T) {
		var captured domain.SymbolicationRequest
		mock := &mockApp{service: &mockService{
			symbolicateFunc: func(_ context.Context, req domain.SymbolicationRequest) (*domain.SymbolicationResult, error) {
				captured = req
				return &domain.SymbolicationResult{RequestID: "req-2"}, nil
			},
		}}

		out, err := execute(t, mock, "symbolicate", "crash.json")
		require.NoError(t, err)
		assert.Empty(t, captured.Sources)
		assert.Empty(t, captured.Strategy)
		assert.Contains(t, out, "Request req-2")
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		mock := &mockApp{service: &mockService{}}

		_, err := execute(t, mock, "symbolicate", "crash.json", "--strategy", "fastest")
		require.ErrorContains(t, err, domain.ErrInvalidConfig.Error())
		assert.Empty(t, mock.opts.ConfigPath)
	})

	t.Run("returns error on failure", func(t *testing.T) {
		svc := &mockService{
			symbolicateFunc: func(context.Context, domain.SymbolicationRequest) (*domain.SymbolicationResult, error) {
				return nil, errors.New("simulated error")
			},
		}

		_, err := execute(t, &mockApp{service: svc}, "symbolicate", "crash.json")
		require.ErrorContains(t, err, "simulated error")
		assert.True(t, svc.closed)
	})

	t.Run("returns open error", func(t *testing.T) {
		_, err := execute(t, &mockApp{openErr: domain.ErrConfigParseFailed}, "symbolicate", "crash.json")
		require.ErrorIs(t, err, domain.ErrConfigParseFailed)
	})
}

func TestCommands_Lookup(t *testing.T) {
	t.Run("parses offsets", func(t *testing.T) {
		var captured app.LookupRequest
		mock := &mockApp{service: &mockService{
			lookupFunc: func(_ context.Context, req app.LookupRequest) (*app.LookupResult, error) {
				captured = req
				return &app.LookupResult{Module: domain.ModuleReport{
					CodeFile: "crashy",
					DebugID:  req.Module.DebugID,
					Status:   domain.ModuleFound,
				}}, nil
			},
		}}

		out, err := execute(t, mock, "lookup", "ABCD0", "crashy",
			"--code-id", "deadbeef", "-o", "0x1010", "-o", "20,FF")
		require.NoError(t, err)

		assert.Equal(t, "crashy", captured.Module.Name)
		assert.Equal(t, "ABCD0", captured.Module.DebugID)
		assert.Equal(t, "deadbeef", captured.Module.CodeID)
		assert.Equal(t, []uint64{0x1010, 0x20, 0xff}, captured.Offsets)
		assert.Contains(t, out, "crashy ABCD0 found")
	})

	t.Run("rejects invalid offset", func(t *testing.T) {
		mock := &mockApp{service: &mockService{}}

		_, err := execute(t, mock, "lookup", "ABCD0", "crashy", "-o", "xyz")
		require.ErrorContains(t, err, "invalid offset")
	})

	t.Run("requires id and name", func(t *testing.T) {
		_, err := execute(t, &mockApp{}, "lookup", "ABCD0")
		require.Error(t, err)
	})
}

func TestCommands_Cache(t *testing.T) {
	svc := &mockService{
		stats: domain.CacheStats{
			Entries:     3,
			Negative:    1,
			Bytes:       2048,
			BudgetBytes: 1 << 20,
			ByKind:      map[domain.CacheKind]int64{},
		},
		sweep: domain.SweepStats{Evicted: 2, EvictedBytes: 512},
	}

	out, err := execute(t, &mockApp{service: svc}, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries 3 (1 negative)")
	assert.Contains(t, out, "2.0 KiB of 1.0 MiB")

	out, err = execute(t, &mockApp{service: svc}, "cache", "stats", "--json")
	require.NoError(t, err)
	var stats domain.CacheStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Entries)

	out, err = execute(t, &mockApp{service: svc}, "cache", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "evicted 2 entries (512 B)")
	assert.False(t, svc.cleaned)

	_, err = execute(t, &mockApp{service: svc}, "cache", "clean")
	require.NoError(t, err)
	assert.True(t, svc.cleaned)
	assert.True(t, svc.closed)
}

func TestCommands_Proxy(t *testing.T) {
	svc := &mockService{}

	_, err := execute(t, &mockApp{service: svc}, "proxy", "--listen", "127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", svc.listen)
	assert.True(t, svc.closed)
}

func TestCommands_JSONLogs(t *testing.T) {
	mock := &mockApp{service: &mockService{}}

	_, err := execute(t, mock, "--json-logs", "cache", "sweep")
	require.NoError(t, err)
	assert.True(t, mock.jsonLogs)
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)

	assert.Contains(t, out, build.Version)
	assert.Contains(t, out, build.Commit)
}
