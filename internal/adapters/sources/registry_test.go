package sources_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/metrics"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newRegistry(t *testing.T) *sources.Registry {
	t.Helper()
	ctrl := gomock.NewController(t)
	r := sources.NewRegistry(mocks.NewMockLogger(ctrl), metrics.Nop{})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_Memoizes(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	ctx := context.Background()
	cfg := domain.SourceConfig{ID: "local", Type: domain.SourceFilesystem, Path: t.TempDir()}

	a, err := r.Backend(ctx, cfg)
	require.NoError(t, err)
	b, err := r.Backend(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "local", a.ID())

	cfg.Path = t.TempDir()
	c, err := r.Backend(ctx, cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_InvalidConfig(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	ctx := context.Background()

	_, err := r.Backend(ctx, domain.SourceConfig{ID: "b", Type: domain.SourceS3})
	assert.ErrorContains(t, err, domain.ErrInvalidSourceConfig.Error())

	_, err = r.Backend(ctx, domain.SourceConfig{ID: "x", Type: "ftp"})
	assert.ErrorContains(t, err, domain.ErrUnknownSourceType.Error())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_FetchDecompresses(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "libfoo.so", "ID0")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libfoo.so.sym"), gzipped(t, symbolText), 0o600))

	r := newRegistry(t)
	b, err := r.Backend(context.Background(), domain.SourceConfig{
		ID:    "local",
		Type:  domain.SourceFilesystem,
		Path:  root,
		Retry: domain.DefaultRetryPolicy(),
	})
	require.NoError(t, err)

	rc, err := b.Fetch(context.Background(), "libfoo.so/ID0/libfoo.so.sym")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, symbolText, string(data))

	_, err = b.Fetch(context.Background(), "libfoo.so/ID1/libfoo.so.sym")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
