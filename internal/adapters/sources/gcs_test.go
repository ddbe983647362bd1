package sources_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"google.golang.org/api/googleapi"
)

type fakeStore struct {
	objects map[string]string
	err     error
}

func (f *fakeStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStore) Stat(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.objects[key]; !ok {
		return storage.ErrObjectNotExist
	}
	return nil
}

var gcsConfig = domain.SourceConfig{ID: "gcs-public", Type: domain.SourceGCS, Bucket: "symbols", Prefix: "breakpad"}

func TestGCS_Fetch(t *testing.T) {
	t.Parallel()

	b := sources.NewGCSWithStore(gcsConfig, &fakeStore{objects: map[string]string{
		"breakpad/libfoo.so/ID0/libfoo.so.sym": "MODULE",
	}})
	assert.Equal(t, "gcs-public", b.ID())

	rc, err := b.Fetch(context.Background(), "libfoo.so/ID0/libfoo.so.sym")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "MODULE", string(data))

	_, err = b.Fetch(context.Background(), "libbar.so/ID0/libbar.so.sym")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.ErrorContains(t, err, domain.ErrNotFound.Error())
}

func TestGCS_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{name: "bucket missing", err: storage.ErrBucketNotExist, want: domain.KindNotFound},
		{name: "api 404", err: &googleapi.Error{Code: http.StatusNotFound}, want: domain.KindNotFound},
		{name: "api 401", err: &googleapi.Error{Code: http.StatusUnauthorized}, want: domain.KindTransient},
		{name: "api 429", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: domain.KindTransient},
		{name: "network", err: errors.New("connection refused"), want: domain.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := sources.NewGCSWithStore(gcsConfig, &fakeStore{err: tt.err})
			_, err := b.Fetch(context.Background(), "a/b")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}

func TestGCS_Exists(t *testing.T) {
	t.Parallel()

	b := sources.NewGCSWithStore(gcsConfig, &fakeStore{objects: map[string]string{"breakpad/a/b": "x"}})

	ok, err := b.Exists(context.Background(), "a/b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(context.Background(), "a/c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Close())
}
