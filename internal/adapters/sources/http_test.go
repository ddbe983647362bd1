package sources_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
)

func newSymbolServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/symbols/pub/libfoo.so/ID0/libfoo.so.sym", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("X-Client") != "symcache" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "MODULE Linux x86_64 ID0 libfoo.so\n")
	})
	mux.HandleFunc("/symbols/pub/busy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/symbols/pub/throttled", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/symbols/pub/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHTTPBackend(t *testing.T, url string) *sources.HTTP {
	t.Helper()

	b, err := sources.NewHTTP(domain.SourceConfig{
		ID:      "public",
		Type:    domain.SourceHTTP,
		URL:     url + "/symbols/",
		Prefix:  "pub",
		Token:   "secret",
		Headers: map[string]string{"X-Client": "symcache"},
	}, nil)
	require.NoError(t, err)
	return b
}

func TestHTTP_Fetch(t *testing.T) {
	t.Parallel()

	srv := newSymbolServer(t)
	b := newHTTPBackend(t, srv.URL)

	rc, err := b.Fetch(context.Background(), "libfoo.so/ID0/libfoo.so.sym")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "MODULE Linux x86_64 ID0 libfoo.so\n", string(data))
}

func TestHTTP_FetchClassification(t *testing.T) {
	t.Parallel()

	srv := newSymbolServer(t)
	b := newHTTPBackend(t, srv.URL)

	tests := []struct {
		path     string
		wantKind domain.ErrorKind
		wantErr  string
	}{
		{path: "missing/ID0/missing.sym", wantKind: domain.KindNotFound, wantErr: domain.ErrNotFound.Error()},
		{path: "busy", wantKind: domain.KindTransient, wantErr: domain.ErrSourceRequestFailed.Error()},
		{path: "throttled", wantKind: domain.KindTransient, wantErr: domain.ErrSourceThrottled.Error()},
		{path: "forbidden", wantKind: domain.KindTransient, wantErr: domain.ErrSourceUnauthorized.Error()},
		{path: "../escape", wantKind: domain.KindNotFound, wantErr: domain.ErrInvalidObjectPath.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			_, err := b.Fetch(context.Background(), tt.path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
		})
	}
}

func TestHTTP_Exists(t *testing.T) {
	t.Parallel()

	srv := newSymbolServer(t)
	b := newHTTPBackend(t, srv.URL)
	ctx := context.Background()

	ok, err := b.Exists(ctx, "libfoo.so/ID0/libfoo.so.sym")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, "missing/ID0/missing.sym")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Exists(ctx, "busy")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}

func TestHTTP_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := newHTTPBackend(t, url)
	_, err := b.Fetch(context.Background(), "libfoo.so/ID0/libfoo.so.sym")
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.ErrorContains(t, err, domain.ErrSourceRequestFailed.Error())
}

func newTimedBackend(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *sources.HTTP {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b, err := sources.NewHTTP(domain.SourceConfig{
		ID:      "slow",
		Type:    domain.SourceHTTP,
		URL:     srv.URL,
		Timeout: timeout,
	}, nil)
	require.NoError(t, err)
	return b
}

func TestHTTP_FetchStreamsLongerThanTimeout(t *testing.T) {
	t.Parallel()

	const chunks = 8
	b := newTimedBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		for range chunks {
			_, _ = io.WriteString(w, "FUNC 1000 10 0 f\n")
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}, 150*time.Millisecond)

	body, err := b.Fetch(context.Background(), "big.sym")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("FUNC 1000 10 0 f\n", chunks), string(data))
}

func TestHTTP_FetchSlowHeaders(t *testing.T) {
	t.Parallel()

	b := newTimedBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}, 100*time.Millisecond)

	_, err := b.Fetch(context.Background(), "late.sym")
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}

func TestHTTP_FetchStalledBody(t *testing.T) {
	t.Parallel()

	b := newTimedBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "MODULE Linux x86_64 ID0 stall\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, 100*time.Millisecond)

	body, err := b.Fetch(context.Background(), "stall.sym")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	_, err = io.ReadAll(body)
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.ErrorContains(t, err, domain.ErrSourceRequestFailed.Error())
}

func TestNewHTTP_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := sources.NewHTTP(domain.SourceConfig{ID: "bad", Type: domain.SourceHTTP, URL: "not a url"}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrInvalidSourceConfig.Error())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want domain.ErrorKind
	}{
		{code: http.StatusOK, want: domain.KindUnknown},
		{code: http.StatusNotFound, want: domain.KindNotFound},
		{code: http.StatusGone, want: domain.KindNotFound},
		{code: http.StatusBadRequest, want: domain.KindNotFound},
		{code: http.StatusUnauthorized, want: domain.KindTransient},
		{code: http.StatusForbidden, want: domain.KindTransient},
		{code: http.StatusRequestTimeout, want: domain.KindTransient},
		{code: http.StatusTooManyRequests, want: domain.KindTransient},
		{code: http.StatusBadGateway, want: domain.KindTransient},
	}

	for _, tt := range tests {
		err := sources.ClassifyStatus(tt.code, "src", "a/b")
		if tt.code == http.StatusOK {
			assert.NoError(t, err)
			continue
		}
		assert.Equal(t, tt.want, domain.KindOf(err), "status %d", tt.code)
	}
}
