package sources_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/sources"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"
)

var testPolicy = domain.RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

type retryFixture struct {
	inner   *mocks.MockSourceBackend
	logger  *mocks.MockLogger
	metrics *mocks.MockMetrics
}

func newRetryFixture(t *testing.T) *retryFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &retryFixture{
		inner:   mocks.NewMockSourceBackend(ctrl),
		logger:  mocks.NewMockLogger(ctrl),
		metrics: mocks.NewMockMetrics(ctrl),
	}
	f.inner.EXPECT().ID().Return("public").AnyTimes()
	return f
}

func TestRetrying_RecoversFromTransient(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newRetryFixture(t)
		flaky := domain.Transient(errors.New("connection reset"))

		gomock.InOrder(
			f.inner.EXPECT().Fetch(gomock.Any(), "a/b").Return(nil, flaky),
			f.inner.EXPECT().Fetch(gomock.Any(), "a/b").Return(nil, flaky),
			f.inner.EXPECT().Fetch(gomock.Any(), "a/b").Return(io.NopCloser(strings.NewReader("payload")), nil),
		)
		f.logger.EXPECT().Warn("retrying source request", gomock.Any()).Times(2)
		f.metrics.EXPECT().SourceFetch("public", gomock.Any(), gomock.Any()).Times(3)

		r := sources.NewRetrying(f.inner, testPolicy, nil, f.logger, f.metrics)

		start := time.Now()
		rc, err := r.Fetch(context.Background(), "a/b")
		require.NoError(t, err)
		assert.Equal(t, 600*time.Millisecond, time.Since(start))

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})
}

func TestRetrying_NotFoundIsFinal(t *testing.T) {
	t.Parallel()

	f := newRetryFixture(t)
	f.inner.EXPECT().Fetch(gomock.Any(), "a/b").Return(nil, domain.NotFound(errors.New("gone"))).Times(1)
	f.metrics.EXPECT().SourceFetch("public", gomock.Any(), gomock.Any()).Times(1)

	r := sources.NewRetrying(f.inner, testPolicy, nil, f.logger, f.metrics)
	_, err := r.Fetch(context.Background(), "a/b")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newRetryFixture(t)
		f.inner.EXPECT().Exists(gomock.Any(), "a/b").Return(false, domain.Transient(errors.New("503"))).Times(3)
		f.logger.EXPECT().Warn(gomock.Any(), gomock.Any()).Times(2)
		f.metrics.EXPECT().SourceFetch(gomock.Any(), gomock.Any(), gomock.Any()).Times(3)

		r := sources.NewRetrying(f.inner, testPolicy, nil, f.logger, f.metrics)
		ok, err := r.Exists(context.Background(), "a/b")
		require.Error(t, err)
		assert.False(t, ok)
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
		assert.ErrorContains(t, err, "503")
	})
}

func TestRetrying_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newRetryFixture(t)
		f.inner.EXPECT().Fetch(gomock.Any(), "a/b").Return(nil, domain.Transient(errors.New("timeout"))).Times(1)
		f.logger.EXPECT().Warn(gomock.Any(), gomock.Any()).Times(1)
		f.metrics.EXPECT().SourceFetch(gomock.Any(), gomock.Any(), gomock.Any()).Times(1)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		r := sources.NewRetrying(f.inner, testPolicy, nil, f.logger, f.metrics)
		_, err := r.Fetch(ctx, "a/b")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	})
}

func TestRetrying_RateLimited(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		f := newRetryFixture(t)
		f.inner.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(3)
		f.metrics.EXPECT().SourceFetch(gomock.Any(), gomock.Any(), gomock.Any()).Times(3)

		limiter := rate.NewLimiter(rate.Limit(10), 1)
		r := sources.NewRetrying(f.inner, testPolicy, limiter, f.logger, f.metrics)

		start := time.Now()
		for range 3 {
			ok, err := r.Exists(context.Background(), "a/b")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	})
}
