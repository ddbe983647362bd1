package workpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/engine/workpool"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pool := workpool.New(2, 10)

		var peak, current atomic.Int32
		for range 6 {
			go func() {
				_ = pool.Do(context.Background(), func(context.Context) error {
					n := current.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(100 * time.Millisecond)
					current.Add(-1)
					return nil
				})
			}()
		}
		synctest.Wait()
		assert.Equal(t, 2, pool.Running())
		assert.Equal(t, 4, pool.Queued())

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, int32(2), peak.Load())
		assert.Zero(t, pool.Running())
		assert.Zero(t, pool.Queued())
	})
}

func TestPool_FullQueueIsResourceExhausted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pool := workpool.New(1, 1)
		release := make(chan struct{})

		go func() {
			_ = pool.Do(context.Background(), func(context.Context) error {
				<-release
				return nil
			})
		}()
		go func() {
			_ = pool.Do(context.Background(), func(context.Context) error { return nil })
		}()
		synctest.Wait()

		err := pool.Do(context.Background(), func(context.Context) error {
			t.Fatal("must not run")
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindResourceExhausted, domain.KindOf(err))
		assert.ErrorContains(t, err, domain.ErrWorkerPoolSaturated.Error())

		close(release)
		synctest.Wait()
	})
}

func TestPool_CancelWhileQueued(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pool := workpool.New(1, 4)
		release := make(chan struct{})
		go func() {
			_ = pool.Do(context.Background(), func(context.Context) error {
				<-release
				return nil
			})
		}()
		synctest.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := pool.Do(ctx, func(context.Context) error { return nil })
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, pool.Queued())

		close(release)
		synctest.Wait()
	})
}

func TestRun_ReturnsValue(t *testing.T) {
	pool := workpool.New(0, 0)
	assert.Equal(t, 1, pool.Workers())

	got, err := workpool.Run(context.Background(), pool, func(context.Context) (string, error) {
		return "index", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "index", got)

	boom := errors.New("boom")
	_, err = workpool.Run(context.Background(), pool, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}
