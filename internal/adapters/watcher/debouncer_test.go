package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/watcher"
)

func TestDebouncer_CoalescesPaths(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var callCount int
		var receivedPaths []string

		d := watcher.NewDebouncer(100*time.Millisecond, func(paths []string) {
			callCount++
			receivedPaths = paths
		})

		d.Add("/symbols/libc.so/ABC/libc.so.sym")
		d.Add("/symbols/app/DEF/app.sym")
		d.Add("/symbols/libc.so/ABC/libc.so.sym")
		assert.Equal(t, 2, d.Pending())

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		require.Equal(t, 1, callCount)
		assert.Equal(t, []string{
			"/symbols/app/DEF/app.sym",
			"/symbols/libc.so/ABC/libc.so.sym",
		}, receivedPaths)
		assert.Zero(t, d.Pending())
	})
}

func TestDebouncer_TimerReset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var mu sync.Mutex
		var callCount int

		d := watcher.NewDebouncer(100*time.Millisecond, func([]string) {
			mu.Lock()
			callCount++
			mu.Unlock()
		})

		d.Add("/a")
		time.Sleep(60 * time.Millisecond)
		d.Add("/b")
		time.Sleep(60 * time.Millisecond)
		synctest.Wait()

		mu.Lock()
		assert.Equal(t, 0, callCount)
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)
		synctest.Wait()

		mu.Lock()
		assert.Equal(t, 1, callCount)
		mu.Unlock()
	})
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var calls [][]string

		d := watcher.NewDebouncer(100*time.Millisecond, func(paths []string) {
			calls = append(calls, paths)
		})

		d.Add("/b")
		d.Add("/a")
		d.Flush()

		require.Len(t, calls, 1)
		assert.Equal(t, []string{"/a", "/b"}, calls[0])

		// The stopped timer must not fire a second, empty batch.
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, calls, 1)
	})
}

func TestDebouncer_FlushEmpty(t *testing.T) {
	called := false
	d := watcher.NewDebouncer(time.Second, func([]string) { called = true })

	d.Flush()

	assert.False(t, called)
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := watcher.NewDebouncer(10*time.Millisecond, nil)
		d.Add("/a")

		time.Sleep(20 * time.Millisecond)
		synctest.Wait()

		assert.Zero(t, d.Pending())
	})
}
