package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/watcher"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/symcache/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func collect(t *testing.T, w *watcher.Watcher, want string) ports.WatchEvent {
	t.Helper()

	found := make(chan ports.WatchEvent, 1)
	go func() {
		for ev := range w.Events() {
			if ev.Path == want {
				found <- ev
				return
			}
		}
	}()

	select {
	case ev := <-found:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for %s", want)
		return ports.WatchEvent{}
	}
}

func TestWatcher_ReportsNewFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app.pdb"), 0o750))

	w, err := watcher.NewWatcher(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx, root))

	target := filepath.Join(root, "app.pdb", "app.sym")
	require.NoError(t, os.WriteFile(target, []byte("MODULE"), 0o600))

	ev := collect(t, w, target)
	assert.Contains(t, []ports.WatchOp{ports.OpCreate, ports.OpWrite}, ev.Operation)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	root := t.TempDir()

	w, err := watcher.NewWatcher(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx, root))

	dir := filepath.Join(root, "libfoo.so", "0123456789ABCDEF")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	target := filepath.Join(dir, "libfoo.so.sym")
	require.NoError(t, os.WriteFile(target, []byte("MODULE"), 0o600))

	ev := collect(t, w, target)
	assert.Contains(t, []ports.WatchOp{ports.OpCreate, ports.OpWrite}, ev.Operation)
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	w, err := watcher.NewWatcher(log)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), t.TempDir()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	done := make(chan struct{})
	go func() {
		for range w.Events() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events did not close after Stop")
	}
}
