package index_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/symcache/internal/adapters/index"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_PutGetDelete(t *testing.T) {
	idx := newIndex(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := domain.EntryRecord{Hash: "abc", Kind: domain.CacheObjects, Size: 42, LastAccess: now}
	require.NoError(t, idx.Put(rec))

	got, ok, err := idx.Get("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Size, got.Size)
	assert.True(t, rec.LastAccess.Equal(got.LastAccess))

	require.NoError(t, idx.Delete("abc"))
	_, ok, err = idx.Get("abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Delete("abc"), "deleting twice is not an error")
}

func TestIndex_Touch(t *testing.T) {
	idx := newIndex(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Put(domain.EntryRecord{Hash: "h", Size: 1, LastAccess: start}))

	require.NoError(t, idx.Touch("h", start.Add(500*time.Millisecond)))
	got, _, err := idx.Get("h")
	require.NoError(t, err)
	assert.True(t, start.Equal(got.LastAccess), "sub-second touches are coalesced")

	later := start.Add(time.Minute)
	require.NoError(t, idx.Touch("h", later))
	got, _, err = idx.Get("h")
	require.NoError(t, err)
	assert.True(t, later.Equal(got.LastAccess))

	require.NoError(t, idx.Touch("missing", later))
}

func TestIndex_List(t *testing.T) {
	idx := newIndex(t)
	for _, h := range []string{"c", "a", "b"} {
		require.NoError(t, idx.Put(domain.EntryRecord{Hash: h, Size: 1}))
	}

	recs, err := idx.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].Hash)
	assert.Equal(t, "c", recs[2].Hash)
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), domain.IndexDirName)

	idx, err := index.Open(index.Config{Path: dir, GCInterval: -1})
	require.NoError(t, err)
	require.NoError(t, idx.Put(domain.EntryRecord{
		Hash:      "neg",
		Kind:      domain.CacheSymbolIndex,
		Negative:  true,
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, idx.Close())

	idx, err = index.Open(index.Config{Path: dir})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	got, ok, err := idx.Get("neg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Negative)
	assert.Equal(t, domain.CacheSymbolIndex, got.Kind)
}

func TestIndex_OpenRequiresPath(t *testing.T) {
	_, err := index.Open(index.Config{})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrIndexOpenFailed.Error())
}

func TestBadgerLogger(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)

	mockLogger.EXPECT().Warn("value log 3 truncated")
	mockLogger.EXPECT().Error(gomock.Any()).Do(func(err error) {
		assert.Equal(t, "disk full", err.Error())
	})

	bl := index.NewBadgerLogger(mockLogger)
	bl.Warningf("value log %d truncated\n", 3)
	bl.Errorf("disk %s", "full")
	bl.Infof("ignored")
	bl.Debugf("ignored")
}
