package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

const testPageSize = 256

func newTestPool(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	dm, err := flushmanager.NewDiskManager(filepath.Join(t.TempDir(), "pool.db"), testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	bpm, err := NewBufferPoolManager(poolSize, dm, nil, nil)
	require.NoError(t, err)
	return bpm
}

func TestNewBufferPoolManager_RejectsNonPositivePoolSize(t *testing.T) {
	dm, err := flushmanager.NewDiskManager(filepath.Join(t.TempDir(), "pool.db"), testPageSize)
	require.NoError(t, err)
	defer dm.Close()

	_, err = NewBufferPoolManager(0, dm, nil, nil)
	require.ErrorIs(t, err, flushmanager.ErrInvalidPoolSize)
}

func TestBufferPoolManager_NewPage_PinsAndZeroesFrame(t *testing.T) {
	bpm := newTestPool(t, 2)

	page, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, pagemanager.InvalidPageID, pageID)
	require.Equal(t, uint32(1), page.GetPinCount())
	for _, b := range page.GetData() {
		require.Equal(t, byte(0), b)
	}
}

func TestBufferPoolManager_FetchPage_MissReadsFromDisk(t *testing.T) {
	bpm := newTestPool(t, 2)

	page, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	copy(page.GetData(), []byte("hello"))
	require.True(t, bpm.UnpinPage(pageID, true))
	flushed, err := bpm.FlushPage(pageID)
	require.NoError(t, err)
	require.True(t, flushed)

	// Force the frame out of the pool by filling it with other pages,
	// unpinning each so a frame stays evictable for the refetch below.
	for i := 0; i < 2; i++ {
		_, otherID, err := bpm.NewPage()
		require.NoError(t, err)
		require.True(t, bpm.UnpinPage(otherID, false))
	}

	fetched, err := bpm.FetchPage(pageID)
	require.NoError(t, err)
	require.Equal(t, "hello", string(fetched.GetData()[:5]))
}

func TestBufferPoolManager_FetchPage_InvalidPageIDReturnsNil(t *testing.T) {
	bpm := newTestPool(t, 2)
	page, err := bpm.FetchPage(pagemanager.InvalidPageID)
	require.NoError(t, err)
	require.Nil(t, page)
}

func TestBufferPoolManager_FetchPage_HitIncrementsPinWithoutDiskRead(t *testing.T) {
	bpm := newTestPool(t, 2)

	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)

	again, err := bpm.FetchPage(pageID)
	require.NoError(t, err)
	require.Equal(t, uint32(2), again.GetPinCount())
}

func TestBufferPoolManager_FetchPage_HitRemovesFromReplacer(t *testing.T) {
	bpm := newTestPool(t, 1)

	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, false)) // now evictable

	// Re-fetching should pull it back out of the replacer and pin it.
	fetched, err := bpm.FetchPage(pageID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), fetched.GetPinCount())

	// With the pool at capacity 1 and the only page now pinned again,
	// allocating a second page must fail: if the hit path had left the
	// frame in the replacer, this would incorrectly succeed by evicting
	// a page that is supposed to be pinned.
	_, _, err = bpm.NewPage()
	require.Error(t, err)
	require.ErrorIs(t, err, flushmanager.ErrBufferPoolFull)
}

func TestBufferPoolManager_UnpinPage_DirtyIsMonotonic(t *testing.T) {
	bpm := newTestPool(t, 2)

	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, true))

	// Re-pin then unpin as clean: the earlier dirty mark must survive.
	_, err = bpm.FetchPage(pageID)
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, false))

	flushed, err := bpm.FlushPage(pageID)
	require.NoError(t, err)
	require.True(t, flushed, "dirty flag set by an earlier unpin must not be cleared by a later clean unpin")
}

func TestBufferPoolManager_UnpinPage_NotResidentReturnsFalse(t *testing.T) {
	bpm := newTestPool(t, 2)
	require.False(t, bpm.UnpinPage(pagemanager.PageID(999), false))
}

func TestBufferPoolManager_UnpinPage_AlreadyZeroReturnsFalse(t *testing.T) {
	bpm := newTestPool(t, 2)
	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, false))
	require.False(t, bpm.UnpinPage(pageID, false), "unpinning below zero must be rejected")
}

func TestBufferPoolManager_Eviction_WritesBackDirtyVictim(t *testing.T) {
	bpm := newTestPool(t, 1)

	firstPage, firstID, err := bpm.NewPage()
	require.NoError(t, err)
	copy(firstPage.GetData(), []byte("dirty victim"))
	require.True(t, bpm.UnpinPage(firstID, true))

	// Allocating a second page with only one frame forces eviction of the
	// first, which must be written back since it is dirty.
	_, secondID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(secondID, false)) // free the only frame up again

	refetched, err := bpm.FetchPage(firstID)
	require.NoError(t, err)
	require.Equal(t, "dirty victim", string(refetched.GetData()[:len("dirty victim")]))
}

func TestBufferPoolManager_FetchPage_NeverWrittenPageReadsAsZeros(t *testing.T) {
	bpm := newTestPool(t, 1)

	_, firstID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(firstID, false)) // clean: never written to, evictable without a flush

	_, secondID, err := bpm.NewPage() // evicts firstID's frame without a write-back
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(secondID, false))

	refetched, err := bpm.FetchPage(firstID)
	require.NoError(t, err)
	for _, b := range refetched.GetData() {
		require.Equal(t, byte(0), b)
	}
}

func TestBufferPoolManager_Exhaustion_AllPagesPinned(t *testing.T) {
	bpm := newTestPool(t, 2)

	_, _, err := bpm.NewPage()
	require.NoError(t, err)
	_, _, err = bpm.NewPage()
	require.NoError(t, err)

	_, _, err = bpm.NewPage()
	require.Error(t, err)
	require.ErrorIs(t, err, flushmanager.ErrBufferPoolFull)
}

func TestBufferPoolManager_FlushPage_AbsentPageReturnsFalse(t *testing.T) {
	bpm := newTestPool(t, 2)
	flushed, err := bpm.FlushPage(pagemanager.PageID(12345))
	require.NoError(t, err)
	require.False(t, flushed)
}

func TestBufferPoolManager_FlushPage_CleanPageReturnsFalse(t *testing.T) {
	bpm := newTestPool(t, 2)
	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, false))

	flushed, err := bpm.FlushPage(pageID)
	require.NoError(t, err)
	require.False(t, flushed)
}

func TestBufferPoolManager_DeletePage_ReturnsTrueOnSuccess(t *testing.T) {
	bpm := newTestPool(t, 2)
	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(pageID, false))

	deleted, err := bpm.DeletePage(pageID)
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok := bpm.table.find(pageID)
	require.False(t, ok)
}

func TestBufferPoolManager_DeletePage_PinnedPageFails(t *testing.T) {
	bpm := newTestPool(t, 2)
	_, pageID, err := bpm.NewPage()
	require.NoError(t, err)

	deleted, err := bpm.DeletePage(pageID)
	require.ErrorIs(t, err, flushmanager.ErrPagePinned)
	require.False(t, deleted)
}

func TestBufferPoolManager_DeletePage_AbsentReturnsFalse(t *testing.T) {
	bpm := newTestPool(t, 2)
	deleted, err := bpm.DeletePage(pagemanager.PageID(999))
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestBufferPoolManager_FreeListPreferredOverEviction(t *testing.T) {
	bpm := newTestPool(t, 2)

	_, firstID, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(firstID, false))

	deleted, err := bpm.DeletePage(firstID)
	require.NoError(t, err)
	require.True(t, deleted)

	// Both frames are now free (one never used, one freed by delete).
	// A second NewPage must not touch the replacer at all.
	_, _, err = bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, 0, bpm.replacer.Size())
}

func TestBufferPoolManager_FlushAllPages_ClearsDirtySet(t *testing.T) {
	bpm := newTestPool(t, 3)

	var ids []pagemanager.PageID
	for i := 0; i < 3; i++ {
		_, id, err := bpm.NewPage()
		require.NoError(t, err)
		ids = append(ids, id)
		require.True(t, bpm.UnpinPage(id, true))
	}

	require.NoError(t, bpm.FlushAllPages())
	for _, id := range ids {
		flushed, err := bpm.FlushPage(id)
		require.NoError(t, err)
		require.False(t, flushed, "FlushAllPages should have left no dirty pages behind")
	}
}

func TestBufferPoolManager_Close_FlushesBeforeClosing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.db")
	dm, err := flushmanager.NewDiskManager(path, testPageSize)
	require.NoError(t, err)

	bpm, err := NewBufferPoolManager(1, dm, nil, nil)
	require.NoError(t, err)

	page, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	copy(page.GetData(), []byte("closing"))
	require.True(t, bpm.UnpinPage(pageID, true))

	require.NoError(t, bpm.Close())

	reopened, err := flushmanager.NewDiskManager(path, testPageSize)
	require.NoError(t, err)
	defer reopened.Close()

	data := make([]byte, testPageSize)
	require.NoError(t, reopened.ReadPage(pageID, data))
	require.Equal(t, "closing", string(data[:len("closing")]))
}
