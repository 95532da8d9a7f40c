// Package bufferpool implements the buffer pool manager: the in-memory
// cache that mediates all access between higher-level database code and
// the on-disk page store. It owns a fixed set of frames, maintains a
// mapping from page identifiers to frames, pins frames on behalf of
// callers, evicts unpinned frames via an LRU replacer, and preserves
// durability through write-back of dirty pages.
package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

// BufferPoolManager manages a fixed-count array of frames backed by a
// DiskManager. A single mutex serializes every public operation; it is
// held across the disk I/O those operations perform, per the design's
// accepted simplification (synchronous, bounded I/O under the latch).
type BufferPoolManager struct {
	diskManager *flushmanager.DiskManager
	logger      *zap.Logger
	metrics     *poolMetrics

	mu       sync.Mutex
	frames   []*pagemanager.Page
	table    *pageTable
	freeList []int // frame indices not bound to any page
	replacer Replacer
	dirty    map[pagemanager.PageID]struct{}

	poolSize int
	pageSize int
}

// NewBufferPoolManager allocates poolSize frames backed by dm. logger and
// meter may be nil, in which case a no-op logger/meter is used.
func NewBufferPoolManager(poolSize int, dm *flushmanager.DiskManager, logger *zap.Logger, meter metric.Meter) (*BufferPoolManager, error) {
	if poolSize <= 0 {
		return nil, flushmanager.ErrInvalidPoolSize
	}
	if dm == nil {
		return nil, fmt.Errorf("bufferpool: disk manager must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("bufferpool")
	}
	m, err := newPoolMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: %w", err)
	}

	pageSize := dm.GetPageSize()
	frames := make([]*pagemanager.Page, poolSize)
	freeList := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = pagemanager.NewPage(pagemanager.InvalidPageID, pageSize)
		freeList[i] = i
	}

	bpm := &BufferPoolManager{
		diskManager: dm,
		logger:      logger,
		metrics:     m,
		frames:      frames,
		table:       newPageTable(poolSize),
		freeList:    freeList,
		replacer:    NewLRUReplacer(),
		dirty:       make(map[pagemanager.PageID]struct{}),
		poolSize:    poolSize,
		pageSize:    pageSize,
	}
	logger.Info("buffer pool manager initialized", zap.Int("pool_size", poolSize), zap.Int("page_size", pageSize))
	return bpm, nil
}

func (bpm *BufferPoolManager) PoolSize() int { return bpm.poolSize }
func (bpm *BufferPoolManager) PageSize() int { return bpm.pageSize }

// acquireFrame returns the index of a frame ready to hold a new page,
// preferring the free list over the replacer as required by spec. Callers
// must hold bpm.mu. If the returned frame was a dirty victim, it has
// already been written back and removed from the page table and dirty set.
func (bpm *BufferPoolManager) acquireFrame(ctx context.Context) (int, error) {
	if n := len(bpm.freeList); n > 0 {
		frameIdx := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameIdx, nil
	}

	frameIdx, err := bpm.replacer.Victim()
	if err != nil {
		bpm.metrics.recordExhaustion(ctx)
		return -1, fmt.Errorf("bufferpool: %w", flushmanager.ErrBufferPoolFull)
	}
	bpm.metrics.recordEviction(ctx)

	victim := bpm.frames[frameIdx]
	if victim.IsDirty() {
		if err := bpm.diskManager.WritePage(victim.GetPageID(), victim.GetData()); err != nil {
			// Restore the frame to the replacer so invariants still hold:
			// it is still a valid, unpinned, tracked frame.
			bpm.replacer.Insert(frameIdx)
			bpm.logger.Error("failed to flush dirty victim before reuse",
				zap.Uint64("page_id", uint64(victim.GetPageID())), zap.Error(err))
			return -1, fmt.Errorf("bufferpool: flushing dirty victim page %d: %w", victim.GetPageID(), err)
		}
		victim.SetDirty(false)
		delete(bpm.dirty, victim.GetPageID())
		bpm.metrics.recordDirtyFlush(ctx)
	}
	if victim.GetPageID() != pagemanager.InvalidPageID {
		bpm.table.remove(victim.GetPageID())
	}
	return frameIdx, nil
}

// FetchPage pins and returns the frame holding pageID, reading it from disk
// on a miss. It returns (nil, nil) for pagemanager.InvalidPageID and
// (nil, err wrapping ErrBufferPoolFull) when the pool is exhausted.
func (bpm *BufferPoolManager) FetchPage(pageID pagemanager.PageID) (*pagemanager.Page, error) {
	ctx := context.Background()
	if pageID == pagemanager.InvalidPageID {
		return nil, nil
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameIdx, ok := bpm.table.find(pageID); ok {
		frame := bpm.frames[frameIdx]
		if frame.GetPinCount() == 0 {
			// A frame sitting in the page table with pin count 0 is
			// currently in the replacer; it must be removed here before
			// the pin count is raised, or pin safety breaks the moment
			// another caller asks the replacer for a victim.
			bpm.replacer.Erase(frameIdx)
		}
		frame.Pin()
		bpm.metrics.recordHit(ctx)
		return frame, nil
	}

	bpm.metrics.recordMiss(ctx)
	frameIdx, err := bpm.acquireFrame(ctx)
	if err != nil {
		return nil, err
	}

	frame := bpm.frames[frameIdx]
	frame.Reset()
	if err := bpm.diskManager.ReadPage(pageID, frame.GetData()); err != nil {
		// The frame is blank and untracked; return it to the free list so
		// the pool's invariants (every frame in exactly one state) hold.
		bpm.freeList = append(bpm.freeList, frameIdx)
		return nil, fmt.Errorf("bufferpool: reading page %d from disk: %w", pageID, err)
	}
	frame.SetPageID(pageID)
	frame.SetPinCount(1)
	bpm.table.insert(pageID, frameIdx)
	return frame, nil
}

// UnpinPage decrements pageID's pin count. If it reaches zero, the frame
// becomes evictable and, when isDirty is true, is marked dirty. A
// previously-set dirty flag is never cleared by an isDirty=false unpin;
// dirty is monotonic until flush or eviction. Returns false if pageID is
// not resident or was already unpinned to zero.
func (bpm *BufferPoolManager) UnpinPage(pageID pagemanager.PageID, isDirty bool) bool {
	ctx := context.Background()
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.table.find(pageID)
	if !ok {
		return false
	}
	frame := bpm.frames[frameIdx]
	if frame.GetPinCount() == 0 {
		bpm.metrics.recordPinViolation(ctx)
		return false
	}
	frame.Unpin()
	if frame.GetPinCount() == 0 {
		if isDirty {
			frame.SetDirty(true)
			bpm.dirty[pageID] = struct{}{}
		}
		bpm.replacer.Insert(frameIdx)
	}
	return true
}

// FlushPage writes pageID's frame back to disk if dirty. It returns false
// without error if pageID is absent or already clean.
func (bpm *BufferPoolManager) FlushPage(pageID pagemanager.PageID) (bool, error) {
	if pageID == pagemanager.InvalidPageID {
		return false, nil
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.table.find(pageID)
	if !ok {
		return false, nil
	}
	frame := bpm.frames[frameIdx]
	if !frame.IsDirty() {
		return false, nil
	}
	if err := bpm.diskManager.WritePage(pageID, frame.GetData()); err != nil {
		return false, fmt.Errorf("bufferpool: flushing page %d: %w", pageID, err)
	}
	frame.SetDirty(false)
	delete(bpm.dirty, pageID)
	bpm.metrics.recordDirtyFlush(context.Background())
	return true, nil
}

// FlushAllPages writes back every currently dirty frame and clears the
// dirty set. A page whose write fails stays in the dirty set for a later
// retry; the first error encountered is returned after all pages have been
// attempted.
func (bpm *BufferPoolManager) FlushAllPages() error {
	ctx := context.Background()
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var firstErr error
	for pageID := range bpm.dirty {
		frameIdx, ok := bpm.table.find(pageID)
		if !ok {
			delete(bpm.dirty, pageID)
			continue
		}
		frame := bpm.frames[frameIdx]
		if !frame.IsDirty() {
			delete(bpm.dirty, pageID)
			continue
		}
		if err := bpm.diskManager.WritePage(pageID, frame.GetData()); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("bufferpool: flushing page %d: %w", pageID, err)
			}
			bpm.logger.Error("failed to flush page during FlushAllPages",
				zap.Uint64("page_id", uint64(pageID)), zap.Error(err))
			continue
		}
		frame.SetDirty(false)
		delete(bpm.dirty, pageID)
		bpm.metrics.recordDirtyFlush(ctx)
	}

	if err := bpm.diskManager.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("bufferpool: syncing disk manager: %w", err)
	}
	return firstErr
}

// NewPage allocates a fresh page identifier via the disk manager, binds it
// to an acquired frame, pins it, and returns it. Returns ErrBufferPoolFull
// (wrapped) if no frame is available; the newly allocated identifier is
// deallocated back to the disk manager in that case so it isn't orphaned.
func (bpm *BufferPoolManager) NewPage() (*pagemanager.Page, pagemanager.PageID, error) {
	ctx := context.Background()
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	pageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		return nil, pagemanager.InvalidPageID, fmt.Errorf("bufferpool: allocating page: %w", err)
	}

	frameIdx, err := bpm.acquireFrame(ctx)
	if err != nil {
		if deallocErr := bpm.diskManager.DeallocatePage(pageID); deallocErr != nil {
			bpm.logger.Error("failed to deallocate orphaned page after frame exhaustion",
				zap.Uint64("page_id", uint64(pageID)), zap.Error(deallocErr))
		}
		return nil, pagemanager.InvalidPageID, err
	}

	frame := bpm.frames[frameIdx]
	frame.Reset()
	frame.SetPageID(pageID)
	frame.SetPinCount(1)
	bpm.table.insert(pageID, frameIdx)
	return frame, pageID, nil
}

// DeletePage removes pageID from the pool and asks the disk manager to
// deallocate it, returning its frame to the free list. It returns false if
// pageID is absent, and false (with ErrPagePinned) if it is still pinned;
// the page's dirty contents are discarded, not written back, since the
// page itself is being destroyed.
func (bpm *BufferPoolManager) DeletePage(pageID pagemanager.PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.table.find(pageID)
	if !ok {
		return false, nil
	}
	frame := bpm.frames[frameIdx]
	if frame.GetPinCount() > 0 {
		return false, flushmanager.ErrPagePinned
	}

	bpm.table.remove(pageID)
	bpm.replacer.Erase(frameIdx)
	delete(bpm.dirty, pageID)
	if err := bpm.diskManager.DeallocatePage(pageID); err != nil {
		return false, fmt.Errorf("bufferpool: deallocating page %d: %w", pageID, err)
	}
	frame.Reset()
	bpm.freeList = append(bpm.freeList, frameIdx)
	return true, nil
}

// Close flushes every dirty page and closes the underlying disk manager,
// mirroring the pool's lifecycle contract: frames are freed only after a
// full flush.
func (bpm *BufferPoolManager) Close() error {
	if err := bpm.FlushAllPages(); err != nil {
		bpm.logger.Error("FlushAllPages failed during Close", zap.Error(err))
		if closeErr := bpm.diskManager.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}
	return bpm.diskManager.Close()
}
