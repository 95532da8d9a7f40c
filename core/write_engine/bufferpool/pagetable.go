package bufferpool

import pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"

// pageTable maps a PageID to the index of the frame currently holding it.
// A PageID appears in the table iff exactly one frame currently holds it.
// It has no mutex of its own; the buffer pool manager's latch is what makes
// access to it safe, matching the rest of the pool's single-latch design.
type pageTable struct {
	index map[pagemanager.PageID]int
}

func newPageTable(capacityHint int) *pageTable {
	return &pageTable{index: make(map[pagemanager.PageID]int, capacityHint)}
}

func (t *pageTable) find(id pagemanager.PageID) (int, bool) {
	frameIdx, ok := t.index[id]
	return frameIdx, ok
}

func (t *pageTable) insert(id pagemanager.PageID, frameIdx int) {
	t.index[id] = frameIdx
}

func (t *pageTable) remove(id pagemanager.PageID) bool {
	if _, ok := t.index[id]; !ok {
		return false
	}
	delete(t.index, id)
	return true
}
