// Package pagemanager defines the in-memory frame representation shared by
// the disk manager and the buffer pool manager.
package pagemanager

// InvalidPageID is the sentinel identifier reserved for unallocated frames.
// It is never stored in the page table and is rejected as a FetchPage or
// FlushPage argument.
const InvalidPageID PageID = 0

// PageID identifies a logical page on disk. Page 0 of the backing file is
// reserved for the disk manager's header, so valid data pages start at 1.
type PageID uint64

// Page is a frame: a fixed-size in-memory copy of one page's data plus the
// metadata the buffer pool manager needs to track it (identifier, pin count,
// dirty flag). Frames are allocated once, in an array, by the buffer pool
// manager and never reallocated; only the metadata below migrates as a frame
// moves between the free list, the replacer, and a pinned state.
type Page struct {
	id       PageID
	data     []byte
	pinCount uint32
	isDirty  bool
}

// NewPage allocates a frame with a page-sized data buffer.
func NewPage(id PageID, size int) *Page {
	return &Page{
		id:   id,
		data: make([]byte, size),
	}
}

// Reset clears a frame back to its free-list state: no identifier, no pins,
// clean, and zeroed data so no stale page content can leak into whatever
// page next occupies this frame.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte             { return p.data }
func (p *Page) SetData(newData []byte) bool { copy(p.data, newData); return true }
func (p *Page) GetPageID() PageID           { return p.id }
func (p *Page) SetPageID(id PageID)         { p.id = id }
func (p *Page) IsDirty() bool               { return p.isDirty }
func (p *Page) SetDirty(dirty bool)         { p.isDirty = dirty }

func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the pin count. Callers must check GetPinCount() > 0
// before calling; the buffer pool manager enforces that rule so this never
// underflows in practice.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *Page) GetPinCount() uint32         { return p.pinCount }
func (p *Page) SetPinCount(pinCount uint32) { p.pinCount = pinCount }
