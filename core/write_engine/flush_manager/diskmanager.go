package flushmanager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	pagemanager "github.com/sushant-115/gojodb/core/write_engine/page_manager"
)

const (
	dbMagic           uint32 = 0xB0FFE000
	dbFileVersion     uint32 = 1
	dbFileHeaderSize         = 32
	MaxFilenameLength        = 255
)

// dbFileHeader is the fixed-size header persisted at offset 0 of the backing
// file. It lets an existing file be reopened with the page size it was
// created with instead of silently reinterpreting its contents.
type dbFileHeader struct {
	Magic    uint32
	Version  uint32
	PageSize uint32
	NumPages uint64
}

// DiskManager owns the backing file for a buffer pool: page-granular reads
// and writes, and allocation/deallocation of page identifiers. It is the
// buffer pool manager's only collaborator for durability; the pool holds its
// own latch around every call into it, but the disk manager is also safe to
// use on its own thanks to its internal mutex.
type DiskManager struct {
	filePath    string
	file        *os.File
	pageSize    int
	numPages    uint64
	freePages   []pagemanager.PageID // in-memory free list; not persisted across restarts
	compression CompressionType
	mu          sync.Mutex
}

// DiskManagerOption configures optional DiskManager behavior at construction.
type DiskManagerOption func(*DiskManager)

// WithCompression enables transparent page compression for writes/reads.
func WithCompression(ct CompressionType) DiskManagerOption {
	return func(dm *DiskManager) { dm.compression = ct }
}

// NewDiskManager opens (or creates) the database file at filePath and
// returns a DiskManager ready for ReadPage/WritePage/AllocatePage calls.
func NewDiskManager(filePath string, pageSize int, opts ...DiskManagerOption) (*DiskManager, error) {
	if len(filePath) > MaxFilenameLength {
		return nil, fmt.Errorf("file path too long: %s", filePath)
	}
	dm := &DiskManager{filePath: filePath, pageSize: pageSize}
	for _, opt := range opts {
		opt(dm)
	}

	_, statErr := os.Stat(filePath)
	switch {
	case os.IsNotExist(statErr):
		file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating file %s: %v", ErrIO, filePath, err)
		}
		dm.file = file
		dm.numPages = 1 // page 0 is reserved for the header
		if err := dm.writeHeader(); err != nil {
			_ = dm.file.Close()
			_ = os.Remove(filePath)
			return nil, err
		}
	case statErr == nil:
		file, err := os.OpenFile(filePath, os.O_RDWR, 0o666)
		if err != nil {
			return nil, fmt.Errorf("%w: opening file %s: %v", ErrIO, filePath, err)
		}
		dm.file = file
		header, err := dm.readHeader()
		if err != nil {
			_ = dm.file.Close()
			return nil, err
		}
		if header.Magic != dbMagic {
			_ = dm.file.Close()
			return nil, fmt.Errorf("%w: invalid magic number in %s", ErrChecksumMismatch, filePath)
		}
		if int(header.PageSize) != pageSize {
			_ = dm.file.Close()
			return nil, fmt.Errorf("database file page size (%d) does not match configured page size (%d)", header.PageSize, pageSize)
		}
		dm.numPages = header.NumPages
	default:
		return nil, fmt.Errorf("%w: stating file %s: %v", ErrIO, filePath, statErr)
	}
	return dm, nil
}

func (dm *DiskManager) writeHeader() error {
	header := dbFileHeader{Magic: dbMagic, Version: dbFileVersion, PageSize: uint32(dm.pageSize), NumPages: dm.numPages}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("serializing header: %w", err)
	}
	padded := make([]byte, dbFileHeaderSize)
	copy(padded, buf.Bytes())
	if _, err := dm.file.WriteAt(padded, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	return dm.file.Sync()
}

func (dm *DiskManager) readHeader() (*dbFileHeader, error) {
	data := make([]byte, dbFileHeaderSize)
	n, err := dm.file.ReadAt(data, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	if n != dbFileHeaderSize {
		return nil, fmt.Errorf("%w: short read for header, expected %d bytes, got %d", ErrChecksumMismatch, dbFileHeaderSize, n)
	}
	var header dbFileHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("deserializing header: %w", err)
	}
	return &header, nil
}

// GetPageSize returns the fixed page size this disk manager was opened with.
func (dm *DiskManager) GetPageSize() int { return dm.pageSize }

// slotSize is the fixed on-disk footprint of one page, including the
// compression header. It never varies with the actual compressed size, so
// page offsets stay a simple pageID*slotSize computation regardless of
// whether compression shrinks a given page's payload.
func (dm *DiskManager) slotSize() int { return dm.pageSize + compressedHeaderSize }

// ReadPage reads page_id's data into pageData, which must be exactly
// pageSize bytes. Newly allocated but never-written pages read as zeros.
func (dm *DiskManager) ReadPage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	offset := int64(pageID) * int64(dm.slotSize())
	raw := make([]byte, dm.slotSize())
	n, err := dm.file.ReadAt(raw, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d at offset %d: %v", ErrIO, pageID, offset, err)
	}
	raw = raw[:n]
	if n == 0 || isUnwrittenSlot(raw) {
		// Never written: AllocatePage zero-fills the slot on disk, so a
		// page that has never been through WritePage reads back as a
		// full slot of zero bytes rather than hitting EOF. Either way it
		// means zeros, not a decode failure.
		for i := range pageData {
			pageData[i] = 0
		}
		return nil
	}
	return decodePage(raw, pageData)
}

// WritePage persists pageData (exactly pageSize bytes) for page_id.
func (dm *DiskManager) WritePage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	encoded, err := encodePage(pageData, dm.compression)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	slot := make([]byte, dm.slotSize())
	copy(slot, encoded)
	offset := int64(pageID) * int64(dm.slotSize())
	if _, err := dm.file.WriteAt(slot, offset); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", ErrIO, pageID, offset, err)
	}
	return nil
}

// AllocatePage reserves a fresh page identifier, reusing a deallocated one
// if the free list is non-empty, and never returns InvalidPageID.
func (dm *DiskManager) AllocatePage() (pagemanager.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if n := len(dm.freePages); n > 0 {
		id := dm.freePages[n-1]
		dm.freePages = dm.freePages[:n-1]
		return id, nil
	}
	newPageID := pagemanager.PageID(dm.numPages)
	offset := int64(newPageID) * int64(dm.slotSize())
	if _, err := dm.file.WriteAt(make([]byte, dm.slotSize()), offset); err != nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: extending file for new page %d: %v", ErrIO, newPageID, err)
	}
	dm.numPages++
	if err := dm.writeHeader(); err != nil {
		return pagemanager.InvalidPageID, err
	}
	return newPageID, nil
}

// DeallocatePage marks pageID reusable. The pool makes no assumption about
// immediate reuse; the identifier is simply pushed onto the free list for a
// later AllocatePage to hand back out.
func (dm *DiskManager) DeallocatePage(pageID pagemanager.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if pageID == pagemanager.InvalidPageID {
		return fmt.Errorf("cannot deallocate invalid page id")
	}
	dm.freePages = append(dm.freePages, pageID)
	return nil
}

// Sync flushes all buffered writes to durable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	return dm.file.Sync()
}

// Close syncs and closes the underlying file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		_ = dm.file.Close()
		dm.file = nil
		return fmt.Errorf("%w: syncing file on close: %v", ErrIO, err)
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}
