package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrPageNotFound     = errors.New("page not found in buffer pool")
	ErrBufferPoolFull   = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned       = errors.New("page is pinned and cannot be evicted")
	ErrIO               = errors.New("i/o error")
	ErrChecksumMismatch = errors.New("page checksum mismatch, data corruption suspected")
	ErrDBFileExists     = errors.New("database file already exists")
	ErrDBFileNotFound   = errors.New("database file not found")
	ErrInvalidPoolSize  = errors.New("buffer pool size must be greater than zero")
)
