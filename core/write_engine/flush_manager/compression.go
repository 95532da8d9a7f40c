package flushmanager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the algorithm the disk manager uses to encode a
// page's payload on disk. Frame buffers held by the buffer pool are always
// plain, fixed-size, uncompressed bytes; compression is an on-disk encoding
// detail applied at the WritePage/ReadPage boundary only.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionLZ4
)

// On-disk page slot layout:
// [0-1]:   magic (0xC0DE)
// [2]:     CompressionType actually used for this page (may differ from the
//          disk manager's configured type if compression didn't pay off)
// [3]:     reserved
// [4-5]:   uncompressed size
// [6-7]:   compressed/stored size
// [8-11]:  CRC32 checksum of the uncompressed page
// [12...]: payload, zero-padded out to the fixed slot size
const (
	compressedPageMagic     uint16 = 0xC0DE
	compressedHeaderSize           = 12
	minCompressionSavings          = 64 // bytes; below this, store raw instead
)

func crc32Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// isUnwrittenSlot reports whether raw is a disk slot that has never been
// through encodePage: AllocatePage zero-fills new slots directly, and a
// zero first two bytes can never be a real compressedPageMagic value.
func isUnwrittenSlot(raw []byte) bool {
	return len(raw) < 2 || binary.LittleEndian.Uint16(raw[0:2]) == 0
}

// encodePage compresses data (exactly one page) per compressionType and
// prepends the fixed header described above. The result is always at most
// len(data)+compressedHeaderSize bytes, so it always fits in one disk slot.
func encodePage(data []byte, compressionType CompressionType) ([]byte, error) {
	checksum := crc32Checksum(data)

	used := CompressionNone
	payload := data

	switch compressionType {
	case CompressionNone:
		// payload stays raw
	case CompressionSnappy:
		candidate := snappy.Encode(nil, data)
		if len(data)-len(candidate) >= minCompressionSavings {
			used = CompressionSnappy
			payload = candidate
		}
	case CompressionLZ4:
		candidate := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, candidate, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if n > 0 && len(data)-n >= minCompressionSavings {
			used = CompressionLZ4
			payload = candidate[:n]
		}
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}

	out := make([]byte, compressedHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], compressedPageMagic)
	out[2] = byte(used)
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(data)))
	binary.LittleEndian.PutUint16(out[6:8], uint16(len(payload)))
	binary.LittleEndian.PutUint32(out[8:12], checksum)
	copy(out[compressedHeaderSize:], payload)
	return out, nil
}

// decodePage reverses encodePage, writing the decompressed page back into
// dst, which must be exactly one page in length.
func decodePage(raw []byte, dst []byte) error {
	if len(raw) < compressedHeaderSize {
		return fmt.Errorf("page slot too short to contain a header: %d bytes", len(raw))
	}
	magic := binary.LittleEndian.Uint16(raw[0:2])
	if magic != compressedPageMagic {
		return fmt.Errorf("%w: bad page slot magic 0x%x", ErrChecksumMismatch, magic)
	}
	used := CompressionType(raw[2])
	uncompressedSize := int(binary.LittleEndian.Uint16(raw[4:6]))
	compressedSize := int(binary.LittleEndian.Uint16(raw[6:8]))
	checksum := binary.LittleEndian.Uint32(raw[8:12])

	if compressedHeaderSize+compressedSize > len(raw) {
		return fmt.Errorf("page slot truncated: need %d bytes, have %d", compressedHeaderSize+compressedSize, len(raw))
	}
	payload := raw[compressedHeaderSize : compressedHeaderSize+compressedSize]

	if uncompressedSize > len(dst) {
		return fmt.Errorf("decoded page size (%d) exceeds destination buffer (%d)", uncompressedSize, len(dst))
	}

	var decoded []byte
	switch used {
	case CompressionNone:
		decoded = payload
	case CompressionSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return fmt.Errorf("snappy decompression failed: %w", err)
		}
		decoded = out
	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return fmt.Errorf("lz4 decompression failed: %w", err)
		}
		decoded = out[:n]
	default:
		return fmt.Errorf("unsupported stored compression type: %d", used)
	}

	if len(decoded) != uncompressedSize {
		return fmt.Errorf("decoded size mismatch: header says %d, got %d", uncompressedSize, len(decoded))
	}
	if crc32Checksum(decoded) != checksum {
		return fmt.Errorf("%w: page failed checksum validation", ErrChecksumMismatch)
	}

	for i := range dst {
		dst[i] = 0
	}
	copy(dst, decoded)
	return nil
}
