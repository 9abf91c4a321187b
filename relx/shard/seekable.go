package shard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Seek table layout follows the zstd seekable format: a skippable frame whose
// payload lists (compressed size, decompressed size) per frame, closed by a
// footer carrying the frame count, a descriptor byte and a magic number.
const (
	skippableMagic   = 0x184D2A5E
	seekableMagic    = 0x8F92EAB1
	seekFooterSize   = 9
	seekEntrySize    = 8
	seekChecksumFlag = 0x80
	skippableHdrSize = 8
)

// ErrNoSeekTable is returned when a shard lacks a readable seek table.
var ErrNoSeekTable = errors.New("shard has no seek table")

// FrameEntry describes one independently compressed frame.
type FrameEntry struct {
	CompressedSize   uint32
	DecompressedSize uint32
}

func appendSeekTable(dst []byte, frames []FrameEntry) []byte {
	payload := uint32(len(frames)*seekEntrySize + seekFooterSize)
	dst = binary.LittleEndian.AppendUint32(dst, skippableMagic)
	dst = binary.LittleEndian.AppendUint32(dst, payload)
	for _, f := range frames {
		dst = binary.LittleEndian.AppendUint32(dst, f.CompressedSize)
		dst = binary.LittleEndian.AppendUint32(dst, f.DecompressedSize)
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(frames)))
	dst = append(dst, 0)
	dst = binary.LittleEndian.AppendUint32(dst, seekableMagic)
	return dst
}

// ReadSeekTable parses the trailing seek table of a seekable shard.
func ReadSeekTable(r io.ReaderAt, size int64) ([]FrameEntry, error) {
	if size < skippableHdrSize+seekFooterSize {
		return nil, ErrNoSeekTable
	}

	footer := make([]byte, seekFooterSize)
	if _, err := r.ReadAt(footer, size-seekFooterSize); err != nil {
		return nil, fmt.Errorf("failed to read seek table footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[5:]) != seekableMagic {
		return nil, ErrNoSeekTable
	}
	if footer[4]&seekChecksumFlag != 0 {
		return nil, fmt.Errorf("%w: checksummed seek tables are not supported", ErrNoSeekTable)
	}

	n := int64(binary.LittleEndian.Uint32(footer[:4]))
	tableSize := n*seekEntrySize + seekFooterSize
	start := size - tableSize - skippableHdrSize
	if start < 0 {
		return nil, fmt.Errorf("%w: %d frames do not fit in %d bytes", ErrNoSeekTable, n, size)
	}

	buf := make([]byte, tableSize-seekFooterSize+skippableHdrSize)
	if _, err := r.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("failed to read seek table: %w", err)
	}
	if binary.LittleEndian.Uint32(buf[:4]) != skippableMagic ||
		int64(binary.LittleEndian.Uint32(buf[4:8])) != tableSize {
		return nil, ErrNoSeekTable
	}

	frames := make([]FrameEntry, n)
	for i := range frames {
		off := skippableHdrSize + i*seekEntrySize
		frames[i] = FrameEntry{
			CompressedSize:   binary.LittleEndian.Uint32(buf[off:]),
			DecompressedSize: binary.LittleEndian.Uint32(buf[off+4:]),
		}
	}
	return frames, nil
}
