package shard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrRecordNotFound is returned when an index entry points outside its shard.
var ErrRecordNotFound = errors.New("record not found in shard")

// ReadRecord returns the raw JSON line an index entry points at. Seekable
// shards only decompress the frames that overlap the record.
func ReadRecord(entry IndexEntry, codec Codec) ([]byte, error) {
	if entry.Length <= 0 || entry.Offset < 0 {
		return nil, fmt.Errorf("%w: invalid span %d+%d", ErrRecordNotFound, entry.Offset, entry.Length)
	}

	f, err := os.Open(entry.ShardPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard %s: %w", entry.ShardPath, err)
	}
	defer f.Close()

	switch codec {
	case CodecNone:
		return readRaw(f, entry)
	case CodecZstd:
		return readStream(f, entry)
	case CodecZstdSeekable:
		return readSeekable(f, entry)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
}

// DetectCodec infers the codec a shard was written with from its extension
// and, for zstd shards, from the presence of a trailing seek table.
func DetectCodec(path string) (Codec, error) {
	switch {
	case strings.HasSuffix(path, CodecZstd.Extension()):
	case strings.HasSuffix(path, CodecNone.Extension()):
		return CodecNone, nil
	default:
		return "", fmt.Errorf("%w: cannot infer codec of %s", ErrUnknownCodec, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open shard %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	_, err = ReadSeekTable(f, info.Size())
	switch {
	case err == nil:
		return CodecZstdSeekable, nil
	case errors.Is(err, ErrNoSeekTable):
		return CodecZstd, nil
	}
	return "", err
}

func readRaw(f *os.File, entry IndexEntry) ([]byte, error) {
	buf := make([]byte, entry.Length)
	if _, err := f.ReadAt(buf, entry.Offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s@%d", ErrRecordNotFound, entry.ShardPath, entry.Offset)
		}
		return nil, err
	}
	return buf, nil
}

func readStream(f *os.File, entry IndexEntry) ([]byte, error) {
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	if _, err := io.CopyN(io.Discard, dec, entry.Offset); err != nil {
		return nil, notFoundOr(err, entry)
	}
	buf := make([]byte, entry.Length)
	if _, err := io.ReadFull(dec, buf); err != nil {
		return nil, notFoundOr(err, entry)
	}
	return buf, nil
}

func readSeekable(f *os.File, entry IndexEntry) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	frames, err := ReadSeekTable(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("shard %s: %w", entry.ShardPath, err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	end := entry.Offset + entry.Length
	out := make([]byte, 0, entry.Length)
	var rawPos, filePos int64
	for _, fr := range frames {
		frameEnd := rawPos + int64(fr.DecompressedSize)
		if frameEnd > entry.Offset && rawPos < end {
			compressed := make([]byte, fr.CompressedSize)
			if _, err := f.ReadAt(compressed, filePos); err != nil {
				return nil, fmt.Errorf("failed to read frame at %d: %w", filePos, err)
			}
			raw, err := dec.DecodeAll(compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to decode frame at %d: %w", filePos, err)
			}
			lo := max(entry.Offset-rawPos, 0)
			hi := min(end-rawPos, int64(len(raw)))
			out = append(out, raw[lo:hi]...)
		}
		if frameEnd >= end {
			break
		}
		rawPos = frameEnd
		filePos += int64(fr.CompressedSize)
	}

	if int64(len(out)) != entry.Length {
		return nil, fmt.Errorf("%w: %s@%d", ErrRecordNotFound, entry.ShardPath, entry.Offset)
	}
	return out, nil
}

func notFoundOr(err error, entry IndexEntry) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s@%d", ErrRecordNotFound, entry.ShardPath, entry.Offset)
	}
	return err
}
