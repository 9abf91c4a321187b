// Package shard writes NDJSON records into size- or count-bounded shard files,
// optionally zstd compressed, and keeps a secondary index of record offsets.
package shard

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

var (
	ErrInvalidOptions = errors.New("invalid shard writer options")
	ErrWriterClosed   = errors.New("shard writer is closed")
	ErrWriterFailed   = errors.New("shard writer failed")
)

// Options configures a Writer. A zero MaxRecords or MaxBytes disables that
// rotation threshold.
type Options struct {
	Dir        string
	BaseName   string
	MaxRecords int64
	MaxBytes   int64
	Codec      Codec
	// Level is a zstd level name: fastest, default, better or best.
	Level string
	// FrameSize is the raw byte budget of one seekable frame.
	FrameSize int64
	// CollectIndex records an IndexEntry for every write with an index key.
	CollectIndex bool
}

// Validate checks the options and fills defaults.
func (o *Options) Validate() error {
	if o.Dir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidOptions)
	}
	if o.BaseName == "" {
		o.BaseName = "part"
	}
	if o.Codec == "" {
		o.Codec = CodecNone
	}
	if !o.Codec.valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidOptions, ErrUnknownCodec, o.Codec)
	}
	if o.MaxRecords < 0 || o.MaxBytes < 0 {
		return fmt.Errorf("%w: negative rotation threshold", ErrInvalidOptions)
	}
	if o.Codec == CodecZstdSeekable && o.FrameSize <= 0 {
		return fmt.Errorf("%w: seekable codec needs a positive frame size", ErrInvalidOptions)
	}
	if o.FrameSize > 1<<31 {
		return fmt.Errorf("%w: frame size %d exceeds 2GiB", ErrInvalidOptions, o.FrameSize)
	}
	return nil
}

// Descriptor describes one closed shard.
type Descriptor struct {
	Path        string `json:"path"`
	RecordCount int64  `json:"recordCount"`
	// ByteSize is the on-disk size, RawBytes the uncompressed NDJSON size.
	ByteSize   int64  `json:"byteSize"`
	RawBytes   int64  `json:"rawBytes"`
	Compressed bool   `json:"compressed"`
	Codec      Codec  `json:"codec"`
	Frames     int    `json:"frames,omitempty"`
	Checksum   string `json:"checksum"`
	FirstKey   string `json:"firstKey,omitempty"`
	LastKey    string `json:"lastKey,omitempty"`
}

// WriteError reports the shard a writer failed on and how far it got.
type WriteError struct {
	Shard   string
	Records int64
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("shard %s failed after %d records: %v", e.Shard, e.Records, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriterFailed }

// Stats summarises everything a writer has accepted.
type Stats struct {
	Records  int64
	RawBytes int64
	Shards   int
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type openShard struct {
	path    string
	file    *os.File
	counter *countingWriter
	buf     *bufio.Writer
	sink    io.Writer
	hasher  *xxh3.Hasher

	records int64
	raw     int64
	first   string
	last    string

	// seekable state
	pending    bytes.Buffer
	frames     []FrameEntry
	indexStart int
}

// Writer is a ShardedRecordWriter. It is not safe for concurrent use; each
// table owns one writer.
type Writer struct {
	opts   Options
	logger zerolog.Logger

	stream *zstd.Encoder
	frame  *zstd.Encoder

	current *openShard
	seq     int
	shards  []Descriptor
	index   []IndexEntry
	stats   Stats

	closed  bool
	failure *WriteError
}

// NewWriter validates opts and creates the output directory. Shards are
// opened lazily on the first write.
func NewWriter(opts Options, logger zerolog.Logger) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory %s: %w", opts.Dir, err)
	}

	w := &Writer{
		opts:   opts,
		logger: logger.With().Str("component", "shard").Str("dir", opts.Dir).Logger(),
	}

	level := zstd.WithEncoderLevel(encoderLevel(opts.Level))
	var err error
	switch opts.Codec {
	case CodecZstd:
		w.stream, err = zstd.NewWriter(nil, level)
	case CodecZstdSeekable:
		w.frame, err = zstd.NewWriter(nil, level, zstd.WithEncoderConcurrency(1))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return w, nil
}

// Write appends one record as a JSON line. stableKey feeds the descriptor
// key range; a non-empty indexKey adds an IndexEntry when indexing is on.
func (w *Writer) Write(record any, stableKey, indexKey string) error {
	if w.failure != nil {
		return w.failure
	}
	if w.closed {
		return ErrWriterClosed
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", stableKey, err)
	}
	line = append(line, '\n')

	if w.current == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	s := w.current

	offset := s.raw
	if _, err := s.sink.Write(line); err != nil {
		return w.fail(err)
	}
	_, _ = s.hasher.Write(line)
	s.records++
	s.raw += int64(len(line))
	if s.first == "" {
		s.first = stableKey
	}
	s.last = stableKey
	w.stats.Records++
	w.stats.RawBytes += int64(len(line))

	if w.opts.CollectIndex && indexKey != "" {
		w.index = append(w.index, IndexEntry{
			StableKey: indexKey,
			ShardPath: s.path,
			Offset:    offset,
			Length:    int64(len(line)),
		})
	}

	if w.opts.Codec == CodecZstdSeekable && int64(s.pending.Len()) >= w.opts.FrameSize {
		if err := w.flushFrame(); err != nil {
			return w.fail(err)
		}
	}

	if w.shouldRotate() {
		return w.closeCurrent()
	}
	return nil
}

func (w *Writer) shouldRotate() bool {
	s := w.current
	if w.opts.MaxRecords > 0 && s.records >= w.opts.MaxRecords {
		return true
	}
	return w.opts.MaxBytes > 0 && s.raw >= w.opts.MaxBytes
}

func (w *Writer) open() error {
	name := fmt.Sprintf("%s-%05d%s", w.opts.BaseName, w.seq, w.opts.Codec.Extension())
	path := filepath.Join(w.opts.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		w.failure = &WriteError{Shard: path, Err: err}
		return w.failure
	}
	w.seq++

	s := &openShard{
		path:       path,
		file:       f,
		hasher:     xxh3.New(),
		indexStart: len(w.index),
	}
	s.counter = &countingWriter{w: f}
	s.buf = bufio.NewWriterSize(s.counter, 64<<10)

	switch w.opts.Codec {
	case CodecZstd:
		w.stream.Reset(s.buf)
		s.sink = w.stream
	case CodecZstdSeekable:
		s.sink = &s.pending
	default:
		s.sink = s.buf
	}
	w.current = s

	w.logger.Debug().Str("shard", path).Msg("opened shard")
	return nil
}

// flushFrame compresses the pending raw bytes into one independent frame.
func (w *Writer) flushFrame() error {
	s := w.current
	if s.pending.Len() == 0 {
		return nil
	}
	compressed := w.frame.EncodeAll(s.pending.Bytes(), nil)
	if _, err := s.buf.Write(compressed); err != nil {
		return err
	}
	s.frames = append(s.frames, FrameEntry{
		CompressedSize:   uint32(len(compressed)),
		DecompressedSize: uint32(s.pending.Len()),
	})
	s.pending.Reset()
	return nil
}

func (w *Writer) finish() error {
	s := w.current
	switch w.opts.Codec {
	case CodecZstd:
		if err := w.stream.Close(); err != nil {
			return err
		}
	case CodecZstdSeekable:
		if err := w.flushFrame(); err != nil {
			return err
		}
		if _, err := s.buf.Write(appendSeekTable(nil, s.frames)); err != nil {
			return err
		}
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

func (w *Writer) closeCurrent() error {
	s := w.current
	if s == nil {
		return nil
	}
	if err := w.finish(); err != nil {
		return w.fail(err)
	}

	d := Descriptor{
		Path:        s.path,
		RecordCount: s.records,
		ByteSize:    s.counter.n,
		RawBytes:    s.raw,
		Compressed:  w.opts.Codec.Compressed(),
		Codec:       w.opts.Codec,
		Frames:      len(s.frames),
		Checksum:    checksumHex(s.hasher.Sum64()),
		FirstKey:    s.first,
		LastKey:     s.last,
	}
	w.shards = append(w.shards, d)
	w.stats.Shards++
	w.current = nil

	w.logger.Debug().
		Str("shard", d.Path).
		Int64("records", d.RecordCount).
		Int64("bytes", d.ByteSize).
		Msg("closed shard")
	return nil
}

// fail moves the writer into its terminal failed state. The partial shard is
// removed and its index entries dropped; shards closed earlier stay intact.
func (w *Writer) fail(err error) error {
	s := w.current
	w.current = nil
	w.failure = &WriteError{Shard: s.path, Records: s.records, Err: err}

	_ = s.file.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		w.logger.Warn().Err(rmErr).Str("shard", s.path).Msg("failed to remove partial shard")
	}
	w.index = w.index[:s.indexStart]

	w.logger.Error().Err(err).Str("shard", s.path).Int64("records", s.records).Msg("shard write failed")
	return w.failure
}

// Close flushes and closes the open shard. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.failure != nil {
		return nil
	}
	return w.closeCurrent()
}

// Err returns the failure that stopped the writer, if any.
func (w *Writer) Err() error {
	if w.failure == nil {
		return nil
	}
	return w.failure
}

// Descriptors returns the closed shards in creation order.
func (w *Writer) Descriptors() []Descriptor {
	out := make([]Descriptor, len(w.shards))
	copy(out, w.shards)
	return out
}

// IndexEntries returns the collected index entries in write order.
func (w *Writer) IndexEntries() []IndexEntry {
	out := make([]IndexEntry, len(w.index))
	copy(out, w.index)
	return out
}

func (w *Writer) Stats() Stats { return w.stats }

// Codec returns the codec after option defaults were applied.
func (w *Writer) Codec() Codec { return w.opts.Codec }

func checksumHex(sum uint64) string {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(b[:])
}
