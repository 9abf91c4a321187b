package shard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Codec selects how shard bytes are stored on disk.
type Codec string

const (
	CodecNone Codec = "none"
	// CodecZstd writes one zstd stream per shard.
	CodecZstd Codec = "zstd"
	// CodecZstdSeekable writes independent zstd frames every FrameSize raw
	// bytes plus a trailing seek table, so single records can be read
	// without decompressing the whole shard.
	CodecZstdSeekable Codec = "zstd-seekable"
)

// ErrUnknownCodec is returned for codec names ParseCodec does not know.
var ErrUnknownCodec = errors.New("unknown compression codec")

// ParseCodec maps a configuration value to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw", "ndjson":
		return CodecNone, nil
	case "zstd", "zst":
		return CodecZstd, nil
	case "zstd-seekable", "seekable", "zstd_seekable":
		return CodecZstdSeekable, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Compressed reports whether the codec compresses.
func (c Codec) Compressed() bool {
	return c == CodecZstd || c == CodecZstdSeekable
}

// Extension returns the shard file suffix.
func (c Codec) Extension() string {
	if c.Compressed() {
		return ".ndjson.zst"
	}
	return ".ndjson"
}

func (c Codec) valid() bool {
	switch c {
	case CodecNone, CodecZstd, CodecZstdSeekable:
		return true
	}
	return false
}

// encoderLevel resolves a level name ("fastest", "default", "better",
// "best"); unknown or empty names fall back to the default level.
func encoderLevel(name string) zstd.EncoderLevel {
	if name == "" {
		return zstd.SpeedDefault
	}
	if ok, lvl := zstd.EncoderLevelFromString(name); ok {
		return lvl
	}
	return zstd.SpeedDefault
}
