package shard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexEntry locates one record. Offset and Length are measured in the
// uncompressed NDJSON stream of the shard; Length includes the newline.
type IndexEntry struct {
	StableKey string `json:"stableKey"`
	ShardPath string `json:"shardPath"`
	Offset    int64  `json:"offset"`
	Length    int64  `json:"length"`
}

// WriteIndex persists entries as NDJSON. Shard paths are stored relative to
// the index file's directory so the dataset can be moved as a whole.
func WriteIndex(path string, entries []IndexEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", path, err)
	}

	base := filepath.Dir(path)
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for _, e := range entries {
		if rel, err := filepath.Rel(base, e.ShardPath); err == nil {
			e.ShardPath = filepath.ToSlash(rel)
		}
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write index %s: %w", path, err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush index %s: %w", path, err)
	}
	return f.Close()
}

// LoadIndex reads an index written by WriteIndex and resolves shard paths
// against the index location.
func LoadIndex(path string) ([]IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	var entries []IndexEntry
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var e IndexEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
		}
		if !filepath.IsAbs(e.ShardPath) {
			e.ShardPath = filepath.Join(base, filepath.FromSlash(e.ShardPath))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteIndex persists the writer's collected entries. Call it after Close.
func (w *Writer) WriteIndex(path string) error {
	return WriteIndex(path, w.index)
}
