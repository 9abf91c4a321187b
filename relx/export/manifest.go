package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/relx/relx/shard"
)

// Manifest describes one finished run. Paths are relative to the output
// directory.
type Manifest struct {
	RunID        string        `json:"runId"`
	TableVersion string        `json:"tableVersion"`
	CreatedAt    time.Time     `json:"createdAt"`
	DurationMs   int64         `json:"durationMs"`
	Collections  int           `json:"collections"`
	Excluded     []string      `json:"excluded,omitempty"`
	Tables       []TableResult `json:"tables"`
}

// TableResult is the manifest entry of one table.
type TableResult struct {
	Name   string             `json:"name"`
	Kind   TableKind          `json:"kind"`
	Dir    string             `json:"dir"`
	Codec  shard.Codec        `json:"codec"`
	Shards []shard.Descriptor `json:"shards"`
	Index  string             `json:"index,omitempty"`
	Stats  TableStats         `json:"stats"`
}

// Table returns the entry for name, or nil.
func (m *Manifest) Table(name string) *TableResult {
	for i := range m.Tables {
		if m.Tables[i].Name == name {
			return &m.Tables[i]
		}
	}
	return nil
}

// WriteManifest writes m as indented JSON. The file is replaced atomically so
// readers never see a partial manifest.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest %s: %w", path, err)
	}
	return nil
}

// LoadManifest reads a manifest written by WriteManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
