// Package stableid derives short deterministic identifiers from names and
// paths. Everything here is a pure function of its input.
package stableid

import (
	"fmt"
	"hash/fnv"
	"path"
	"strconv"
	"strings"
)

// RootBundleKey is the fixed key of the top-level bundle.
const RootBundleKey = "00000000"

// Reserved collection ids.
const (
	BuiltinExtraID   = "BUILTIN-EXTRA"
	BuiltinDefaultID = "BUILTIN-DEFAULT"
	BuiltinEditorID  = "BUILTIN-EDITOR"
	MissingID        = "MISSING"
)

// Hash returns the 32-bit FNV-1a hash of the UTF-8 bytes of text.
func Hash(text string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return h.Sum32()
}

// HashHex renders Hash(text) as 8 uppercase hex characters.
func HashHex(text string) string {
	return fmt.Sprintf("%08X", Hash(text))
}

// CollectionID returns the id of a collection. Built-in resource collections
// map to their family sentinel, everything else hashes its name, or its path
// when the name is empty.
func CollectionID(name, filePath string) string {
	if family, ok := FamilyForName(name); ok {
		return family.ID
	}
	if family, ok := FamilyForName(filePath); ok && name == "" {
		return family.ID
	}
	if name != "" {
		return HashHex(name)
	}
	return HashHex(filePath)
}

// StableKey serialises an asset primary key as "<collectionId>:<pathId>".
func StableKey(collectionID string, pathID int64) string {
	return collectionID + ":" + strconv.FormatInt(pathID, 10)
}

// LineageEntry is one step of a bundle lineage.
type LineageEntry struct {
	TypeName string
	Name     string
}

// BundleKey hashes a lineage from the root down to the bundle itself. The
// root (a lineage of at most one entry) always gets RootBundleKey.
func BundleKey(lineage []LineageEntry) string {
	if len(lineage) <= 1 {
		return RootBundleKey
	}
	parts := make([]string, len(lineage))
	for i, e := range lineage {
		parts[i] = e.TypeName + ":" + e.Name
	}
	return HashHex(strings.Join(parts, "|"))
}

// Normalize folds a name or path into lookup-key form: forward slashes,
// trimmed, no trailing slash, ASCII lower case.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	for {
		t := strings.TrimSpace(s)
		for len(t) > 1 && strings.HasSuffix(t, "/") {
			t = strings.TrimSuffix(t, "/")
		}
		if t == s {
			break
		}
		s = t
	}
	return asciiLower(s)
}

// FileName returns the last path element of a normalised path.
func FileName(normalized string) string {
	if normalized == "" {
		return ""
	}
	return path.Base(normalized)
}

// FileStem returns FileName without its extension.
func FileStem(normalized string) string {
	name := FileName(normalized)
	if ext := path.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// asciiLower lower-cases A-Z only so results never depend on locale tables.
func asciiLower(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if b == nil {
				b = []byte(s)
			}
			b[i] = c + ('a' - 'A')
		}
	}
	if b == nil {
		return s
	}
	return string(b)
}
