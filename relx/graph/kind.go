package graph

import "strings"

// BundleKind enumerates the container kinds the exporter knows about. The
// upstream boundary assigns it; KindUnknown covers everything else.
type BundleKind int

const (
	KindUnknown BundleKind = iota
	KindGame
	KindSerialized
	KindProcessed
	KindWeb
	KindResource
)

var kindNames = map[BundleKind]string{
	KindUnknown:    "Unknown",
	KindGame:       "GameBundle",
	KindSerialized: "SerializedBundle",
	KindProcessed:  "ProcessedBundle",
	KindWeb:        "WebBundle",
	KindResource:   "ResourceFile",
}

// String returns the type name used in bundle lineage keys.
func (k BundleKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// ParseBundleKind accepts the type names produced by String, case-insensitive.
func ParseBundleKind(s string) BundleKind {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k
		}
	}
	return KindUnknown
}
