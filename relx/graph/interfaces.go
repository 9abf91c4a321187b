// Package graph defines the object-graph surface the exporter consumes. The
// graph itself is produced upstream; this package only describes it and
// provides an in-memory implementation for snapshots and tests.
package graph

// RawPointer is an unresolved cross-object reference. FileID 0 addresses the
// owning collection, positive ids index its dependency slots and negative ids
// name built-in resources. PathID 0 is an intentional null.
type RawPointer struct {
	FileID int32 `json:"fileId"`
	PathID int64 `json:"pathId"`
}

// IsNull reports the null sentinel (0, 0).
func (p RawPointer) IsNull() bool {
	return p.FileID == 0 && p.PathID == 0
}

// Dependency is one (field path, pointer) pair yielded by an object.
type Dependency struct {
	Field     string
	FieldType string
	Pointer   RawPointer
	Nullable  *bool
}

// FileIdentifier is what a collection recorded about a dependency it could
// not (or did not) link to a loaded collection.
type FileIdentifier struct {
	PathName   string `json:"pathName,omitempty"`
	AssetPath  string `json:"assetPath,omitempty"`
	OriginPath string `json:"originPath,omitempty"`
}

// Candidates returns the non-empty identifier strings in lookup order.
func (f FileIdentifier) Candidates() []string {
	out := make([]string, 0, 3)
	for _, s := range []string{f.PathName, f.OriginPath, f.AssetPath} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String returns the most descriptive identifier available.
func (f FileIdentifier) String() string {
	for _, s := range []string{f.PathName, f.AssetPath, f.OriginPath} {
		if s != "" {
			return s
		}
	}
	return ""
}

// DependencySlot is one entry of a collection's ordered dependency list.
// Collection is nil when the upstream loader could not link the slot.
type DependencySlot struct {
	Collection Collection
	Identifier FileIdentifier
}

// Collection is a named container of objects with ordered dependency slots.
// Slot 0 is the collection itself, so a pointer's FileID indexes the slice
// directly.
type Collection interface {
	Name() string
	FilePath() string
	Dependencies() []DependencySlot
	HasAsset(pathID int64) bool
	Objects() []Object
}

// Object is one asset inside a collection.
type Object interface {
	PathID() int64
	TypeName() string
	Name() string
	// EnumerateDependencies yields the object's pointers lazily until fn
	// returns false. Implementations may fail part way through.
	EnumerateDependencies(fn func(Dependency) bool) error
}

// Bundle is a nested container of collections and other bundles.
type Bundle interface {
	Name() string
	Kind() BundleKind
	Children() []Bundle
	Collections() []Collection
}

// Source is a complete graph handed to an export run.
type Source interface {
	Collections() []Collection
	Root() Bundle
}
