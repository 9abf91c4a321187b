package resolver

import "github.com/ZanzyTHEbar/relx/relx/lookup"

// Filter selects which resolved edges the caller drops before writing.
type Filter struct {
	SkipSelfReferences bool
	SkipNull           bool
	// Minimal keeps only edges that stay inside the owner's collection.
	Minimal     bool
	SkipBuiltin bool
}

// SkipReason names the rule that dropped an edge.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipSelfReference   SkipReason = "self_reference"
	SkipNullReference   SkipReason = "null_reference"
	SkipCrossCollection SkipReason = "cross_collection"
	SkipBuiltinTarget   SkipReason = "builtin_target"
)

// ShouldSkip applies f to e. Built-in targets are recognised by the flag,
// by the target collection name and by the target id independently, since
// any one of them may be missing on a partially resolved edge.
func ShouldSkip(e *ResolvedEdge, f Filter, index *lookup.AliasIndex) (bool, SkipReason) {
	if e == nil {
		return true, SkipNone
	}
	if f.SkipSelfReferences && e.Status == StatusSelfReference {
		return true, SkipSelfReference
	}
	if f.SkipNull && e.Status == StatusNull {
		return true, SkipNullReference
	}
	if f.Minimal && e.From.CollectionID != e.To.CollectionID {
		return true, SkipCrossCollection
	}
	if f.SkipBuiltin {
		if e.TargetBuiltin {
			return true, SkipBuiltinTarget
		}
		if index != nil && e.targetName != "" && index.IsBuiltinAlias(e.targetName) {
			return true, SkipBuiltinTarget
		}
		if index != nil && index.IsBuiltinCollectionID(e.To.CollectionID) {
			return true, SkipBuiltinTarget
		}
	}
	return false, SkipNone
}
