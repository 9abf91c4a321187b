// Package resolver turns raw object pointers into fully qualified, classified
// edges.
package resolver

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/lookup"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

// ReferenceResolver resolves pointers against a shared, read-only AliasIndex.
// It holds no per-call state and may be shared between tables.
type ReferenceResolver struct {
	index  *lookup.AliasIndex
	logger zerolog.Logger
}

// New creates a resolver over index.
func New(index *lookup.AliasIndex, logger zerolog.Logger) *ReferenceResolver {
	return &ReferenceResolver{
		index:  index,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

type target struct {
	collection graph.Collection
	id         string
	name       string
	resolved   bool
	builtin    bool
	notes      string
}

// Resolve classifies one pointer of the object ownerID in owner. It always
// returns an edge today; nil is reserved for pointers callers should drop
// outright.
func (r *ReferenceResolver) Resolve(owner graph.Collection, ownerID int64, dep graph.Dependency) *ResolvedEdge {
	ptr := dep.Pointer
	ownerKey := r.index.CollectionID(owner)

	var t target
	switch {
	case ptr.FileID == 0:
		t = target{collection: owner, id: ownerKey, name: owner.Name(), resolved: true, builtin: stableid.IsBuiltinID(ownerKey)}
	case ptr.FileID > 0:
		t = r.resolveSlot(owner, ptr.FileID)
	default:
		t = r.resolveBuiltin(ptr.FileID)
	}

	assetResolved := t.resolved && t.collection != nil && t.collection.HasAsset(ptr.PathID)
	sameCollection := t.resolved && t.id == ownerKey

	edge := &ResolvedEdge{
		From: AssetPrimaryKey{CollectionID: ownerKey, PathID: ownerID},
		To:   AssetPrimaryKey{CollectionID: t.id, PathID: ptr.PathID},
		Edge: DependencyEdge{
			Kind:       DetermineKind(dep.Field, ptr.FileID),
			Field:      dep.Field,
			FieldType:  dep.FieldType,
			FileID:     ptr.FileID,
			IsNullable: dep.Nullable,
		},
		Notes:         t.notes,
		TargetBuiltin: t.builtin,
		targetName:    t.name,
	}
	if i, ok := ExtractArrayIndex(dep.Field); ok {
		edge.Edge.ArrayIndex = &i
	}

	switch {
	case ptr.PathID == 0:
		edge.Status = StatusNull
	case sameCollection && ptr.PathID == ownerID:
		edge.Status = StatusSelfReference
	case ptr.FileID > 0 && !t.resolved:
		edge.Status = StatusInvalidFileID
	case !t.resolved:
		edge.Status = StatusMissing
	case !assetResolved && sameCollection:
		edge.Status = StatusMissing
		if edge.Notes == "" {
			edge.Notes = "path id not present in collection"
		}
	case !assetResolved:
		edge.Status = StatusExternal
		if edge.Notes == "" {
			edge.Notes = "path id not present in target collection"
		}
	case sameCollection:
		edge.Status = StatusResolved
	default:
		edge.Status = StatusExternal
	}

	if r.logger.GetLevel() <= zerolog.TraceLevel {
		r.logger.Trace().
			Str("from", edge.From.StableKey()).
			Str("to", edge.To.StableKey()).
			Str("field", dep.Field).
			Str("status", string(edge.Status)).
			Msg("Pointer resolved")
	}

	return edge
}

// resolveSlot follows a positive file id through the owner's dependency
// slots, then the alias index, then the built-in tables.
func (r *ReferenceResolver) resolveSlot(owner graph.Collection, fileID int32) target {
	slots := owner.Dependencies()
	i := int(fileID)

	var ident graph.FileIdentifier
	if i < len(slots) {
		if c := slots[i].Collection; c != nil {
			id := r.index.CollectionID(c)
			return target{collection: c, id: id, name: c.Name(), resolved: true, builtin: stableid.IsBuiltinID(id)}
		}
		ident = slots[i].Identifier
	}

	if m, ok := r.index.TryResolve(ident); ok {
		return matchTarget(m, fmt.Sprintf("dependency slot %d resolved via alias", i))
	}

	candidates := ident.Candidates()
	for _, name := range candidates {
		if m, ok := r.index.TryResolveBuiltinByName(name); ok {
			return matchTarget(m, fmt.Sprintf("dependency slot %d resolved via built-in alias", i))
		}
	}
	for _, name := range candidates {
		if family, ok := stableid.FamilyForName(name); ok {
			return target{id: family.ID, name: name, builtin: true, notes: "built-in resource not present in bundle"}
		}
	}

	return target{
		id:    stableid.MissingID,
		name:  ident.String(),
		notes: fmt.Sprintf("dependency slot unresolved (max index %d)", len(slots)-1),
	}
}

func (r *ReferenceResolver) resolveBuiltin(fileID int32) target {
	if m, ok := r.index.TryResolveBuiltinByFileID(fileID); ok {
		return matchTarget(m, "")
	}
	if family, ok := stableid.FamilyForFileID(fileID); ok {
		return target{id: family.ID, name: family.Aliases[0], builtin: true, notes: "built-in resource not present in bundle"}
	}
	return target{id: stableid.MissingID, notes: fmt.Sprintf("unknown built-in file id %d", fileID)}
}

func matchTarget(m lookup.CollectionMatch, notes string) target {
	t := target{collection: m.Collection, id: m.CollectionID, resolved: m.Collection != nil, builtin: m.IsBuiltin, notes: notes}
	if m.Collection != nil {
		t.name = m.Collection.Name()
	}
	return t
}

// SlotTarget is the collection a file id points at, independent of any path id.
type SlotTarget struct {
	CollectionID string `json:"collectionId"`
	Name         string `json:"name,omitempty"`
	Resolved     bool   `json:"resolved"`
	Builtin      bool   `json:"builtin,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ResolveSlot resolves the collection behind fileID with the same fallbacks
// Resolve uses for pointers.
func (r *ReferenceResolver) ResolveSlot(owner graph.Collection, fileID int32) SlotTarget {
	var t target
	switch {
	case fileID == 0:
		id := r.index.CollectionID(owner)
		t = target{collection: owner, id: id, name: owner.Name(), resolved: true, builtin: stableid.IsBuiltinID(id)}
	case fileID > 0:
		t = r.resolveSlot(owner, fileID)
	default:
		t = r.resolveBuiltin(fileID)
	}
	return SlotTarget{CollectionID: t.id, Name: t.name, Resolved: t.resolved, Builtin: t.builtin, Notes: t.notes}
}
