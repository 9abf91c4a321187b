// Package lookup maps raw collection names, paths and file identifiers to
// canonical collection ids.
package lookup

import (
	"sync"

	"github.com/armon/go-radix"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

// CollectionMatch is the result of a successful lookup. Collection is nil for
// built-in families that are known by alias but absent from the run.
type CollectionMatch struct {
	Collection   graph.Collection
	CollectionID string
	IsBuiltin    bool
}

// IndexStats summarises what Build registered.
type IndexStats struct {
	Collections  int
	Keys         int
	BuiltinKeys  int
	DuplicateIDs int
}

// AliasIndex resolves collection names. The radix trees are filled by Build
// and never written again, so concurrent readers need no locking; only the
// id cache for collections outside the build set takes a lock.
type AliasIndex struct {
	keys     *radix.Tree
	builtins *radix.Tree
	ordered  []graph.Collection
	stats    IndexStats
	logger   zerolog.Logger

	cacheMu sync.RWMutex
	ids     map[graph.Collection]string
}

// Build indexes every collection under its normalised path, file name, file
// stem and name. Built-in collections are additionally registered under all
// aliases of their family. The first collection to claim a key keeps it.
func Build(collections []graph.Collection, logger zerolog.Logger) *AliasIndex {
	idx := &AliasIndex{
		keys:     radix.New(),
		builtins: radix.New(),
		ordered:  make([]graph.Collection, 0, len(collections)),
		logger:   logger.With().Str("component", "alias_index").Logger(),
		ids:      make(map[graph.Collection]string, len(collections)),
	}

	seenIDs := make(map[string]graph.Collection, len(collections))
	for _, c := range collections {
		if c == nil {
			continue
		}
		if _, dup := idx.ids[c]; dup {
			continue
		}

		id := stableid.CollectionID(c.Name(), c.FilePath())
		idx.ids[c] = id
		idx.ordered = append(idx.ordered, c)
		if prev, clash := seenIDs[id]; clash && !stableid.IsBuiltinID(id) {
			idx.stats.DuplicateIDs++
			idx.logger.Warn().
				Str("collection_id", id).
				Str("name", c.Name()).
				Str("previous", prev.Name()).
				Msg("Collection id collision")
		} else if !clash {
			seenIDs[id] = c
		}

		family, builtin := stableid.FamilyForID(id)
		match := CollectionMatch{Collection: c, CollectionID: id, IsBuiltin: builtin}

		for _, key := range lookupKeys(c) {
			idx.insert(idx.keys, key, match)
		}
		if builtin {
			for _, alias := range family.Aliases {
				idx.insert(idx.builtins, alias, match)
				idx.insert(idx.keys, alias, match)
			}
			idx.insert(idx.builtins, stableid.Normalize(family.ID), match)
		}
	}

	idx.stats.Collections = len(idx.ordered)
	idx.stats.Keys = idx.keys.Len()
	idx.stats.BuiltinKeys = idx.builtins.Len()

	idx.logger.Debug().
		Int("collections", idx.stats.Collections).
		Int("keys", idx.stats.Keys).
		Int("builtin_keys", idx.stats.BuiltinKeys).
		Msg("Alias index built")

	return idx
}

func (idx *AliasIndex) insert(tree *radix.Tree, key string, match CollectionMatch) {
	if key == "" {
		return
	}
	if _, exists := tree.Get(key); exists {
		return
	}
	tree.Insert(key, match)
}

func lookupKeys(c graph.Collection) []string {
	full := stableid.Normalize(c.FilePath())
	name := stableid.Normalize(c.Name())
	return []string{
		full,
		stableid.FileName(full),
		stableid.FileStem(full),
		name,
		stableid.FileStem(name),
	}
}

// CollectionID returns the cached id of c, computing it on first sight.
func (idx *AliasIndex) CollectionID(c graph.Collection) string {
	if c == nil {
		return stableid.MissingID
	}

	idx.cacheMu.RLock()
	id, ok := idx.ids[c]
	idx.cacheMu.RUnlock()
	if ok {
		return id
	}

	id = stableid.CollectionID(c.Name(), c.FilePath())
	idx.cacheMu.Lock()
	idx.ids[c] = id
	idx.cacheMu.Unlock()
	return id
}

// TryResolve tries the identifier's path name, origin path and asset path in
// that order; the first hit wins.
func (idx *AliasIndex) TryResolve(id graph.FileIdentifier) (CollectionMatch, bool) {
	for _, candidate := range id.Candidates() {
		if m, ok := idx.TryResolveName(candidate); ok {
			return m, true
		}
	}
	return CollectionMatch{}, false
}

// TryResolveName looks a single name or path up, falling back to its file
// name and stem.
func (idx *AliasIndex) TryResolveName(candidate string) (CollectionMatch, bool) {
	n := stableid.Normalize(candidate)
	if n == "" {
		return CollectionMatch{}, false
	}
	for _, key := range []string{n, stableid.FileName(n), stableid.FileStem(n)} {
		if v, ok := idx.keys.Get(key); ok {
			return v.(CollectionMatch), true
		}
	}
	return CollectionMatch{}, false
}

// TryResolveBuiltinByName consults only the built-in alias table.
func (idx *AliasIndex) TryResolveBuiltinByName(name string) (CollectionMatch, bool) {
	n := stableid.Normalize(name)
	if n == "" {
		return CollectionMatch{}, false
	}
	if v, ok := idx.builtins.Get(n); ok {
		return v.(CollectionMatch), true
	}
	if family, ok := stableid.FamilyForName(n); ok {
		if v, ok := idx.builtins.Get(stableid.Normalize(family.ID)); ok {
			return v.(CollectionMatch), true
		}
	}
	return CollectionMatch{}, false
}

// TryResolveBuiltinByFileID maps -1, -2 and -3 to their family and looks the
// family up.
func (idx *AliasIndex) TryResolveBuiltinByFileID(fileID int32) (CollectionMatch, bool) {
	family, ok := stableid.FamilyForFileID(fileID)
	if !ok {
		return CollectionMatch{}, false
	}
	if v, ok := idx.builtins.Get(stableid.Normalize(family.ID)); ok {
		return v.(CollectionMatch), true
	}
	return CollectionMatch{}, false
}

// IsBuiltinAlias reports whether name belongs to a built-in family, whether
// or not that family is present in the run.
func (idx *AliasIndex) IsBuiltinAlias(name string) bool {
	_, ok := stableid.FamilyForName(name)
	return ok
}

// IsBuiltinCollectionID reports whether id is a built-in sentinel.
func (idx *AliasIndex) IsBuiltinCollectionID(id string) bool {
	return stableid.IsBuiltinID(id)
}

// Collections returns the indexed collections in build order.
func (idx *AliasIndex) Collections() []graph.Collection {
	return idx.ordered
}

// Len returns the number of indexed collections.
func (idx *AliasIndex) Len() int {
	return len(idx.ordered)
}

// Stats returns a copy of the build statistics.
func (idx *AliasIndex) Stats() IndexStats {
	return idx.stats
}

// WalkKeys visits registered keys under prefix in lexical order until fn
// returns true.
func (idx *AliasIndex) WalkKeys(prefix string, fn func(key string, m CollectionMatch) bool) {
	idx.keys.WalkPrefix(stableid.Normalize(prefix), func(key string, v interface{}) bool {
		return fn(key, v.(CollectionMatch))
	})
}
