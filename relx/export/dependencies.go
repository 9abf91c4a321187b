package export

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/guard"
	"github.com/ZanzyTHEbar/relx/relx/resolver"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

// ErrEnumeration marks a failure inside an object's dependency enumeration.
// Such failures are counted and never abort the table.
var ErrEnumeration = errors.New("dependency enumeration failed")

// objectResult is the outcome of exporting one object's dependencies.
type objectResult struct {
	emitted     int64
	duplicates  int64
	skipped     map[resolver.SkipReason]int64
	byStatus    map[resolver.Status]int64
	aborted     guard.AbortReason
	diagnostics int
	// pending holds accepted edges until enumeration has returned.
	pending []*resolver.ResolvedEdge
	// err is an absorbed enumeration failure; fatal stops the table.
	err   error
	fatal error
}

func (r *objectResult) skip(reason resolver.SkipReason) {
	if r.skipped == nil {
		r.skipped = make(map[resolver.SkipReason]int64)
	}
	r.skipped[reason]++
}

func (r *objectResult) count(status resolver.Status) {
	if r.byStatus == nil {
		r.byStatus = make(map[resolver.Status]int64)
	}
	r.byStatus[status]++
}

func (t *tableRun) dependencyFilter() resolver.Filter {
	d := t.cfg.Dependencies
	return resolver.Filter{
		SkipSelfReferences: d.SkipSelfReferences,
		SkipNull:           d.SkipNull,
		Minimal:            d.Minimal,
		SkipBuiltin:        d.SkipBuiltin,
	}
}

func (t *tableRun) guardLimits() guard.Limits {
	g := t.cfg.Guard
	return guard.Limits{
		NullRunLimit:       g.NullRunLimit,
		RepeatLimit:        g.RepeatLimit,
		StallWindow:        g.StallWindow,
		StallMinIterations: g.StallMinIterations,
		StallWarnings:      g.StallWarnings,
	}
}

// sortedObjects returns the objects of c in ascending path id order.
func sortedObjects(c graph.Collection) []graph.Object {
	objs := slices.Clone(c.Objects())
	slices.SortStableFunc(objs, func(a, b graph.Object) int {
		switch {
		case a.PathID() < b.PathID():
			return -1
		case a.PathID() > b.PathID():
			return 1
		}
		return 0
	})
	return objs
}

func exportAssetDependencies(ctx context.Context, t *tableRun) error {
	filter := t.dependencyFilter()
	limits := t.guardLimits()

	for _, owner := range t.owners {
		ownerID := t.index.CollectionID(owner)
		logger := t.logger.With().Str("collection", owner.Name()).Str("collectionId", ownerID).Logger()

		for _, obj := range sortedObjects(owner) {
			if err := ctx.Err(); err != nil {
				return err
			}

			res := t.exportObject(owner, ownerID, obj, filter, limits, logger)
			t.stats.addObject(res)
			if res.emitted > 0 {
				t.stats.markOwner(ownerID, obj.PathID())
			}
			if res.fatal != nil {
				return res.fatal
			}
			if res.err != nil {
				logger.Warn().Err(res.err).Int64("pathId", obj.PathID()).Msg("Skipping rest of object dependencies")
			}
		}
	}
	return nil
}

// exportObject enumerates, resolves, dedups and filters the dependencies of
// one object. Accepted edges are held back until enumeration returns, so an
// object whose enumeration fails or panics contributes no edges. A guard abort
// is not a failure and keeps the edges accepted so far. Only writer failures
// are fatal.
func (t *tableRun) exportObject(owner graph.Collection, ownerID string, obj graph.Object, filter resolver.Filter, limits guard.Limits, logger zerolog.Logger) (res objectResult) {
	key := stableid.StableKey(ownerID, obj.PathID())
	g := guard.New(key, limits, logger)
	seen := make(map[string]struct{})

	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("%w: %s: panic: %v", ErrEnumeration, key, p)
			res.pending = nil
		}
		st := g.Stats()
		res.aborted = st.Aborted
		res.diagnostics = st.Diagnostics
	}()

	err := obj.EnumerateDependencies(func(dep graph.Dependency) bool {
		if g.Observe(dep.Field, dep.Pointer) == guard.Abort {
			return false
		}

		edge := t.resolver.Resolve(owner, obj.PathID(), dep)
		if edge == nil {
			return true
		}
		dk := edge.DedupKey()
		if _, dup := seen[dk]; dup {
			res.duplicates++
			return true
		}
		seen[dk] = struct{}{}

		if skip, reason := resolver.ShouldSkip(edge, filter, t.index); skip {
			res.skip(reason)
			return true
		}

		res.pending = append(res.pending, edge)
		g.Emitted(dep.Field, dep.Pointer)
		return true
	})
	if err != nil {
		res.err = fmt.Errorf("%w: %s: %w", ErrEnumeration, key, err)
		res.pending = nil
		return res
	}

	for _, edge := range res.pending {
		if err := t.writer.Write(edge, key, key); err != nil {
			res.fatal = err
			break
		}
		res.emitted++
		res.count(edge.Status)
	}
	res.pending = nil
	return res
}

// CollectionDependencyRecord is one row of the collection dependency table:
// the collection a dependency slot of From points at.
type CollectionDependencyRecord struct {
	From       string              `json:"from"`
	FileID     int32               `json:"fileId"`
	To         resolver.SlotTarget `json:"to"`
	PathName   string              `json:"pathName,omitempty"`
	AssetPath  string              `json:"assetPath,omitempty"`
	OriginPath string              `json:"originPath,omitempty"`
}

func exportCollectionDependencies(ctx context.Context, t *tableRun) error {
	for _, owner := range t.owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		ownerID := t.index.CollectionID(owner)
		slots := owner.Dependencies()

		// slot 0 is the owner itself
		for i := 1; i < len(slots); i++ {
			target := t.resolver.ResolveSlot(owner, int32(i))
			ident := slots[i].Identifier
			rec := CollectionDependencyRecord{
				From:       ownerID,
				FileID:     int32(i),
				To:         target,
				PathName:   ident.PathName,
				AssetPath:  ident.AssetPath,
				OriginPath: ident.OriginPath,
			}
			if err := t.writer.Write(rec, ownerID, ownerID); err != nil {
				return err
			}
			t.stats.Records++
			if target.Resolved {
				t.stats.ByStatus[resolver.StatusResolved]++
			} else {
				t.stats.ByStatus[resolver.StatusMissing]++
			}
		}
	}
	return nil
}
