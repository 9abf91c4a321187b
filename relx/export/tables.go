package export

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/config"
	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/lookup"
	"github.com/ZanzyTHEbar/relx/relx/resolver"
	"github.com/ZanzyTHEbar/relx/relx/shard"
)

// TableKind groups tables on disk.
type TableKind string

const (
	KindFacts     TableKind = "facts"
	KindRelations TableKind = "relations"
)

// Table names, in the order a run exports them.
const (
	TableCollections            = "collections"
	TableAssets                 = "assets"
	TableAssetDependencies      = "asset_dependencies"
	TableCollectionDependencies = "collection_dependencies"
	TableBundleHierarchy        = "bundle_hierarchy"
	TableBundleCollections      = "bundle_collections"
)

// TableDir returns <out>/<kind>/<table>/<version>.
func TableDir(out string, kind TableKind, table, version string) string {
	return filepath.Join(out, string(kind), table, version)
}

// runContext is shared read-only by every table of one run.
type runContext struct {
	owners   []graph.Collection
	root     graph.Bundle
	index    *lookup.AliasIndex
	resolver *resolver.ReferenceResolver
}

// tableRun is the state of one table export. It is owned by a single
// goroutine.
type tableRun struct {
	*runContext
	name   string
	cfg    *config.Config
	writer *shard.Writer
	stats  *TableStats
	logger zerolog.Logger
}

// tableFunc fills one table and records what it did in t.stats.
type tableFunc func(ctx context.Context, t *tableRun) error

type tableDef struct {
	name string
	kind TableKind
	run  tableFunc
}

func allTables() []tableDef {
	return []tableDef{
		{TableCollections, KindFacts, exportCollections},
		{TableAssets, KindFacts, exportAssets},
		{TableAssetDependencies, KindRelations, exportAssetDependencies},
		{TableCollectionDependencies, KindRelations, exportCollectionDependencies},
		{TableBundleHierarchy, KindRelations, exportBundleHierarchy},
		{TableBundleCollections, KindRelations, exportBundleCollections},
	}
}

// TableNames lists every table a run can export.
func TableNames() []string {
	defs := allTables()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.name
	}
	return names
}
