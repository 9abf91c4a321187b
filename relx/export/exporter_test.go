package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal "github.com/ZanzyTHEbar/relx/relx"
	"github.com/ZanzyTHEbar/relx/relx/config"
	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/guard"
	"github.com/ZanzyTHEbar/relx/relx/hierarchy"
	"github.com/ZanzyTHEbar/relx/relx/resolver"
	"github.com/ZanzyTHEbar/relx/relx/shard"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		OutputDir:      t.TempDir(),
		TableVersion:   "v1",
		RunID:          "run-1",
		ParallelTables: 1,
		Shard: config.ShardConfig{
			MaxRecords: 1000,
			Codec:      "none",
			FrameSize:  256,
			Index:      true,
		},
		Guard: config.GuardConfig{
			NullRunLimit:       100_000,
			RepeatLimit:        256,
			StallWindow:        15 * time.Second,
			StallMinIterations: 1000,
			StallWarnings:      5,
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
}

type testGraph struct {
	*graph.MemGraph
	a, b *graph.MemCollection
	idA  string
	idB  string
}

func ptr(field string, fileID int32, pathID int64) graph.Dependency {
	return graph.Dependency{Field: field, Pointer: graph.RawPointer{FileID: fileID, PathID: pathID}}
}

// newTestGraph builds collection A (level0) whose object 1 carries the
// missing internal and external array element references, and collection B
// (sharedassets0.assets) holding path id 7 behind slot 1 of A.
func newTestGraph() *testGraph {
	a := graph.NewCollection("level0", "/data/level0")
	b := graph.NewCollection("sharedassets0.assets", "/data/sharedassets0.assets")
	slotB := a.AddDependency(b)

	a.AddObject(&graph.MemObject{ID: 1, Type: "MeshRenderer", Label: "Renderer", Deps: []graph.Dependency{
		ptr("m_Material", 0, 42),
		ptr("m_Materials[2]", slotB, 7),
	}})
	a.AddObject(&graph.MemObject{ID: 2, Type: "GameObject", Label: "Player", Deps: []graph.Dependency{
		ptr("m_Self", 0, 2),
		ptr("m_Component", 0, 1),
		ptr("m_Prefab", 0, 0),
	}})
	b.AddObject(&graph.MemObject{ID: 7, Type: "Material", Label: "Skin"})

	root := graph.NewBundle("game", graph.KindGame)
	root.AddCollection(a)
	child := root.AddChild(graph.NewBundle("shared", graph.KindSerialized))
	child.AddCollection(b)

	return &testGraph{
		MemGraph: graph.NewGraph([]graph.Collection{a, b}, root),
		a:        a,
		b:        b,
		idA:      stableid.HashHex("level0"),
		idB:      stableid.HashHex("sharedassets0.assets"),
	}
}

func run(t *testing.T, cfg config.Config, src graph.Source, opts ...Option) *Manifest {
	t.Helper()
	e, err := New(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	m, err := e.Run(context.Background(), src)
	require.NoError(t, err)
	return m
}

// readTable decodes every record of an uncompressed table.
func readTable[T any](t *testing.T, cfg config.Config, m *Manifest, name string) []T {
	t.Helper()
	tr := m.Table(name)
	require.NotNil(t, tr, name)

	var out []T
	for _, d := range tr.Shards {
		f, err := os.Open(filepath.Join(cfg.OutputDir, filepath.FromSlash(d.Path)))
		require.NoError(t, err)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var rec T
			require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
			out = append(out, rec)
		}
		require.NoError(t, sc.Err())
		require.NoError(t, f.Close())
	}
	return out
}

func findEdge(edges []resolver.ResolvedEdge, field string) *resolver.ResolvedEdge {
	for i := range edges {
		if edges[i].Edge.Field == field {
			return &edges[i]
		}
	}
	return nil
}

func TestRunEndToEndScenarios(t *testing.T) {
	cfg := testConfig(t)
	g := newTestGraph()
	m := run(t, cfg, g)

	edges := readTable[resolver.ResolvedEdge](t, cfg, m, TableAssetDependencies)

	missing := findEdge(edges, "m_Material")
	require.NotNil(t, missing)
	assert.Equal(t, resolver.AssetPrimaryKey{CollectionID: g.idA, PathID: 1}, missing.From)
	assert.Equal(t, resolver.AssetPrimaryKey{CollectionID: g.idA, PathID: 42}, missing.To)
	assert.Equal(t, resolver.StatusMissing, missing.Status)
	assert.Equal(t, resolver.KindInternal, missing.Edge.Kind)

	external := findEdge(edges, "m_Materials[2]")
	require.NotNil(t, external)
	assert.Equal(t, resolver.AssetPrimaryKey{CollectionID: g.idB, PathID: 7}, external.To)
	assert.Equal(t, resolver.StatusExternal, external.Status)
	assert.Equal(t, resolver.KindArrayElement, external.Edge.Kind)
	require.NotNil(t, external.Edge.ArrayIndex)
	assert.Equal(t, 2, *external.Edge.ArrayIndex)

	self := findEdge(edges, "m_Self")
	require.NotNil(t, self)
	assert.Equal(t, resolver.StatusSelfReference, self.Status)

	null := findEdge(edges, "m_Prefab")
	require.NotNil(t, null)
	assert.Equal(t, resolver.StatusNull, null.Status)

	// owners are visited in input order, objects by ascending path id
	require.Len(t, edges, 5)
	assert.Equal(t, int64(1), edges[0].From.PathID)
	assert.Equal(t, int64(2), edges[4].From.PathID)

	stats := m.Table(TableAssetDependencies).Stats
	assert.Equal(t, int64(5), stats.Records)
	assert.Equal(t, int64(3), stats.Objects)
	assert.Equal(t, uint64(2), stats.Owners)
	assert.Equal(t, int64(1), stats.ByStatus[resolver.StatusExternal])

	ownersA := stats.OwnerBitmap(g.idA)
	require.NotNil(t, ownersA)
	assert.Equal(t, []uint64{1, 2}, ownersA.ToArray())
	assert.Nil(t, stats.OwnerBitmap(g.idB))
}

func TestRunFactsAndRelations(t *testing.T) {
	cfg := testConfig(t)
	g := newTestGraph()
	m := run(t, cfg, g)

	collections := readTable[CollectionRecord](t, cfg, m, TableCollections)
	require.Len(t, collections, 2)
	assert.Equal(t, CollectionRecord{CollectionID: g.idA, Name: "level0", Path: "/data/level0", Objects: 2, Dependencies: 1}, collections[0])
	assert.Equal(t, g.idB, collections[1].CollectionID)

	assets := readTable[AssetRecord](t, cfg, m, TableAssets)
	require.Len(t, assets, 3)
	assert.Equal(t, g.idA+":1", assets[0].StableKey)
	assert.Equal(t, "MeshRenderer", assets[0].Type)
	assert.Equal(t, g.idB+":7", assets[2].StableKey)

	deps := readTable[CollectionDependencyRecord](t, cfg, m, TableCollectionDependencies)
	require.Len(t, deps, 1)
	assert.Equal(t, g.idA, deps[0].From)
	assert.Equal(t, int32(1), deps[0].FileID)
	assert.Equal(t, g.idB, deps[0].To.CollectionID)
	assert.True(t, deps[0].To.Resolved)

	hier := readTable[hierarchy.Edge](t, cfg, m, TableBundleHierarchy)
	require.Len(t, hier, 1)
	assert.Equal(t, stableid.RootBundleKey, hier[0].ParentKey)
	assert.Equal(t, stableid.BundleKey([]stableid.LineageEntry{
		{TypeName: "GameBundle", Name: "game"},
		{TypeName: "SerializedBundle", Name: "shared"},
	}), hier[0].ChildKey)

	contains := readTable[hierarchy.CollectionEdge](t, cfg, m, TableBundleCollections)
	require.Len(t, contains, 2)
	assert.Equal(t, g.idA, contains[0].CollectionID)
	assert.Equal(t, stableid.RootBundleKey, contains[0].BundleKey)
	assert.Equal(t, hier[0].ChildKey, contains[1].BundleKey)
}

func TestRunManifest(t *testing.T) {
	cfg := testConfig(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := run(t, cfg, newTestGraph(), WithClock(func() time.Time { return fixed }))

	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, fixed, m.CreatedAt)
	assert.Equal(t, "v1", m.TableVersion)
	assert.Equal(t, 2, m.Collections)
	require.Len(t, m.Tables, len(TableNames()))

	loaded, err := LoadManifest(filepath.Join(cfg.OutputDir, internal.DefaultManifestName))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, loaded.RunID)
	assert.Equal(t, m.Tables[0].Shards, loaded.Tables[0].Shards)

	deps := m.Table(TableAssetDependencies)
	assert.Equal(t, KindRelations, deps.Kind)
	assert.Equal(t, "relations/asset_dependencies/v1", deps.Dir)
	assert.Equal(t, "relations/asset_dependencies/v1/index.ndjson", deps.Index)
	require.Len(t, deps.Shards, 1)
	assert.Equal(t, "relations/asset_dependencies/v1/part-00000.ndjson", deps.Shards[0].Path)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "facts", "assets", "v1", "index.ndjson"))
}

func TestRunGeneratesRunID(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunID = ""
	m := run(t, cfg, newTestGraph())

	_, err := uuid.Parse(m.RunID)
	assert.NoError(t, err)
}

func tableBytes(t *testing.T, cfg config.Config, m *Manifest) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, tr := range m.Tables {
		for _, d := range tr.Shards {
			data, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(d.Path)))
			require.NoError(t, err)
			out[d.Path] = data
		}
	}
	return out
}

func TestRunDeterminism(t *testing.T) {
	cfgA := testConfig(t)
	cfgB := testConfig(t)
	cfgB.ParallelTables = 4

	a := tableBytes(t, cfgA, run(t, cfgA, newTestGraph()))
	b := tableBytes(t, cfgB, run(t, cfgB, newTestGraph()))
	assert.Equal(t, a, b)
}

func TestRunFilters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dependencies = config.DependencyConfig{SkipSelfReferences: true, SkipNull: true, Minimal: true}
	m := run(t, cfg, newTestGraph())

	edges := readTable[resolver.ResolvedEdge](t, cfg, m, TableAssetDependencies)
	fields := make([]string, 0, len(edges))
	for _, e := range edges {
		fields = append(fields, e.Edge.Field)
	}
	assert.Equal(t, []string{"m_Material", "m_Component"}, fields)

	stats := m.Table(TableAssetDependencies).Stats
	assert.Equal(t, int64(1), stats.Skipped[resolver.SkipSelfReference])
	assert.Equal(t, int64(1), stats.Skipped[resolver.SkipNullReference])
	assert.Equal(t, int64(1), stats.Skipped[resolver.SkipCrossCollection])
	assert.Equal(t, int64(3), stats.SkippedTotal())
}

func TestRunExcludedCollections(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExcludeCollections = []string{"sharedassets*"}
	g := newTestGraph()
	m := run(t, cfg, g)

	assert.Equal(t, []string{g.idB}, m.Excluded)
	assert.Equal(t, 1, m.Collections)
	assert.Len(t, readTable[CollectionRecord](t, cfg, m, TableCollections), 1)

	// excluded collections stay resolvable as targets
	edges := readTable[resolver.ResolvedEdge](t, cfg, m, TableAssetDependencies)
	external := findEdge(edges, "m_Materials[2]")
	require.NotNil(t, external)
	assert.Equal(t, resolver.StatusExternal, external.Status)
	assert.Equal(t, g.idB, external.To.CollectionID)
}

func TestRunAbsorbsObjectFailures(t *testing.T) {
	cfg := testConfig(t)
	c := graph.NewCollection("level1", "/data/level1")
	c.AddObject(&graph.MemObject{ID: 1, Generator: func(yield func(graph.Dependency) bool) error {
		yield(ptr("m_A", 0, 1))
		return errors.New("truncated stream")
	}})
	c.AddObject(&graph.MemObject{ID: 2, Generator: func(yield func(graph.Dependency) bool) error {
		yield(ptr("m_B", 0, 3))
		panic("corrupt object")
	}})
	c.AddObject(&graph.MemObject{ID: 3, Deps: []graph.Dependency{ptr("m_C", 0, 1)}})

	m := run(t, cfg, graph.NewGraph([]graph.Collection{c}, nil))

	stats := m.Table(TableAssetDependencies).Stats
	assert.Equal(t, int64(2), stats.FailedObjects)
	assert.Equal(t, int64(3), stats.Objects)
	// failed objects contribute no edges, not even the ones yielded first
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, uint64(1), stats.Owners)

	edges := readTable[resolver.ResolvedEdge](t, cfg, m, TableAssetDependencies)
	require.Len(t, edges, 1)
	assert.Equal(t, "m_C", edges[0].Edge.Field)
	assert.Equal(t, int64(3), edges[0].From.PathID)
	assert.Nil(t, findEdge(edges, "m_A"))
	assert.Nil(t, findEdge(edges, "m_B"))

	assert.Empty(t, m.Table(TableBundleHierarchy).Shards)
}

func TestRunCycleSafety(t *testing.T) {
	cfg := testConfig(t)
	c := graph.NewCollection("loop", "/data/loop")
	c.AddObject(&graph.MemObject{ID: 5})
	c.AddObject(&graph.MemObject{ID: 1, Generator: func(yield func(graph.Dependency) bool) error {
		for i := 0; i < 1000; i++ {
			if !yield(ptr("m_Next", 0, 5)) {
				return nil
			}
		}
		return nil
	}})

	m := run(t, cfg, graph.NewGraph([]graph.Collection{c}, nil))

	stats := m.Table(TableAssetDependencies).Stats
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, int64(1), stats.AbortedObjects)
	assert.Equal(t, int64(1), stats.Aborts[guard.AbortRepetition])
	assert.LessOrEqual(t, stats.Diagnostics, int64(1))
	assert.Zero(t, stats.FailedObjects)
}

func TestRunTableFailure(t *testing.T) {
	cfg := testConfig(t)
	// a regular file where the relations tree should go
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "relations"), []byte("x"), 0o644))

	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	m, err := e.Run(context.Background(), newTestGraph())
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Contains(t, err.Error(), "table "+TableAssetDependencies)

	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, internal.DefaultManifestName))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "facts", "collections", "v1", "part-00000.ndjson"))
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, newTestGraph())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSeekableIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Shard.Codec = "zstd-seekable"
	cfg.Shard.FrameSize = 64
	cfg.Shard.MaxRecords = 2
	g := newTestGraph()
	m := run(t, cfg, g, WithTables(TableAssets, TableAssetDependencies))
	require.Len(t, m.Tables, 2)

	assets := m.Table(TableAssets)
	assert.Equal(t, shard.CodecZstdSeekable, assets.Codec)
	assert.Len(t, assets.Shards, 2)

	entries, err := shard.LoadIndex(filepath.Join(cfg.OutputDir, filepath.FromSlash(assets.Index)))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	raw, err := shard.ReadRecord(entries[2], shard.CodecZstdSeekable)
	require.NoError(t, err)
	var rec AssetRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, g.idB+":7", rec.StableKey)
	assert.Equal(t, "Skin", rec.Name)
}

func TestNewRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, zerolog.Nop(), WithTables("nope"))
	assert.ErrorIs(t, err, ErrUnknownTable)

	cfg.Shard.Codec = "lz4"
	_, err = New(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
