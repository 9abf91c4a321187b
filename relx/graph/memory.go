package graph

import (
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// MemCollection is an in-memory Collection. Path-id membership is tracked in
// a roaring bitmap so HasAsset stays cheap for collections with 100K+ objects.
type MemCollection struct {
	name    string
	path    string
	slots   []DependencySlot
	objects map[int64]Object
	members *roaring64.Bitmap
}

// NewCollection creates a collection whose slot 0 refers to itself.
func NewCollection(name, filePath string) *MemCollection {
	c := &MemCollection{
		name:    name,
		path:    filePath,
		objects: make(map[int64]Object),
		members: roaring64.New(),
	}
	c.slots = []DependencySlot{{Collection: c, Identifier: FileIdentifier{PathName: filePath}}}
	return c
}

func (c *MemCollection) Name() string { return c.name }
func (c *MemCollection) FilePath() string { return c.path }

// Dependencies returns the slot list, self first.
func (c *MemCollection) Dependencies() []DependencySlot { return c.slots }

// HasAsset reports whether pathID is an object of this collection.
func (c *MemCollection) HasAsset(pathID int64) bool {
	return c.members.Contains(uint64(pathID))
}

// Objects returns the objects ordered by path id.
func (c *MemCollection) Objects() []Object {
	ids := make([]int64, 0, len(c.objects))
	for id := range c.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Object, len(ids))
	for i, id := range ids {
		out[i] = c.objects[id]
	}
	return out
}

// AssetCount returns the number of objects.
func (c *MemCollection) AssetCount() uint64 {
	return c.members.GetCardinality()
}

// AddObject registers obj, replacing any object with the same path id.
func (c *MemCollection) AddObject(obj Object) {
	c.objects[obj.PathID()] = obj
	c.members.Add(uint64(obj.PathID()))
}

// AddDependency appends a linked slot and returns its file id.
func (c *MemCollection) AddDependency(dep Collection) int32 {
	slot := DependencySlot{Collection: dep}
	if dep != nil {
		slot.Identifier = FileIdentifier{PathName: dep.FilePath()}
	}
	c.slots = append(c.slots, slot)
	return int32(len(c.slots) - 1)
}

// AddUnresolvedDependency appends a slot that only carries an identifier.
func (c *MemCollection) AddUnresolvedDependency(id FileIdentifier) int32 {
	c.slots = append(c.slots, DependencySlot{Identifier: id})
	return int32(len(c.slots) - 1)
}

// MemObject is an in-memory Object. When Generator is set it replaces the
// static Deps list, which lets callers model lazy or failing enumeration.
type MemObject struct {
	ID        int64
	Type      string
	Label     string
	Deps      []Dependency
	Generator func(yield func(Dependency) bool) error
}

func (o *MemObject) PathID() int64 { return o.ID }
func (o *MemObject) TypeName() string { return o.Type }
func (o *MemObject) Name() string { return o.Label }

// EnumerateDependencies implements Object.
func (o *MemObject) EnumerateDependencies(fn func(Dependency) bool) error {
	if o.Generator != nil {
		return o.Generator(fn)
	}
	for _, d := range o.Deps {
		if !fn(d) {
			return nil
		}
	}
	return nil
}

// MemBundle is an in-memory Bundle.
type MemBundle struct {
	name        string
	kind        BundleKind
	children    []Bundle
	collections []Collection
}

// NewBundle creates an empty bundle.
func NewBundle(name string, kind BundleKind) *MemBundle {
	return &MemBundle{name: name, kind: kind}
}

func (b *MemBundle) Name() string { return b.name }
func (b *MemBundle) Kind() BundleKind { return b.kind }
func (b *MemBundle) Children() []Bundle { return b.children }
func (b *MemBundle) Collections() []Collection { return b.collections }

// AddChild appends a nested bundle and returns it for chaining.
func (b *MemBundle) AddChild(child *MemBundle) *MemBundle {
	b.children = append(b.children, child)
	return child
}

// AddCollection appends a collection to the bundle.
func (b *MemBundle) AddCollection(c Collection) {
	b.collections = append(b.collections, c)
}

// MemGraph is an in-memory Source.
type MemGraph struct {
	collections []Collection
	root        Bundle
}

// NewGraph bundles a collection list and an optional root bundle.
func NewGraph(collections []Collection, root Bundle) *MemGraph {
	return &MemGraph{collections: collections, root: root}
}

func (g *MemGraph) Collections() []Collection { return g.collections }
func (g *MemGraph) Root() Bundle { return g.root }
