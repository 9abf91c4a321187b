package export

import (
	"context"

	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/hierarchy"
)

func exportBundleHierarchy(ctx context.Context, t *tableRun) error {
	if t.root == nil {
		return nil
	}
	w := hierarchy.NewWalker(t.logger)
	err := w.Walk(ctx, t.root, func(e hierarchy.Edge) error {
		if err := t.writer.Write(e, e.ChildKey, e.ParentKey); err != nil {
			return err
		}
		t.stats.Records++
		return nil
	})
	t.stats.Diagnostics += w.Metrics().Truncated
	return err
}

func exportBundleCollections(ctx context.Context, t *tableRun) error {
	if t.root == nil {
		return nil
	}
	w := hierarchy.NewWalker(t.logger)
	id := func(c graph.Collection) string { return t.index.CollectionID(c) }
	err := w.WalkCollections(ctx, t.root, id, func(e hierarchy.CollectionEdge) error {
		if err := t.writer.Write(e, e.BundleKey, e.BundleKey); err != nil {
			return err
		}
		t.stats.Records++
		return nil
	})
	t.stats.Diagnostics += w.Metrics().Truncated
	return err
}
