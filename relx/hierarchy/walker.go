// Package hierarchy walks nested bundles and emits parent/child edges keyed
// by bundle lineage.
package hierarchy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/relx/relx/graph"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

// DefaultMaxDepth bounds recursion on malformed, deeply nested bundles.
const DefaultMaxDepth = 256

// Edge is one parent/child bundle relation.
type Edge struct {
	ParentKey  string `json:"parentKey"`
	ChildKey   string `json:"childKey"`
	ChildIndex int    `json:"childIndex"`
	ChildName  string `json:"childName"`
	ChildType  string `json:"childType"`
	Depth      int    `json:"depth"`
}

// CollectionEdge records that a bundle directly contains a collection.
type CollectionEdge struct {
	BundleKey      string `json:"bundleKey"`
	BundleName     string `json:"bundleName"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	Index          int    `json:"index"`
	Depth          int    `json:"depth"`
}

// WalkMetrics summarises the last walk.
type WalkMetrics struct {
	TotalNodes     int64
	MaxDepth       int
	// Truncated counts bundles whose children were skipped, either past the
	// depth limit or because a child is already on its own lineage.
	Truncated      int64
	ProcessingTime time.Duration
}

// Walker performs depth-first pre-order traversals. A Walker is reusable but
// not safe for concurrent walks.
type Walker struct {
	maxDepth int
	logger   zerolog.Logger
	metrics  WalkMetrics
	// ancestors holds the bundles on the current lineage, root first.
	ancestors []graph.Bundle
}

// WalkerOption customises a Walker.
type WalkerOption func(*Walker)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) WalkerOption {
	return func(w *Walker) {
		w.maxDepth = depth
	}
}

// NewWalker creates a Walker.
func NewWalker(logger zerolog.Logger, opts ...WalkerOption) *Walker {
	w := &Walker{
		maxDepth: DefaultMaxDepth,
		logger:   logger.With().Str("component", "hierarchy").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// visit is called for every bundle, root first, with its key, lineage depth
// and position among its siblings.
type visit func(b graph.Bundle, key string, parentKey string, index int, depth int) error

// Walk emits one Edge per non-root bundle. The root has depth 0 and key
// stableid.RootBundleKey; every other key hashes the full lineage.
func (w *Walker) Walk(ctx context.Context, root graph.Bundle, emit func(Edge) error) error {
	return w.traverse(ctx, root, func(b graph.Bundle, key, parentKey string, index, depth int) error {
		if depth == 0 {
			return nil
		}
		return emit(Edge{
			ParentKey:  parentKey,
			ChildKey:   key,
			ChildIndex: index,
			ChildName:  b.Name(),
			ChildType:  b.Kind().String(),
			Depth:      depth,
		})
	})
}

// WalkCollections emits the collections held directly by every bundle.
func (w *Walker) WalkCollections(ctx context.Context, root graph.Bundle, collectionID func(graph.Collection) string, emit func(CollectionEdge) error) error {
	return w.traverse(ctx, root, func(b graph.Bundle, key, _ string, _ int, depth int) error {
		for i, c := range b.Collections() {
			if c == nil {
				continue
			}
			if err := emit(CollectionEdge{
				BundleKey:      key,
				BundleName:     b.Name(),
				CollectionID:   collectionID(c),
				CollectionName: c.Name(),
				Index:          i,
				Depth:          depth,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Metrics returns the metrics of the most recent walk.
func (w *Walker) Metrics() WalkMetrics {
	return w.metrics
}

func (w *Walker) traverse(ctx context.Context, root graph.Bundle, fn visit) error {
	w.metrics = WalkMetrics{}
	w.ancestors = w.ancestors[:0]
	if root == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		w.metrics.ProcessingTime = time.Since(start)
	}()

	lineage := []stableid.LineageEntry{{TypeName: root.Kind().String(), Name: root.Name()}}
	if err := fn(root, stableid.RootBundleKey, "", 0, 0); err != nil {
		return err
	}
	w.metrics.TotalNodes++

	w.ancestors = append(w.ancestors, root)
	return w.walkNode(ctx, root, stableid.RootBundleKey, lineage, 0, fn)
}

func (w *Walker) onLineage(b graph.Bundle) bool {
	for _, a := range w.ancestors {
		if a == b {
			return true
		}
	}
	return false
}

func (w *Walker) walkNode(ctx context.Context, node graph.Bundle, key string, lineage []stableid.LineageEntry, depth int, fn visit) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if depth >= w.maxDepth {
		if len(node.Children()) > 0 {
			w.metrics.Truncated++
			w.logger.Warn().
				Str("bundle", node.Name()).
				Str("key", key).
				Int("depth", depth).
				Msg("Bundle nesting exceeds maximum depth, skipping children")
		}
		return nil
	}

	for i, child := range node.Children() {
		if child == nil {
			continue
		}
		if w.onLineage(child) {
			w.metrics.Truncated++
			w.logger.Warn().
				Str("bundle", node.Name()).
				Str("child", child.Name()).
				Int("childIndex", i).
				Msg("Bundle contains one of its own ancestors, skipping child")
			continue
		}
		lineage = append(lineage, stableid.LineageEntry{TypeName: child.Kind().String(), Name: child.Name()})
		childKey := stableid.BundleKey(lineage)

		w.metrics.TotalNodes++
		w.metrics.MaxDepth = max(w.metrics.MaxDepth, depth+1)

		if err := fn(child, childKey, key, i, depth+1); err != nil {
			return err
		}
		w.ancestors = append(w.ancestors, child)
		if err := w.walkNode(ctx, child, childKey, lineage, depth+1, fn); err != nil {
			return err
		}
		w.ancestors = w.ancestors[:len(w.ancestors)-1]
		lineage = lineage[:len(lineage)-1]
	}
	return nil
}
