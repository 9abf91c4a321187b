package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidSnapshot marks a snapshot document that cannot be turned into a graph.
var ErrInvalidSnapshot = errors.New("invalid graph snapshot")

// SnapshotDocument is the JSON form of a graph, used by the CLI to feed an
// export run from a file produced by the upstream parser.
type SnapshotDocument struct {
	Collections []SnapshotCollection `json:"collections"`
	Bundle      *SnapshotBundle      `json:"bundle,omitempty"`
}

// SnapshotCollection describes one collection. Dependencies start at slot 1;
// slot 0 is always the collection itself.
type SnapshotCollection struct {
	Name         string               `json:"name"`
	Path         string               `json:"path"`
	Dependencies []SnapshotDependency `json:"dependencies,omitempty"`
	Objects      []SnapshotObject     `json:"objects,omitempty"`
}

// SnapshotDependency links a slot to a collection by name or path; when the
// link is absent only the recorded identifier survives.
type SnapshotDependency struct {
	Collection string `json:"collection,omitempty"`
	FileIdentifier
}

type SnapshotObject struct {
	PathID int64         `json:"pathId"`
	Type   string        `json:"type,omitempty"`
	Name   string        `json:"name,omitempty"`
	Refs   []SnapshotRef `json:"refs,omitempty"`
}

type SnapshotRef struct {
	Field     string `json:"field"`
	FieldType string `json:"fieldType,omitempty"`
	FileID    int32  `json:"fileId"`
	PathID    int64  `json:"pathId"`
	Nullable  *bool  `json:"nullable,omitempty"`
}

type SnapshotBundle struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Collections []string         `json:"collections,omitempty"`
	Children    []SnapshotBundle `json:"children,omitempty"`
}

// LoadSnapshot reads a snapshot file and builds the in-memory graph.
func LoadSnapshot(path string) (*MemGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, path, err)
	}
	return doc.Build()
}

// Build links the document into a MemGraph.
func (doc *SnapshotDocument) Build() (*MemGraph, error) {
	byKey := make(map[string]*MemCollection, len(doc.Collections)*2)
	collections := make([]Collection, 0, len(doc.Collections))
	built := make([]*MemCollection, 0, len(doc.Collections))

	for i, sc := range doc.Collections {
		if sc.Name == "" && sc.Path == "" {
			return nil, fmt.Errorf("%w: collection %d has neither name nor path", ErrInvalidSnapshot, i)
		}
		c := NewCollection(sc.Name, sc.Path)
		for _, so := range sc.Objects {
			c.AddObject(so.object())
		}
		for _, key := range []string{sc.Name, sc.Path} {
			if key == "" {
				continue
			}
			if _, dup := byKey[key]; !dup {
				byKey[key] = c
			}
		}
		collections = append(collections, c)
		built = append(built, c)
	}

	for i, sc := range doc.Collections {
		for _, dep := range sc.Dependencies {
			if dep.Collection != "" {
				target, ok := byKey[dep.Collection]
				if !ok {
					return nil, fmt.Errorf("%w: collection %q depends on unknown collection %q", ErrInvalidSnapshot, sc.Name, dep.Collection)
				}
				built[i].AddDependency(target)
				continue
			}
			built[i].AddUnresolvedDependency(dep.FileIdentifier)
		}
	}

	var root Bundle
	if doc.Bundle != nil {
		b, err := doc.Bundle.build(byKey)
		if err != nil {
			return nil, err
		}
		root = b
	}

	return NewGraph(collections, root), nil
}

func (so SnapshotObject) object() *MemObject {
	obj := &MemObject{ID: so.PathID, Type: so.Type, Label: so.Name}
	for _, r := range so.Refs {
		obj.Deps = append(obj.Deps, Dependency{
			Field:     r.Field,
			FieldType: r.FieldType,
			Pointer:   RawPointer{FileID: r.FileID, PathID: r.PathID},
			Nullable:  r.Nullable,
		})
	}
	return obj
}

func (sb SnapshotBundle) build(byKey map[string]*MemCollection) (*MemBundle, error) {
	b := NewBundle(sb.Name, ParseBundleKind(sb.Type))
	for _, name := range sb.Collections {
		c, ok := byKey[name]
		if !ok {
			return nil, fmt.Errorf("%w: bundle %q lists unknown collection %q", ErrInvalidSnapshot, sb.Name, name)
		}
		b.AddCollection(c)
	}
	for _, child := range sb.Children {
		cb, err := child.build(byKey)
		if err != nil {
			return nil, err
		}
		b.AddChild(cb)
	}
	return b, nil
}
