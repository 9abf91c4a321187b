package export

import (
	"context"

	"github.com/ZanzyTHEbar/relx/relx/resolver"
	"github.com/ZanzyTHEbar/relx/relx/stableid"
)

// CollectionRecord is one row of the collections fact table.
type CollectionRecord struct {
	CollectionID string `json:"collectionId"`
	Name         string `json:"name"`
	Path         string `json:"path,omitempty"`
	Builtin      bool   `json:"builtin,omitempty"`
	Objects      int    `json:"objects"`
	Dependencies int    `json:"dependencies"`
}

// AssetRecord is one row of the assets fact table.
type AssetRecord struct {
	resolver.AssetPrimaryKey
	StableKey string `json:"stableKey"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
}

func exportCollections(ctx context.Context, t *tableRun) error {
	for _, c := range t.owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := t.index.CollectionID(c)
		deps := len(c.Dependencies())
		if deps > 0 {
			deps--
		}
		rec := CollectionRecord{
			CollectionID: id,
			Name:         c.Name(),
			Path:         c.FilePath(),
			Builtin:      stableid.IsBuiltinID(id),
			Objects:      len(c.Objects()),
			Dependencies: deps,
		}
		if err := t.writer.Write(rec, id, id); err != nil {
			return err
		}
		t.stats.Records++
	}
	return nil
}

func exportAssets(ctx context.Context, t *tableRun) error {
	for _, c := range t.owners {
		id := t.index.CollectionID(c)
		for _, obj := range sortedObjects(c) {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := resolver.AssetPrimaryKey{CollectionID: id, PathID: obj.PathID()}
			rec := AssetRecord{
				AssetPrimaryKey: key,
				StableKey:       key.StableKey(),
				Type:            obj.TypeName(),
				Name:            obj.Name(),
			}
			if err := t.writer.Write(rec, rec.StableKey, rec.StableKey); err != nil {
				return err
			}
			t.stats.Records++
			t.stats.Objects++
			t.stats.markOwner(id, obj.PathID())
		}
	}
	return nil
}
