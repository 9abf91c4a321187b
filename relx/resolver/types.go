package resolver

import "github.com/ZanzyTHEbar/relx/relx/stableid"

// Status classifies how far a pointer could be followed.
type Status string

const (
	StatusNull          Status = "Null"
	StatusSelfReference Status = "SelfReference"
	StatusInvalidFileID Status = "InvalidFileID"
	StatusMissing       Status = "Missing"
	StatusResolved      Status = "Resolved"
	StatusExternal      Status = "External"
)

// EdgeKind classifies the shape of the field a pointer was found in.
type EdgeKind string

const (
	KindInternal        EdgeKind = "internal"
	KindExternal        EdgeKind = "external"
	KindPPtr            EdgeKind = "pptr"
	KindArrayElement    EdgeKind = "array_element"
	KindDictionaryKey   EdgeKind = "dictionary_key"
	KindDictionaryValue EdgeKind = "dictionary_value"
)

// AssetPrimaryKey identifies one object within one collection.
type AssetPrimaryKey struct {
	CollectionID string `json:"collectionId"`
	PathID       int64  `json:"pathId"`
}

// StableKey renders the key as "<collectionId>:<pathId>".
func (k AssetPrimaryKey) StableKey() string {
	return stableid.StableKey(k.CollectionID, k.PathID)
}

// DependencyEdge describes the field side of a reference.
type DependencyEdge struct {
	Kind       EdgeKind `json:"kind"`
	Field      string   `json:"field,omitempty"`
	FieldType  string   `json:"fieldType,omitempty"`
	FileID     int32    `json:"fileId"`
	ArrayIndex *int     `json:"arrayIndex,omitempty"`
	IsNullable *bool    `json:"isNullable,omitempty"`
}

// ResolvedEdge is one fully classified reference, written once to the
// asset dependency table.
type ResolvedEdge struct {
	From          AssetPrimaryKey `json:"from"`
	To            AssetPrimaryKey `json:"to"`
	Edge          DependencyEdge  `json:"edge"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	TargetBuiltin bool            `json:"targetBuiltin,omitempty"`

	targetName string
}

// TargetName is the name of the target collection when one was found or
// recorded; it is not serialised.
func (e *ResolvedEdge) TargetName() string {
	return e.targetName
}

// DedupKey identifies an edge within its owning object.
func (e *ResolvedEdge) DedupKey() string {
	return e.Edge.Field + "\x00" + e.To.StableKey()
}
