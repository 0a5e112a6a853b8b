package model

import (
	"strings"
	"time"
)

// Document is one stored record. Bookkeeping fields are added by the
// record store on read.
type Document = map[string]any

// Bookkeeping fields present on every stored record.
const (
	FieldID           = "_id"
	FieldOwner        = "userId"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
	FieldVersion      = "__v"
	FieldRepositoryID = "repositoryId"
)

// IsBookkeeping reports whether path names a store-managed field rather than
// a field that came from the ingested document.
func IsBookkeeping(path string) bool {
	switch path {
	case FieldID, FieldOwner, FieldCreatedAt, FieldUpdatedAt, FieldVersion:
		return true
	}
	return false
}

// IsInternalField reports whether a flattened path must be hidden from
// field lists: anything starting with an underscore, the version counter
// and the owner identifier.
func IsInternalField(path string) bool {
	return strings.HasPrefix(path, "_") || path == FieldOwner
}

// CollectionInfo describes one registered collection and the caller's
// record count in it.
type CollectionInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// FacetValue is one value→count bucket of a facet.
type FacetValue struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// Stats summarises a collection for one owner.
type Stats struct {
	Total         int64      `json:"total"`
	RecentlyAdded int64      `json:"recentlyAdded"`
	Oldest        *time.Time `json:"oldest"`
	Newest        *time.Time `json:"newest"`
}

// UpsertResult reports what an import did.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}
