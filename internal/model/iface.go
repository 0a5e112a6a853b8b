package model

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// FindOptions describes one sorted, paged read.
type FindOptions struct {
	Filter    bson.D
	SortField string // empty = insertion order
	SortDesc  bool
	Skip      int
	Limit     int // 0 = no limit
}

// RecordReader provides read-only queries on one collection's records.
type RecordReader interface {
	Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error)
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)
	GroupCount(ctx context.Context, collection string, filter bson.D, field string, limit int) ([]FacetValue, error)
	TimeBounds(ctx context.Context, collection string, filter bson.D) (oldest, newest *time.Time, err error)
}

// RecordWriter provides the owner-scoped write operations.
type RecordWriter interface {
	Upsert(ctx context.Context, collection, owner, keyField string, docs []Document) (UpsertResult, error)
	Delete(ctx context.Context, collection string, filter bson.D) (int64, error)
}

// RecordStore is the full record store contract.
type RecordStore interface {
	RecordReader
	RecordWriter
}

// FilterStore persists saved filters. Every method is scoped to an owner.
type FilterStore interface {
	ListFilters(ctx context.Context, owner string) ([]SavedFilter, error)
	GetFilter(ctx context.Context, owner, id string) (*SavedFilter, error)
	CreateFilter(ctx context.Context, f *SavedFilter) error
	UpdateFilter(ctx context.Context, owner, id string, patch FilterPatch) (*SavedFilter, error)
	DeleteFilter(ctx context.Context, owner, id string) error
	ToggleFilter(ctx context.Context, owner, id string) (*SavedFilter, error)
	ActiveFilters(ctx context.Context, owner, collection string) ([]SavedFilter, error)
}
