// Package registry maps the fixed set of collection names onto the record
// store.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Definition describes one registered collection.
type Definition struct {
	Name  string
	Label string
	// KeyField is the document field holding the natural external id.
	KeyField string
	// RepositoryScoped collections may be narrowed by repositoryId.
	RepositoryScoped bool
	// SearchFields are searched when no sample-derived field list applies,
	// as in cross-collection search.
	SearchFields []string
}

var definitions = []Definition{
	{
		Name: "organizations", Label: "Organizations", KeyField: "id",
		SearchFields: []string{"name", "description", "login", "email"},
	},
	{
		Name: "repositories", Label: "Repositories", KeyField: "id",
		SearchFields: []string{"name", "description", "full_name"},
	},
	{
		Name: "commits", Label: "Commits", KeyField: "sha", RepositoryScoped: true,
		SearchFields: []string{"commit.message", "commit.author.name", "commit.committer.name"},
	},
	{
		Name: "pulls", Label: "Pull Requests", KeyField: "id", RepositoryScoped: true,
		SearchFields: []string{"title", "body", "head.ref", "base.ref"},
	},
	{
		Name: "issues", Label: "Issues", KeyField: "id", RepositoryScoped: true,
		SearchFields: []string{"title", "body"},
	},
	{
		Name: "users", Label: "Users", KeyField: "id",
		SearchFields: []string{"name", "login", "email", "bio"},
	},
}

// Definitions returns the registered collections in display order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Names returns the registered collection names in display order.
func Names() []string {
	names := make([]string, len(definitions))
	for i, d := range definitions {
		names[i] = d.Name
	}
	return names
}

// Registry resolves collection names to store handles.
type Registry struct {
	store model.RecordStore
	byName map[string]Definition
}

// New creates a registry over store.
func New(store model.RecordStore) *Registry {
	byName := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		byName[d.Name] = d
	}
	return &Registry{store: store, byName: byName}
}

// Resolve returns the handle for name. Matching is exact and case-sensitive.
func (r *Registry) Resolve(name string) (*Handle, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidCollection, name)
	}
	return &Handle{Definition: d, store: r.store}, nil
}

// Handle is the record store bound to one collection.
type Handle struct {
	Definition
	store model.RecordStore
}

// Find reads one sorted page.
func (h *Handle) Find(ctx context.Context, opts model.FindOptions) ([]model.Document, error) {
	return h.store.Find(ctx, h.Name, opts)
}

// Count counts records matching filter.
func (h *Handle) Count(ctx context.Context, filter bson.D) (int64, error) {
	return h.store.Count(ctx, h.Name, filter)
}

// Sample returns up to n records matching filter in insertion order.
func (h *Handle) Sample(ctx context.Context, filter bson.D, n int) ([]model.Document, error) {
	return h.store.Find(ctx, h.Name, model.FindOptions{Filter: filter, Limit: n})
}

// GroupCount computes one facet.
func (h *Handle) GroupCount(ctx context.Context, filter bson.D, field string, limit int) ([]model.FacetValue, error) {
	return h.store.GroupCount(ctx, h.Name, filter, field, limit)
}

// TimeBounds returns the oldest and newest createdAt among matches.
func (h *Handle) TimeBounds(ctx context.Context, filter bson.D) (*time.Time, *time.Time, error) {
	return h.store.TimeBounds(ctx, h.Name, filter)
}

// Delete removes records matching filter.
func (h *Handle) Delete(ctx context.Context, filter bson.D) (int64, error) {
	return h.store.Delete(ctx, h.Name, filter)
}

// Upsert writes docs for owner keyed by the collection's external id field.
func (h *Handle) Upsert(ctx context.Context, owner string, docs []model.Document) (model.UpsertResult, error) {
	return h.store.Upsert(ctx, h.Name, owner, h.KeyField, docs)
}
