// Package service composes the registry, predicate builder, facet
// aggregator and flattener into the read API and owns the saved filter
// lifecycle. Every method takes the caller's owner identity and never
// reads or writes another owner's data.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
	"github.com/gitgrid/gitgrid/internal/registry"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// Service is stateless across requests.
type Service struct {
	records *registry.Registry
	filters model.FilterStore
	now     func() time.Time
}

// New creates a service over a record registry and a saved filter store.
func New(records *registry.Registry, filters model.FilterStore) *Service {
	return &Service{
		records: records,
		filters: filters,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) resolve(name string) (*registry.Handle, error) {
	return s.records.Resolve(name)
}

// Collections lists every registered collection with the owner's record count.
func (s *Service) Collections(ctx context.Context, owner string) ([]model.CollectionInfo, error) {
	defs := registry.Definitions()
	out := make([]model.CollectionInfo, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range defs {
		out[i] = model.CollectionInfo{Name: d.Name, Label: d.Label}
		g.Go(func() error {
			h, err := s.resolve(d.Name)
			if err != nil {
				return err
			}
			n, err := h.Count(gctx, query.Owner(owner, nil))
			if err != nil {
				return model.WrapQuery("count "+d.Name, err)
			}
			out[i].Count = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats reports the owner's total, how many records arrived in the last 24
// hours and the oldest and newest creation times.
func (s *Service) Stats(ctx context.Context, owner, collection string) (*model.Stats, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	base := query.Owner(owner, nil)
	recent := append(query.Owner(owner, nil), bson.E{
		Key:   model.FieldCreatedAt,
		Value: bson.D{{Key: "$gte", Value: s.now().Add(-24 * time.Hour)}},
	})

	var st model.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := h.Count(gctx, base)
		st.Total = n
		return err
	})
	g.Go(func() error {
		n, err := h.Count(gctx, recent)
		st.RecentlyAdded = n
		return err
	})
	g.Go(func() error {
		oldest, newest, err := h.TimeBounds(gctx, base)
		st.Oldest, st.Newest = oldest, newest
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, model.WrapQuery("stats "+collection, err)
	}
	return &st, nil
}

// DeleteRecord removes one record of owner by its store id.
func (s *Service) DeleteRecord(ctx context.Context, owner, collection, id string) error {
	h, err := s.resolve(collection)
	if err != nil {
		return err
	}
	filter := append(query.Owner(owner, nil), bson.E{Key: model.FieldID, Value: id})
	n, err := h.Delete(ctx, filter)
	if err != nil {
		return model.WrapQuery("delete record", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", model.ErrRecordNotFound, collection, id)
	}
	return nil
}

// ClearCollection removes every record of owner from collection.
func (s *Service) ClearCollection(ctx context.Context, owner, collection string) (int64, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return 0, err
	}
	n, err := h.Delete(ctx, query.Owner(owner, nil))
	if err != nil {
		return 0, model.WrapQuery("clear collection", err)
	}
	return n, nil
}

// Import upserts docs for owner, keyed by the collection's external id.
func (s *Service) Import(ctx context.Context, owner, collection string, docs []model.Document) (model.UpsertResult, error) {
	if owner == "" {
		return model.UpsertResult{}, model.Validationf("owner is required")
	}
	h, err := s.resolve(collection)
	if err != nil {
		return model.UpsertResult{}, err
	}
	res, err := h.Upsert(ctx, owner, docs)
	if err != nil {
		return res, model.WrapQuery("import "+collection, err)
	}
	return res, nil
}
