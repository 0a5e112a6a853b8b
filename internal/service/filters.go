package service

import (
	"context"
	"log"
	"strings"

	"github.com/gitgrid/gitgrid/internal/model"
)

// FilterInput is the user-supplied body of a saved filter.
type FilterInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Collection  string           `json:"collection"`
	Filters     model.FilterSpec `json:"filters"`
}

// ListFilters returns the owner's saved filters, newest first.
func (s *Service) ListFilters(ctx context.Context, owner string) ([]model.SavedFilter, error) {
	filters, err := s.filters.ListFilters(ctx, owner)
	if err != nil {
		return nil, model.WrapQuery("list filters", err)
	}
	return filters, nil
}

// GetFilter returns one saved filter of owner.
func (s *Service) GetFilter(ctx context.Context, owner, id string) (*model.SavedFilter, error) {
	f, err := s.filters.GetFilter(ctx, owner, id)
	if err != nil {
		return nil, model.WrapQuery("get filter", err)
	}
	return f, nil
}

// CreateFilter stores a new, inactive filter for owner.
func (s *Service) CreateFilter(ctx context.Context, owner string, in FilterInput) (*model.SavedFilter, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.Validationf("name is required")
	}
	if _, err := s.resolve(in.Collection); err != nil {
		return nil, err
	}
	warnUnknownOperators(in.Filters)

	f := &model.SavedFilter{
		UserID:      owner,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Collection:  in.Collection,
		Filters:     in.Filters,
	}
	if err := s.filters.CreateFilter(ctx, f); err != nil {
		return nil, model.WrapQuery("create filter", err)
	}
	return f, nil
}

// UpdateFilter patches one filter of owner. Owner and activation cannot be
// changed this way.
func (s *Service) UpdateFilter(ctx context.Context, owner, id string, patch model.FilterPatch) (*model.SavedFilter, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, model.Validationf("name cannot be empty")
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}
	if patch.Collection != nil {
		if _, err := s.resolve(*patch.Collection); err != nil {
			return nil, err
		}
	}
	if patch.Filters != nil {
		warnUnknownOperators(*patch.Filters)
	}

	f, err := s.filters.UpdateFilter(ctx, owner, id, patch)
	if err != nil {
		return nil, model.WrapQuery("update filter", err)
	}
	return f, nil
}

// DeleteFilter removes one filter of owner.
func (s *Service) DeleteFilter(ctx context.Context, owner, id string) error {
	return model.WrapQuery("delete filter", s.filters.DeleteFilter(ctx, owner, id))
}

// ToggleFilter activates an inactive filter, deactivating its siblings in
// the same collection, or deactivates an active one.
func (s *Service) ToggleFilter(ctx context.Context, owner, id string) (*model.SavedFilter, error) {
	f, err := s.filters.ToggleFilter(ctx, owner, id)
	if err != nil {
		return nil, model.WrapQuery("toggle filter", err)
	}
	return f, nil
}

// ActiveFilters returns the owner's active filters for collection.
func (s *Service) ActiveFilters(ctx context.Context, owner, collection string) ([]model.SavedFilter, error) {
	if _, err := s.resolve(collection); err != nil {
		return nil, err
	}
	filters, err := s.filters.ActiveFilters(ctx, owner, collection)
	if err != nil {
		return nil, model.WrapQuery("active filters", err)
	}
	return filters, nil
}

// Unknown operators are stored as given and skipped when the filter is
// applied.
func warnUnknownOperators(spec model.FilterSpec) {
	for _, cf := range spec.CustomFields {
		if !cf.Operator.Valid() {
			log.Printf("service: saved filter uses unsupported operator %q on %q", cf.Operator, cf.Field)
		}
	}
}
