package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gitgrid/gitgrid/internal/facet"
	"github.com/gitgrid/gitgrid/internal/flatten"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
	"github.com/gitgrid/gitgrid/internal/registry"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// BrowseParams are the inputs of one collection page read.
type BrowseParams struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
	// ActiveFilterID names a saved filter to apply. An id that does not
	// resolve for the owner yields an empty page, not an error.
	ActiveFilterID string
	FacetQuery     map[string]any
	// SearchFields overrides the fields discovered from a sample record.
	SearchFields []string
	// RepositoryID narrows repository-scoped collections.
	RepositoryID any
}

// BrowseResult is one page of a collection.
type BrowseResult struct {
	Data           []model.Document   `json:"data"`
	FlattenedData  []map[string]any   `json:"flattenedData"`
	Pagination     model.Pagination   `json:"pagination"`
	Fields         []string           `json:"fields"`
	Search         string             `json:"search"`
	SortBy         string             `json:"sortBy"`
	SortOrder      string             `json:"sortOrder"`
	ActiveFilter   *model.SavedFilter `json:"activeFilter,omitempty"`
	AppliedFilters query.Result       `json:"appliedFilters"`
	SearchStatus   string             `json:"searchStatus,omitempty"`
}

func (p *BrowseParams) normalize() {
	if p.Page < 1 {
		p.Page = model.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = model.DefaultLimit
	}
	if p.Limit > model.MaxLimit {
		p.Limit = model.MaxLimit
	}
	if p.SortBy == "" {
		p.SortBy = model.DefaultSortField
	}
	if p.SortOrder != model.SortAsc && p.SortOrder != model.SortDesc {
		p.SortOrder = model.DefaultSortOrder
	}
	p.Search = strings.TrimSpace(p.Search)
}

// checkSearch rejects terms the store cannot bind as a text parameter.
func checkSearch(term string) error {
	if !utf8.ValidString(term) {
		return model.Validationf("search must be valid UTF-8")
	}
	return nil
}

// Browse reads one sorted page of a collection with the saved filter,
// search and facet constraints applied. Page, count and field sample run
// in parallel on the same predicate.
func (s *Service) Browse(ctx context.Context, owner, collection string, p BrowseParams) (*BrowseResult, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	p.normalize()
	if err := checkSearch(p.Search); err != nil {
		return nil, err
	}

	res := &BrowseResult{
		Data:          make([]model.Document, 0),
		FlattenedData: make([]map[string]any, 0),
		Fields:        make([]string, 0),
		Search:        p.Search,
		SortBy:        p.SortBy,
		SortOrder:     p.SortOrder,
	}

	base, err := scopeFor(h, owner, p.RepositoryID)
	if err != nil {
		return nil, err
	}

	opts := query.Options{Search: p.Search, SearchFields: p.SearchFields, Facets: p.FacetQuery}
	if p.ActiveFilterID != "" {
		f, err := s.filters.GetFilter(ctx, owner, p.ActiveFilterID)
		switch {
		case errors.Is(err, model.ErrFilterNotFound):
			log.Printf("service: filter %s not found for %s, returning empty page", p.ActiveFilterID, collection)
			res.Pagination = model.NewPagination(p.Page, p.Limit, 0)
			return res, nil
		case err != nil:
			return nil, model.WrapQuery("load filter", err)
		case f.Collection != collection:
			log.Printf("service: filter %s belongs to %s, not %s", f.ID, f.Collection, collection)
			res.Pagination = model.NewPagination(p.Page, p.Limit, 0)
			return res, nil
		}
		res.ActiveFilter = f
		opts.SavedFilter = &f.Filters
	}

	if p.Search != "" && len(opts.SearchFields) == 0 {
		opts.SearchFields, err = s.discoverSearchFields(ctx, h, base)
		if err != nil {
			return nil, err
		}
	}

	built := query.Build(base, opts)
	res.AppliedFilters = built
	res.SearchStatus = built.SearchStatus

	var (
		page   []model.Document
		total  int64
		sample []model.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = h.Find(gctx, model.FindOptions{
			Filter:    built.Filter,
			SortField: p.SortBy,
			SortDesc:  p.SortOrder == model.SortDesc,
			Skip:      model.Skip(p.Page, p.Limit),
			Limit:     p.Limit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = h.Count(gctx, built.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		sample, err = h.Sample(gctx, built.Filter, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, model.WrapQuery("browse "+collection, err)
	}

	res.Data = page
	res.FlattenedData = flatten.Documents(page)
	res.Fields = visibleFields(flatten.Paths(sample, 1))
	res.Pagination = model.NewPagination(p.Page, p.Limit, total)
	return res, nil
}

// discoverSearchFields infers the searchable fields from one sample record
// of the owner's collection: top-level string leaves that are not internal.
func (s *Service) discoverSearchFields(ctx context.Context, h *registry.Handle, base bson.D) ([]string, error) {
	sample, err := h.Sample(ctx, base, 1)
	if err != nil {
		return nil, model.WrapQuery("sample "+h.Name, err)
	}
	var fields []string
	for _, f := range flatten.SearchFields(flatten.InferFields(sample)) {
		if !model.IsInternalField(f) {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// scopeFor builds the owner predicate, narrowed by repository when the
// collection allows it.
func scopeFor(h *registry.Handle, owner string, repositoryID any) (bson.D, error) {
	if repositoryID == nil || repositoryID == "" {
		return query.Owner(owner, nil), nil
	}
	if !h.RepositoryScoped {
		return nil, model.Validationf("collection %s cannot be scoped by repository", h.Name)
	}
	return query.Owner(owner, repositoryID), nil
}

func sortedCopy(fields []string) []string {
	out := append([]string(nil), fields...)
	sort.Strings(out)
	return out
}

func visibleFields(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !model.IsInternalField(p) {
			out = append(out, p)
		}
	}
	return out
}

// FieldsResult lists the flattened fields found in a sample of records.
type FieldsResult struct {
	Fields      []string                  `json:"fields"`
	SampleSize  int                       `json:"sampleSize"`
	TotalFields int                       `json:"totalFields"`
	Descriptors []flatten.FieldDescriptor `json:"descriptors"`
	Columns     []flatten.Column          `json:"columns"`
}

// Fields flattens up to sample records (default 10) and unions their paths.
// An empty collection yields an empty list.
func (s *Service) Fields(ctx context.Context, owner, collection string, sample int) (*FieldsResult, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	if sample < 1 {
		sample = model.DefaultSampleSize
	}
	if sample > model.MaxLimit {
		sample = model.MaxLimit
	}

	docs, err := h.Sample(ctx, query.Owner(owner, nil), sample)
	if err != nil {
		return nil, model.WrapQuery("sample "+collection, err)
	}

	res := &FieldsResult{
		Fields:      visibleFields(flatten.Paths(docs, sample)),
		SampleSize:  len(docs),
		Descriptors: make([]flatten.FieldDescriptor, 0),
		Columns:     make([]flatten.Column, 0),
	}
	res.TotalFields = len(res.Fields)
	for _, d := range flatten.InferFields(docs) {
		if !model.IsInternalField(d.Path) {
			res.Descriptors = append(res.Descriptors, d)
		}
	}
	if len(docs) > 0 {
		res.Columns = flatten.Columns(docs[0], model.IsInternalField)
	}
	return res, nil
}

// FacetedSearchParams are the inputs of a faceted search.
type FacetedSearchParams struct {
	Facets      map[string]any
	FacetFields []string
	Search      string
	Page        int
	Limit       int
	FacetLimit  int
}

// FacetedSearchResult is one page plus the facet counts of the same predicate.
type FacetedSearchResult struct {
	Data           []model.Document              `json:"data"`
	FlattenedData  []map[string]any              `json:"flattenedData"`
	FacetCounts    map[string][]model.FacetValue `json:"facetCounts"`
	FacetErrors    map[string]string             `json:"facetErrors,omitempty"`
	Pagination     model.Pagination              `json:"pagination"`
	AppliedFilters query.Result                  `json:"appliedFilters"`
}

// FacetedSearch applies facet constraints, reads one page and counts the
// facet fields over the same predicate. Facet fields default to the keys of
// the constraints.
func (s *Service) FacetedSearch(ctx context.Context, owner, collection string, p FacetedSearchParams) (*FacetedSearchResult, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	bp := BrowseParams{Page: p.Page, Limit: p.Limit}
	bp.normalize()

	base := query.Owner(owner, nil)
	opts := query.Options{Facets: p.Facets, Search: strings.TrimSpace(p.Search)}
	if err := checkSearch(opts.Search); err != nil {
		return nil, err
	}
	if opts.Search != "" {
		if opts.SearchFields, err = s.discoverSearchFields(ctx, h, base); err != nil {
			return nil, err
		}
	}
	built := query.Build(base, opts)

	fields := p.FacetFields
	if len(fields) == 0 {
		for k := range p.Facets {
			fields = append(fields, k)
		}
	}

	var (
		page   []model.Document
		total  int64
		facets facet.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = h.Find(gctx, model.FindOptions{
			Filter:    built.Filter,
			SortField: bp.SortBy,
			SortDesc:  true,
			Skip:      model.Skip(bp.Page, bp.Limit),
			Limit:     bp.Limit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = h.Count(gctx, built.Filter)
		return err
	})
	g.Go(func() error {
		facets = facet.Compute(gctx, h, built.Filter, sortedCopy(fields), p.FacetLimit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, model.WrapQuery("faceted search "+collection, err)
	}

	return &FacetedSearchResult{
		Data:           page,
		FlattenedData:  flatten.Documents(page),
		FacetCounts:    facets.Counts,
		FacetErrors:    facets.Errors,
		Pagination:     model.NewPagination(bp.Page, bp.Limit, total),
		AppliedFilters: built,
	}, nil
}

// Facets counts several fields over the owner's records (limit default 20).
func (s *Service) Facets(ctx context.Context, owner, collection string, fields []string, limit int) (*facet.Result, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	fields = facet.Normalize(fields)
	if len(fields) == 0 {
		return nil, model.Validationf("fields parameter is required")
	}
	res := facet.Compute(ctx, h, query.Owner(owner, nil), fields, limit)
	return &res, nil
}

// FacetValues counts one field over the owner's records (limit default 50).
// Unlike Facets, a failure is returned as an error.
func (s *Service) FacetValues(ctx context.Context, owner, collection, field string, limit int) ([]model.FacetValue, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	if !query.ValidField(field) {
		return nil, model.Validationf("invalid field %q", field)
	}
	if limit < 1 {
		limit = model.DefaultFieldFacetLimit
	}
	values, err := h.GroupCount(ctx, query.Owner(owner, nil), field, limit)
	if err != nil {
		return nil, model.WrapQuery("facet "+field, err)
	}
	return values, nil
}
