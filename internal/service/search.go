package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gitgrid/gitgrid/internal/flatten"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
	"github.com/gitgrid/gitgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// GlobalSearchParams are the inputs of a cross-collection search.
type GlobalSearchParams struct {
	Query string
	// Collections defaults to every registered collection.
	Collections []string
	Page        int
	Limit       int
}

// CollectionHits is one collection's slice of a global search. Error is set
// when that collection alone failed.
type CollectionHits struct {
	Collection string           `json:"collection"`
	Count      int64            `json:"count"`
	Data       []map[string]any `json:"data"`
	Error      string           `json:"error,omitempty"`
}

// GlobalSearchResult lists the collections that matched or failed.
type GlobalSearchResult struct {
	Query            string           `json:"query"`
	Results          []CollectionHits `json:"results"`
	TotalCollections int              `json:"totalCollections"`
	TotalResults     int64            `json:"totalResults"`
	Page             int              `json:"page"`
	Limit            int              `json:"limit"`
}

// GlobalSearch runs the same free-text search over several collections in
// parallel, each over its registered search fields. Unknown collection
// names and failing collections are annotated, never fatal.
func (s *Service) GlobalSearch(ctx context.Context, owner string, p GlobalSearchParams) (*GlobalSearchResult, error) {
	term := strings.TrimSpace(p.Query)
	if term == "" {
		return nil, model.Validationf("search query is required")
	}
	if err := checkSearch(term); err != nil {
		return nil, err
	}
	if len(term) > model.MaxSearchLength {
		return nil, model.Validationf("search query longer than %d characters", model.MaxSearchLength)
	}
	bp := BrowseParams{Page: p.Page, Limit: p.Limit}
	bp.normalize()

	names := make([]string, 0, len(p.Collections))
	for _, n := range p.Collections {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = registry.Names()
	}

	hits := make([]CollectionHits, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			hits[i] = s.searchOne(ctx, owner, name, term, bp)
			return nil
		})
	}
	_ = g.Wait()

	res := &GlobalSearchResult{
		Query:            term,
		Results:          make([]CollectionHits, 0, len(hits)),
		TotalCollections: len(names),
		Page:             bp.Page,
		Limit:            bp.Limit,
	}
	for _, h := range hits {
		res.TotalResults += h.Count
		if h.Count > 0 || h.Error != "" {
			res.Results = append(res.Results, h)
		}
	}
	return res, nil
}

func (s *Service) searchOne(ctx context.Context, owner, name, term string, p BrowseParams) CollectionHits {
	hits := CollectionHits{Collection: name, Data: make([]map[string]any, 0)}
	h, err := s.resolve(name)
	if err != nil {
		hits.Error = err.Error()
		return hits
	}

	built := query.Build(query.Owner(owner, nil), query.Options{Search: term, SearchFields: h.SearchFields})

	var docs []model.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = h.Find(gctx, model.FindOptions{
			Filter:    built.Filter,
			SortField: model.DefaultSortField,
			SortDesc:  true,
			Skip:      model.Skip(p.Page, p.Limit),
			Limit:     p.Limit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		hits.Count, err = h.Count(gctx, built.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("service: global search in %s failed: %v", name, err)
		hits.Count = 0
		hits.Error = err.Error()
		return hits
	}
	hits.Data = flatten.Documents(docs)
	return hits
}

// DateWindow is an inclusive range matched against the well-known date
// fields of a record.
type DateWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// AdvancedFilterParams are the inputs of the combined filter endpoint.
type AdvancedFilterParams struct {
	Filters   map[string]any `json:"filters"`
	DateRange *DateWindow    `json:"dateRange,omitempty"`
	Search    string         `json:"search,omitempty"`
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
	SortBy    string         `json:"sortBy,omitempty"`
	SortOrder string         `json:"sortOrder,omitempty"`
}

// AdvancedPagination mirrors the navigation block of the filter endpoint.
type AdvancedPagination struct {
	Current      int   `json:"current"`
	Total        int   `json:"total"`
	Count        int   `json:"count"`
	TotalRecords int64 `json:"totalRecords"`
	HasNext      bool  `json:"hasNext"`
	HasPrev      bool  `json:"hasPrev"`
}

// AdvancedFilterResult is one flattened page plus the echoed parameters.
type AdvancedFilterResult struct {
	Data           []map[string]any     `json:"data"`
	Pagination     AdvancedPagination   `json:"pagination"`
	AppliedFilters AdvancedFilterParams `json:"appliedFilters"`
	Clauses        query.Result         `json:"clauses"`
}

// AdvancedFilter combines field filters, a date window and free-text search
// on one collection. String filter values match case-insensitively, lists
// match by membership. Without a sort field, newest records come first.
func (s *Service) AdvancedFilter(ctx context.Context, owner, collection string, p AdvancedFilterParams) (*AdvancedFilterResult, error) {
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	if err := checkSearch(p.Search); err != nil {
		return nil, err
	}
	bp := BrowseParams{Page: p.Page, Limit: p.Limit}
	bp.normalize()
	if p.SortOrder != model.SortDesc {
		p.SortOrder = model.SortAsc
	}

	built := query.Advanced(query.Owner(owner, nil), p.Filters)
	if p.DateRange != nil && p.DateRange.Start != nil && p.DateRange.End != nil {
		if p.DateRange.End.Before(*p.DateRange.Start) {
			return nil, model.Validationf("dateRange end is before start")
		}
		built = query.AddDateRange(built, *p.DateRange.Start, *p.DateRange.End)
	}
	if term := strings.TrimSpace(p.Search); term != "" {
		built = query.AddSearch(built, term, h.SearchFields)
	}

	find := model.FindOptions{
		Filter: built.Filter,
		Skip:   model.Skip(bp.Page, bp.Limit),
		Limit:  bp.Limit,
	}
	if p.SortBy != "" {
		find.SortField = p.SortBy
		find.SortDesc = p.SortOrder == model.SortDesc
	} else {
		find.SortField = model.DefaultSortField
		find.SortDesc = true
	}

	var (
		docs  []model.Document
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = h.Find(gctx, find)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = h.Count(gctx, built.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, model.WrapQuery("filter "+collection, err)
	}

	pg := model.NewPagination(bp.Page, bp.Limit, total)
	p.Page, p.Limit = bp.Page, bp.Limit
	return &AdvancedFilterResult{
		Data: flatten.Documents(docs),
		Pagination: AdvancedPagination{
			Current:      pg.Page,
			Total:        pg.Pages,
			Count:        len(docs),
			TotalRecords: total,
			HasNext:      int64(find.Skip+len(docs)) < total,
			HasPrev:      pg.HasPrevPage,
		},
		AppliedFilters: p,
		Clauses:        built,
	}, nil
}
