package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// OverviewParams select one repository and filter its related records.
type OverviewParams struct {
	RepositoryID string
	Page         int
	Limit        int
	SortBy       string
	SortOrder    string
	DateFrom     *time.Time
	DateTo       *time.Time
	// Author matches the login of a commit's author or of the user who
	// opened a pull request or issue, case-insensitively.
	Author string
	// Status matches the state of pull requests and issues.
	Status string
}

// OverviewSummary totals the related records matching the filters.
type OverviewSummary struct {
	TotalCommits      int64 `json:"totalCommits"`
	TotalPullRequests int64 `json:"totalPullRequests"`
	TotalIssues       int64 `json:"totalIssues"`
	OpenPullRequests  int64 `json:"openPullRequests"`
	OpenIssues        int64 `json:"openIssues"`
}

// OverviewPagination is shared by the three related lists.
type OverviewPagination struct {
	CurrentPage int             `json:"currentPage"`
	PageSize    int             `json:"pageSize"`
	HasNextPage map[string]bool `json:"hasNextPage"`
}

// OverviewResult is a repository with one page each of its commits, pull
// requests and issues.
type OverviewResult struct {
	Repository   model.Document     `json:"repository"`
	Commits      []model.Document   `json:"commits"`
	PullRequests []model.Document   `json:"pullRequests"`
	Issues       []model.Document   `json:"issues"`
	Summary      OverviewSummary    `json:"summary"`
	Pagination   OverviewPagination `json:"pagination"`
}

var overviewStatuses = map[string]bool{"open": true, "closed": true, "merged": true}

type related struct {
	collection  string
	authorField string
	withStatus  bool
	docs        *[]model.Document
	total       *int64
	open        *int64
}

// RepositoryOverview joins a repository of owner with its related records
// through repositoryId.
func (s *Service) RepositoryOverview(ctx context.Context, owner string, p OverviewParams) (*OverviewResult, error) {
	if strings.TrimSpace(p.RepositoryID) == "" {
		return nil, model.Validationf("repositoryId parameter is required")
	}
	if p.Status != "" && !overviewStatuses[p.Status] {
		return nil, model.Validationf("status must be one of: open, closed, merged")
	}
	if p.DateFrom != nil && p.DateTo != nil && p.DateTo.Before(*p.DateFrom) {
		return nil, model.Validationf("date_to is before date_from")
	}
	if p.Page < 1 {
		p.Page = model.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = model.DefaultOverviewLimit
	}
	if p.Limit > model.MaxOverviewLimit {
		p.Limit = model.MaxOverviewLimit
	}
	if p.SortBy == "" {
		p.SortBy = model.DefaultSortField
	}
	repoID := RepositoryKey(p.RepositoryID)

	repos, err := s.resolve("repositories")
	if err != nil {
		return nil, err
	}
	found, err := repos.Find(ctx, model.FindOptions{
		Filter: append(query.Owner(owner, nil), bson.E{Key: "id", Value: repoID}),
		Limit:  1,
	})
	if err != nil {
		return nil, model.WrapQuery("load repository", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: repository %s", model.ErrRecordNotFound, p.RepositoryID)
	}

	res := &OverviewResult{
		Repository: found[0],
		Pagination: OverviewPagination{CurrentPage: p.Page, PageSize: p.Limit},
	}
	lists := []related{
		{"commits", "author.login", false, &res.Commits, &res.Summary.TotalCommits, nil},
		{"pulls", "user.login", true, &res.PullRequests, &res.Summary.TotalPullRequests, &res.Summary.OpenPullRequests},
		{"issues", "user.login", true, &res.Issues, &res.Summary.TotalIssues, &res.Summary.OpenIssues},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rel := range lists {
		h, err := s.resolve(rel.collection)
		if err != nil {
			return nil, err
		}
		filter := overviewFilter(owner, repoID, rel, p)
		g.Go(func() error {
			docs, err := h.Find(gctx, model.FindOptions{
				Filter:    filter,
				SortField: p.SortBy,
				SortDesc:  p.SortOrder != model.SortAsc,
				Skip:      model.Skip(p.Page, p.Limit),
				Limit:     p.Limit,
			})
			*rel.docs = docs
			return err
		})
		g.Go(func() error {
			n, err := h.Count(gctx, filter)
			*rel.total = n
			return err
		})
		if rel.open != nil {
			g.Go(func() error {
				n, err := h.Count(gctx, openFilter(filter))
				*rel.open = n
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, model.WrapQuery("repository overview", err)
	}

	shown := int64(p.Page * p.Limit)
	res.Pagination.HasNextPage = map[string]bool{
		"commits":      res.Summary.TotalCommits > shown,
		"pullRequests": res.Summary.TotalPullRequests > shown,
		"issues":       res.Summary.TotalIssues > shown,
	}
	return res, nil
}

func overviewFilter(owner string, repoID any, rel related, p OverviewParams) bson.D {
	filter := query.Owner(owner, repoID)
	if p.DateFrom != nil || p.DateTo != nil {
		rng := bson.D{}
		if p.DateFrom != nil {
			rng = append(rng, bson.E{Key: "$gte", Value: p.DateFrom.UTC()})
		}
		if p.DateTo != nil {
			rng = append(rng, bson.E{Key: "$lte", Value: p.DateTo.UTC()})
		}
		filter = append(filter, bson.E{Key: model.FieldCreatedAt, Value: rng})
	}
	if author := strings.TrimSpace(p.Author); author != "" {
		filter = append(filter, bson.E{Key: rel.authorField, Value: bson.Regex{Pattern: regexp.QuoteMeta(author), Options: "i"}})
	}
	if rel.withStatus && p.Status != "" {
		filter = append(filter, bson.E{Key: "state", Value: p.Status})
	}
	return filter
}

// openFilter narrows filter to open records. A status filter other than
// open leaves nothing to count.
func openFilter(filter bson.D) bson.D {
	out := append(bson.D(nil), filter...)
	if v, ok := query.Lookup(out, "state"); ok && v != "open" {
		return query.Set(out, model.FieldID, bson.D{{Key: "$exists", Value: false}})
	}
	return query.Set(out, "state", "open")
}

// RepositoryKey matches numeric ids as numbers and anything else as text.
func RepositoryKey(raw string) any {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}
