// Package facet computes value/count distributions for several fields over
// one predicate.
package facet

import (
	"context"
	"log"
	"strings"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

// maxParallel bounds the number of fields counted at once.
const maxParallel = 4

// Counter groups the records matching filter by one field.
// registry.Handle satisfies it.
type Counter interface {
	GroupCount(ctx context.Context, filter bson.D, field string, limit int) ([]model.FacetValue, error)
}

// Result holds one bucket list per field. A field that failed has an entry
// in Errors instead of Counts.
type Result struct {
	Counts map[string][]model.FacetValue `json:"facets"`
	Errors map[string]string             `json:"errors,omitempty"`
}

// Compute counts every field independently. A failing field never aborts
// its siblings. Buckets are ordered by count descending, ties by the first
// record carrying the value. limit <= 0 uses the default of 20.
func Compute(ctx context.Context, c Counter, filter bson.D, fields []string, limit int) Result {
	if limit <= 0 {
		limit = model.DefaultFacetLimit
	}
	fields = Normalize(fields)

	res := Result{Counts: make(map[string][]model.FacetValue, len(fields))}
	counts := make([][]model.FacetValue, len(fields))
	errs := make([]error, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, field := range fields {
		g.Go(func() error {
			values, err := c.GroupCount(gctx, filter, field, limit)
			if err != nil {
				errs[i] = err
				return nil
			}
			counts[i] = values
			return nil
		})
	}
	_ = g.Wait()

	for i, field := range fields {
		if errs[i] != nil {
			log.Printf("facet: field %q failed: %v", field, errs[i])
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[field] = errs[i].Error()
			continue
		}
		res.Counts[field] = counts[i]
	}
	return res
}

// ParseFields splits a comma separated field list.
func ParseFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return Normalize(strings.Split(raw, ","))
}

// Normalize trims names and drops blanks and duplicates, keeping the first
// occurrence order.
func Normalize(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
