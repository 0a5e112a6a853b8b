package query

import (
	"regexp"
	"sort"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Advanced builds the predicate of the advanced filter endpoint: string
// values match case-insensitively, lists match by membership and anything
// else matches exactly. Empty values are skipped.
func Advanced(base bson.D, filters map[string]any) Result {
	b := &builder{filter: clone(base)}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		value := filters[field]
		if value == nil || value == "" {
			continue
		}
		b.res.Supplied++
		if !ValidField(field) {
			b.drop("filters", field, "", "invalid field name")
			continue
		}
		switch v := value.(type) {
		case string:
			b.filter = Set(b.filter, field, bson.Regex{Pattern: regexp.QuoteMeta(v), Options: "i"})
		default:
			if items, ok := asList(v); ok {
				b.filter = Set(b.filter, field, bson.D{{Key: "$in", Value: items}})
			} else if isScalar(v) {
				b.filter = Set(b.filter, field, v)
			} else {
				b.drop("filters", field, "", "unsupported constraint")
				continue
			}
		}
		b.res.Applied++
	}
	for _, e := range base {
		b.filter = Set(b.filter, e.Key, e.Value)
	}
	b.res.Filter = b.filter
	return b.res
}

// AddDateRange ORs an inclusive range over the well-known date fields.
func AddDateRange(r Result, start, end time.Time) Result {
	b := &builder{filter: r.Filter, res: r}
	b.applyDateRange(&model.DateRange{StartDate: &start, EndDate: &end})
	b.res.Filter = b.filter
	return b.res
}

// AddSearch merges a free-text search over fields into r.
func AddSearch(r Result, term string, fields []string) Result {
	b := &builder{filter: r.Filter, res: r}
	b.applySearch(term, fields)
	b.res.Filter = b.filter
	return b.res
}
