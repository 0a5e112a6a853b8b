// Package query builds store-native predicates from saved filters, ad hoc
// facet constraints and free-text search.
//
// Predicates are MongoDB-style filter documents (bson.D). They are ordered,
// so identical inputs always produce structurally identical predicates.
package query

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// DateFields are matched when a date range names no field.
var DateFields = []string{
	"created_at", "updated_at", "merged_at", "closed_at",
	"committed_at", "authored_at", "date", "timestamp",
}

// SearchStatusNoFields marks a search that had no field to run over.
const SearchStatusNoFields = "no_searchable_fields"

// Options carries everything merged on top of the base predicate.
type Options struct {
	SavedFilter  *model.FilterSpec
	Search       string
	SearchFields []string
	Facets       map[string]any
}

// Dropped describes one clause the builder could not apply.
type Dropped struct {
	Source   string `json:"source"`
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Reason   string `json:"reason"`
}

// Result is a built predicate plus bookkeeping about the clauses it holds.
type Result struct {
	Filter       bson.D    `json:"-"`
	Supplied     int       `json:"supplied"`
	Applied      int       `json:"applied"`
	Dropped      []Dropped `json:"dropped,omitempty"`
	SearchStatus string    `json:"searchStatus,omitempty"`
}

type builder struct {
	filter bson.D
	res    Result
}

// Build merges opts over base. It never fails: clauses it cannot apply are
// logged and reported in Result.Dropped. The keys of base are asserted last,
// so nothing merged in can replace the owner scope.
func Build(base bson.D, opts Options) Result {
	b := &builder{filter: clone(base)}

	if opts.SavedFilter != nil {
		b.applyDateRange(opts.SavedFilter.DateRange)
		b.applyStatus(opts.SavedFilter.Status)
		for _, cf := range opts.SavedFilter.CustomFields {
			b.applyCustomField(cf)
		}
	}
	b.applyFacets(opts.Facets)
	b.applySearch(opts.Search, opts.SearchFields)

	for _, e := range base {
		b.filter = Set(b.filter, e.Key, e.Value)
	}

	b.res.Filter = b.filter
	return b.res
}

func (b *builder) drop(source, field, op, reason string) {
	b.res.Dropped = append(b.res.Dropped, Dropped{Source: source, Field: field, Operator: op, Reason: reason})
	log.Printf("query: dropped %s clause field=%q operator=%q: %s", source, field, op, reason)
}

func (b *builder) applyDateRange(dr *model.DateRange) {
	if dr == nil {
		return
	}
	b.res.Supplied++
	if dr.StartDate == nil && dr.EndDate == nil {
		b.drop("dateRange", dr.Field, "", "no bounds")
		return
	}
	if dr.Field != "" && !ValidField(dr.Field) {
		b.drop("dateRange", dr.Field, "", "invalid field name")
		return
	}

	rng := bson.D{}
	if dr.StartDate != nil {
		rng = append(rng, bson.E{Key: "$gte", Value: dr.StartDate.UTC()})
	}
	if dr.EndDate != nil {
		rng = append(rng, bson.E{Key: "$lte", Value: dr.EndDate.UTC()})
	}

	if dr.Field != "" {
		b.filter = Set(b.filter, dr.Field, rng)
	} else {
		alts := make(bson.A, 0, len(DateFields))
		for _, f := range DateFields {
			alts = append(alts, bson.D{{Key: f, Value: rng}})
		}
		b.addOr(alts)
	}
	b.res.Applied++
}

func (b *builder) applyStatus(st *model.StatusFilter) {
	if st == nil {
		return
	}
	b.res.Supplied++
	switch {
	case !ValidField(st.Field):
		b.drop("status", st.Field, "", "invalid field name")
	case len(st.Values) == 0:
		b.drop("status", st.Field, "", "no values")
	default:
		b.filter = Set(b.filter, st.Field, bson.D{{Key: "$in", Value: bson.A(st.Values)}})
		b.res.Applied++
	}
}

func (b *builder) applyCustomField(cf model.CustomField) {
	b.res.Supplied++
	if !ValidField(cf.Field) {
		b.drop("customFields", cf.Field, string(cf.Operator), "invalid field name")
		return
	}
	cond, err := customCondition(cf.Operator, cf.Value)
	if err != nil {
		b.drop("customFields", cf.Field, string(cf.Operator), err.Error())
		return
	}
	b.filter = Set(b.filter, cf.Field, cond)
	b.res.Applied++
}

func (b *builder) applyFacets(facets map[string]any) {
	keys := make([]string, 0, len(facets))
	for k := range facets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		b.res.Supplied++
		if !ValidField(field) {
			b.drop("facets", field, "", "invalid field name")
			continue
		}
		value := facets[field]
		if value == nil {
			b.drop("facets", field, "", "missing value")
			continue
		}
		if items, ok := asList(value); ok {
			if len(items) == 0 {
				b.drop("facets", field, "", "empty value list")
				continue
			}
			b.filter = Set(b.filter, field, bson.D{{Key: "$in", Value: items}})
			b.res.Applied++
			continue
		}
		if !isScalar(value) {
			b.drop("facets", field, "", "unsupported constraint")
			continue
		}
		b.filter = Set(b.filter, field, value)
		b.res.Applied++
	}
}

func (b *builder) applySearch(term string, fields []string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}

	var valid []string
	for _, f := range fields {
		if ValidField(f) {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		// Nothing can match; keep the result empty rather than unfiltered.
		b.res.SearchStatus = SearchStatusNoFields
		b.filter = Set(b.filter, model.FieldID, bson.D{{Key: "$exists", Value: false}})
		return
	}

	pattern := bson.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	alts := make(bson.A, 0, len(valid))
	for _, f := range valid {
		alts = append(alts, bson.D{{Key: f, Value: pattern}})
	}
	b.addOr(alts)
}

// addOr adds a disjunction. An existing $or is kept by moving both into $and.
func (b *builder) addOr(alts bson.A) {
	existing, ok := Lookup(b.filter, "$or")
	if !ok {
		b.filter = append(b.filter, bson.E{Key: "$or", Value: alts})
		return
	}
	b.filter = Remove(b.filter, "$or")
	and := bson.A{bson.D{{Key: "$or", Value: existing}}, bson.D{{Key: "$or", Value: alts}}}
	if prev, ok := Lookup(b.filter, "$and"); ok {
		if list, ok := prev.(bson.A); ok {
			and = append(list, and...)
		}
	}
	b.filter = Set(b.filter, "$and", and)
}

func customCondition(op model.Operator, value any) (any, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unsupported operator")
	}
	if value == nil {
		return nil, fmt.Errorf("missing value")
	}

	switch op {
	case model.OpEquals:
		if !isScalar(value) {
			return nil, fmt.Errorf("equals needs a scalar value")
		}
		return value, nil
	case model.OpContains, model.OpStartsWith, model.OpEndsWith:
		if !isScalar(value) {
			return nil, fmt.Errorf("%s needs a scalar value", op)
		}
		pattern := regexp.QuoteMeta(fmt.Sprint(value))
		switch op {
		case model.OpStartsWith:
			pattern = "^" + pattern
		case model.OpEndsWith:
			pattern += "$"
		}
		return bson.Regex{Pattern: pattern, Options: "i"}, nil
	case model.OpGreaterThan, model.OpLessThan:
		if !isScalar(value) {
			return nil, fmt.Errorf("%s needs a scalar value", op)
		}
		key := "$gt"
		if op == model.OpLessThan {
			key = "$lt"
		}
		return bson.D{{Key: key, Value: rangeValue(value)}}, nil
	default: // in, notIn
		items, ok := asList(value)
		if !ok {
			if !isScalar(value) {
				return nil, fmt.Errorf("%s needs a value list", op)
			}
			items = bson.A{value}
		}
		key := "$in"
		if op == model.OpNotIn {
			key = "$nin"
		}
		return bson.D{{Key: key, Value: items}}, nil
	}
}

// rangeValue turns RFC 3339 strings into times and numeric strings into
// numbers so range comparisons are typed.
func rangeValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, time.Time:
		return true
	}
	return false
}

func asList(v any) (bson.A, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []any:
		return bson.A(t), true
	case []string:
		out := make(bson.A, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
