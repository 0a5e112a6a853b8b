package query

import (
	"reflect"
	"testing"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestBuildSavedFilterOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	spec := &model.FilterSpec{
		DateRange: &model.DateRange{Field: "created_at", StartDate: &start, EndDate: &end},
		Status:    &model.StatusFilter{Field: "state", Values: []any{"open", "closed"}},
		CustomFields: []model.CustomField{
			{Field: "title", Operator: model.OpContains, Value: "fix (ui)"},
			{Field: "number", Operator: model.OpGreaterThan, Value: "10"},
			{Field: "author", Operator: model.OpNotIn, Value: "bot"},
		},
	}

	res := Build(Owner("u1", nil), Options{SavedFilter: spec})

	want := bson.D{
		{Key: "userId", Value: "u1"},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}},
		{Key: "state", Value: bson.D{{Key: "$in", Value: bson.A{"open", "closed"}}}},
		{Key: "title", Value: bson.Regex{Pattern: `fix \(ui\)`, Options: "i"}},
		{Key: "number", Value: bson.D{{Key: "$gt", Value: float64(10)}}},
		{Key: "author", Value: bson.D{{Key: "$nin", Value: bson.A{"bot"}}}},
	}
	if !reflect.DeepEqual(res.Filter, want) {
		t.Fatalf("filter mismatch\n got: %v\nwant: %v", res.Filter, want)
	}
	if res.Supplied != 5 || res.Applied != 5 || len(res.Dropped) != 0 {
		t.Fatalf("counts = %d/%d dropped=%v", res.Applied, res.Supplied, res.Dropped)
	}
}

func TestBuildCustomFieldOperators(t *testing.T) {
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		name string
		cf   model.CustomField
		want any
	}{
		{"equals", model.CustomField{Field: "state", Operator: model.OpEquals, Value: "open"}, "open"},
		{"startsWith", model.CustomField{Field: "title", Operator: model.OpStartsWith, Value: "a.b"}, bson.Regex{Pattern: `^a\.b`, Options: "i"}},
		{"endsWith", model.CustomField{Field: "title", Operator: model.OpEndsWith, Value: "end"}, bson.Regex{Pattern: `end$`, Options: "i"}},
		{"lessThan time", model.CustomField{Field: "created_at", Operator: model.OpLessThan, Value: "2024-05-06T07:08:09Z"}, bson.D{{Key: "$lt", Value: when}}},
		{"in list", model.CustomField{Field: "state", Operator: model.OpIn, Value: []any{"open", "merged"}}, bson.D{{Key: "$in", Value: bson.A{"open", "merged"}}}},
		{"in scalar", model.CustomField{Field: "state", Operator: model.OpIn, Value: "open"}, bson.D{{Key: "$in", Value: bson.A{"open"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Build(nil, Options{SavedFilter: &model.FilterSpec{CustomFields: []model.CustomField{tt.cf}}})
			got, ok := Lookup(res.Filter, tt.cf.Field)
			if !ok {
				t.Fatalf("field %q missing from %v", tt.cf.Field, res.Filter)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuildDropsMalformedClauses(t *testing.T) {
	spec := &model.FilterSpec{
		Status: &model.StatusFilter{Field: "state"},
		CustomFields: []model.CustomField{
			{Field: "state", Operator: "regex", Value: ".*"},
			{Field: "", Operator: model.OpEquals, Value: "x"},
			{Field: "title", Operator: model.OpEquals, Value: nil},
			{Field: "labels", Operator: model.OpContains, Value: map[string]any{"a": 1}},
			{Field: "$where", Operator: model.OpEquals, Value: "1"},
			{Field: "number", Operator: model.OpEquals, Value: float64(3)},
		},
	}

	res := Build(Owner("u1", nil), Options{SavedFilter: spec})

	if res.Supplied != 7 {
		t.Errorf("supplied = %d, want 7", res.Supplied)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if len(res.Dropped) != 6 {
		t.Errorf("dropped = %d, want 6: %+v", len(res.Dropped), res.Dropped)
	}
	want := bson.D{{Key: "userId", Value: "u1"}, {Key: "number", Value: float64(3)}}
	if !reflect.DeepEqual(res.Filter, want) {
		t.Fatalf("filter = %v, want %v", res.Filter, want)
	}
}

func TestBuildLastWriteWins(t *testing.T) {
	spec := &model.FilterSpec{CustomFields: []model.CustomField{
		{Field: "state", Operator: model.OpEquals, Value: "open"},
		{Field: "state", Operator: model.OpEquals, Value: "closed"},
	}}
	res := Build(nil, Options{SavedFilter: spec, Facets: map[string]any{"state": "merged"}})

	if len(res.Filter) != 1 {
		t.Fatalf("expected one clause, got %v", res.Filter)
	}
	if v, _ := Lookup(res.Filter, "state"); v != "merged" {
		t.Fatalf("state = %v, want merged", v)
	}
}

func TestBuildFacetsCannotWidenOwnerScope(t *testing.T) {
	res := Build(Owner("u1", float64(99)), Options{Facets: map[string]any{
		"userId":       "someone-else",
		"repositoryId": []any{float64(1), float64(2)},
		"state":        []any{"open"},
	}})

	if v, _ := Lookup(res.Filter, "userId"); v != "u1" {
		t.Fatalf("owner scope overridden: %v", v)
	}
	if v, _ := Lookup(res.Filter, "repositoryId"); v != float64(99) {
		t.Fatalf("repository scope overridden: %v", v)
	}
	if v, _ := Lookup(res.Filter, "state"); !reflect.DeepEqual(v, bson.D{{Key: "$in", Value: bson.A{"open"}}}) {
		t.Fatalf("state = %v", v)
	}
}

func TestBuildSearch(t *testing.T) {
	res := Build(Owner("u1", nil), Options{Search: "  bug+fix ", SearchFields: []string{"title", "body"}})

	or, ok := Lookup(res.Filter, "$or")
	if !ok {
		t.Fatalf("expected $or in %v", res.Filter)
	}
	want := bson.A{
		bson.D{{Key: "title", Value: bson.Regex{Pattern: `bug\+fix`, Options: "i"}}},
		bson.D{{Key: "body", Value: bson.Regex{Pattern: `bug\+fix`, Options: "i"}}},
	}
	if !reflect.DeepEqual(or, want) {
		t.Fatalf("$or = %v, want %v", or, want)
	}
	if res.Supplied != 0 {
		t.Fatalf("search should not count as a filter clause, supplied=%d", res.Supplied)
	}
}

func TestBuildSearchWithoutFields(t *testing.T) {
	res := Build(Owner("u1", nil), Options{Search: "anything"})
	if res.SearchStatus != SearchStatusNoFields {
		t.Fatalf("search status = %q", res.SearchStatus)
	}
	if _, ok := Lookup(res.Filter, "_id"); !ok {
		t.Fatalf("expected an always-false clause, got %v", res.Filter)
	}
}

func TestBuildDateRangeWithoutFieldCombinesWithSearch(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	spec := &model.FilterSpec{DateRange: &model.DateRange{StartDate: &start}}
	res := Build(nil, Options{SavedFilter: spec, Search: "x", SearchFields: []string{"title"}})

	if _, ok := Lookup(res.Filter, "$or"); ok {
		t.Fatalf("$or should be folded into $and: %v", res.Filter)
	}
	and, ok := Lookup(res.Filter, "$and")
	if !ok {
		t.Fatalf("expected $and in %v", res.Filter)
	}
	list := and.(bson.A)
	if len(list) != 2 {
		t.Fatalf("expected two disjunctions, got %d", len(list))
	}
	dates, _ := Lookup(list[0].(bson.D), "$or")
	if len(dates.(bson.A)) != len(DateFields) {
		t.Fatalf("date disjunction has %d branches", len(dates.(bson.A)))
	}
}

func TestBuildDeterministic(t *testing.T) {
	opts := Options{
		Facets:       map[string]any{"b": "1", "a": "2", "c": []any{"x"}, "d": true},
		Search:       "q",
		SearchFields: []string{"title"},
	}
	first := Build(Owner("u1", nil), opts)
	for i := 0; i < 25; i++ {
		got := Build(Owner("u1", nil), opts)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%v\n%v", i, got.Filter, first.Filter)
		}
	}
}

func TestAdvanced(t *testing.T) {
	res := Advanced(Owner("u1", nil), map[string]any{
		"state":  "open",
		"labels": []any{"bug"},
		"locked": false,
		"skip":   "",
		"bad key": "x",
	})

	want := bson.D{
		{Key: "userId", Value: "u1"},
		{Key: "labels", Value: bson.D{{Key: "$in", Value: bson.A{"bug"}}}},
		{Key: "locked", Value: false},
		{Key: "state", Value: bson.Regex{Pattern: "open", Options: "i"}},
	}
	if !reflect.DeepEqual(res.Filter, want) {
		t.Fatalf("filter = %v, want %v", res.Filter, want)
	}
	if res.Supplied != 4 || res.Applied != 3 {
		t.Fatalf("counts = %d/%d", res.Applied, res.Supplied)
	}

	res = AddDateRange(res, time.Unix(0, 0), time.Unix(100, 0))
	res = AddSearch(res, "fix", []string{"title"})
	if _, ok := Lookup(res.Filter, "$and"); !ok {
		t.Fatalf("expected $and after date range and search: %v", res.Filter)
	}
}
