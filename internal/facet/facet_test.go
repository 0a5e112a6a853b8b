package facet

import (
	"context"
	"errors"
	"testing"

	"github.com/gitgrid/gitgrid/internal/duckdb"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/registry"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type fakeCounter struct {
	fail map[string]error
}

func (f fakeCounter) GroupCount(_ context.Context, _ bson.D, field string, limit int) ([]model.FacetValue, error) {
	if err := f.fail[field]; err != nil {
		return nil, err
	}
	return []model.FacetValue{{Value: field, Count: int64(limit)}}, nil
}

func newIssues(t *testing.T) *registry.Handle {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h, err := registry.New(store).Resolve("issues")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	docs := []model.Document{
		{"id": float64(1), "state": "closed", "labels": []any{"bug"}, "user": map[string]any{"login": "a"}},
		{"id": float64(2), "state": "open", "user": map[string]any{"login": "b"}},
		{"id": float64(3), "state": "closed", "user": map[string]any{"login": "b"}},
		{"id": float64(4), "state": "open", "user": map[string]any{"login": "c"}},
		{"id": float64(5), "state": "merged"},
		{"id": float64(6), "state": nil},
		{"id": float64(7), "locked": true},
	}
	if _, err := h.Upsert(context.Background(), "u1", docs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := h.Upsert(context.Background(), "u2", []model.Document{{"id": float64(1), "state": "open"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return h
}

func sortedByCount(values []model.FacetValue) bool {
	for i := 1; i < len(values); i++ {
		if values[i].Count > values[i-1].Count {
			return false
		}
	}
	return true
}

func TestComputeOrderingAndTieBreak(t *testing.T) {
	h := newIssues(t)
	owner := bson.D{{Key: model.FieldOwner, Value: "u1"}}

	res := Compute(context.Background(), h, owner, []string{"state", "user.login", "locked"}, 0)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	state := res.Counts["state"]
	// closed and open both have two records; closed was seen first.
	want := []model.FacetValue{{Value: "closed", Count: 2}, {Value: "open", Count: 2}, {Value: "merged", Count: 1}}
	if len(state) != len(want) {
		t.Fatalf("state facet = %v, want %v", state, want)
	}
	for i := range want {
		if state[i] != want[i] {
			t.Fatalf("state facet = %v, want %v", state, want)
		}
	}

	logins := res.Counts["user.login"]
	if len(logins) != 3 || logins[0].Value != "b" || logins[0].Count != 2 || logins[1].Value != "a" {
		t.Fatalf("user.login facet = %v", logins)
	}

	locked := res.Counts["locked"]
	if len(locked) != 1 || locked[0].Value != true {
		t.Fatalf("locked facet = %v", locked)
	}

	for field, values := range res.Counts {
		if !sortedByCount(values) {
			t.Errorf("%s facet is not sorted by count: %v", field, values)
		}
	}
}

func TestComputeRespectsPredicateAndLimit(t *testing.T) {
	h := newIssues(t)
	filter := bson.D{
		{Key: model.FieldOwner, Value: "u1"},
		{Key: "state", Value: bson.D{{Key: "$in", Value: bson.A{"open", "merged"}}}},
	}

	res := Compute(context.Background(), h, filter, []string{"state"}, 1)
	state := res.Counts["state"]
	if len(state) != 1 || state[0].Value != "open" || state[0].Count != 2 {
		t.Fatalf("state facet = %v", state)
	}
}

func TestComputeIsolatesFieldErrors(t *testing.T) {
	c := fakeCounter{fail: map[string]error{"bad": errors.New("boom")}}

	res := Compute(context.Background(), c, nil, []string{"good", "bad", " good ", ""}, 5)
	if len(res.Counts) != 1 {
		t.Fatalf("counts = %v, want only good", res.Counts)
	}
	if got := res.Counts["good"]; len(got) != 1 || got[0].Count != 5 {
		t.Fatalf("good facet = %v", got)
	}
	if res.Errors["bad"] != "boom" {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestComputeInvalidFieldIsReportedPerField(t *testing.T) {
	h := newIssues(t)
	res := Compute(context.Background(), h, nil, []string{"state", "bad field"}, 0)
	if _, ok := res.Errors["bad field"]; !ok {
		t.Fatalf("expected error for invalid field, got %v", res.Errors)
	}
	if len(res.Counts["state"]) == 0 {
		t.Fatal("valid field should still be counted")
	}
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"state", []string{"state"}},
		{"state, user.login,,state", []string{"state", "user.login"}},
	}
	for _, tt := range tests {
		got := ParseFields(tt.raw)
		if len(got) != len(tt.want) {
			t.Fatalf("ParseFields(%q) = %v, want %v", tt.raw, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("ParseFields(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		}
	}
}
