package filterstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gitgrid/gitgrid/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "filters.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createFilter(t *testing.T, s *Store, owner, collection, name string) *model.SavedFilter {
	t.Helper()
	f := &model.SavedFilter{
		UserID:     owner,
		Collection: collection,
		Name:       name,
		IsActive:   true,
		Filters: model.FilterSpec{CustomFields: []model.CustomField{
			{Field: "state", Operator: model.OpEquals, Value: "open"},
		}},
	}
	if err := s.CreateFilter(context.Background(), f); err != nil {
		t.Fatalf("CreateFilter: %v", err)
	}
	return f
}

func activeCount(t *testing.T, s *Store, owner, collection string) int {
	t.Helper()
	active, err := s.ActiveFilters(context.Background(), owner, collection)
	if err != nil {
		t.Fatalf("ActiveFilters: %v", err)
	}
	return len(active)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := createFilter(t, s, "u1", "issues", "open issues")
	if f.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if f.IsActive {
		t.Fatal("new filters must be inactive")
	}

	got, err := s.GetFilter(ctx, "u1", f.ID)
	if err != nil {
		t.Fatalf("GetFilter: %v", err)
	}
	if got.Name != "open issues" || got.Collection != "issues" {
		t.Fatalf("unexpected filter: %+v", got)
	}
	if len(got.Filters.CustomFields) != 1 || got.Filters.CustomFields[0].Value != "open" {
		t.Fatalf("filters not round-tripped: %+v", got.Filters)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("createdAt not set")
	}

	if _, err := s.GetFilter(ctx, "u2", f.ID); !errors.Is(err, model.ErrFilterNotFound) {
		t.Fatalf("cross-owner get: err = %v, want ErrFilterNotFound", err)
	}
}

func TestListFiltersScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	createFilter(t, s, "u1", "issues", "first")
	createFilter(t, s, "u1", "pulls", "second")
	createFilter(t, s, "u2", "issues", "other")

	list, err := s.ListFilters(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name != "second" {
		t.Fatalf("newest first: got %q", list[0].Name)
	}

	empty, err := s.ListFilters(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}
}

func TestUpdateFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := createFilter(t, s, "u1", "issues", "before")
	if _, err := s.ToggleFilter(ctx, "u1", f.ID); err != nil {
		t.Fatalf("ToggleFilter: %v", err)
	}

	name := "after"
	updated, err := s.UpdateFilter(ctx, "u1", f.ID, model.FilterPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	if updated.Name != "after" || !updated.IsActive {
		t.Fatalf("rename should keep activation: %+v", updated)
	}

	collection := "pulls"
	moved, err := s.UpdateFilter(ctx, "u1", f.ID, model.FilterPatch{Collection: &collection})
	if err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	if moved.Collection != "pulls" || moved.IsActive {
		t.Fatalf("moving collection should deactivate: %+v", moved)
	}

	if _, err := s.UpdateFilter(ctx, "u2", f.ID, model.FilterPatch{Name: &name}); !errors.Is(err, model.ErrFilterNotFound) {
		t.Fatalf("cross-owner update: err = %v", err)
	}
}

func TestDeleteFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := createFilter(t, s, "u1", "issues", "x")

	if err := s.DeleteFilter(ctx, "u2", f.ID); !errors.Is(err, model.ErrFilterNotFound) {
		t.Fatalf("cross-owner delete: err = %v", err)
	}
	if err := s.DeleteFilter(ctx, "u1", f.ID); err != nil {
		t.Fatalf("DeleteFilter: %v", err)
	}
	if err := s.DeleteFilter(ctx, "u1", f.ID); !errors.Is(err, model.ErrFilterNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestToggleKeepsAtMostOneActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createFilter(t, s, "u1", "issues", "a")
	b := createFilter(t, s, "u1", "issues", "b")
	c := createFilter(t, s, "u1", "issues", "c")
	other := createFilter(t, s, "u1", "pulls", "other")
	foreign := createFilter(t, s, "u2", "issues", "foreign")

	if _, err := s.ToggleFilter(ctx, "u1", other.ID); err != nil {
		t.Fatalf("ToggleFilter: %v", err)
	}
	if _, err := s.ToggleFilter(ctx, "u2", foreign.ID); err != nil {
		t.Fatalf("ToggleFilter: %v", err)
	}

	steps := []struct {
		id         string
		wantActive bool
		wantCount  int
	}{
		{a.ID, true, 1},
		{b.ID, true, 1},
		{b.ID, false, 0},
		{c.ID, true, 1},
		{a.ID, true, 1},
		{a.ID, false, 0},
	}
	for i, step := range steps {
		got, err := s.ToggleFilter(ctx, "u1", step.id)
		if err != nil {
			t.Fatalf("step %d: ToggleFilter: %v", i, err)
		}
		if got.IsActive != step.wantActive {
			t.Fatalf("step %d: isActive = %v, want %v", i, got.IsActive, step.wantActive)
		}
		if n := activeCount(t, s, "u1", "issues"); n != step.wantCount {
			t.Fatalf("step %d: active count = %d, want %d", i, n, step.wantCount)
		}
	}

	if activeCount(t, s, "u1", "pulls") != 1 {
		t.Fatal("toggling issues filters must not touch pulls")
	}
	if activeCount(t, s, "u2", "issues") != 1 {
		t.Fatal("toggling must not touch another owner's filters")
	}

	if _, err := s.ToggleFilter(ctx, "u2", a.ID); !errors.Is(err, model.ErrFilterNotFound) {
		t.Fatalf("cross-owner toggle: err = %v", err)
	}
}

func TestConcurrentTogglesKeepAtMostOneActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		ids = append(ids, createFilter(t, s, "u1", "issues", name).ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*5)
	for round := 0; round < 5; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ToggleFilter(ctx, "u1", id); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ToggleFilter: %v", err)
	}

	if n := activeCount(t, s, "u1", "issues"); n > 1 {
		t.Fatalf("active count = %d after concurrent toggles, want at most 1", n)
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	createFilter(t, s, "u1", "issues", "mem")
	list, err := s.ListFilters(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
