package filterstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotTo(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := createFilter(t, store, "u1", "issues", "Open")

	dst := filepath.Join(t.TempDir(), "snapshots", "filters.db")
	if err := store.SnapshotTo(ctx, dst); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	copied, err := Open(ctx, Config{Path: dst})
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer copied.Close()
	got, err := copied.GetFilter(ctx, "u1", f.ID)
	if err != nil {
		t.Fatalf("GetFilter from snapshot: %v", err)
	}
	if got.Name != "Open" {
		t.Fatalf("name = %q, want Open", got.Name)
	}
}

func TestSnapshotToInMemory(t *testing.T) {
	store, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	err = store.SnapshotTo(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}
