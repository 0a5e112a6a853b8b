package duckdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gitgrid/gitgrid/internal/model"
)

func TestSnapshotTo_CreatesBackupFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "gitgrid.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Upsert(ctx, "issues", "u1", "id", []model.Document{
		{"id": float64(1), "title": "snapshot test"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	if err := store.SnapshotTo(ctx, snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}
	if _, err := os.Stat(snapshotPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestSnapshotTo_InMemoryStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.SnapshotTo(context.Background(), filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}
