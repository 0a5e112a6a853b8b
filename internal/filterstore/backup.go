package filterstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInMemoryStore indicates the store has no database file to snapshot.
var ErrInMemoryStore = errors.New("filterstore: in-memory store cannot be snapshotted")

// DBPath returns the database file path. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.path
}

// SnapshotTo writes a consistent copy of the database to dstPath with
// VACUUM INTO. An existing file at dstPath is replaced.
func (s *Store) SnapshotTo(ctx context.Context, dstPath string) error {
	if s.path == "" {
		return ErrInMemoryStore
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := dstPath + ".tmp"
	_ = os.Remove(tmp)
	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", tmp).Error; err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	return os.Rename(tmp, dstPath)
}
