// Package filterstore persists saved filters in SQLite through GORM.
package filterstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements model.FilterStore on SQLite.
//
// The database is opened with a single connection, so every transaction
// runs alone. Activation relies on that to keep at most one active filter
// per owner and collection.
type Store struct {
	db   *gorm.DB
	path string
}

// Config holds SQLite settings for the filter store.
type Config struct {
	// Path of the database file. Empty opens an in-memory database.
	Path     string
	LogLevel logger.LogLevel
}

// Open opens the database, configures the pool and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create filter store dir: %w", err)
		}
		dsn = cfg.Path + "?_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database lives only as long as its connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := &Store{db: db, path: cfg.Path}
	if err := s.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the saved_filters table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.SavedFilter{}); err != nil {
		return fmt.Errorf("migrate filter store: %w", err)
	}
	return nil
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// ListFilters returns every filter of owner, newest first.
func (s *Store) ListFilters(ctx context.Context, owner string) ([]model.SavedFilter, error) {
	filters := make([]model.SavedFilter, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC, rowid DESC").
		Find(&filters).Error
	return filters, err
}

// GetFilter returns one filter of owner.
func (s *Store) GetFilter(ctx context.Context, owner, id string) (*model.SavedFilter, error) {
	var f model.SavedFilter
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).First(&f).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// CreateFilter stores f with a fresh id. New filters are always inactive.
func (s *Store) CreateFilter(ctx context.Context, f *model.SavedFilter) error {
	f.ID = uuid.NewString()
	f.IsActive = false
	return s.db.WithContext(ctx).Create(f).Error
}

// UpdateFilter applies patch to one filter of owner. Moving a filter to
// another collection deactivates it.
func (s *Store) UpdateFilter(ctx context.Context, owner, id string, patch model.FilterPatch) (*model.SavedFilter, error) {
	var out model.SavedFilter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, owner).First(&out).Error; err != nil {
			return notFound(err)
		}
		if patch.Name != nil {
			out.Name = *patch.Name
		}
		if patch.Description != nil {
			out.Description = *patch.Description
		}
		if patch.Collection != nil && *patch.Collection != out.Collection {
			out.Collection = *patch.Collection
			out.IsActive = false
		}
		if patch.Filters != nil {
			out.Filters = *patch.Filters
		}
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFilter removes one filter of owner.
func (s *Store) DeleteFilter(ctx context.Context, owner, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, owner).Delete(&model.SavedFilter{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", model.ErrFilterNotFound, id)
	}
	return nil
}

// ToggleFilter flips one filter. Activating sets is_active for the whole
// (owner, collection) group in one statement, so the target ends up the
// only active filter whatever else ran before.
func (s *Store) ToggleFilter(ctx context.Context, owner, id string) (*model.SavedFilter, error) {
	var out model.SavedFilter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f model.SavedFilter
		if err := tx.Where("id = ? AND user_id = ?", id, owner).First(&f).Error; err != nil {
			return notFound(err)
		}
		now := s.db.NowFunc()

		var res *gorm.DB
		if f.IsActive {
			res = tx.Model(&model.SavedFilter{}).
				Where("id = ?", f.ID).
				Updates(map[string]any{"is_active": false, "updated_at": now})
		} else {
			res = tx.Exec(`UPDATE saved_filters
				SET updated_at = CASE WHEN id = ? OR is_active THEN ? ELSE updated_at END,
				    is_active = (id = ?)
				WHERE user_id = ? AND collection = ?`,
				f.ID, now, f.ID, owner, f.Collection)
		}
		if res.Error != nil {
			return res.Error
		}
		return tx.Where("id = ?", f.ID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveFilters returns the active filters of owner for collection. The
// activation rule keeps this to at most one.
func (s *Store) ActiveFilters(ctx context.Context, owner, collection string) ([]model.SavedFilter, error) {
	filters := make([]model.SavedFilter, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND collection = ? AND is_active = ?", owner, collection, true).
		Order("updated_at DESC").
		Find(&filters).Error
	return filters, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrFilterNotFound
	}
	return err
}

var _ model.FilterStore = (*Store)(nil)
