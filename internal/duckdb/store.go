package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gitgrid/gitgrid/internal/duckdb/migrate"
	"golang.org/x/sync/semaphore"
)

// Store keeps every collection's records as JSON documents in one DuckDB
// table and answers filter, count and facet queries over them.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	reads        *semaphore.Weighted
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	if err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// SetMaxConcurrentQueries caps the number of reads running at once.
// n <= 0 removes the cap.
func (s *Store) SetMaxConcurrentQueries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		s.reads = nil
		return
	}
	s.reads = semaphore.NewWeighted(int64(n))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// queryCtx derives a context bounded by the store's query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}

// acquireRead takes a read slot and the read lock. The returned func
// releases both.
func (s *Store) acquireRead(ctx context.Context) (func(), error) {
	s.mu.RLock()
	sem := s.reads
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.mu.RUnlock()
			return nil, err
		}
	}
	return func() {
		if sem != nil {
			sem.Release(1)
		}
		s.mu.RUnlock()
	}, nil
}
