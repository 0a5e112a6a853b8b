package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func latestVersion(t *testing.T) int {
	t.Helper()
	migs, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("no embedded migrations")
	}
	return migs[len(migs)-1].Version
}

func TestRunCreatesRecordsTable(t *testing.T) {
	db := openTestDB(t)
	if err := NewRunner(db).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"records", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRunner(db)

	if err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if want := latestVersion(t); cur != want || pending != 0 {
		t.Errorf("expected version=%d pending=0, got version=%d pending=%d", want, cur, pending)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRunner(db)

	migs, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != len(migs) {
		t.Errorf("expected version=0 pending=%d, got version=%d pending=%d", len(migs), cur, pending)
	}
}

func TestRecordsUniquePerOwnerAndExternalID(t *testing.T) {
	db := openTestDB(t)
	if err := NewRunner(db).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	insert := `INSERT INTO records (id, collection, user_id, external_id, doc, created_at, updated_at)
		VALUES (?, 'issues', 'u1', '42', '{}', current_timestamp::TIMESTAMP, current_timestamp::TIMESTAMP)`
	if _, err := db.Exec(insert, "a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, "b"); err == nil {
		t.Fatal("expected unique violation on duplicate (collection, user_id, external_id)")
	}
}
