package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const recordColumns = "id, user_id, CAST(doc AS VARCHAR), version, created_at, updated_at"

// scope renders the WHERE clause for one collection plus filter.
func scope(collection string, filter bson.D) (string, []any, error) {
	cond, args, err := compileFilter(filter)
	if err != nil {
		return "", nil, err
	}
	return "WHERE collection = ? AND " + cond, append([]any{collection}, args...), nil
}

// Find returns one sorted page of documents.
func (s *Store) Find(ctx context.Context, collection string, opts model.FindOptions) ([]model.Document, error) {
	where, args, err := scope(collection, opts.Filter)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(opts.SortField, opts.SortDesc)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM records %s %s", recordColumns, where, order)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Skip > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Skip)
	}

	release, err := s.acquireRead(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]model.Document, 0)
	for rows.Next() {
		var (
			id, owner, raw       string
			version              int
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &owner, &raw, &version, &createdAt, &updatedAt); err != nil {
			log.Printf("duckdb scan error (Find): %v", err)
			continue
		}
		doc := make(model.Document)
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			log.Printf("duckdb decode error (Find) id=%s: %v", id, err)
			continue
		}
		doc[model.FieldID] = id
		doc[model.FieldOwner] = owner
		doc[model.FieldVersion] = version
		doc[model.FieldCreatedAt] = createdAt.UTC()
		doc[model.FieldUpdatedAt] = updatedAt.UTC()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of records matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter bson.D) (int64, error) {
	where, args, err := scope(collection, filter)
	if err != nil {
		return 0, err
	}

	release, err := s.acquireRead(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records "+where, args...).Scan(&n)
	return n, err
}

// TimeBounds returns the oldest and newest creation time among matches.
// Both are nil when nothing matches.
func (s *Store) TimeBounds(ctx context.Context, collection string, filter bson.D) (*time.Time, *time.Time, error) {
	where, args, err := scope(collection, filter)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.acquireRead(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var oldest, newest sql.NullTime
	err = s.db.QueryRowContext(ctx,
		"SELECT MIN(created_at), MAX(created_at) FROM records "+where, args...,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, nil, err
	}
	return nullTime(oldest), nullTime(newest), nil
}

// Upsert writes docs for owner. A document whose keyField matches an
// existing record of the same owner and collection replaces that record's
// body and bumps its version; documents without a key are skipped.
func (s *Store) Upsert(ctx context.Context, collection, owner, keyField string, docs []model.Document) (model.UpsertResult, error) {
	var res model.UpsertResult

	type pending struct {
		key  string
		body []byte
	}
	byKey := make(map[string]int)
	var batch []pending
	for _, doc := range docs {
		key, ok := externalKey(doc[keyField])
		if !ok {
			res.Skipped++
			continue
		}
		body, err := json.Marshal(stripBookkeeping(doc))
		if err != nil {
			res.Skipped++
			log.Printf("duckdb: skipping %s record %s: %v", collection, key, err)
			continue
		}
		// Last occurrence of a key within one batch wins.
		if i, dup := byKey[key]; dup {
			batch[i].body = body
			res.Skipped++
			continue
		}
		byKey[key] = len(batch)
		batch = append(batch, pending{key: key, body: body})
	}
	if len(batch) == 0 {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timestampLayout)
	for _, p := range batch {
		var id string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM records WHERE collection = ? AND user_id = ? AND external_id = ?",
			collection, owner, p.key,
		).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `INSERT INTO records
				(id, collection, user_id, external_id, doc, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, CAST(? AS TIMESTAMP), CAST(? AS TIMESTAMP))`,
				uuid.NewString(), collection, owner, p.key, string(p.body), now, now)
			if err != nil {
				return res, fmt.Errorf("insert %s/%s: %w", collection, p.key, err)
			}
			res.Inserted++
		case err != nil:
			return res, err
		default:
			_, err = tx.ExecContext(ctx,
				"UPDATE records SET doc = ?, version = version + 1, updated_at = CAST(? AS TIMESTAMP) WHERE id = ?",
				string(p.body), now, id)
			if err != nil {
				return res, fmt.Errorf("update %s/%s: %w", collection, p.key, err)
			}
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// Delete removes every record matching filter and reports how many went.
func (s *Store) Delete(ctx context.Context, collection string, filter bson.D) (int64, error) {
	where, args, err := scope(collection, filter)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, "DELETE FROM records "+where, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func stripBookkeeping(doc model.Document) model.Document {
	out := make(model.Document, len(doc))
	for k, v := range doc {
		if model.IsBookkeeping(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func externalKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
