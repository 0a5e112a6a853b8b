package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// GroupCount returns the value→count distribution of field over records
// matching filter. Missing and null values are excluded. Buckets are ordered
// by count descending, then by the insertion order of the first record
// carrying the value.
func (s *Store) GroupCount(ctx context.Context, collection string, filter bson.D, field string, limit int) ([]model.FacetValue, error) {
	ref, err := resolveField(field)
	if err != nil {
		return nil, err
	}
	where, args, err := scope(collection, filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = model.DefaultFacetLimit
	}

	query := fmt.Sprintf(`
		SELECT v, COUNT(*) AS cnt
		FROM (SELECT %s AS v, seq FROM records %s) AS matched
		WHERE v IS NOT NULL AND v <> 'null'
		GROUP BY v
		ORDER BY cnt DESC, MIN(seq) ASC
		LIMIT ?`, ref.raw, where)
	args = append(args, limit)

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

	results := make([]model.FacetValue, 0)
	for rows.Next() {
		var (
			raw   string
			count int64
		)
		if err := rows.Scan(&raw, &count); err != nil {
			log.Printf("duckdb scan error (GroupCount): %v", err)
			continue
		}
		results = append(results, model.FacetValue{Value: facetValue(raw, ref.json), Count: count})
	}
	return results, rows.Err()
}

func facetValue(raw string, isJSON bool) any {
	if !isJSON {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
