package duckdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const timestampLayout = "2006-01-02 15:04:05.999999"

// fieldRef holds the SQL expressions used to read one document path.
type fieldRef struct {
	text   string // VARCHAR value
	num    string // DOUBLE value
	ts     string // TIMESTAMP value
	exists string // present, even if null
	isNull string // missing or null
	raw    string // value used for grouping
	order  string // ORDER BY expression for columns
	json   bool   // raw is JSON text
}

func columnRef(col string, typ string) fieldRef {
	ref := fieldRef{
		text:   col,
		num:    fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", col),
		ts:     fmt.Sprintf("TRY_CAST(%s AS TIMESTAMP)", col),
		exists: col + " IS NOT NULL",
		isNull: col + " IS NULL",
		raw:    col,
		order:  col,
	}
	switch typ {
	case "timestamp":
		ref.text = fmt.Sprintf("strftime(%s, '%%Y-%%m-%%dT%%H:%%M:%%S.%%fZ')", col)
		ref.ts = col
		ref.raw = ref.text
	case "integer":
		ref.text = fmt.Sprintf("CAST(%s AS VARCHAR)", col)
		ref.num = fmt.Sprintf("CAST(%s AS DOUBLE)", col)
		ref.raw = ref.text
	}
	return ref
}

var bookkeepingColumns = map[string]fieldRef{
	model.FieldID:        columnRef("id", "varchar"),
	model.FieldOwner:     columnRef("user_id", "varchar"),
	model.FieldCreatedAt: columnRef("created_at", "timestamp"),
	model.FieldUpdatedAt: columnRef("updated_at", "timestamp"),
	model.FieldVersion:   columnRef("version", "integer"),
}

// resolveField maps a document path to SQL. Dotted paths descend into
// nested objects; arrays are not traversed.
func resolveField(field string) (fieldRef, error) {
	if ref, ok := bookkeepingColumns[field]; ok {
		return ref, nil
	}
	if !query.ValidField(field) {
		return fieldRef{}, fmt.Errorf("invalid field name %q", field)
	}

	segments := strings.Split(field, ".")
	for i, seg := range segments {
		segments[i] = `"` + seg + `"`
	}
	path := "'$." + strings.Join(segments, ".") + "'"
	text := fmt.Sprintf("json_extract_string(doc, %s)", path)
	return fieldRef{
		text:   text,
		num:    fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", text),
		ts:     fmt.Sprintf("TRY_CAST(%s AS TIMESTAMP)", text),
		exists: fmt.Sprintf("json_extract(doc, %s) IS NOT NULL", path),
		isNull: fmt.Sprintf("COALESCE(json_type(doc, %s), 'NULL') = 'NULL'", path),
		raw:    fmt.Sprintf("CAST(json_extract(doc, %s) AS VARCHAR)", path),
		json:   true,
	}, nil
}

// compiler turns a filter document into a SQL condition with positional args.
type compiler struct {
	args []any
}

// compileFilter returns a boolean SQL expression for filter.
func compileFilter(filter bson.D) (string, []any, error) {
	c := &compiler{}
	cond, err := c.doc(filter)
	if err != nil {
		return "", nil, err
	}
	return cond, c.args, nil
}

func (c *compiler) doc(d bson.D) (string, error) {
	if len(d) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(d))
	for _, e := range d {
		part, err := c.elem(e.Key, e.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinConds(parts, "AND"), nil
}

func (c *compiler) elem(key string, value any) (string, error) {
	switch key {
	case "$and", "$or", "$nor":
		list, err := subDocs(key, value)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "", fmt.Errorf("%s needs at least one clause", key)
		}
		parts := make([]string, 0, len(list))
		for _, sub := range list {
			part, err := c.doc(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		if key == "$and" {
			return joinConds(parts, "AND"), nil
		}
		or := joinConds(parts, "OR")
		if key == "$nor" {
			return "NOT " + or, nil
		}
		return or, nil
	}
	if strings.HasPrefix(key, "$") {
		return "", fmt.Errorf("unsupported operator %s", key)
	}

	ref, err := resolveField(key)
	if err != nil {
		return "", err
	}
	return c.fieldCond(ref, value)
}

func (c *compiler) fieldCond(ref fieldRef, value any) (string, error) {
	switch v := value.(type) {
	case bson.Regex:
		return c.regex(ref, v.Pattern, v.Options), nil
	case bson.D:
		if len(v) == 0 || !strings.HasPrefix(v[0].Key, "$") {
			return "", fmt.Errorf("embedded document equality is not supported")
		}
		return c.operators(ref, v)
	}
	return c.eq(ref, value)
}

func (c *compiler) operators(ref fieldRef, ops bson.D) (string, error) {
	parts := make([]string, 0, len(ops))
	var regexOptions string
	if opt, ok := query.Lookup(ops, "$options"); ok {
		regexOptions, _ = opt.(string)
	}

	for _, op := range ops {
		var (
			part string
			err  error
		)
		switch op.Key {
		case "$eq":
			part, err = c.eq(ref, op.Value)
		case "$ne":
			part, err = c.eq(ref, op.Value)
			part = "NOT " + part
		case "$gt", "$gte", "$lt", "$lte":
			part, err = c.compare(ref, op.Key, op.Value)
		case "$in", "$nin":
			part, err = c.in(ref, op.Value)
			if op.Key == "$nin" {
				part = "NOT " + part
			}
		case "$exists":
			want, ok := op.Value.(bool)
			if !ok {
				return "", fmt.Errorf("$exists needs a boolean")
			}
			if want {
				part = "(" + ref.exists + ")"
			} else {
				part = "NOT (" + ref.exists + ")"
			}
		case "$regex":
			switch p := op.Value.(type) {
			case string:
				part = c.regex(ref, p, regexOptions)
			case bson.Regex:
				part = c.regex(ref, p.Pattern, p.Options)
			default:
				return "", fmt.Errorf("$regex needs a pattern")
			}
		case "$options":
			continue
		default:
			return "", fmt.Errorf("unsupported operator %s", op.Key)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinConds(parts, "AND"), nil
}

// eq compares with the value's own type. Every comparison is wrapped in
// COALESCE so negation treats missing fields as "not equal".
func (c *compiler) eq(ref fieldRef, value any) (string, error) {
	if value == nil {
		return "(" + ref.isNull + ")", nil
	}
	expr, arg, err := typedOperand(ref, value)
	if err != nil {
		return "", err
	}
	c.args = append(c.args, arg)
	return fmt.Sprintf("COALESCE(%s = %s, FALSE)", expr, placeholder(value)), nil
}

func (c *compiler) compare(ref fieldRef, op string, value any) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%s needs a value", op)
	}
	expr, arg, err := typedOperand(ref, value)
	if err != nil {
		return "", err
	}
	sqlOp := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[op]
	c.args = append(c.args, arg)
	return fmt.Sprintf("COALESCE(%s %s %s, FALSE)", expr, sqlOp, placeholder(value)), nil
}

func (c *compiler) in(ref fieldRef, value any) (string, error) {
	var items []any
	switch v := value.(type) {
	case bson.A:
		items = v
	case []any:
		items = v
	default:
		return "", fmt.Errorf("$in needs a list")
	}
	if len(items) == 0 {
		return "FALSE", nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		part, err := c.eq(ref, item)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinConds(parts, "OR"), nil
}

func (c *compiler) regex(ref fieldRef, pattern, options string) string {
	c.args = append(c.args, pattern)
	flags := "c"
	if strings.Contains(options, "i") {
		flags = "i"
	}
	return fmt.Sprintf("COALESCE(regexp_matches(%s, ?, '%s'), FALSE)", ref.text, flags)
}

// typedOperand picks the field expression matching value's type and the
// bound argument to compare it with.
func typedOperand(ref fieldRef, value any) (string, any, error) {
	switch v := value.(type) {
	case string:
		return ref.text, v, nil
	case bool:
		if v {
			return ref.text, "true", nil
		}
		return ref.text, "false", nil
	case float64:
		return ref.num, v, nil
	case float32:
		return ref.num, float64(v), nil
	case int:
		return ref.num, float64(v), nil
	case int32:
		return ref.num, float64(v), nil
	case int64:
		return ref.num, float64(v), nil
	case uint:
		return ref.num, float64(v), nil
	case uint32:
		return ref.num, float64(v), nil
	case uint64:
		return ref.num, float64(v), nil
	case time.Time:
		return ref.ts, v.UTC().Format(timestampLayout), nil
	}
	return "", nil, fmt.Errorf("unsupported value type %T", value)
}

func placeholder(value any) string {
	if _, ok := value.(time.Time); ok {
		return "CAST(? AS TIMESTAMP)"
	}
	return "?"
}

func subDocs(key string, value any) ([]bson.D, error) {
	var items []any
	switch v := value.(type) {
	case bson.A:
		items = v
	case []any:
		items = v
	case []bson.D:
		return v, nil
	default:
		return nil, fmt.Errorf("%s needs a list of documents", key)
	}
	out := make([]bson.D, 0, len(items))
	for _, item := range items {
		d, ok := item.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s needs a list of documents", key)
		}
		out = append(out, d)
	}
	return out, nil
}

func joinConds(parts []string, op string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// orderBy renders the ORDER BY clause. Insertion order breaks ties.
func orderBy(field string, desc bool) (string, error) {
	if field == "" {
		return "ORDER BY seq ASC", nil
	}
	ref, err := resolveField(field)
	if err != nil {
		return "", err
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if !ref.json {
		return fmt.Sprintf("ORDER BY %s %s NULLS LAST, seq ASC", ref.order, dir), nil
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, %s %s NULLS LAST, seq ASC", ref.num, dir, ref.text, dir), nil
}
