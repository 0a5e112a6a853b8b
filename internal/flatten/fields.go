package flatten

import (
	"sort"
	"strings"
	"time"
)

// FieldType is the display type inferred for a field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeNull    FieldType = "null"
)

// FieldDescriptor describes one leaf path discovered from sample records.
type FieldDescriptor struct {
	Path     string    `json:"field"`
	Type     FieldType `json:"type"`
	TopLevel bool      `json:"topLevel"`
}

// Searchable reports whether free-text search may run over the field.
func (f FieldDescriptor) Searchable() bool {
	return f.TopLevel && f.Type == TypeString
}

// Column is a grid column definition for one top-level field.
type Column struct {
	Field      string    `json:"field"`
	HeaderName string    `json:"headerName"`
	Type       FieldType `json:"type"`
	Sortable   bool      `json:"sortable"`
	Filter     bool      `json:"filter"`
	Resizable  bool      `json:"resizable"`
	Width      int       `json:"width"`
	Renderer   string    `json:"cellRenderer,omitempty"`
}

// InferFields discovers the leaf fields of the samples, in path order. When
// samples disagree on a field's type the first non-null observation wins.
func InferFields(samples []map[string]any) []FieldDescriptor {
	byPath := make(map[string]*FieldDescriptor)
	for _, doc := range samples {
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			topType := TypeOf(doc[k])
			if topType != TypeObject && !isObjectArray(doc[k]) {
				record(byPath, k, topType, true)
				continue
			}
			visit(k, doc[k], func(path string, value any) {
				record(byPath, path, TypeOf(value), false)
			})
		}
	}

	out := make([]FieldDescriptor, 0, len(byPath))
	for _, d := range byPath {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SearchFields returns the paths of the searchable descriptors.
func SearchFields(fields []FieldDescriptor) []string {
	var out []string
	for _, f := range fields {
		if f.Searchable() {
			out = append(out, f.Path)
		}
	}
	return out
}

// Columns builds grid column definitions from the top-level keys of one
// sample record, skipping internal fields.
func Columns(sample map[string]any, internal func(string) bool) []Column {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		if internal != nil && internal(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		typ := TypeOf(sample[k])
		if typ == TypeNull {
			typ = TypeString
		}
		cols = append(cols, Column{
			Field:      k,
			HeaderName: HeaderName(k),
			Type:       typ,
			Sortable:   true,
			Filter:     true,
			Resizable:  true,
			Width:      ColumnWidth(typ, k),
			Renderer:   renderers[typ],
		})
	}
	return cols
}

var renderers = map[FieldType]string{
	TypeDate:    "dateRenderer",
	TypeBoolean: "booleanRenderer",
	TypeArray:   "arrayRenderer",
	TypeObject:  "objectRenderer",
}

// HeaderName capitalises the first letter and turns underscores into spaces.
func HeaderName(key string) string {
	if key == "" {
		return ""
	}
	return strings.ToUpper(key[:1]) + strings.ReplaceAll(key[1:], "_", " ")
}

var namedWidths = map[string]int{
	"id":          100,
	"login":       120,
	"name":        200,
	"full_name":   250,
	"email":       200,
	"url":         300,
	"html_url":    300,
	"avatar_url":  300,
	"description": 300,
	"message":     400,
	"title":       300,
	"body":        400,
	"sha":         120,
	"state":       100,
	"number":      80,
}

var typeWidths = map[FieldType]int{
	TypeDate:    180,
	TypeNumber:  120,
	TypeBoolean: 100,
	TypeArray:   200,
	TypeObject:  250,
}

// ColumnWidth picks a grid width by field name first, then by type.
func ColumnWidth(typ FieldType, key string) int {
	if w, ok := namedWidths[key]; ok {
		return w
	}
	if w, ok := typeWidths[typ]; ok {
		return w
	}
	return 200
}

// TypeOf classifies a raw document value. RFC 3339 strings count as dates.
func TypeOf(v any) FieldType {
	switch t := v.(type) {
	case nil:
		return TypeNull
	case string:
		if looksLikeTime(t) {
			return TypeDate
		}
		return TypeString
	case bool:
		return TypeBoolean
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return TypeNumber
	case time.Time, *time.Time:
		return TypeDate
	case map[string]any:
		return TypeObject
	}
	if _, ok := asSlice(v); ok {
		return TypeArray
	}
	return TypeString
}

func isObjectArray(v any) bool {
	items, ok := asSlice(v)
	if !ok || len(items) == 0 {
		return false
	}
	_, ok = asObject(items[0])
	return ok
}

func looksLikeTime(s string) bool {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return false
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func record(byPath map[string]*FieldDescriptor, path string, typ FieldType, top bool) {
	d, ok := byPath[path]
	if !ok {
		byPath[path] = &FieldDescriptor{Path: path, Type: typ, TopLevel: top}
		return
	}
	if d.Type == TypeNull && typ != TypeNull {
		d.Type = typ
	}
}
