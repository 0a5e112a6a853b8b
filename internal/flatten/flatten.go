// Package flatten turns nested documents into flat path→value maps for
// tabular display and field discovery.
package flatten

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Separator joins parent and child keys in a composite path.
const Separator = "_"

// Flatten converts one nested document into a flat mapping and the ordered
// list of leaf paths. Keys are visited in sorted order at every level, so the
// same input always yields the same output.
//
// Arrays whose first element is an object are represented by that first
// element only; heterogeneous arrays of objects therefore lose the shape of
// later elements. Any other array is JSON-encoded into one string leaf.
func Flatten(doc map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(doc))
	var paths []string
	walk(doc, "", func(path string, value any) {
		out[path] = value
		paths = append(paths, path)
	})
	return out, paths
}

// Documents flattens every document of a page.
func Documents(docs []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		flat, _ := Flatten(d)
		out = append(out, flat)
	}
	return out
}

// Paths returns the sorted union of leaf paths over the first n documents.
// n <= 0 means every document.
func Paths(docs []map[string]any, n int) []string {
	if n <= 0 || n > len(docs) {
		n = len(docs)
	}
	seen := make(map[string]struct{})
	for _, d := range docs[:n] {
		_, paths := Flatten(d)
		for _, p := range paths {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func walk(obj map[string]any, prefix string, emit func(string, any)) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + Separator + k
		}
		visit(path, obj[k], emit)
	}
}

func visit(path string, value any, emit func(string, any)) {
	if value == nil {
		emit(path, nil)
		return
	}
	if nested, ok := asObject(value); ok {
		walk(nested, path, emit)
		return
	}
	if items, ok := asSlice(value); ok {
		if len(items) > 0 {
			if first, ok := asObject(items[0]); ok {
				walk(first, path, emit)
				return
			}
		}
		emit(path, encodeArray(value))
		return
	}
	emit(path, value)
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	case []byte, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func encodeArray(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
