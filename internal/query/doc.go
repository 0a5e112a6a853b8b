package query

import (
	"regexp"

	"github.com/gitgrid/gitgrid/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// fieldPattern accepts dotted document paths made of plain key segments.
var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)*$`)

// ValidField reports whether name can be used as a document path.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Set replaces the value of key in place, or appends it.
func Set(d bson.D, key string, value any) bson.D {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: value})
}

// Lookup returns the value stored under key.
func Lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Remove drops key from d.
func Remove(d bson.D, key string) bson.D {
	out := d[:0]
	for _, e := range d {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func clone(d bson.D) bson.D {
	out := make(bson.D, len(d))
	copy(out, d)
	return out
}

// Owner returns the base predicate scoping reads to one owner, optionally
// narrowed to one repository.
func Owner(owner string, repositoryID any) bson.D {
	d := bson.D{{Key: model.FieldOwner, Value: owner}}
	if repositoryID != nil {
		d = append(d, bson.E{Key: model.FieldRepositoryID, Value: repositoryID})
	}
	return d
}
