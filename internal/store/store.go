// Package store implements the hierarchical document store the pipeline
// persists into. Documents live at paths of the form
// users/{uid}/{collection}/{id}; queries operate on the collection prefix.
// Backends: in-memory (tests/dev), local JSON files, Postgres (jsonb), and
// DynamoDB.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Update when no document exists at the
// path. Callers should test with errors.Is.
var ErrNotFound = fmt.Errorf("store: document not found")

// Op is a filter comparison operator.
type Op string

const (
	OpEq       Op = "=="
	OpGte      Op = ">="
	OpLte      Op = "<="
	OpContains Op = "contains" // array membership, or substring for strings
)

// Filter constrains a query on one document field.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Query selects documents from a collection. The supported shape mirrors a
// composite index: equality filters plus a single order-by field.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Store is the document CRUD surface all pipeline components persist
// through. Update performs an optimistic read-modify-write: the mutate
// callback receives the current document (nil raw when absent) and returns
// the replacement; concurrent writers lose with a consistency error after
// 3 internal retries.
type Store interface {
	Get(ctx context.Context, path string, out interface{}) error
	Put(ctx context.Context, path string, doc interface{}) error
	Update(ctx context.Context, path string, mutate func(raw json.RawMessage) (interface{}, error)) error
	Delete(ctx context.Context, path string) error
	QueryDocs(ctx context.Context, collection string, q Query) ([]json.RawMessage, error)
	Close() error
}

// Path joins path segments, validating none are empty.
func Path(segments ...string) string {
	for _, s := range segments {
		if s == "" {
			return ""
		}
	}
	return strings.Join(segments, "/")
}

// UserCollection returns the collection path for a user-scoped collection.
func UserCollection(userID, collection string) string {
	return Path("users", userID, collection)
}

// SplitPath returns the collection prefix and the trailing document ID.
func SplitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// matchFilters evaluates client-side filters against an unmarshalled
// document. Backends without native pushdown share this.
func matchFilters(doc map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc map[string]interface{}, f Filter) bool {
	val, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return compareValues(val, f.Value) == 0
	case OpGte:
		return compareValues(val, f.Value) >= 0
	case OpLte:
		return compareValues(val, f.Value) <= 0
	case OpContains:
		switch v := val.(type) {
		case []interface{}:
			want := fmt.Sprintf("%v", f.Value)
			for _, item := range v {
				if fmt.Sprintf("%v", item) == want {
					return true
				}
			}
			return false
		case string:
			return strings.Contains(strings.ToLower(v), strings.ToLower(fmt.Sprintf("%v", f.Value)))
		}
		return false
	}
	return false
}

// compareValues orders two JSON-decoded values. Numbers compare
// numerically, everything else compares as strings (RFC 3339 timestamps
// order correctly this way).
func compareValues(a, b interface{}) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case time.Time:
		return float64(n.UnixNano()), true
	}
	return 0, false
}

// sortDocs orders decoded documents by the query's order-by field.
func sortDocs(docs []map[string]interface{}, raws []json.RawMessage, q Query) {
	if q.OrderBy == "" {
		return
	}
	// Insertion sort keeps this dependency-free and stable; collections
	// queried here are bounded by Limit at the caller.
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0; j-- {
			c := compareValues(docs[j-1][q.OrderBy], docs[j][q.OrderBy])
			if (q.Desc && c >= 0) || (!q.Desc && c <= 0) {
				break
			}
			docs[j-1], docs[j] = docs[j], docs[j-1]
			raws[j-1], raws[j] = raws[j], raws[j-1]
		}
	}
}
