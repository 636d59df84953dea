// Package remote talks to the system of record: a Supabase project reached
// through PostgREST.
package remote

import (
	"sort"
	"strings"
	"time"
)

// Op is a PostgREST comparison operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
	OpIs    Op = "is"
	OpNotIs Op = "not.is"
)

// Filter restricts a fetch to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  string
}

func (f Filter) String() string {
	return f.Column + "." + string(f.Op) + "." + f.Value
}

// Filters is a set of conjunctive filters.
type Filters []Filter

// Signature is a canonical, order-independent rendering of the set. Two
// filter sets with the same signature select the same rows.
func (fs Filters) Signature() string {
	if len(fs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, f.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Query describes one fetch. A nil Since asks for the whole matching
// collection.
type Query struct {
	Since   *time.Time
	Filters Filters
}

// SinceParam renders Since the way PostgREST expects it.
func (q Query) SinceParam() string {
	if q.Since == nil {
		return ""
	}
	return q.Since.UTC().Format(time.RFC3339Nano)
}
