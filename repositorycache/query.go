package repositorycache

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-repository-shardcache/cache"
)

// Op is a comparison operator of a query condition.
type Op string

const (
	OpEq        Op = "="
	OpNe        Op = "<>"
	OpGt        Op = ">"
	OpGte       Op = ">="
	OpLt        Op = "<"
	OpLte       Op = "<="
	OpIn        Op = "IN"
	OpLike      Op = "LIKE"
	OpIsNull    Op = "IS NULL"
	OpIsNotNull Op = "IS NOT NULL"
)

// Unary reports whether the operator takes no value.
func (o Op) Unary() bool { return o == OpIsNull || o == OpIsNotNull }

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpLike, OpIsNull, OpIsNotNull:
		return true
	}
	return false
}

// Condition is one predicate. Or joins it to the previous predicate with OR
// instead of AND; the first condition ignores it.
type Condition struct {
	Field string
	Op    Op
	Value any
	Or    bool
}

// Order sorts by Field, descending when Desc is set.
type Order struct {
	Field string
	Desc  bool
}

// QueryError reports an invalid query built by the caller.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string { return "invalid query: " + e.Reason }

// Query describes a filtered, ordered and paged read of one logical table.
// Builder methods record the first invalid input and Err reports it.
type Query struct {
	fields []string
	conds  []Condition
	orders []Order
	start  int
	limit  int
	err    error
}

// NewQuery returns an unfiltered, unpaged query.
func NewQuery() *Query {
	return &Query{start: -1, limit: -1}
}

// Where adds a condition joined with AND.
func (q *Query) Where(field string, op Op, value any) *Query {
	return q.add(Condition{Field: field, Op: op, Value: value})
}

// Or adds a condition joined with OR.
func (q *Query) Or(field string, op Op, value any) *Query {
	return q.add(Condition{Field: field, Op: op, Value: value, Or: true})
}

// Eq is shorthand for Where(field, OpEq, value).
func (q *Query) Eq(field string, value any) *Query {
	return q.Where(field, OpEq, value)
}

// In is shorthand for Where(field, OpIn, values).
func (q *Query) In(field string, values ...any) *Query {
	return q.Where(field, OpIn, values)
}

func (q *Query) add(c Condition) *Query {
	switch {
	case strings.TrimSpace(c.Field) == "":
		q.fail("condition field must not be empty")
	case !c.Op.valid():
		q.fail(fmt.Sprintf("unknown operator %q", c.Op))
	case c.Op == OpIn:
		rv := reflect.ValueOf(c.Value)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Len() == 0 {
			q.fail("IN on " + c.Field + " needs a non-empty list")
		}
	case c.Op.Unary():
		c.Value = nil
	}
	q.conds = append(q.conds, c)
	return q
}

// OrderBy sorts ascending by field.
func (q *Query) OrderBy(field string) *Query {
	q.orders = append(q.orders, Order{Field: field})
	return q
}

// OrderByDesc sorts descending by field.
func (q *Query) OrderByDesc(field string) *Query {
	q.orders = append(q.orders, Order{Field: field, Desc: true})
	return q
}

// Limit pages the result: skip start rows and return at most limit rows.
func (q *Query) Limit(start, limit int) *Query {
	if start < 0 {
		q.fail("limit start must not be negative")
		return q
	}
	if limit <= 0 {
		q.fail("limit must be greater than 0")
		return q
	}
	q.start, q.limit = start, limit
	return q
}

// Fields restricts the returned entities to the given fields; every other
// field is left at its zero value. Projection never affects caching.
func (q *Query) Fields(names ...string) *Query {
	q.fields = dedupeStrings(append(q.fields, names...))
	return q
}

// Err returns the first invalid input given to the builder.
func (q *Query) Err() error { return q.err }

// Conditions returns a copy of the conditions.
func (q *Query) Conditions() []Condition { return append([]Condition(nil), q.conds...) }

// Orders returns a copy of the ordering.
func (q *Query) Orders() []Order { return append([]Order(nil), q.orders...) }

// Page returns the paging window and whether one is set.
func (q *Query) Page() (start, limit int, ok bool) {
	return q.start, q.limit, q.limit > 0
}

// Projection returns the requested fields, nil meaning all.
func (q *Query) Projection() []string { return append([]string(nil), q.fields...) }

// Signature renders everything that affects the rows returned. Projection is
// left out so differently projected reads share cached results.
func (q *Query) Signature(b cache.SignatureBuilder) string {
	return b.Signature(q.conds, q.orders, q.start, q.limit)
}

func (q *Query) String() string {
	return cache.NewSignatureBuilder().Signature(q.fields, q.conds, q.orders, q.start, q.limit)
}

func (q *Query) fail(reason string) {
	if q.err == nil {
		q.err = &QueryError{Reason: reason}
	}
}

// Clone returns an independent copy of q.
func (q *Query) Clone() *Query {
	cp := *q
	cp.fields = append([]string(nil), q.fields...)
	cp.conds = append([]Condition(nil), q.conds...)
	cp.orders = append([]Order(nil), q.orders...)
	return &cp
}

// forShards returns the query each shard runs when results are merged
// afterwards: no projection, and a page that starts at 0 and covers the
// global window.
func (q *Query) forShards() *Query {
	cp := q.Clone()
	cp.fields = nil
	if start, limit, ok := q.Page(); ok {
		cp.start, cp.limit = 0, start+limit
	}
	return cp
}

func (q *Query) withoutProjection() *Query {
	if len(q.fields) == 0 {
		return q
	}
	cp := q.Clone()
	cp.fields = nil
	return cp
}
