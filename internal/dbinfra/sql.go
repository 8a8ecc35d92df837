package dbinfra

import (
	"strings"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-shardcache/repositorycache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// stmt accumulates a raw statement and its placeholder arguments.
type stmt struct {
	b    strings.Builder
	args []any
}

func (s *stmt) add(sql string, args ...any) *stmt {
	s.b.WriteString(sql)
	s.args = append(s.args, args...)
	return s
}

func (s *stmt) idents(names []string) *stmt {
	for i, n := range names {
		if i > 0 {
			s.b.WriteString(", ")
		}
		s.add("?", bun.Ident(n))
	}
	return s
}

func (s *stmt) String() string { return s.b.String() }

// wherePKs matches any of pks. Single column keys use IN.
func (s *stmt) wherePKs(pks []shard.EntityPK) *stmt {
	s.b.WriteString(" WHERE ")
	if len(pks) > 0 && pks[0].Len() == 1 {
		values := make([]any, len(pks))
		for i, pk := range pks {
			values[i] = pk.Values()[0]
		}
		return s.add("? IN (?)", bun.Ident(pks[0].Names()[0]), bun.In(values))
	}
	for i, pk := range pks {
		if i > 0 {
			s.b.WriteString(" OR ")
		}
		s.b.WriteByte('(')
		for j, f := range pk.Fields() {
			if j > 0 {
				s.b.WriteString(" AND ")
			}
			s.add("? = ?", bun.Ident(f.Name), f.Value)
		}
		s.b.WriteByte(')')
	}
	return s
}

// where renders the query conditions, joined left to right.
func (s *stmt) where(q *repositorycache.Query) *stmt {
	conds := q.Conditions()
	if len(conds) == 0 {
		return s
	}
	s.b.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			if c.Or {
				s.b.WriteString(" OR ")
			} else {
				s.b.WriteString(" AND ")
			}
		}
		switch {
		case c.Op.Unary():
			s.add("? "+string(c.Op), bun.Ident(c.Field))
		case c.Op == repositorycache.OpIn:
			s.add("? IN (?)", bun.Ident(c.Field), bun.In(c.Value))
		default:
			s.add("? "+string(c.Op)+" ?", bun.Ident(c.Field), c.Value)
		}
	}
	return s
}

// tail renders ordering and paging.
func (s *stmt) tail(q *repositorycache.Query) *stmt {
	for i, o := range q.Orders() {
		if i == 0 {
			s.b.WriteString(" ORDER BY ")
		} else {
			s.b.WriteString(", ")
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		s.add("?"+dir, bun.Ident(o.Field))
	}
	if start, limit, ok := q.Page(); ok {
		s.add(" LIMIT ? OFFSET ?", limit, start)
	}
	return s
}
