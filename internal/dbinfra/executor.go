package dbinfra

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-repository-shardcache/repositorycache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// Executor runs repository statements with bun. Rows of T are mapped with
// bun struct tags; the physical table name comes from the resource.
type Executor[T any] struct {
	dbs *Databases
	pk  func(T) shard.EntityPK
}

// NewExecutor returns an executor over dbs. pk extracts the primary key of a
// row and must agree with the bun pk columns of T.
func NewExecutor[T any](dbs *Databases, pk func(T) shard.EntityPK) *Executor[T] {
	return &Executor[T]{dbs: dbs, pk: pk}
}

// Acquire opens a session on res. When ctx carries a *Tx that enlisted the
// resource's handle, the session runs inside that transaction.
func (e *Executor[T]) Acquire(ctx context.Context, res shard.Resource) (repositorycache.Session[T], error) {
	db, err := e.dbs.DB(res.Handle)
	if err != nil {
		return nil, err
	}
	s := &session[T]{
		table: res.PhysicalTable(),
		meta:  db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem()),
		pk:    e.pk,
	}
	if tx, ok := repositorycache.TransactionFrom(ctx).(*Tx); ok {
		if btx, ok := tx.conn(res.Handle); ok {
			s.idb = btx
			return s, nil
		}
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire connection to %s", res.Handle)
	}
	s.idb = conn
	s.release = conn.Close
	return s, nil
}

var _ repositorycache.Executor[struct{}] = (*Executor[struct{}])(nil)

type session[T any] struct {
	idb     bun.IDB
	release func() error
	table   string
	meta    *schema.Table
	pk      func(T) shard.EntityPK
}

func (s *session[T]) SelectByPks(ctx context.Context, pks []shard.EntityPK) ([]T, error) {
	q := new(stmt).add("SELECT * FROM ?", bun.Ident(s.table)).wherePKs(pks)
	var rows []T
	if err := s.idb.NewRaw(q.String(), q.args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *session[T]) SelectPksByQuery(ctx context.Context, query *repositorycache.Query) ([]shard.EntityPK, error) {
	q := new(stmt).add("SELECT ").idents(s.pkColumns())
	q.add(" FROM ?", bun.Ident(s.table)).where(query).tail(query)
	var rows []T
	if err := s.idb.NewRaw(q.String(), q.args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]shard.EntityPK, len(rows))
	for i, row := range rows {
		out[i] = s.pk(row)
	}
	return out, nil
}

func (s *session[T]) SelectByQuery(ctx context.Context, query *repositorycache.Query) ([]T, error) {
	q := new(stmt).add("SELECT * FROM ?", bun.Ident(s.table)).where(query).tail(query)
	var rows []T
	if err := s.idb.NewRaw(q.String(), q.args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *session[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.idb.NewRaw("SELECT count(*) FROM ?", bun.Ident(s.table)).Scan(ctx, &n)
	return n, err
}

func (s *session[T]) CountByQuery(ctx context.Context, query *repositorycache.Query) (int64, error) {
	q := new(stmt).add("SELECT count(*) FROM ?", bun.Ident(s.table)).where(query)
	var n int64
	err := s.idb.NewRaw(q.String(), q.args...).Scan(ctx, &n)
	return n, err
}

func (s *session[T]) Insert(ctx context.Context, rows []T) error {
	_, err := s.idb.NewInsert().
		Model(&rows).
		ModelTableExpr("?", bun.Ident(s.table)).
		Exec(ctx)
	return err
}

func (s *session[T]) Update(ctx context.Context, rows []T) error {
	for _, row := range rows {
		rv := reflect.ValueOf(row)
		q := new(stmt).add("UPDATE ? SET ", bun.Ident(s.table))
		for i, f := range s.meta.DataFields {
			if i > 0 {
				q.add(", ")
			}
			q.add("? = ?", bun.Ident(f.Name), f.Value(rv).Interface())
		}
		q.wherePKs([]shard.EntityPK{s.pk(row)})
		if _, err := s.idb.NewRaw(q.String(), q.args...).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *session[T]) Delete(ctx context.Context, pks []shard.EntityPK) (int64, error) {
	q := new(stmt).add("DELETE FROM ?", bun.Ident(s.table)).wherePKs(pks)
	res, err := s.idb.NewRaw(q.String(), q.args...).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *session[T]) Close() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

func (s *session[T]) pkColumns() []string {
	names := make([]string, len(s.meta.PKs))
	for i, f := range s.meta.PKs {
		names[i] = f.Name
	}
	return names
}

// CreateTable creates the physical table of res for T if it does not exist.
func CreateTable[T any](ctx context.Context, dbs *Databases, res shard.Resource) error {
	db, err := dbs.DB(res.Handle)
	if err != nil {
		return err
	}
	_, err = db.NewCreateTable().
		Model((*T)(nil)).
		ModelTableExpr("?", bun.Ident(res.PhysicalTable())).
		IfNotExists().
		Exec(ctx)
	return errors.Wrapf(err, "create table %s on %s", res.PhysicalTable(), res.Handle)
}
