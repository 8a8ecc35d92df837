package repositorycache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// ErrNoIDGenerator is returned when rows need generated ids and the
// repository has no IDGenerator.
var ErrNoIDGenerator = errors.New("repositorycache: rows need ids but no id generator is configured")

// Insert writes rows to key's master shard and returns them with generated
// ids assigned. The new entities are cached, the cached count grows by the
// number of rows and cached query results of the shard are invalidated.
func (r *Repository[T]) Insert(ctx context.Context, key shard.ShardingKey, rows ...T) ([]T, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	res, err := r.resolve(key, shard.Master())
	if err != nil {
		return nil, err
	}
	rows = append([]T(nil), rows...)
	if err := r.assignIDs(ctx, res, rows); err != nil {
		return nil, err
	}

	err = r.write(ctx, "insert", res, func(s Session[T]) error {
		return s.Insert(ctx, rows)
	}, func(ctx context.Context) {
		if r.primaryOn(ctx) {
			r.cacheRows(ctx, res, rows)
			r.primary.IncrCount(ctx, res, int64(len(rows)))
		}
		r.invalidate(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Update writes rows to key's master shard and evicts their cached copies.
func (r *Repository[T]) Update(ctx context.Context, key shard.ShardingKey, rows ...T) error {
	if len(rows) == 0 {
		return nil
	}
	res, err := r.resolve(key, shard.Master())
	if err != nil {
		return err
	}
	pks := make([]shard.EntityPK, len(rows))
	for i, row := range rows {
		pks[i] = r.model.PK(row)
	}

	return r.write(ctx, "update", res, func(s Session[T]) error {
		return s.Update(ctx, rows)
	}, func(ctx context.Context) {
		if r.primaryOn(ctx) {
			r.entities.Remove(ctx, res, pks)
		}
		r.invalidate(ctx, res)
	})
}

// Delete removes the rows with pks from key's master shard and returns the
// number of rows deleted.
func (r *Repository[T]) Delete(ctx context.Context, key shard.ShardingKey, pks ...shard.EntityPK) (int64, error) {
	if len(pks) == 0 {
		return 0, nil
	}
	res, err := r.resolve(key, shard.Master())
	if err != nil {
		return 0, err
	}
	pks = uniquePKs(pks)

	var affected int64
	err = r.write(ctx, "delete", res, func(s Session[T]) error {
		var err error
		affected, err = s.Delete(ctx, pks)
		return err
	}, func(ctx context.Context) {
		if r.primaryOn(ctx) {
			r.entities.Remove(ctx, res, pks)
			if affected > 0 {
				r.primary.DecrCount(ctx, res, affected)
			}
		}
		r.invalidate(ctx, res)
	})
	return affected, err
}

// write runs the statement and then the cache maintenance. Inside a
// transaction the resource is enlisted first and the maintenance waits for
// the commit.
func (r *Repository[T]) write(ctx context.Context, op string, res shard.Resource, stmt func(Session[T]) error, maintain func(context.Context)) error {
	tx := TransactionFrom(ctx)
	if tx != nil {
		if err := tx.Enlist(ctx, res); err != nil {
			return r.fail(ctx, op, res, errors.Wrap(err, "enlist"))
		}
	}
	if err := r.withSession(ctx, op, res, r.cfg.SlowQuery.PKs, stmt); err != nil {
		return err
	}
	if tx != nil {
		bypass := cacheBypassed(ctx)
		tx.OnCommit(func(cctx context.Context) {
			if bypass {
				cctx = WithoutCache(cctx)
			}
			maintain(cctx)
		})
		return nil
	}
	maintain(ctx)
	return nil
}

func (r *Repository[T]) invalidate(ctx context.Context, res shard.Resource) {
	if r.secondOn(ctx) {
		r.results.Invalidate(ctx, res)
	}
}

func (r *Repository[T]) assignIDs(ctx context.Context, res shard.Resource, rows []T) error {
	if r.model.NeedsID == nil || r.model.SetID == nil {
		return nil
	}
	var idx []int
	for i, row := range rows {
		if r.model.NeedsID(row) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	if r.ids == nil {
		return ErrNoIDGenerator
	}
	ids, err := r.ids.NextIDs(ctx, res.Cluster, r.model.Table, len(idx))
	if err != nil {
		return errors.Wrapf(err, "generate %d ids for %s", len(idx), r.model.Table)
	}
	if len(ids) != len(idx) {
		return errors.Errorf("id generator returned %d ids, want %d", len(ids), len(idx))
	}
	for j, i := range idx {
		r.model.SetID(&rows[i], ids[j])
	}
	return nil
}
