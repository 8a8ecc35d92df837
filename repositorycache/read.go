package repositorycache

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// FindByPk returns the entity with pk on key's shard.
func (r *Repository[T]) FindByPk(ctx context.Context, key shard.ShardingKey, pk shard.EntityPK) (T, bool, error) {
	var zero T
	rows, err := r.FindByPks(ctx, key, pk)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	return rows[0], true, nil
}

// FindByPks returns the entities with the given keys on key's shard, in
// request order. Repeated keys repeat the entity; keys found nowhere are
// left out.
func (r *Repository[T]) FindByPks(ctx context.Context, key shard.ShardingKey, pks ...shard.EntityPK) ([]T, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) ([]T, error) {
		loc, err := r.locate(key, target)
		if err != nil {
			return nil, err
		}
		return r.findByPks(ctx, loc, pks)
	}, isEmpty[T])
}

// FindByPksAll looks pks up on every shard of cluster.
func (r *Repository[T]) FindByPksAll(ctx context.Context, cluster string, pks ...shard.EntityPK) ([]T, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) ([]T, error) {
		locs, err := r.locateAll(cluster, target)
		if err != nil {
			return nil, err
		}
		parts, err := r.fanOutUntil(ctx, locs, 0, func(ctx context.Context, loc located) ([]T, error) {
			return r.findByPks(ctx, loc, pks)
		})
		if err != nil {
			return nil, err
		}
		found := make(map[string]T)
		for _, part := range parts {
			for _, row := range part {
				found[r.model.PK(row).Key()] = row
			}
		}
		return inRequestOrder(found, pks), nil
	}, isEmpty[T])
}

func (r *Repository[T]) findByPks(ctx context.Context, loc located, pks []shard.EntityPK) ([]T, error) {
	if len(pks) == 0 {
		return nil, nil
	}
	if !r.primaryOn(ctx) {
		rows, err := r.selectByPks(ctx, loc.db, pks)
		if err != nil {
			return nil, err
		}
		return inRequestOrder(r.index(rows), pks), nil
	}

	hits := r.entities.Get(ctx, loc.cache, pks)
	if len(hits) == 0 {
		return r.loadByPks(ctx, loc, pks)
	}

	var corrupt []shard.EntityPK
	for _, pk := range uniquePKs(pks) {
		if v, ok := hits[pk.Key()]; ok && !r.model.PK(v).Equal(pk) {
			corrupt = append(corrupt, pk)
		}
	}
	if len(corrupt) > 0 {
		r.logger.Warn().
			Stringer("resource", loc.cache).
			Int("entries", len(corrupt)).
			Msg("cached entity does not match its key, reloading from database")
		r.entities.Remove(ctx, loc.cache, corrupt)
		return r.loadByPks(ctx, loc, pks)
	}

	var missing []shard.EntityPK
	for _, pk := range uniquePKs(pks) {
		if _, ok := hits[pk.Key()]; !ok {
			missing = append(missing, pk)
		}
	}
	if len(missing) > 0 {
		rows, err := r.selectByPks(ctx, loc.db, missing)
		if err != nil {
			return nil, err
		}
		if r.backfills(ctx, loc) {
			r.cacheRows(ctx, loc.cache, rows)
		}
		for k, v := range r.index(rows) {
			hits[k] = v
		}
	}
	return inRequestOrder(hits, pks), nil
}

// loadByPks reads every key from the database and backfills the cache.
func (r *Repository[T]) loadByPks(ctx context.Context, loc located, pks []shard.EntityPK) ([]T, error) {
	rows, err := r.selectByPks(ctx, loc.db, uniquePKs(pks))
	if err != nil {
		return nil, err
	}
	if r.backfills(ctx, loc) {
		r.cacheRows(ctx, loc.cache, rows)
	}
	return inRequestOrder(r.index(rows), pks), nil
}

func (r *Repository[T]) selectByPks(ctx context.Context, res shard.Resource, pks []shard.EntityPK) ([]T, error) {
	slow := r.cfg.SlowQuery.PKs
	if len(pks) == 1 {
		slow = r.cfg.SlowQuery.PK
	}
	var rows []T
	err := r.withSession(ctx, "select_by_pks", res, slow, func(s Session[T]) error {
		var err error
		rows, err = s.SelectByPks(ctx, uniquePKs(pks))
		return err
	})
	return rows, err
}

// backfills reports whether rows read from loc may be written to the cache.
// Reads inside a transaction may see uncommitted rows and slave reads may
// see rows older than the master, so both only consult the cache.
func (r *Repository[T]) backfills(ctx context.Context, loc located) bool {
	return TransactionFrom(ctx) == nil && loc.db.Role != shard.RoleSlave
}

func (r *Repository[T]) cacheRows(ctx context.Context, res shard.Resource, rows []T) {
	if len(rows) == 0 {
		return
	}
	pks := make([]shard.EntityPK, len(rows))
	for i, row := range rows {
		pks[i] = r.model.PK(row)
	}
	r.entities.Put(ctx, res, pks, rows)
}

// FindByQuery runs q on key's shard.
func (r *Repository[T]) FindByQuery(ctx context.Context, key shard.ShardingKey, q *Query) ([]T, error) {
	if q == nil {
		q = NewQuery()
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	rows, err := retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) ([]T, error) {
		loc, err := r.locate(key, target)
		if err != nil {
			return nil, err
		}
		return r.findByQuery(ctx, loc, q.withoutProjection())
	}, isEmpty[T])
	if err != nil {
		return nil, err
	}
	return r.project(rows, q.Projection())
}

// FindOneByQuery returns the first entity matching q on key's shard.
func (r *Repository[T]) FindOneByQuery(ctx context.Context, key shard.ShardingKey, q *Query) (T, bool, error) {
	var zero T
	rows, err := r.FindByQuery(ctx, key, q)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	return rows[0], true, nil
}

// FindByQueryAll runs q on every shard of cluster, merges the results, sorts
// them by q's ordering and applies q's page to the merged list.
func (r *Repository[T]) FindByQueryAll(ctx context.Context, cluster string, q *Query) ([]T, error) {
	if q == nil {
		q = NewQuery()
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	perShard := q.forShards()
	start, limit, paged := q.Page()
	ordered := len(q.orders) > 0

	rows, err := retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) ([]T, error) {
		locs, err := r.locateAll(cluster, target)
		if err != nil {
			return nil, err
		}
		stopAt := 0
		if paged && !ordered {
			stopAt = start + limit
		}
		parts, err := r.fanOutUntil(ctx, locs, stopAt, func(ctx context.Context, loc located) ([]T, error) {
			return r.findByQuery(ctx, loc, perShard)
		})
		if err != nil {
			return nil, err
		}
		var merged []T
		for _, part := range parts {
			merged = append(merged, part...)
		}
		return merged, nil
	}, isEmpty[T])
	if err != nil {
		return nil, err
	}

	if ordered {
		if rows, err = r.sortRows(rows, q.orders); err != nil {
			return nil, err
		}
	}
	if paged {
		rows = page(rows, start, limit)
	}
	return r.project(rows, q.Projection())
}

func (r *Repository[T]) findByQuery(ctx context.Context, loc located, q *Query) ([]T, error) {
	var sig string
	if r.secondOn(ctx) {
		sig = q.Signature(r.sig)
		if rows, ok := r.results.Get(ctx, loc.cache, sig); ok {
			return rows, nil
		}
	}

	var rows []T
	if r.primaryOn(ctx) {
		var pks []shard.EntityPK
		err := r.withSession(ctx, "select_pks_by_query", loc.db, r.cfg.SlowQuery.Query, func(s Session[T]) error {
			var err error
			pks, err = s.SelectPksByQuery(ctx, q)
			return err
		})
		if err != nil {
			return nil, err
		}
		if rows, err = r.findByPks(ctx, loc, pks); err != nil {
			return nil, err
		}
	} else {
		err := r.withSession(ctx, "select_by_query", loc.db, r.cfg.SlowQuery.Query, func(s Session[T]) error {
			var err error
			rows, err = s.SelectByQuery(ctx, q)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if r.secondOn(ctx) && r.backfills(ctx, loc) {
		r.results.Put(ctx, loc.cache, sig, rows)
	}
	return rows, nil
}

// Count returns the number of rows in key's physical table.
func (r *Repository[T]) Count(ctx context.Context, key shard.ShardingKey) (int64, error) {
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) (int64, error) {
		loc, err := r.locate(key, target)
		if err != nil {
			return 0, err
		}
		return r.count(ctx, loc)
	}, isZero)
}

// CountAll sums the row counts of every shard of cluster.
func (r *Repository[T]) CountAll(ctx context.Context, cluster string) (int64, error) {
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) (int64, error) {
		locs, err := r.locateAll(cluster, target)
		if err != nil {
			return 0, err
		}
		var total int64
		for _, loc := range locs {
			n, err := r.count(ctx, loc)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}, isZero)
}

func (r *Repository[T]) count(ctx context.Context, loc located) (int64, error) {
	if r.primaryOn(ctx) {
		if n := r.primary.GetCount(ctx, loc.cache); n > 0 {
			return n, nil
		}
	}
	var n int64
	err := r.withSession(ctx, "count", loc.db, r.cfg.SlowQuery.Count, func(s Session[T]) error {
		var err error
		n, err = s.Count(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if r.primaryOn(ctx) && n > 0 && r.backfills(ctx, loc) {
		r.primary.SetCount(ctx, loc.cache, n)
	}
	return n, nil
}

// CountByQuery counts the rows matching q on key's shard. Never cached.
func (r *Repository[T]) CountByQuery(ctx context.Context, key shard.ShardingKey, q *Query) (int64, error) {
	if q == nil {
		q = NewQuery()
	}
	if err := q.Err(); err != nil {
		return 0, err
	}
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) (int64, error) {
		res, err := r.resolve(key, target)
		if err != nil {
			return 0, err
		}
		return r.countByQuery(ctx, res, q)
	}, isZero)
}

// CountByQueryAll sums CountByQuery over every shard of cluster.
func (r *Repository[T]) CountByQueryAll(ctx context.Context, cluster string, q *Query) (int64, error) {
	if q == nil {
		q = NewQuery()
	}
	if err := q.Err(); err != nil {
		return 0, err
	}
	return retryOnMaster(r.logger, targetFromContext(ctx), func(target shard.Target) (int64, error) {
		all, err := r.all(cluster, target)
		if err != nil {
			return 0, err
		}
		var total int64
		for _, res := range all {
			n, err := r.countByQuery(ctx, res, q)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}, isZero)
}

func (r *Repository[T]) countByQuery(ctx context.Context, res shard.Resource, q *Query) (int64, error) {
	var n int64
	err := r.withSession(ctx, "count_by_query", res, r.cfg.SlowQuery.Count, func(s Session[T]) error {
		var err error
		n, err = s.CountByQuery(ctx, q)
		return err
	})
	return n, err
}

// fanOutUntil reads every shard, returning the results in shard order. With
// FanOut above 1 shards are read concurrently; otherwise they are read one
// after another, stopping once stopAt rows are collected when stopAt > 0.
func (r *Repository[T]) fanOutUntil(ctx context.Context, locs []located, stopAt int, read func(context.Context, located) ([]T, error)) ([][]T, error) {
	parts := make([][]T, len(locs))

	if r.cfg.FanOut > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.FanOut)
		for i, loc := range locs {
			i, loc := i, loc
			g.Go(func() error {
				rows, err := read(gctx, loc)
				parts[i] = rows
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return parts, nil
	}

	collected := 0
	for i, loc := range locs {
		rows, err := read(ctx, loc)
		if err != nil {
			return nil, err
		}
		parts[i] = rows
		collected += len(rows)
		if stopAt > 0 && collected >= stopAt {
			break
		}
	}
	return parts, nil
}

func (r *Repository[T]) sortRows(rows []T, orders []Order) ([]T, error) {
	type keyed struct {
		row  T
		vals map[string]any
	}
	items := make([]keyed, len(rows))
	for i, row := range rows {
		vals, err := r.model.Values(row)
		if err != nil {
			return nil, err
		}
		items[i] = keyed{row: row, vals: vals}
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range orders {
			c := compareValues(items[i].vals[o.Field], items[j].vals[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.row
	}
	return out, nil
}

func (r *Repository[T]) index(rows []T) map[string]T {
	out := make(map[string]T, len(rows))
	for _, row := range rows {
		out[r.model.PK(row).Key()] = row
	}
	return out
}

func inRequestOrder[T any](found map[string]T, pks []shard.EntityPK) []T {
	out := make([]T, 0, len(pks))
	for _, pk := range pks {
		if v, ok := found[pk.Key()]; ok {
			out = append(out, v)
		}
	}
	return out
}

func uniquePKs(pks []shard.EntityPK) []shard.EntityPK {
	seen := make(map[string]struct{}, len(pks))
	out := make([]shard.EntityPK, 0, len(pks))
	for _, pk := range pks {
		k := pk.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, pk)
	}
	return out
}

func page[T any](rows []T, start, limit int) []T {
	if start >= len(rows) {
		return []T{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func isEmpty[T any](rows []T) bool { return len(rows) == 0 }

func isZero(n int64) bool { return n == 0 }
