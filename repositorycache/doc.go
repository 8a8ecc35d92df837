// Package repositorycache provides sharded repositories with a two level cache.
//
// # Overview
//
// A Repository[T] routes every read and write of one logical table to the
// physical table that owns the row, using a shard.Topology, and keeps the two
// cache levels of a cache.Manager in step with the database:
//
//   - the primary level holds single entities by primary key and the row
//     count of each physical table
//   - the second level holds query result lists, invalidated per physical
//     table through a version counter
//
// SQL is not generated here. Statements run through an Executor, which opens a
// Session on one resource; internal/dbinfra provides one on top of bun.
//
// # Basic Usage
//
//	users, err := repositorycache.New(repositorycache.Model[User]{
//		Cluster: "app",
//		PK:      func(u User) shard.EntityPK { return shard.PK("id", u.ID) },
//	}, topo, executor, manager)
//
//	key := shard.NewShardingKey("app", userID)
//	u, ok, err := users.FindByPk(ctx, key, shard.PK("id", userID))
//	list, err := users.FindByQuery(ctx, key, repositorycache.NewQuery().
//		Where("age", repositorycache.OpGt, 30).
//		OrderByDesc("created").
//		Limit(0, 20))
//
// # Reads
//
// FindByPks returns entities in request order. Cached entities are served from
// the primary level and only the missing keys reach the database. A cached
// entity whose key does not match its own primary key causes the whole list to
// be reloaded from the database.
//
// FindByQuery checks the second level first. On a miss, and when the primary
// level is enabled, it selects only primary keys and resolves them through
// FindByPks, so entities are shared between queries. Field projection is
// applied after caching and never changes the cached data.
//
// The *All variants fan out over every shard of a cluster, merge in shard
// order, sort by the query ordering and apply the page to the merged list.
// Each shard is asked for the first start+limit rows.
//
// Reads made with WithTarget(ctx, shard.Slave(i)) run on the slave pool and,
// when the slave returns nothing, once more on the master. Cache entries are
// always named after the master resource.
//
// # Writes
//
// Writes go to the master. The database statement runs first, then the cache
// is maintained: inserts cache the new entities and increment the cached
// count, updates evict the entities, deletes evict them and decrement the
// count, and all three invalidate the second level of the physical table.
// Inside a transaction (WithTransaction) the maintenance runs on commit.
//
// # Error Handling
//
// Routing failures are *shard.RoutingError; database failures are
// *DataAccessError and roll back the transaction carried by the context.
// Cache failures are logged by the cache package and never returned.
package repositorycache
