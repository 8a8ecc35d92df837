// Package cache provides the two cache levels that sit between sharded
// repositories and their databases.
//
// # Overview
//
// The primary level (PrimaryCache) stores single entities by primary key and
// the row count of every physical table. The second level (SecondCache)
// stores whole query result lists. Both work on a shard.Resource, the
// coordinate of one physical table, and both sit on a Store:
//
//   - memory: in-process sturdyc client, counters in a concurrent map
//   - redis: go-redis client, or a ring when several addresses are given
//   - memcache: gomemcache client spread over several servers
//
// Backends are opened through a Registry, so a custom backend is one Register
// call away. A Manager owns both levels; there are no package level caches.
//
// # Basic Usage
//
//	m, err := cache.NewManager(cache.DefaultConfig(), cache.WithLogger(logger))
//	users := cache.Entities[User](m.Primary(), m.Codec())
//	users.Put(ctx, res, []shard.EntityPK{shard.PK("id", 7)}, []User{u})
//	hits := users.Get(ctx, res, pks) // keyed by EntityPK.Key
//
// # Query Result Versions
//
// Every coordinate has a version counter, seeded with a random number in
// [0, 10000) the first time it is read or written. The version is part of
// every result key, so Invalidate only has to increment it: results written
// under the old version are never read again and age out through the TTL.
// Invalidate never creates a missing version.
//
// # Counts
//
// Counts are best effort mirrors of COUNT(*). Increments and decrements apply
// only to a count that is already cached; GetCount reports CountAbsent (-1)
// when nothing is cached, and callers treat any value <= 0 as a miss.
//
// # Error Handling
//
// The cache is never the source of truth. Every backend failure is wrapped in
// an *Error, logged at warn level and turned into a miss; no method of
// PrimaryCache or SecondCache returns an error.
//
// # Key Formats
//
// Key formats are a contract with every other process sharing a backend; see
// keys.go for the exact layout.
package cache
