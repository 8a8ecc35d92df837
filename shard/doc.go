// Package shard resolves where a row lives in a horizontally partitioned
// cluster.
//
// A cluster is split into regions, each owning a closed range of sharding
// values. A region has one or more master databases and optional slave pools
// mirroring them; every sharded table is split into a fixed number of
// physical tables named table0, table1 and so on. Integers route by value and
// everything else by a stable hash, so a key with factor 42 in a cluster with
// four master databases always lands on database 2:
//
//	topo, _ := shard.NewTopology(cfg, nil)
//	res, err := topo.Select("user", shard.NewShardingKey("app", 42), shard.Master())
//
// The resolved Resource is the coordinate every cache key and every SQL
// statement is derived from. Hashed string factors produce values in
// [0, 2^32), so regions must cover that range when string keys are used.
package shard
