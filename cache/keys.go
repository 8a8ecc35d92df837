package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// Key formats are shared with every process reading the same backend and must
// stay byte for byte stable:
//
//	global entity   {cluster}.{table}.{pk}
//	sharded entity  {cluster}{db}.{start-end}.{table}{idx}.{pk}
//	count           {coordinate}.c
//	version         sec.version.{coordinate}
//	query result    sec.{coordinate}.{version}.{md5(signature)}

const secondPrefix = "sec."

// EntityKey returns the primary cache key of one row.
func EntityKey(res shard.Resource, pk shard.EntityPK) string {
	return res.Coordinate() + "." + pk.ValueString()
}

// CountKey returns the key holding the row count of a physical table.
func CountKey(res shard.Resource) string {
	return res.Coordinate() + ".c"
}

// VersionKey returns the key of the query result version counter.
func VersionKey(res shard.Resource) string {
	return secondPrefix + "version." + res.Coordinate()
}

// ResultKey returns the key of a cached query result list.
func ResultKey(res shard.Resource, version int64, signature string) string {
	sum := md5.Sum([]byte(signature))
	return secondPrefix + res.Coordinate() + "." + strconv.FormatInt(version, 10) + "." + hex.EncodeToString(sum[:])
}
