package shard

import (
	"fmt"
	"math"
)

// Router maps a sharding key onto one of a set of candidate resources.
// Implementations must be deterministic: the same key and the same candidate
// list always produce the same resource.
type Router interface {
	// Value turns a sharding factor into the integer used for region lookup
	// and table/database selection.
	Value(factor any) (int64, error)
	// Resolve picks the resource for key among candidates.
	Resolve(key ShardingKey, candidates []Resource) (Resource, error)
}

// HashRouter routes integers by value and everything else by a stable hash.
type HashRouter struct {
	algo HashAlgo
}

var _ Router = (*HashRouter)(nil)

// NewHashRouter returns a router hashing string factors with algo.
func NewHashRouter(algo HashAlgo) *HashRouter {
	if algo == "" {
		algo = HashMurmur3
	}
	return &HashRouter{algo: algo}
}

// Algo returns the hash algorithm in use.
func (r *HashRouter) Algo() HashAlgo { return r.algo }

// Value implements Router.
func (r *HashRouter) Value(factor any) (int64, error) {
	switch v := factor.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return unsignedValue(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return unsignedValue(v), nil
	case string:
		return int64(r.algo.Sum([]byte(v))), nil
	case []byte:
		return int64(r.algo.Sum(v)), nil
	case fmt.Stringer:
		return int64(r.algo.Sum([]byte(v.String()))), nil
	case nil:
		return 0, &RoutingError{Reason: "sharding factor is nil"}
	default:
		return 0, &RoutingError{Reason: fmt.Sprintf("unsupported sharding factor type %T", factor)}
	}
}

// unsignedValue keeps unsigned factors that fit in an int64 unchanged and
// halves larger ones so the result is never negative.
func unsignedValue(v uint64) int64 {
	if v > math.MaxInt64 {
		return int64(v >> 1)
	}
	return int64(v)
}

// Resolve implements Router.
func (r *HashRouter) Resolve(key ShardingKey, candidates []Resource) (Resource, error) {
	if len(candidates) == 0 {
		return Resource{}, routingErr(key.Cluster(), "", "no candidate shards for key %v", key.Factor())
	}
	v, err := r.Value(key.Factor())
	if err != nil {
		return Resource{}, withCluster(err, key.Cluster())
	}
	return candidates[index(v, len(candidates))], nil
}

// index normalizes v into [0, n).
func index(v int64, n int) int {
	i := v % int64(n)
	if i < 0 {
		i += int64(n)
	}
	return int(i)
}

func withCluster(err error, cluster string) error {
	if re, ok := err.(*RoutingError); ok && re.Cluster == "" {
		cp := *re
		cp.Cluster = cluster
		return &cp
	}
	return err
}
