package repositorycache

import (
	"fmt"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// DataAccessError reports a failed database operation on one resource.
// Routing failures are returned as *shard.RoutingError and never wrapped.
type DataAccessError struct {
	Op       string
	Resource shard.Resource
	Err      error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access error in %s on %s: %v", e.Op, e.Resource, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }
