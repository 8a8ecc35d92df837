package repositorycache

import (
	"context"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// Session runs statements against one physical table. It is obtained from
// an Executor per operation and closed by the repository when done.
type Session[T any] interface {
	SelectByPks(ctx context.Context, pks []shard.EntityPK) ([]T, error)
	SelectPksByQuery(ctx context.Context, q *Query) ([]shard.EntityPK, error)
	SelectByQuery(ctx context.Context, q *Query) ([]T, error)
	Count(ctx context.Context) (int64, error)
	CountByQuery(ctx context.Context, q *Query) (int64, error)
	Insert(ctx context.Context, rows []T) error
	Update(ctx context.Context, rows []T) error
	Delete(ctx context.Context, pks []shard.EntityPK) (int64, error)
	Close() error
}

// Executor opens sessions on resources.
type Executor[T any] interface {
	Acquire(ctx context.Context, res shard.Resource) (Session[T], error)
}

// IDGenerator hands out primary keys for new rows.
type IDGenerator interface {
	NextIDs(ctx context.Context, cluster, table string, n int) ([]int64, error)
}

// Transaction groups writes across resources. Functions registered with
// OnCommit run only after a successful commit.
type Transaction interface {
	Enlist(ctx context.Context, res shard.Resource) error
	Rollback(ctx context.Context) error
	OnCommit(fn func(context.Context))
}
