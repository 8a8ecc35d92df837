package dbinfra

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-shardcache/repositorycache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// Tx spans one database transaction per enlisted handle. Commit commits them
// in enlistment order; it is not a two phase commit.
type Tx struct {
	id     uuid.UUID
	dbs    *Databases
	logger zerolog.Logger
	opts   *sql.TxOptions

	mu      sync.Mutex
	txs     map[string]bun.Tx
	handles []string
	hooks   []func(context.Context)
	done    bool
}

// Begin starts an empty transaction. Databases join it when a write enlists
// their resource.
func (d *Databases) Begin(opts *sql.TxOptions) *Tx {
	id := uuid.New()
	return &Tx{
		id:     id,
		dbs:    d,
		logger: d.logger.With().Str("tx", id.String()).Logger(),
		opts:   opts,
		txs:    map[string]bun.Tx{},
	}
}

// ID identifies the transaction in logs.
func (tx *Tx) ID() string { return tx.id.String() }

// Enlist begins a transaction on the resource's handle unless one is open.
func (tx *Tx) Enlist(ctx context.Context, res shard.Resource) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.txs[res.Handle]; ok {
		return nil
	}
	db, err := tx.dbs.DB(res.Handle)
	if err != nil {
		return err
	}
	btx, err := db.BeginTx(ctx, tx.opts)
	if err != nil {
		return errors.Wrapf(err, "begin transaction on %s", res.Handle)
	}
	tx.txs[res.Handle] = btx
	tx.handles = append(tx.handles, res.Handle)
	tx.logger.Debug().Str("handle", res.Handle).Msg("enlisted")
	return nil
}

func (tx *Tx) conn(handle string) (bun.Tx, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return bun.Tx{}, false
	}
	btx, ok := tx.txs[handle]
	return btx, ok
}

// OnCommit registers fn to run after a successful commit.
func (tx *Tx) OnCommit(fn func(context.Context)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.done {
		tx.hooks = append(tx.hooks, fn)
	}
}

// Commit commits every enlisted handle. When one fails the remaining ones
// are rolled back and no commit hook runs.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return ErrTxDone
	}
	tx.done = true
	handles, txs, hooks := tx.handles, tx.txs, tx.hooks
	tx.hooks = nil
	tx.mu.Unlock()

	for i, h := range handles {
		if err := txs[h].Commit(); err != nil {
			for _, rest := range handles[i+1:] {
				if rerr := txs[rest].Rollback(); rerr != nil {
					tx.logger.Error().Err(rerr).Str("handle", rest).Msg("rollback after failed commit")
				}
			}
			return errors.Wrapf(err, "commit %s", h)
		}
	}
	for _, fn := range hooks {
		fn(ctx)
	}
	tx.logger.Debug().Int("handles", len(handles)).Msg("committed")
	return nil
}

// Rollback rolls back every enlisted handle. Rolling back a finished
// transaction is a no-op.
func (tx *Tx) Rollback(context.Context) error {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return nil
	}
	tx.done = true
	handles, txs := tx.handles, tx.txs
	tx.hooks = nil
	tx.mu.Unlock()

	var first error
	for _, h := range handles {
		if err := txs[h].Rollback(); err != nil && first == nil {
			first = errors.Wrapf(err, "rollback %s", h)
		}
	}
	tx.logger.Debug().Int("handles", len(handles)).Msg("rolled back")
	return first
}

var _ repositorycache.Transaction = (*Tx)(nil)
