package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-shardcache/internal/cacheinfra"
)

// ErrMiss is returned by a Store when a key or counter is absent.
var ErrMiss = cacheinfra.ErrMiss

// Store is the key/value backend both cache levels sit on. Values are opaque
// bytes; counters are integers with atomic increments that never create an
// absent counter.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMulti returns the values found; absent keys are left out.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	Counter(ctx context.Context, key string) (int64, error)
	SetCounter(ctx context.Context, key string, n int64, ttl time.Duration) error
	// IncrCounter adds delta (which may be negative) and returns ErrMiss when
	// the counter does not exist.
	IncrCounter(ctx context.Context, key string, delta int64) (int64, error)

	Close() error
}

var (
	_ Store = (*cacheinfra.MemoryStore)(nil)
	_ Store = (*cacheinfra.RedisStore)(nil)
	_ Store = (*cacheinfra.MemcacheStore)(nil)
)

// Error describes a failed backend operation. Cache errors are logged and
// never returned to repository callers.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return "cache " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the outcome of a single cache lookup.
type Status uint8

const (
	StatusMiss Status = iota
	StatusHit
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusFailed:
		return "failed"
	default:
		return "miss"
	}
}

// Result carries a lookup value together with whether it was a hit, a plain
// miss or a backend failure. Callers treat failures like misses but can tell
// them apart.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Hit reports whether the lookup found a value.
func (r Result[T]) Hit() bool { return r.Status == StatusHit }

func hit[T any](v T) Result[T] { return Result[T]{Value: v, Status: StatusHit} }

func miss[T any]() Result[T] { return Result[T]{Status: StatusMiss} }

func failed[T any](err error) Result[T] { return Result[T]{Status: StatusFailed, Err: err} }
