package cache

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// versionSeedRange bounds the random starting version of a coordinate.
const versionSeedRange = 10000

// SecondCache caches query result lists. Every physical table has a version
// counter that is part of every result key; bumping it orphans every cached
// result of the table at once, and orphans expire through the TTL.
type SecondCache struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
	seed   func() int64
}

// SecondOption customizes a SecondCache.
type SecondOption func(*SecondCache)

// WithVersionSeed replaces the random version seed source.
func WithVersionSeed(fn func() int64) SecondOption {
	return func(s *SecondCache) {
		if fn != nil {
			s.seed = fn
		}
	}
}

// NewSecondCache wraps store. ttl bounds how long a result list may live.
func NewSecondCache(store Store, ttl time.Duration, logger zerolog.Logger, opts ...SecondOption) *SecondCache {
	s := &SecondCache{store: store, ttl: ttl, logger: logger, seed: randomSeed()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomSeed() func() int64 {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Int63n(versionSeedRange)
	}
}

// Get returns the cached result bytes for signature under the current
// version of res. A coordinate seen for the first time gets its version
// created and reports a miss.
func (s *SecondCache) Get(ctx context.Context, res shard.Resource, signature string) ([]byte, bool) {
	version, ok := s.version(ctx, res)
	if !ok {
		return nil, false
	}
	key := ResultKey(res, version, signature)
	b, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, false
	}
	if err != nil {
		s.warn("get", key, err)
		return nil, false
	}
	return b, true
}

// Put stores value for signature under the current version of res.
func (s *SecondCache) Put(ctx context.Context, res shard.Resource, signature string, value []byte) {
	version, ok := s.version(ctx, res)
	if !ok {
		return
	}
	key := ResultKey(res, version, signature)
	if err := s.store.Set(ctx, key, value, s.ttl); err != nil {
		s.warn("put", key, err)
	}
}

// Invalidate bumps the version of res by one. An absent version is left
// absent: no result can be cached under it.
func (s *SecondCache) Invalidate(ctx context.Context, res shard.Resource) {
	key := VersionKey(res)
	if _, err := s.store.IncrCounter(ctx, key, 1); err != nil && !errors.Is(err, ErrMiss) {
		s.warn("invalidate", key, err)
	}
}

// version reads the version of res, seeding it when absent. The read and the
// create are not atomic: two processes racing on a fresh coordinate may each
// seed it, and the later write wins. Results written under the losing seed
// are simply never read again.
func (s *SecondCache) version(ctx context.Context, res shard.Resource) (int64, bool) {
	key := VersionKey(res)
	v, err := s.store.Counter(ctx, key)
	if err == nil {
		return v, true
	}
	if !errors.Is(err, ErrMiss) {
		s.warn("version", key, err)
		return 0, false
	}

	seed := s.seed()
	if err := s.store.SetCounter(ctx, key, seed, 0); err != nil {
		s.warn("seed_version", key, err)
		return 0, false
	}
	return seed, true
}

func (s *SecondCache) warn(op, key string, err error) {
	s.logger.Warn().Err(&Error{Op: op, Key: key, Err: err}).Str("key", key).Msg("second cache operation failed")
}

// QueryCache is a typed view over a SecondCache.
type QueryCache[T any] struct {
	second *SecondCache
	codec  Codec
}

// Queries returns a typed view of s encoding values with codec.
func Queries[T any](s *SecondCache, codec Codec) QueryCache[T] {
	if codec == nil {
		codec = MsgpackCodec{}
	}
	return QueryCache[T]{second: s, codec: codec}
}

// Get decodes the cached result list of signature.
func (q QueryCache[T]) Get(ctx context.Context, res shard.Resource, signature string) ([]T, bool) {
	b, ok := q.second.Get(ctx, res, signature)
	if !ok {
		return nil, false
	}
	var out []T
	if err := q.codec.Decode(b, &out); err != nil {
		q.second.warn("decode", signature, err)
		return nil, false
	}
	if out == nil {
		out = []T{}
	}
	return out, true
}

// Put encodes and stores a result list.
func (q QueryCache[T]) Put(ctx context.Context, res shard.Resource, signature string, values []T) {
	b, err := q.codec.Encode(values)
	if err != nil {
		q.second.warn("encode", signature, err)
		return
	}
	q.second.Put(ctx, res, signature, b)
}

// Invalidate bumps the version of res.
func (q QueryCache[T]) Invalidate(ctx context.Context, res shard.Resource) {
	q.second.Invalidate(ctx, res)
}
