package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/shard"
)

// CountAbsent is returned by count operations when no count is cached or the
// backend failed.
const CountAbsent int64 = -1

// Entry is one encoded entity together with its primary key.
type Entry struct {
	PK    shard.EntityPK
	Value []byte
}

// PrimaryCache caches encoded entities by primary key and the row count of
// every physical table. Every method is best effort: backend failures are
// logged and reported as misses.
type PrimaryCache struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPrimaryCache wraps store. ttl bounds how long an entity may live; counts
// never expire.
func NewPrimaryCache(store Store, ttl time.Duration, logger zerolog.Logger) *PrimaryCache {
	return &PrimaryCache{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached values of pks keyed by EntityPK.Key. Missing and
// failed keys are left out.
func (p *PrimaryCache) Get(ctx context.Context, res shard.Resource, pks []shard.EntityPK) map[string][]byte {
	if len(pks) == 0 {
		return map[string][]byte{}
	}

	byCacheKey := make(map[string][]string, len(pks))
	keys := make([]string, 0, len(pks))
	for _, pk := range pks {
		k := EntityKey(res, pk)
		if _, seen := byCacheKey[k]; !seen {
			keys = append(keys, k)
		}
		byCacheKey[k] = appendUnique(byCacheKey[k], pk.Key())
	}

	r := p.lookupMulti(ctx, keys)
	out := make(map[string][]byte, len(r.Value))
	for k, v := range r.Value {
		for _, pkKey := range byCacheKey[k] {
			out[pkKey] = v
		}
	}
	return out
}

// Put stores entries with the entity TTL.
func (p *PrimaryCache) Put(ctx context.Context, res shard.Resource, entries []Entry) {
	for _, e := range entries {
		key := EntityKey(res, e.PK)
		if err := p.store.Set(ctx, key, e.Value, p.ttl); err != nil {
			p.warn("put", key, err)
		}
	}
}

// Remove evicts the entities of pks.
func (p *PrimaryCache) Remove(ctx context.Context, res shard.Resource, pks []shard.EntityPK) {
	if len(pks) == 0 {
		return
	}
	keys := make([]string, len(pks))
	for i, pk := range pks {
		keys[i] = EntityKey(res, pk)
	}
	if err := p.store.Delete(ctx, keys...); err != nil {
		p.warn("remove", keys[0], err)
	}
}

// GetCount returns the cached row count or CountAbsent.
func (p *PrimaryCache) GetCount(ctx context.Context, res shard.Resource) int64 {
	r := p.lookupCount(ctx, CountKey(res))
	if !r.Hit() {
		return CountAbsent
	}
	return r.Value
}

// SetCount overwrites the cached row count.
func (p *PrimaryCache) SetCount(ctx context.Context, res shard.Resource, n int64) {
	key := CountKey(res)
	if err := p.store.SetCounter(ctx, key, n, 0); err != nil {
		p.warn("set_count", key, err)
	}
}

// IncrCount adds delta to a cached count and returns the new value. Nothing
// happens and CountAbsent is returned when no count is cached.
func (p *PrimaryCache) IncrCount(ctx context.Context, res shard.Resource, delta int64) int64 {
	return p.addCount(ctx, res, delta, "incr_count")
}

// DecrCount subtracts delta from a cached count; see IncrCount.
func (p *PrimaryCache) DecrCount(ctx context.Context, res shard.Resource, delta int64) int64 {
	return p.addCount(ctx, res, -delta, "decr_count")
}

// RemoveCount drops the cached count.
func (p *PrimaryCache) RemoveCount(ctx context.Context, res shard.Resource) {
	key := CountKey(res)
	if err := p.store.Delete(ctx, key); err != nil {
		p.warn("remove_count", key, err)
	}
}

func (p *PrimaryCache) addCount(ctx context.Context, res shard.Resource, delta int64, op string) int64 {
	key := CountKey(res)
	n, err := p.store.IncrCounter(ctx, key, delta)
	if errors.Is(err, ErrMiss) {
		return CountAbsent
	}
	if err != nil {
		p.warn(op, key, err)
		return CountAbsent
	}
	return n
}

func (p *PrimaryCache) lookupMulti(ctx context.Context, keys []string) Result[map[string][]byte] {
	values, err := p.store.GetMulti(ctx, keys)
	if err != nil {
		p.warn("get", keys[0], err)
		return failed[map[string][]byte](err)
	}
	if len(values) == 0 {
		return miss[map[string][]byte]()
	}
	return hit(values)
}

func (p *PrimaryCache) lookupCount(ctx context.Context, key string) Result[int64] {
	n, err := p.store.Counter(ctx, key)
	if errors.Is(err, ErrMiss) {
		return miss[int64]()
	}
	if err != nil {
		p.warn("get_count", key, err)
		return failed[int64](err)
	}
	return hit(n)
}

func (p *PrimaryCache) warn(op, key string, err error) {
	p.logger.Warn().Err(&Error{Op: op, Key: key, Err: err}).Str("key", key).Msg("primary cache operation failed")
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// EntityCache is a typed view over a PrimaryCache.
type EntityCache[T any] struct {
	primary *PrimaryCache
	codec   Codec
}

// Entities returns a typed view of p encoding values with codec.
func Entities[T any](p *PrimaryCache, codec Codec) EntityCache[T] {
	if codec == nil {
		codec = MsgpackCodec{}
	}
	return EntityCache[T]{primary: p, codec: codec}
}

// Get decodes the cached entities of pks, keyed by EntityPK.Key. A value that
// fails to decode is logged and treated as a miss.
func (e EntityCache[T]) Get(ctx context.Context, res shard.Resource, pks []shard.EntityPK) map[string]T {
	raw := e.primary.Get(ctx, res, pks)
	out := make(map[string]T, len(raw))
	for k, b := range raw {
		var v T
		if err := e.codec.Decode(b, &v); err != nil {
			e.primary.warn("decode", k, err)
			continue
		}
		out[k] = v
	}
	return out
}

// Put encodes and stores values; pks[i] is the key of values[i].
func (e EntityCache[T]) Put(ctx context.Context, res shard.Resource, pks []shard.EntityPK, values []T) {
	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		if i >= len(pks) {
			break
		}
		b, err := e.codec.Encode(v)
		if err != nil {
			e.primary.warn("encode", pks[i].Key(), err)
			continue
		}
		entries = append(entries, Entry{PK: pks[i], Value: b})
	}
	e.primary.Put(ctx, res, entries)
}

// Remove evicts the entities of pks.
func (e EntityCache[T]) Remove(ctx context.Context, res shard.Resource, pks []shard.EntityPK) {
	e.primary.Remove(ctx, res, pks)
}
