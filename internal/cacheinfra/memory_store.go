package cacheinfra

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// MemoryStore keeps values in a sturdyc client and counters in a concurrent
// map. Counters never expire: they are bounded by the number of physical
// tables and losing one would reseed query versions.
type MemoryStore struct {
	values   *sturdyc.Client[[]byte]
	counters *xsync.MapOf[string, int64]
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryStore{
		values:   client,
		counters: xsync.NewMapOf[string, int64](),
	}, nil
}

// Get returns the value stored under key or ErrMiss.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.values.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

// GetMulti returns the values found for keys. Absent keys are left out.
func (s *MemoryStore) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.values.GetMany(keys), nil
}

// Set stores value under key. The client wide TTL applies, ttl is ignored.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.values.Set(key, value)
	return nil
}

// Delete removes values and counters stored under keys.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		s.values.Delete(key)
		s.counters.Delete(key)
	}
	return nil
}

// Counter returns the counter stored under key or ErrMiss.
func (s *MemoryStore) Counter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, ok := s.counters.Load(key)
	if !ok {
		return 0, ErrMiss
	}
	return n, nil
}

// SetCounter overwrites the counter stored under key.
func (s *MemoryStore) SetCounter(ctx context.Context, key string, n int64, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.counters.Store(key, n)
	return nil
}

// IncrCounter atomically adds delta to an existing counter. Absent counters
// are not created.
func (s *MemoryStore) IncrCounter(ctx context.Context, key string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, ok := s.counters.Compute(key, func(old int64, loaded bool) (int64, bool) {
		if !loaded {
			return 0, true
		}
		return old + delta, false
	})
	if !ok {
		return 0, ErrMiss
	}
	return n, nil
}

// Len returns the number of cached values, counters excluded.
func (s *MemoryStore) Len() int {
	return s.values.Size()
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}
