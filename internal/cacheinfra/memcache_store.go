package cacheinfra

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheStore is a Store backed by memcached. Keys are spread over the
// configured servers by the client.
type MemcacheStore struct {
	client *memcache.Client
}

// NewMemcacheStore creates a memcached client for cfg.Servers.
func NewMemcacheStore(cfg MemcacheConfig) (*MemcacheStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := memcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		client.MaxIdleConns = cfg.MaxIdleConns
	}
	return &MemcacheStore{client: client}, nil
}

// Get returns the value stored under key or ErrMiss.
func (s *MemcacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// GetMulti fetches keys in one round trip per server.
func (s *MemcacheStore) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.client.GetMulti(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(items))
	for k, item := range items {
		out[k] = item.Value
	}
	return out, nil
}

// Set stores value under key with the given expiry rounded to seconds.
func (s *MemcacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: key, Value: value, Expiration: expiration(ttl)})
}

// Delete removes keys; absent keys are not an error.
func (s *MemcacheStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.client.Delete(k); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return err
		}
	}
	return nil
}

// Counter returns the integer stored under key or ErrMiss.
func (s *MemcacheStore) Counter(ctx context.Context, key string) (int64, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// SetCounter stores n in the decimal form memcached increments operate on.
func (s *MemcacheStore) SetCounter(ctx context.Context, key string, n int64, ttl time.Duration) error {
	return s.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), ttl)
}

// IncrCounter adds delta to an existing counter. memcached clamps decrements
// at zero and never creates a counter on increment.
func (s *MemcacheStore) IncrCounter(ctx context.Context, key string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		n   uint64
		err error
	)
	if delta >= 0 {
		n, err = s.client.Increment(key, uint64(delta))
	} else {
		n, err = s.client.Decrement(key, uint64(-delta))
	}
	if errors.Is(err, memcache.ErrCacheMiss) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// Close is a no-op; the client keeps idle connections only.
func (s *MemcacheStore) Close() error {
	return nil
}

func expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int32(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}
