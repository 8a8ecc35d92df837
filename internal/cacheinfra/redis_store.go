package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrIfExists adds ARGV[1] to KEYS[1] only when the key is present, so a
// counter evicted or never populated is not resurrected with a partial value.
var incrIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('INCRBY', KEYS[1], ARGV[1])
end
return false
`)

type redisClient interface {
	redis.Cmdable
	Close() error
}

// RedisStore is a Store backed by Redis. Several addresses are sharded
// client side with a consistent hash ring.
type RedisStore struct {
	client redisClient
}

// NewRedisStore connects to the configured servers. The connection is lazy,
// no command is sent until the first operation.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(cfg.Addrs) == 1 {
		return &RedisStore{client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})}, nil
	}

	addrs := make(map[string]string, len(cfg.Addrs))
	for i, a := range cfg.Addrs {
		addrs[fmt.Sprintf("shard%d", i)] = a
	}
	return &RedisStore{client: redis.NewRing(&redis.RingOptions{
		Addrs:    addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}, nil
}

// Get returns the value stored under key or ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// GetMulti fetches keys in one pipeline. A ring splits the pipeline per shard.
func (s *RedisStore) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	cmds := make([]*redis.StringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Get(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))
	for i, cmd := range cmds {
		b, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[keys[i]] = b
	}
	return out, nil
}

// Set stores value under key with the given expiry, zero meaning none.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys. Each key is deleted on its own so a ring routes it to
// the right shard.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, k)
		}
		return nil
	})
	return err
}

// Counter returns the integer stored under key or ErrMiss.
func (s *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	return n, err
}

// SetCounter overwrites the integer stored under key.
func (s *RedisStore) SetCounter(ctx context.Context, key string, n int64, ttl time.Duration) error {
	return s.client.Set(ctx, key, n, ttl).Err()
}

// IncrCounter adds delta to an existing counter and returns ErrMiss when the
// key is absent.
func (s *RedisStore) IncrCounter(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := incrIfExists.Run(ctx, s.client, []string{key}, delta).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	return n, err
}

// Close releases the underlying connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
