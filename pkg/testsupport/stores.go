package testsupport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-shardcache/internal/cacheinfra"
)

// ErrBackendDown is what FailingStore returns from every operation.
var ErrBackendDown = errors.New("cache backend unavailable")

// FailingStore fails every operation, like a cache server that is down.
type FailingStore struct{}

func (FailingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrBackendDown }
func (FailingStore) GetMulti(context.Context, []string) (map[string][]byte, error) {
	return nil, ErrBackendDown
}
func (FailingStore) Set(context.Context, string, []byte, time.Duration) error { return ErrBackendDown }
func (FailingStore) Delete(context.Context, ...string) error                  { return ErrBackendDown }
func (FailingStore) Counter(context.Context, string) (int64, error)           { return 0, ErrBackendDown }
func (FailingStore) SetCounter(context.Context, string, int64, time.Duration) error {
	return ErrBackendDown
}
func (FailingStore) IncrCounter(context.Context, string, int64) (int64, error) {
	return 0, ErrBackendDown
}
func (FailingStore) Close() error { return nil }

// MemoryStore is a small store with exact semantics and no expiry, handy for
// asserting cache contents.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	calls    []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string][]byte{}, counters: map[string]int64{}}
}

// NewSturdycStore returns the production in-process store with settings
// small enough for tests.
func NewSturdycStore(t *testing.T) *cacheinfra.MemoryStore {
	t.Helper()
	s, err := cacheinfra.NewMemoryStore(cacheinfra.MemoryConfig{
		Capacity:           1000,
		NumShards:          4,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("failed to create sturdyc store: %v", err)
	}
	return s
}

func (s *MemoryStore) record(op string) {
	s.calls = append(s.calls, op)
}

// Calls returns the operations performed so far, in order.
func (s *MemoryStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls forgets recorded operations.
func (s *MemoryStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Keys returns every value key, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether a value is stored under key.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// CounterValue returns the counter under key and whether it exists.
func (s *MemoryStore) CounterValue(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counters[key]
	return n, ok
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get")
	v, ok := s.values[key]
	if !ok {
		return nil, cacheinfra.ErrMiss
	}
	return v, nil
}

func (s *MemoryStore) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get_multi")
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set")
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Put writes a raw value directly, bypassing call recording.
func (s *MemoryStore) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete")
	for _, k := range keys {
		delete(s.values, k)
		delete(s.counters, k)
	}
	return nil
}

func (s *MemoryStore) Counter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("counter")
	n, ok := s.counters[key]
	if !ok {
		return 0, cacheinfra.ErrMiss
	}
	return n, nil
}

func (s *MemoryStore) SetCounter(_ context.Context, key string, n int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set_counter")
	s.counters[key] = n
	return nil
}

func (s *MemoryStore) IncrCounter(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("incr_counter")
	n, ok := s.counters[key]
	if !ok {
		return 0, cacheinfra.ErrMiss
	}
	n += delta
	s.counters[key] = n
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
