package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/internal/cacheinfra"
)

// Factory opens a Store for a backend configuration.
type Factory func(cfg BackendConfig) (Store, error)

// Registry maps backend kinds to store constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the memory, redis and memcache
// backends registered.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(BackendMemory, func(cfg BackendConfig) (Store, error) {
		return cacheinfra.NewMemoryStore(cfg.memoryConfig())
	})
	r.Register(BackendRedis, func(cfg BackendConfig) (Store, error) {
		return cacheinfra.NewRedisStore(cfg.redisConfig())
	})
	r.Register(BackendMemcache, func(cfg BackendConfig) (Store, error) {
		return cacheinfra.NewMemcacheStore(cfg.memcacheConfig())
	})
	return r
}

// Register adds or replaces the constructor of kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open builds the store described by cfg.
func (r *Registry) Open(cfg BackendConfig) (Store, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigError{Field: "kind", Message: fmt.Sprintf("unknown cache backend %q", cfg.Kind)}
	}
	return f(cfg)
}

// Manager owns both cache levels. A nil level means that level is disabled.
type Manager struct {
	primary *PrimaryCache
	second  *SecondCache
	codec   Codec
	stores  []Store
}

type managerOptions struct {
	logger       zerolog.Logger
	registry     *Registry
	codec        Codec
	primaryStore Store
	secondStore  Store
	secondOpts   []SecondOption
}

// ManagerOption customizes NewManager.
type ManagerOption func(*managerOptions)

// WithLogger sets the logger cache failures are reported to.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = l }
}

// WithRegistry opens backends through r instead of the default registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(o *managerOptions) { o.registry = r }
}

// WithCodec replaces the msgpack codec.
func WithCodec(c Codec) ManagerOption {
	return func(o *managerOptions) { o.codec = c }
}

// WithPrimaryStore uses s for the primary level instead of opening one.
func WithPrimaryStore(s Store) ManagerOption {
	return func(o *managerOptions) { o.primaryStore = s }
}

// WithSecondStore uses s for the second level instead of opening one.
func WithSecondStore(s Store) ManagerOption {
	return func(o *managerOptions) { o.secondStore = s }
}

// WithSecondOptions passes options to the SecondCache.
func WithSecondOptions(opts ...SecondOption) ManagerOption {
	return func(o *managerOptions) { o.secondOpts = append(o.secondOpts, opts...) }
}

// NewManager validates cfg and opens the enabled cache levels.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{logger: zerolog.Nop(), codec: MsgpackCodec{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{codec: o.codec}

	if cfg.Primary.Enabled {
		store, err := m.open(o.registry, cfg.Primary, o.primaryStore)
		if err != nil {
			return nil, errors.Wrap(err, "open primary cache")
		}
		m.primary = NewPrimaryCache(store, cfg.Primary.TTL, o.logger.With().Str("cache", "primary").Logger())
	}
	if cfg.Second.Enabled {
		store, err := m.open(o.registry, cfg.Second, o.secondStore)
		if err != nil {
			_ = m.Close()
			return nil, errors.Wrap(err, "open second cache")
		}
		m.second = NewSecondCache(store, cfg.Second.TTL, o.logger.With().Str("cache", "second").Logger(), o.secondOpts...)
	}
	return m, nil
}

func (m *Manager) open(r *Registry, cfg BackendConfig, injected Store) (Store, error) {
	if injected != nil {
		return injected, nil
	}
	s, err := r.Open(cfg)
	if err != nil {
		return nil, err
	}
	m.stores = append(m.stores, s)
	return s, nil
}

// Primary returns the primary cache or nil when disabled.
func (m *Manager) Primary() *PrimaryCache {
	if m == nil {
		return nil
	}
	return m.primary
}

// Second returns the second cache or nil when disabled.
func (m *Manager) Second() *SecondCache {
	if m == nil {
		return nil
	}
	return m.second
}

// Codec returns the codec entities are stored with.
func (m *Manager) Codec() Codec {
	if m == nil || m.codec == nil {
		return MsgpackCodec{}
	}
	return m.codec
}

// Close closes the stores the manager opened. Injected stores are left open.
func (m *Manager) Close() error {
	var first error
	for _, s := range m.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.stores = nil
	return first
}
