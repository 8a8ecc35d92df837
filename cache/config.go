package cache

import (
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-repository-shardcache/internal/cacheinfra"
)

// Backend kinds known to the default registry.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendMemcache = "memcache"
)

// ConfigError represents a configuration validation error.
type ConfigError = cacheinfra.ConfigError

// MemoryConfig tunes the in-process backend.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity" toml:"capacity" json:"capacity"`
	NumShards          int           `yaml:"num_shards" toml:"num_shards" json:"num_shards"`
	EvictionPercentage int           `yaml:"eviction_percentage" toml:"eviction_percentage" json:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval" toml:"eviction_interval" json:"eviction_interval"`
}

// BackendConfig configures one cache level.
type BackendConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled" json:"enabled"`
	Kind    string        `yaml:"kind" toml:"kind" json:"kind"`
	TTL     time.Duration `yaml:"ttl" toml:"ttl" json:"ttl"`

	// Addrs lists redis or memcached servers.
	Addrs    []string      `yaml:"addrs" toml:"addrs" json:"addrs"`
	Username string        `yaml:"username" toml:"username" json:"username"`
	Password string        `yaml:"password" toml:"password" json:"password"`
	DB       int           `yaml:"db" toml:"db" json:"db"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`

	Memory MemoryConfig `yaml:"memory" toml:"memory" json:"memory"`
}

// Config exposes cache configuration options for both cache levels.
type Config struct {
	Primary BackendConfig `yaml:"primary" toml:"primary" json:"primary"`
	Second  BackendConfig `yaml:"second" toml:"second" json:"second"`
}

// DefaultConfig returns a Config with both levels enabled on the in-process
// backend and a 30 second entity TTL.
func DefaultConfig() Config {
	return Config{
		Primary: DefaultBackendConfig(),
		Second:  DefaultBackendConfig(),
	}
}

// DefaultBackendConfig returns an enabled in-process backend.
func DefaultBackendConfig() BackendConfig {
	mem := cacheinfra.DefaultMemoryConfig()
	return BackendConfig{
		Enabled: true,
		Kind:    BackendMemory,
		TTL:     mem.TTL,
		Memory: MemoryConfig{
			Capacity:           mem.Capacity,
			NumShards:          mem.NumShards,
			EvictionPercentage: mem.EvictionPercentage,
			EvictionInterval:   mem.EvictionInterval,
		},
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.Primary.validate("primary"); err != nil {
		return err
	}
	return c.Second.validate("second")
}

// Validate checks whether a single level is valid. Disabled levels always are.
func (c BackendConfig) Validate() error {
	return c.validate("")
}

func (c BackendConfig) validate(prefix string) error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.Required.Error("must not be empty")),
		validation.Field(&c.TTL,
			validation.Required.Error("must be greater than 0"),
			validation.Min(time.Duration(1)).Error("must be greater than 0"),
		),
		validation.Field(&c.Addrs, validation.When(
			c.Kind == BackendRedis || c.Kind == BackendMemcache,
			validation.Required.Error("must not be empty"),
		)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0)).Error("must be non-negative")),
	)
	if err != nil {
		return toConfigError(prefix, err)
	}
	if c.Kind == BackendMemory {
		if err := c.memoryConfig().Validate(); err != nil {
			if ce, ok := err.(*ConfigError); ok {
				return &ConfigError{Field: join(prefix, "memory."+ce.Field), Message: ce.Message}
			}
			return err
		}
	}
	return nil
}

func (c BackendConfig) memoryConfig() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		Capacity:           c.Memory.Capacity,
		NumShards:          c.Memory.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.Memory.EvictionPercentage,
		EvictionInterval:   c.Memory.EvictionInterval,
	}
}

func (c BackendConfig) redisConfig() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{Addrs: c.Addrs, Username: c.Username, Password: c.Password, DB: c.DB}
}

func (c BackendConfig) memcacheConfig() cacheinfra.MemcacheConfig {
	return cacheinfra.MemcacheConfig{Servers: c.Addrs, Timeout: c.Timeout}
}

// toConfigError reports the first failing field, in name order, as a
// ConfigError.
func toConfigError(prefix string, err error) error {
	errs, ok := err.(validation.Errors)
	if !ok || len(errs) == 0 {
		return err
	}
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return &ConfigError{Field: join(prefix, fields[0]), Message: errs[fields[0]].Error()}
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}
