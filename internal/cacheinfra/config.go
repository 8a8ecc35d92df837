package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// MemoryConfig holds the configuration for the in-process store.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of internal shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for cached values. sturdyc applies a single TTL
	// per client, so every value written to one store shares it.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                30 * time.Second,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the optional settings to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c MemoryConfig) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// RedisConfig configures the Redis store. More than one address turns on
// client side sharding through a ring.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return &ConfigError{Field: "Addrs", Message: "must not be empty"}
	}
	for _, a := range c.Addrs {
		if a == "" {
			return &ConfigError{Field: "Addrs", Message: "must not contain empty addresses"}
		}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	return nil
}

// MemcacheConfig configures the memcached store.
type MemcacheConfig struct {
	Servers      []string
	Timeout      time.Duration
	MaxIdleConns int
}

// Validate checks if the configuration values are valid.
func (c MemcacheConfig) Validate() error {
	if len(c.Servers) == 0 {
		return &ConfigError{Field: "Servers", Message: "must not be empty"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "Timeout", Message: "must be non-negative"}
	}
	if c.MaxIdleConns < 0 {
		return &ConfigError{Field: "MaxIdleConns", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
