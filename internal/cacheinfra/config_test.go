package cacheinfra

import (
	"testing"
	"time"
)

func TestDefaultMemoryConfig(t *testing.T) {
	cfg := DefaultMemoryConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}
	if cfg.TTL != 30*time.Second {
		t.Errorf("expected TTL to be 30 seconds, got %v", cfg.TTL)
	}
	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestMemoryConfig_Validate(t *testing.T) {
	base := DefaultMemoryConfig()

	tests := []struct {
		name     string
		mutate   func(*MemoryConfig)
		errorMsg string
	}{
		{name: "valid", mutate: func(*MemoryConfig) {}},
		{
			name:     "zero capacity",
			mutate:   func(c *MemoryConfig) { c.Capacity = 0 },
			errorMsg: "config error in field Capacity: must be greater than 0",
		},
		{
			name:     "zero shards",
			mutate:   func(c *MemoryConfig) { c.NumShards = 0 },
			errorMsg: "config error in field NumShards: must be greater than 0",
		},
		{
			name:     "zero ttl",
			mutate:   func(c *MemoryConfig) { c.TTL = 0 },
			errorMsg: "config error in field TTL: must be greater than 0",
		},
		{
			name:     "eviction percentage too high",
			mutate:   func(c *MemoryConfig) { c.EvictionPercentage = 101 },
			errorMsg: "config error in field EvictionPercentage: must be between 1 and 100",
		},
		{
			name:     "negative eviction interval",
			mutate:   func(c *MemoryConfig) { c.EvictionInterval = -time.Second },
			errorMsg: "config error in field EvictionInterval: must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("expected error message %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestMemoryConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultMemoryConfig()
	if n := len(cfg.ToSturdycOptions()); n != 0 {
		t.Errorf("expected no sturdyc options for default config, got %d", n)
	}

	cfg.EvictionInterval = time.Minute
	if n := len(cfg.ToSturdycOptions()); n != 1 {
		t.Errorf("expected 1 sturdyc option with eviction interval, got %d", n)
	}
}

func TestBackendConfigValidate(t *testing.T) {
	if err := (RedisConfig{}).Validate(); err == nil {
		t.Error("expected redis config without addresses to fail")
	}
	if err := (RedisConfig{Addrs: []string{""}}).Validate(); err == nil {
		t.Error("expected redis config with empty address to fail")
	}
	if err := (RedisConfig{Addrs: []string{"localhost:6379"}}).Validate(); err != nil {
		t.Errorf("expected valid redis config, got %v", err)
	}
	if err := (MemcacheConfig{}).Validate(); err == nil {
		t.Error("expected memcache config without servers to fail")
	}
	if err := (MemcacheConfig{Servers: []string{"localhost:11211"}, Timeout: time.Second}).Validate(); err != nil {
		t.Errorf("expected valid memcache config, got %v", err)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TestField", Message: "test message"}

	expected := "config error in field TestField: test message"
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}
