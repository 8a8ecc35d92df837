package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/goliatone/go-repository-shardcache/pkg/testsupport"
	"github.com/goliatone/go-repository-shardcache/shard"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(DefaultConfig())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer m.Close()

	if m.Primary() == nil || m.Second() == nil {
		t.Fatal("expected both cache levels to be enabled")
	}
	if _, ok := m.Codec().(MsgpackCodec); !ok {
		t.Errorf("expected msgpack codec, got %T", m.Codec())
	}

	ctx := context.Background()
	m.Primary().SetCount(ctx, shardedUser, 4)
	if n := m.Primary().GetCount(ctx, shardedUser); n != 4 {
		t.Errorf("expected count 4, got %d", n)
	}
}

func TestNewManager_DisabledLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Second.Enabled = false

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if m.Second() != nil {
		t.Error("expected second level to be disabled")
	}

	var nilManager *Manager
	if nilManager.Primary() != nil || nilManager.Second() != nil {
		t.Error("expected nil manager to report disabled levels")
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Primary.TTL = 0

	if _, err := NewManager(cfg); err == nil {
		t.Error("expected invalid config to fail")
	}
}

func TestNewManager_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Primary.Kind = "etcd"

	_, err := NewManager(cfg)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for unknown backend, got %v", err)
	}
}

func TestNewManager_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Primary.Kind = BackendRedis
	cfg.Primary.Addrs = []string{mr.Addr()}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	users := Entities[user](m.Primary(), m.Codec())
	users.Put(ctx, shardedUser, []shard.EntityPK{shard.PK("id", 5)}, []user{{ID: 5, Name: "eve"}})

	if !mr.Exists("appdb2.0-999.user0.5") {
		t.Errorf("expected entity key in redis, keys: %v", mr.Keys())
	}
	got := users.Get(ctx, shardedUser, []shard.EntityPK{shard.PK("id", 5)})
	if got[shard.PK("id", 5).Key()].Name != "eve" {
		t.Errorf("unexpected entity %+v", got)
	}
}

func TestNewManager_InjectedStores(t *testing.T) {
	primary := testsupport.NewMemoryStore()
	second := testsupport.NewMemoryStore()

	m, err := NewManager(DefaultConfig(),
		WithPrimaryStore(primary),
		WithSecondStore(second),
		WithSecondOptions(WithVersionSeed(func() int64 { return 3 })),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ctx := context.Background()
	m.Primary().SetCount(ctx, shardedUser, 1)
	m.Second().Put(ctx, shardedUser, "q", []byte("x"))

	if _, ok := primary.CounterValue(CountKey(shardedUser)); !ok {
		t.Error("expected count in injected primary store")
	}
	if !second.Has(ResultKey(shardedUser, 3, "q")) {
		t.Errorf("expected result in injected second store, have %v", second.Keys())
	}
	if err := m.Close(); err != nil {
		t.Errorf("expected no error closing manager, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	kinds := r.Kinds()
	if len(kinds) != 3 || kinds[0] != BackendMemcache || kinds[1] != BackendMemory || kinds[2] != BackendRedis {
		t.Errorf("unexpected kinds %v", kinds)
	}

	custom := testsupport.NewMemoryStore()
	r.Register("custom", func(BackendConfig) (Store, error) { return custom, nil })

	s, err := r.Open(BackendConfig{Kind: "custom"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s != custom {
		t.Error("expected registered factory to be used")
	}
}
