package di

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/internal/dbinfra"
	"github.com/goliatone/go-repository-shardcache/pkg/config"
	"github.com/goliatone/go-repository-shardcache/pkg/testsupport"
	"github.com/goliatone/go-repository-shardcache/shard"
)

var handles = []string{"db0", "db1", "db2", "db3", "main"}

// testConfig describes one region of four SQLite masters holding two
// physical tables per sharded table, plus a global database.
func testConfig(tb testing.TB) config.File {
	cfg := config.Default()
	cfg.LogLevel = "disabled"
	cfg.Sharding.Clusters = []shard.ClusterConfig{{
		Name:   "app",
		Tables: map[string]int{"account": 2},
		Regions: []shard.Region{{
			Start:   0,
			End:     999,
			Masters: []shard.Node{{Name: "db0"}, {Name: "db1"}, {Name: "db2"}, {Name: "db3"}},
		}},
		Global: &shard.GlobalConfig{Master: shard.Node{Name: "main"}, Tables: []string{"country"}},
	}}
	for _, h := range handles {
		cfg.Databases[h] = dbinfra.DatabaseConfig{Driver: dbinfra.DriverSQLite, DSN: testsupport.SQLiteDSN(tb, h), MaxOpenConns: 1}
	}
	return cfg
}

func newTestContainer(tb testing.TB, opts ...Option) *Container {
	tb.Helper()
	c, err := NewContainer(testConfig(tb), append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	if err != nil {
		tb.Fatalf("NewContainer() failed: %v", err)
	}
	tb.Cleanup(func() { c.Close() })
	return c
}

func TestNewContainer(t *testing.T) {
	c := newTestContainer(t)

	if c.Topology() == nil {
		t.Fatal("Container should have a non-nil topology")
	}
	if c.Cache().Primary() == nil || c.Cache().Second() == nil {
		t.Error("Container should enable both cache levels by default")
	}
	if c.IDs() == nil {
		t.Error("Container should have a non-nil id generator")
	}

	got := c.Databases().Handles()
	if strings.Join(got, ",") != strings.Join(handles, ",") {
		t.Errorf("Expected handles %v, got %v", handles, got)
	}
	if c.Config().Repository.FanOut != 1 {
		t.Errorf("Expected default fan out 1, got %d", c.Config().Repository.FanOut)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.File)
	}{
		{name: "missing database", mutate: func(f *config.File) { delete(f.Databases, "db2") }},
		{name: "bad driver", mutate: func(f *config.File) { f.Databases["db0"] = dbinfra.DatabaseConfig{Driver: "oracle", DSN: "x"} }},
		{name: "bad cache", mutate: func(f *config.File) { f.Cache.Primary.TTL = 0 }},
		{name: "bad hash", mutate: func(f *config.File) { f.Sharding.HashAlgo = "sha1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := NewContainer(cfg); err == nil {
				t.Error("NewContainer() should fail with invalid config")
			}
		})
	}
}

func TestNewContainerFromFile(t *testing.T) {
	yaml := `
log_level: disabled
id_start: 1000
sharding:
  clusters:
    - name: app
      tables: {account: 1}
      regions:
        - {start: 0, end: 99, masters: [{name: db0}]}
databases:
  db0: {driver: sqlite3, dsn: "` + testsupport.SQLiteDSN(t, "db0") + `"}
`
	c, err := NewContainerFromFile(testsupport.WriteConfig(t, "app.yaml", yaml))
	if err != nil {
		t.Fatalf("NewContainerFromFile() failed: %v", err)
	}
	defer c.Close()

	ids, err := c.IDs().NextIDs(context.Background(), "app", "account", 1)
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != 1001 {
		t.Errorf("Expected first id 1001, got %d", ids[0])
	}

	if _, err := NewContainerFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("NewContainerFromFile() should fail for a missing file")
	}
}

func TestNewContainer_InjectedCacheStores(t *testing.T) {
	primary := testsupport.NewMemoryStore()
	c := newTestContainer(t, WithCacheOptions(cache.WithPrimaryStore(primary)))

	res, err := c.Topology().Select("account", shard.NewShardingKey("app", int64(42)), shard.Master())
	if err != nil {
		t.Fatal(err)
	}
	c.Cache().Primary().SetCount(context.Background(), res, 3)

	if v, ok := primary.CounterValue(cache.CountKey(res)); !ok || v != 3 {
		t.Errorf("Expected count 3 in injected store, got %d (present=%v)", v, ok)
	}
}

func TestContainer_Resources(t *testing.T) {
	c := newTestContainer(t)

	sharded, err := c.resources("app", "account", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sharded) != 8 {
		t.Errorf("Expected 8 physical tables, got %d", len(sharded))
	}

	global, err := c.resources("app", "country", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 1 || global[0].Handle != "main" {
		t.Errorf("Expected the global table on main, got %v", global)
	}
}
