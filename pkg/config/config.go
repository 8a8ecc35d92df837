// Package config loads the file that describes a deployment: logging, cache
// backends, cluster topology, database handles and repository tuning.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/internal/dbinfra"
	"github.com/goliatone/go-repository-shardcache/repositorycache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// File is the root of a configuration file.
type File struct {
	LogLevel   string                            `yaml:"log_level" toml:"log_level" json:"log_level"`
	PrettyLogs bool                              `yaml:"pretty_logs" toml:"pretty_logs" json:"pretty_logs"`
	Cache      cache.Config                      `yaml:"cache" toml:"cache" json:"cache"`
	Sharding   shard.Config                      `yaml:"sharding" toml:"sharding" json:"sharding"`
	Databases  map[string]dbinfra.DatabaseConfig `yaml:"databases" toml:"databases" json:"databases"`
	Repository repositorycache.Config            `yaml:"repository" toml:"repository" json:"repository"`
	// IDStart is the value the in-process id generator counts up from.
	IDStart int64 `yaml:"id_start" toml:"id_start" json:"id_start"`
}

// Default returns the settings used for anything a file leaves out.
func Default() File {
	return File{
		LogLevel:   "info",
		Cache:      cache.DefaultConfig(),
		Sharding:   shard.Config{HashAlgo: string(shard.HashMurmur3)},
		Databases:  map[string]dbinfra.DatabaseConfig{},
		Repository: repositorycache.DefaultConfig(),
	}
}

// Load reads path on top of Default. The format follows the extension:
// .yaml/.yml, .toml or .json. Durations are strings such as "30s" in YAML
// and TOML and nanoseconds in JSON.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrap(err, "read config")
	}
	if err := decode(path, data, &f); err != nil {
		return f, errors.Wrapf(err, "decode config %s", path)
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func decode(path string, data []byte, f *File) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, f)
	case ".toml":
		_, err := toml.Decode(string(data), f)
		return err
	case ".json":
		return json.Unmarshal(data, f)
	default:
		return errors.Errorf("unsupported config format %q", ext)
	}
}

// Validate checks every section and that each database handle referenced by
// the topology is configured.
func (f File) Validate() error {
	if err := f.Cache.Validate(); err != nil {
		return errors.Wrap(err, "cache")
	}
	if err := f.Sharding.Validate(); err != nil {
		return errors.Wrap(err, "sharding")
	}
	if err := f.Repository.Validate(); err != nil {
		return errors.Wrap(err, "repository")
	}
	for h, db := range f.Databases {
		if err := db.Validate(); err != nil {
			return errors.Wrapf(err, "database %s", h)
		}
	}
	topo, err := shard.NewTopology(f.Sharding, nil)
	if err != nil {
		return errors.Wrap(err, "sharding")
	}
	for _, h := range topo.Handles() {
		if _, ok := f.Databases[h]; !ok {
			return &cache.ConfigError{Field: "databases." + h, Message: "is referenced by the topology but not configured"}
		}
	}
	return nil
}
