package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/pkg/config"
	"github.com/goliatone/go-repository-shardcache/pkg/logging"
	"github.com/goliatone/go-repository-shardcache/shard"
)

type flags struct {
	configPath string
	cluster    string
	table      string
	key        string
	rawKey     bool
	slave      int
	global     bool
	pkName     string
	pks        []string
}

func newRootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "shardctl --config shards.yaml",
		Short: "inspect shard routing and cache keys",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "shards.yaml", "configuration file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&f.cluster, "cluster", "", "cluster name")
	root.PersistentFlags().StringVarP(&f.table, "table", "t", "", "logical table name")
	root.PersistentFlags().IntVar(&f.slave, "slave", -1, "slave pool index, master when negative")
	root.PersistentFlags().BoolVar(&f.global, "global", false, "the table lives in the global database")
	_ = root.MarkPersistentFlagRequired("cluster")
	_ = root.MarkPersistentFlagRequired("table")

	route := &cobra.Command{
		Use:   "route",
		Short: "print the physical resource a sharding key routes to",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resolve()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "cluster:    %s\n", res.Cluster)
			fmt.Fprintf(out, "database:   %s\n", res.DBName)
			fmt.Fprintf(out, "handle:     %s\n", res.Handle)
			fmt.Fprintf(out, "role:       %s\n", res.Role)
			fmt.Fprintf(out, "table:      %s\n", res.PhysicalTable())
			if !res.Global {
				fmt.Fprintf(out, "region:     %s\n", res.RegionCapacity())
			}
			fmt.Fprintf(out, "coordinate: %s\n", res.Coordinate())
			return nil
		},
	}
	route.Flags().StringVarP(&f.key, "key", "k", "", "sharding key value")
	route.Flags().BoolVar(&f.rawKey, "string", false, "treat the key as a string even when numeric")

	keys := &cobra.Command{
		Use:   "keys",
		Short: "print the cache keys of a sharding key and primary keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resolve()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "count:   %s\n", cache.CountKey(res))
			fmt.Fprintf(out, "version: %s\n", cache.VersionKey(res))
			for _, v := range f.pks {
				fmt.Fprintf(out, "entity:  %s\n", cache.EntityKey(res, shard.PK(f.pkName, parseValue(v, false))))
			}
			return nil
		},
	}
	keys.Flags().StringVarP(&f.key, "key", "k", "", "sharding key value")
	keys.Flags().BoolVar(&f.rawKey, "string", false, "treat the key as a string even when numeric")
	keys.Flags().StringVar(&f.pkName, "pk-name", "id", "primary key column")
	keys.Flags().StringSliceVar(&f.pks, "pk", nil, "primary key values")

	shards := &cobra.Command{
		Use:   "shards",
		Short: "list every physical table of a sharded table",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := f.topology()
			if err != nil {
				return err
			}
			all, err := topo.All(f.cluster, f.table, f.target())
			if err != nil {
				return err
			}
			for _, res := range all {
				fmt.Fprintf(out, "%s\t%s\t%s\n", res.Handle, res.PhysicalTable(), res.Coordinate())
			}
			return nil
		},
	}

	root.AddCommand(route, keys, shards)
	return root
}

func (f *flags) topology() (*shard.Topology, error) {
	file, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(file.LogLevel, file.PrettyLogs)
	topo, err := shard.NewTopology(file.Sharding, nil)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("config", f.configPath).Strs("handles", topo.Handles()).Msg("topology loaded")
	return topo, nil
}

func (f *flags) target() shard.Target {
	if f.slave >= 0 {
		return shard.Slave(f.slave)
	}
	return shard.Master()
}

func (f *flags) resolve() (shard.Resource, error) {
	topo, err := f.topology()
	if err != nil {
		return shard.Resource{}, err
	}
	if f.global {
		return topo.Global(f.cluster, f.table, f.target())
	}
	if f.key == "" {
		return shard.Resource{}, fmt.Errorf("--key is required for sharded tables")
	}
	key := shard.NewShardingKey(f.cluster, parseValue(f.key, f.rawKey))
	return topo.Select(f.table, key, f.target())
}

// parseValue reads numbers as int64 so they route by value rather than hash.
func parseValue(s string, raw bool) any {
	if !raw {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return s
}
