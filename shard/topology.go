package shard

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Node is one database in a cluster. Name is the logical database name
// written into cache keys; Handle names the connection the executor opens
// and defaults to Name.
type Node struct {
	Name   string `yaml:"name" toml:"name" json:"name"`
	Handle string `yaml:"handle" toml:"handle" json:"handle"`
}

func (n Node) handle() string {
	if n.Handle != "" {
		return n.Handle
	}
	return n.Name
}

// Region owns the sharding values in [Start, End]. Masters hold the data;
// each entry of Slaves is a replica pool mirroring Masters node for node.
type Region struct {
	Start   int64    `yaml:"start" toml:"start" json:"start"`
	End     int64    `yaml:"end" toml:"end" json:"end"`
	Masters []Node   `yaml:"masters" toml:"masters" json:"masters"`
	Slaves  [][]Node `yaml:"slaves" toml:"slaves" json:"slaves"`
}

// GlobalConfig describes the unsharded database of a cluster.
type GlobalConfig struct {
	Master Node     `yaml:"master" toml:"master" json:"master"`
	Slaves []Node   `yaml:"slaves" toml:"slaves" json:"slaves"`
	Tables []string `yaml:"tables" toml:"tables" json:"tables"`
}

// ClusterConfig declares one logical cluster.
type ClusterConfig struct {
	Name    string         `yaml:"name" toml:"name" json:"name"`
	Regions []Region       `yaml:"regions" toml:"regions" json:"regions"`
	Tables  map[string]int `yaml:"tables" toml:"tables" json:"tables"`
	Global  *GlobalConfig  `yaml:"global" toml:"global" json:"global"`
}

// Config is the full sharding layout.
type Config struct {
	HashAlgo string          `yaml:"hash_algo" toml:"hash_algo" json:"hash_algo"`
	Clusters []ClusterConfig `yaml:"clusters" toml:"clusters" json:"clusters"`
}

// Validate checks the layout for structural problems.
func (c Config) Validate() error {
	if _, err := ParseHashAlgo(c.HashAlgo); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Clusters))
	for _, cl := range c.Clusters {
		if err := cl.Validate(); err != nil {
			return err
		}
		if _, dup := seen[cl.Name]; dup {
			return routingErr(cl.Name, "", "cluster declared twice")
		}
		seen[cl.Name] = struct{}{}
	}
	return nil
}

// Validate checks a single cluster declaration.
func (c ClusterConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Regions, validation.When(c.Global == nil, validation.Required)),
		validation.Field(&c.Tables, validation.By(positiveTableCounts)),
	)
	if err != nil {
		return &RoutingError{Cluster: c.Name, Reason: "invalid cluster config", Err: err}
	}
	for i, r := range c.Regions {
		if err := r.validate(); err != nil {
			return &RoutingError{Cluster: c.Name, Reason: "invalid region", Err: err}
		}
		for j := 0; j < i; j++ {
			if r.Start <= c.Regions[j].End && c.Regions[j].Start <= r.End {
				return routingErr(c.Name, "", "region %s overlaps region %s", r.capacity(), c.Regions[j].capacity())
			}
		}
	}
	if c.Global != nil && c.Global.Master.Name == "" {
		return routingErr(c.Name, "", "global master has no name")
	}
	return nil
}

func (r Region) validate() error {
	if r.End < r.Start {
		return errors.New("end must not be lower than start")
	}
	if len(r.Masters) == 0 {
		return errors.New("at least one master node is required")
	}
	for _, pool := range r.Slaves {
		if len(pool) != len(r.Masters) {
			return errors.New("every slave pool must mirror the master nodes")
		}
	}
	return nil
}

func (r Region) capacity() string {
	return Resource{RegionStart: r.Start, RegionEnd: r.End}.RegionCapacity()
}

func positiveTableCounts(value any) error {
	tables, _ := value.(map[string]int)
	for name, n := range tables {
		if n <= 0 {
			return errors.New("table " + name + " must have a count greater than 0")
		}
	}
	return nil
}

// Topology answers which physical resources hold a table.
type Topology struct {
	router   Router
	clusters map[string]ClusterConfig
}

// NewTopology validates cfg and builds a topology. A nil router selects a
// HashRouter using cfg.HashAlgo.
func NewTopology(cfg Config, router Router) (*Topology, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if router == nil {
		algo, _ := ParseHashAlgo(cfg.HashAlgo)
		router = NewHashRouter(algo)
	}
	t := &Topology{router: router, clusters: make(map[string]ClusterConfig, len(cfg.Clusters))}
	for _, c := range cfg.Clusters {
		t.clusters[c.Name] = c
	}
	return t, nil
}

// Router returns the router used to pick shards.
func (t *Topology) Router() Router { return t.router }

// Select resolves the resource holding key's row of table.
func (t *Topology) Select(table string, key ShardingKey, target Target) (Resource, error) {
	c, count, err := t.shardedTable(key.Cluster(), table)
	if err != nil {
		return Resource{}, err
	}
	v, err := t.router.Value(key.Factor())
	if err != nil {
		return Resource{}, withTable(withCluster(err, c.Name), table)
	}

	region, ok := c.region(v)
	if !ok {
		return Resource{}, routingErr(c.Name, table, "sharding value %d is over the cluster capacity", v)
	}
	nodes, role, err := region.pool(target)
	if err != nil {
		return Resource{}, withTable(withCluster(err, c.Name), table)
	}

	tableIndex := index(v, count)
	candidates := make([]Resource, len(nodes))
	for i, n := range nodes {
		candidates[i] = Resource{
			Cluster:     c.Name,
			DBName:      n.Name,
			Handle:      n.handle(),
			Table:       table,
			TableIndex:  tableIndex,
			RegionStart: region.Start,
			RegionEnd:   region.End,
			Role:        role,
		}
	}
	res, err := t.router.Resolve(key, candidates)
	if err != nil {
		return Resource{}, withTable(err, table)
	}
	return res, nil
}

// All lists every physical table of a sharded table, region by region, node
// by node, table index by table index.
func (t *Topology) All(cluster, table string, target Target) ([]Resource, error) {
	c, count, err := t.shardedTable(cluster, table)
	if err != nil {
		return nil, err
	}
	var out []Resource
	for _, region := range c.Regions {
		nodes, role, err := region.pool(target)
		if err != nil {
			return nil, withTable(withCluster(err, c.Name), table)
		}
		for _, n := range nodes {
			for i := 0; i < count; i++ {
				out = append(out, Resource{
					Cluster:     c.Name,
					DBName:      n.Name,
					Handle:      n.handle(),
					Table:       table,
					TableIndex:  i,
					RegionStart: region.Start,
					RegionEnd:   region.End,
					Role:        role,
				})
			}
		}
	}
	return out, nil
}

// Global resolves an unsharded table.
func (t *Topology) Global(cluster, table string, target Target) (Resource, error) {
	c, err := t.cluster(cluster)
	if err != nil {
		return Resource{}, err
	}
	if c.Global == nil {
		return Resource{}, routingErr(cluster, table, "cluster has no global database")
	}
	if len(c.Global.Tables) > 0 && !contains(c.Global.Tables, table) {
		return Resource{}, routingErr(cluster, table, "unknown global table")
	}
	node, role := c.Global.Master, RoleMaster
	if target.IsSlave() {
		if target.SlaveIndex < 0 || target.SlaveIndex >= len(c.Global.Slaves) {
			return Resource{}, routingErr(cluster, table, "no global slave with index %d", target.SlaveIndex)
		}
		node, role = c.Global.Slaves[target.SlaveIndex], RoleSlave
	}
	return Resource{
		Cluster: c.Name,
		DBName:  node.Name,
		Handle:  node.handle(),
		Table:   table,
		Global:  true,
		Role:    role,
	}, nil
}

// HasSlaves reports whether any region or the global database of cluster has
// a slave pool.
func (t *Topology) HasSlaves(cluster string) bool {
	c, ok := t.clusters[cluster]
	if !ok {
		return false
	}
	if c.Global != nil && len(c.Global.Slaves) > 0 {
		return true
	}
	for _, r := range c.Regions {
		if len(r.Slaves) > 0 {
			return true
		}
	}
	return false
}

// Handles returns every connection handle referenced by the topology, sorted.
func (t *Topology) Handles() []string {
	set := map[string]struct{}{}
	for _, c := range t.clusters {
		for _, r := range c.Regions {
			for _, n := range r.Masters {
				set[n.handle()] = struct{}{}
			}
			for _, pool := range r.Slaves {
				for _, n := range pool {
					set[n.handle()] = struct{}{}
				}
			}
		}
		if c.Global != nil {
			set[c.Global.Master.handle()] = struct{}{}
			for _, n := range c.Global.Slaves {
				set[n.handle()] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (t *Topology) cluster(name string) (ClusterConfig, error) {
	c, ok := t.clusters[name]
	if !ok {
		return ClusterConfig{}, routingErr(name, "", "unknown cluster")
	}
	return c, nil
}

func (t *Topology) shardedTable(cluster, table string) (ClusterConfig, int, error) {
	c, err := t.cluster(cluster)
	if err != nil {
		return ClusterConfig{}, 0, err
	}
	count, ok := c.Tables[table]
	if !ok {
		return ClusterConfig{}, 0, routingErr(cluster, table, "unknown sharded table")
	}
	if len(c.Regions) == 0 {
		return ClusterConfig{}, 0, routingErr(cluster, table, "cluster has no sharding regions")
	}
	return c, count, nil
}

func (c ClusterConfig) region(v int64) (Region, bool) {
	for _, r := range c.Regions {
		if v >= r.Start && v <= r.End {
			return r, true
		}
	}
	return Region{}, false
}

func (r Region) pool(target Target) ([]Node, Role, error) {
	if !target.IsSlave() {
		return r.Masters, RoleMaster, nil
	}
	if target.SlaveIndex < 0 || target.SlaveIndex >= len(r.Slaves) {
		return nil, RoleSlave, routingErr("", "", "region %s has no slave pool %d", r.capacity(), target.SlaveIndex)
	}
	return r.Slaves[target.SlaveIndex], RoleSlave, nil
}

func withTable(err error, table string) error {
	if re, ok := err.(*RoutingError); ok && re.Table == "" {
		cp := *re
		cp.Table = table
		return &cp
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
