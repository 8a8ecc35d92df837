package di

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/internal/dbinfra"
	"github.com/goliatone/go-repository-shardcache/internal/idgen"
	"github.com/goliatone/go-repository-shardcache/pkg/config"
	"github.com/goliatone/go-repository-shardcache/pkg/logging"
	"github.com/goliatone/go-repository-shardcache/repositorycache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// Container owns the shared infrastructure of a deployment: the topology,
// the cache manager, the database handles and the id generator. Repositories
// built from the same container share all of it.
type Container struct {
	config   config.File
	logger   zerolog.Logger
	topology *shard.Topology
	manager  *cache.Manager
	dbs      *dbinfra.Databases
	ids      *idgen.Memory
}

type options struct {
	logger       *zerolog.Logger
	cacheOptions []cache.ManagerOption
}

// Option customizes a Container.
type Option func(*options)

// WithLogger replaces the logger built from the configured level.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithCacheOptions passes options to the cache manager, for example injected
// stores.
func WithCacheOptions(opts ...cache.ManagerOption) Option {
	return func(o *options) { o.cacheOptions = append(o.cacheOptions, opts...) }
}

// NewContainer validates cfg and opens everything it describes. Whatever was
// opened is closed again when a later step fails.
func NewContainer(cfg config.File, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if o.logger != nil {
		logger = *o.logger
	}

	topo, err := shard.NewTopology(cfg.Sharding, nil)
	if err != nil {
		return nil, errors.Wrap(err, "topology")
	}

	manager, err := cache.NewManager(cfg.Cache, append([]cache.ManagerOption{cache.WithLogger(logger)}, o.cacheOptions...)...)
	if err != nil {
		return nil, errors.Wrap(err, "cache")
	}

	dbs, err := dbinfra.Open(cfg.Databases, logger)
	if err != nil {
		manager.Close()
		return nil, err
	}

	logger.Info().
		Strs("handles", dbs.Handles()).
		Bool("primary_cache", manager.Primary() != nil).
		Bool("second_cache", manager.Second() != nil).
		Msg("container ready")

	return &Container{
		config:   cfg,
		logger:   logger,
		topology: topo,
		manager:  manager,
		dbs:      dbs,
		ids:      idgen.NewMemory(cfg.IDStart),
	}, nil
}

// NewContainerFromFile loads path with config.Load and builds a container.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg, opts...)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.File { return c.config }

// Logger returns the shared logger.
func (c *Container) Logger() zerolog.Logger { return c.logger }

// Topology returns the shard topology.
func (c *Container) Topology() *shard.Topology { return c.topology }

// Cache returns the cache manager.
func (c *Container) Cache() *cache.Manager { return c.manager }

// Databases returns the open database handles.
func (c *Container) Databases() *dbinfra.Databases { return c.dbs }

// IDs returns the id generator handed to every repository.
func (c *Container) IDs() *idgen.Memory { return c.ids }

// Begin starts a multi-database transaction. Attach it to a context with
// repositorycache.WithTransaction.
func (c *Container) Begin(opts *sql.TxOptions) *dbinfra.Tx {
	return c.dbs.Begin(opts)
}

// Close releases the cache backends and the database handles.
func (c *Container) Close() error {
	cacheErr := c.manager.Close()
	dbErr := c.dbs.Close()
	if cacheErr != nil {
		return errors.Wrap(cacheErr, "close cache")
	}
	return errors.Wrap(dbErr, "close databases")
}

// NewRepository builds a repository for model on the container's shared
// infrastructure. T needs bun tags for its columns.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewRepository(container, repositorycache.Model[User]{PK: userPK})
func NewRepository[T any](c *Container, model repositorycache.Model[T], opts ...repositorycache.Option) (*repositorycache.Repository[T], error) {
	base := []repositorycache.Option{
		repositorycache.WithLogger(c.logger),
		repositorycache.WithIDGenerator(c.ids),
		repositorycache.WithConfig(c.config.Repository),
	}
	return repositorycache.New[T](model, c.topology, dbinfra.NewExecutor(c.dbs, model.PK), c.manager, append(base, opts...)...)
}

// CreateTables creates every physical table of model on masters and slaves.
func CreateTables[T any](ctx context.Context, c *Container, model repositorycache.Model[T]) error {
	resources, err := c.resources(model.Cluster, model.TableName(), model.Global)
	if err != nil {
		return err
	}
	for _, res := range resources {
		if err := dbinfra.CreateTable[T](ctx, c.dbs, res); err != nil {
			return err
		}
	}
	c.logger.Debug().Str("table", model.TableName()).Int("physical_tables", len(resources)).Msg("tables created")
	return nil
}

// resources lists the physical tables of a table on the master and on every
// slave pool.
func (c *Container) resources(cluster, table string, global bool) ([]shard.Resource, error) {
	list := func(target shard.Target) ([]shard.Resource, error) {
		if global {
			res, err := c.topology.Global(cluster, table, target)
			return []shard.Resource{res}, err
		}
		return c.topology.All(cluster, table, target)
	}

	out, err := list(shard.Master())
	if err != nil {
		return nil, err
	}
	if !c.topology.HasSlaves(cluster) {
		return out, nil
	}
	for i := 0; ; i++ {
		slaves, err := list(shard.Slave(i))
		if err != nil {
			break
		}
		out = append(out, slaves...)
	}
	return out, nil
}
