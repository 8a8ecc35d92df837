package repositorycache

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/cache"
	"github.com/goliatone/go-repository-shardcache/shard"
)

// SlowQueryConfig holds the per operation durations above which a database
// call is logged as slow. Zero disables the log for that operation.
type SlowQueryConfig struct {
	Count time.Duration `yaml:"count" toml:"count" json:"count"`
	Query time.Duration `yaml:"query" toml:"query" json:"query"`
	PK    time.Duration `yaml:"pk" toml:"pk" json:"pk"`
	PKs   time.Duration `yaml:"pks" toml:"pks" json:"pks"`
}

// Config tunes a repository.
type Config struct {
	SlowQuery SlowQueryConfig `yaml:"slow_query" toml:"slow_query" json:"slow_query"`
	// FanOut bounds concurrent shard reads of cross-shard operations. Values
	// below 2 read shards one after another.
	FanOut int `yaml:"fan_out" toml:"fan_out" json:"fan_out"`
}

// DefaultConfig returns the default repository settings.
func DefaultConfig() Config {
	return Config{
		SlowQuery: SlowQueryConfig{
			Count: 2 * time.Second,
			Query: 50 * time.Millisecond,
			PK:    time.Millisecond,
			PKs:   10 * time.Millisecond,
		},
		FanOut: 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c.SlowQuery,
		validation.Field(&c.SlowQuery.Count, validation.Min(time.Duration(0))),
		validation.Field(&c.SlowQuery.Query, validation.Min(time.Duration(0))),
		validation.Field(&c.SlowQuery.PK, validation.Min(time.Duration(0))),
		validation.Field(&c.SlowQuery.PKs, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return &cache.ConfigError{Field: "slow_query", Message: err.Error()}
	}
	if c.FanOut < 0 {
		return &cache.ConfigError{Field: "fan_out", Message: "must not be negative"}
	}
	return nil
}

type options struct {
	logger zerolog.Logger
	ids    IDGenerator
	sig    cache.SignatureBuilder
	config Config
}

// Option configures a Repository.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIDGenerator sets the generator used for rows inserted without an id.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithSignatureBuilder overrides how query signatures are rendered.
func WithSignatureBuilder(b cache.SignatureBuilder) Option {
	return func(o *options) {
		if b != nil {
			o.sig = b
		}
	}
}

// WithConfig sets the repository tuning.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// Repository reads and writes entities of type T across the shards of a
// topology, keeping both cache levels of a cache.Manager in step.
type Repository[T any] struct {
	model    Model[T]
	topo     *shard.Topology
	exec     Executor[T]
	primary  *cache.PrimaryCache
	entities cache.EntityCache[T]
	second   *cache.SecondCache
	results  cache.QueryCache[T]
	ids      IDGenerator
	sig      cache.SignatureBuilder
	logger   zerolog.Logger
	cfg      Config
}

// New builds a repository. A nil manager, or a manager with a disabled level,
// runs without that cache level.
func New[T any](model Model[T], topo *shard.Topology, exec Executor[T], manager *cache.Manager, opts ...Option) (*Repository[T], error) {
	if topo == nil {
		return nil, errors.New("repositorycache: topology is required")
	}
	if exec == nil {
		return nil, errors.New("repositorycache: executor is required")
	}
	m, err := model.withDefaults()
	if err != nil {
		return nil, errors.Wrap(err, "repositorycache")
	}

	o := options{
		logger: zerolog.Nop(),
		sig:    cache.NewSignatureBuilder(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	r := &Repository[T]{
		model:  m,
		topo:   topo,
		exec:   exec,
		ids:    o.ids,
		sig:    o.sig,
		logger: o.logger.With().Str("table", m.Table).Logger(),
		cfg:    o.config,
	}
	if !m.NoCache {
		r.primary = manager.Primary()
		r.second = manager.Second()
		if r.primary != nil {
			r.entities = cache.Entities[T](r.primary, manager.Codec())
		}
		if r.second != nil {
			r.results = cache.Queries[T](r.second, manager.Codec())
		}
	}
	return r, nil
}

// Table returns the logical table name.
func (r *Repository[T]) Table() string { return r.model.Table }

func (r *Repository[T]) primaryOn(ctx context.Context) bool {
	return r.primary != nil && !cacheBypassed(ctx)
}

func (r *Repository[T]) secondOn(ctx context.Context) bool {
	return r.second != nil && !cacheBypassed(ctx)
}

func (r *Repository[T]) cluster(name string) string {
	if name == "" {
		return r.model.Cluster
	}
	return name
}

// resolve returns the resource holding key's rows on target.
func (r *Repository[T]) resolve(key shard.ShardingKey, target shard.Target) (shard.Resource, error) {
	cluster := r.cluster(key.Cluster())
	if r.model.Global {
		return r.topo.Global(cluster, r.model.Table, target)
	}
	if key.Cluster() == "" {
		key = shard.NewShardingKey(cluster, key.Factor())
	}
	return r.topo.Select(r.model.Table, key, target)
}

// all lists every resource of the table on target.
func (r *Repository[T]) all(cluster string, target shard.Target) ([]shard.Resource, error) {
	cluster = r.cluster(cluster)
	if r.model.Global {
		res, err := r.topo.Global(cluster, r.model.Table, target)
		if err != nil {
			return nil, err
		}
		return []shard.Resource{res}, nil
	}
	return r.topo.All(cluster, r.model.Table, target)
}

// located pairs the resource a statement runs on with the master resource
// whose coordinate names the cache entries. Slaves share their master's cache
// so writes, which always hit the master, invalidate what slave reads see.
type located struct {
	cache shard.Resource
	db    shard.Resource
}

func (r *Repository[T]) locate(key shard.ShardingKey, target shard.Target) (located, error) {
	master, err := r.resolve(key, shard.Master())
	if err != nil {
		return located{}, err
	}
	if !target.IsSlave() {
		return located{cache: master, db: master}, nil
	}
	db, err := r.resolve(key, target)
	if err != nil {
		return located{}, err
	}
	return located{cache: master, db: db}, nil
}

func (r *Repository[T]) locateAll(cluster string, target shard.Target) ([]located, error) {
	masters, err := r.all(cluster, shard.Master())
	if err != nil {
		return nil, err
	}
	dbs := masters
	if target.IsSlave() {
		if dbs, err = r.all(cluster, target); err != nil {
			return nil, err
		}
	}
	out := make([]located, len(masters))
	for i := range masters {
		out[i] = located{cache: masters[i], db: dbs[i]}
	}
	return out, nil
}

// withSession runs fn on a session for res, closing it on every path. A
// failure becomes a DataAccessError and rolls back the transaction in ctx.
func (r *Repository[T]) withSession(ctx context.Context, op string, res shard.Resource, slow time.Duration, fn func(Session[T]) error) error {
	s, err := r.exec.Acquire(ctx, res)
	if err != nil {
		return r.fail(ctx, op, res, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			r.logger.Warn().Err(cerr).Str("op", op).Stringer("resource", res).Msg("failed to close session")
		}
	}()

	start := time.Now()
	err = fn(s)
	if elapsed := time.Since(start); slow > 0 && elapsed > slow {
		r.logger.Warn().
			Str("op", op).
			Stringer("resource", res).
			Dur("elapsed", elapsed).
			Dur("threshold", slow).
			Msg("slow query")
	}
	if err != nil {
		return r.fail(ctx, op, res, err)
	}
	return nil
}

func (r *Repository[T]) fail(ctx context.Context, op string, res shard.Resource, err error) error {
	if tx := TransactionFrom(ctx); tx != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			r.logger.Error().Err(rerr).Str("op", op).Msg("rollback failed")
		}
	}
	return &DataAccessError{Op: op, Resource: res, Err: err}
}

// retryOnMaster runs read on target and, when target is a slave and the
// result is empty, once more on the master.
func retryOnMaster[V any](logger zerolog.Logger, target shard.Target, read func(shard.Target) (V, error), empty func(V) bool) (V, error) {
	v, err := read(target)
	if err != nil || !target.IsSlave() || !empty(v) {
		return v, err
	}
	logger.Debug().Int("slave", target.SlaveIndex).Msg("empty slave read, retrying on master")
	return read(shard.Master())
}

func (r *Repository[T]) project(rows []T, fields []string) ([]T, error) {
	if len(fields) == 0 {
		return rows, nil
	}
	out := make([]T, len(rows))
	for i, row := range rows {
		p, err := r.model.Project(row, fields)
		if err != nil {
			return nil, errors.Wrap(err, "project fields")
		}
		out[i] = p
	}
	return out, nil
}
