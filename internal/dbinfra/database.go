package dbinfra

import (
	"database/sql"
	"sort"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DatabaseConfig describes how to open one connection handle.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" toml:"driver" json:"driver"`
	DSN          string `yaml:"dsn" toml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns" json:"max_open_conns"`
}

// Validate checks the configuration.
func (c DatabaseConfig) Validate() error {
	if _, err := dialectFor(c.Driver); err != nil {
		return err
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("dsn must not be empty")
	}
	if c.MaxOpenConns < 0 {
		return errors.New("max_open_conns must not be negative")
	}
	return nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	}
	return nil, errors.Errorf("unsupported driver %q", driver)
}

// Databases holds one bun.DB per connection handle.
type Databases struct {
	mu     sync.RWMutex
	dbs    map[string]*bun.DB
	logger zerolog.Logger
}

// NewDatabases returns an empty set of handles.
func NewDatabases(logger zerolog.Logger) *Databases {
	return &Databases{dbs: map[string]*bun.DB{}, logger: logger}
}

// Open opens every configured handle. Already opened handles are closed
// again when one of them fails.
func Open(cfg map[string]DatabaseConfig, logger zerolog.Logger) (*Databases, error) {
	d := NewDatabases(logger)
	handles := make([]string, 0, len(cfg))
	for h := range cfg {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	for _, h := range handles {
		c := cfg[h]
		if err := c.Validate(); err != nil {
			d.Close()
			return nil, errors.Wrapf(err, "database %s", h)
		}
		dialect, _ := dialectFor(c.Driver)
		sqldb, err := sql.Open(c.Driver, c.DSN)
		if err != nil {
			d.Close()
			return nil, errors.Wrapf(err, "open database %s", h)
		}
		if c.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(c.MaxOpenConns)
		}
		d.Add(h, bun.NewDB(sqldb, dialect))
		logger.Debug().Str("handle", h).Str("driver", c.Driver).Msg("database opened")
	}
	return d, nil
}

// Add registers db under handle, replacing any previous one.
func (d *Databases) Add(handle string, db *bun.DB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dbs[handle] = db
}

// DB returns the database of handle.
func (d *Databases) DB(handle string) (*bun.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	db, ok := d.dbs[handle]
	if !ok {
		return nil, errors.Errorf("unknown database handle %q", handle)
	}
	return db, nil
}

// Handles lists the registered handles, sorted.
func (d *Databases) Handles() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.dbs))
	for h := range d.dbs {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Close closes every database and returns the first error.
func (d *Databases) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for h, db := range d.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close database %s", h)
		}
		delete(d.dbs, h)
	}
	return first
}
