// Package docstore is the system of record. It wraps a SQL database
// behind bun, connecting lazily so the process can start while the
// database is still coming up, and exposes generic repositories plus the
// bulk operations the batch flusher needs.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	// Database drivers register themselves with database/sql.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/entity"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/metric"
)

// Store owns the database handle. The connection is created on first use
// and shared for the life of the process; a failed attempt leaves the
// store unconnected so a later call can try again.
type Store struct {
	cfg     config.DocStoreConfig
	metrics *metric.Metrics

	mu sync.Mutex
	db *bun.DB
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics wires document-store failure counters.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a Store from configuration. No connection is opened
// until the first operation needs one.
func NewStore(cfg config.DocStoreConfig, opts ...Option) *Store {
	s := &Store{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the shared database handle, opening it on first call.
func (s *Store) DB(ctx context.Context) (*bun.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := open(s.cfg)
	if err != nil {
		s.recordError("connect")
		return nil, err
	}

	s.db = db
	return s.db, nil
}

func open(cfg config.DocStoreConfig) (*bun.DB, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch cfg.Driver {
	case config.DocStoreDriverPostgres:
		sqldb, err = sql.Open("postgres", cfg.DSN)
		dialect = pgdialect.New()
	case config.DocStoreDriverSQLite:
		sqldb, err = sql.Open("sqlite3", cfg.DSN)
		dialect = sqlitedialect.New()
	default:
		return nil, errors.WrapConfiguration(
			fmt.Errorf("unknown driver %q", cfg.Driver),
			"DocStore", "DB", "open database")
	}
	if err != nil {
		return nil, errors.WrapInfrastructure(err, "DocStore", "DB", "open database")
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)

	return bun.NewDB(sqldb, dialect), nil
}

// Ping verifies the database is reachable, connecting if necessary.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		s.recordError("ping")
		return errors.WrapInfrastructure(err, "DocStore", "Ping", "ping database")
	}
	return nil
}

// EnsureSchema creates the entity tables when they do not exist yet, in
// dependency order so foreign keys resolve.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.DB(ctx)
	if err != nil {
		return err
	}

	models := []any{
		(*entity.User)(nil),
		(*entity.Brand)(nil),
		(*entity.Product)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			s.recordError("create_table")
			return errors.WrapInfrastructure(err, "DocStore", "EnsureSchema", "create table")
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errors.WrapInfrastructure(err, "DocStore", "Close", "close database")
	}
	return nil
}

func (s *Store) recordError(operation string) {
	if s.metrics != nil {
		s.metrics.RecordDocStoreError(operation)
	}
}
