package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"scribeq/internal/config"
)

// Store manages job persistence over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	target  string

	defaultMaxAttempts int
	enforceMaxAttempts bool
	maxClaimBatch      int
	now                func() time.Time
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithClock replaces the clock used to stamp created_at, started_at,
// finished_at, and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

const sqliteBusyCode = 5

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Open connects to the configured job database and initializes its schema.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("open queue store: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	d, err := lookupDialect(cfg.Database.Driver)
	if err != nil {
		return nil, &Error{Op: "open", Kind: KindInvalidArgument, Err: err}
	}
	target := cfg.DatabaseDSN()
	dsn, err := d.prepareDSN(target, cfg.Database.BusyTimeoutMS)
	if err != nil {
		return nil, &Error{Op: "open", Kind: KindInvalidArgument, Err: err}
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, classify("open", fmt.Errorf("open %s db: %w", d.name, err))
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	store := &Store{
		db:                 db,
		dialect:            d,
		target:             target,
		defaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		enforceMaxAttempts: cfg.Queue.EnforceMaxAttempts,
		maxClaimBatch:      cfg.Queue.MaxClaimBatch,
		now:                time.Now,
	}
	if store.defaultMaxAttempts <= 0 {
		store.defaultMaxAttempts = 3
	}
	if store.maxClaimBatch <= 0 {
		store.maxClaimBatch = 100
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, classify("init schema", err)
	}
	return store, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the dialect name the store was opened with.
func (s *Store) Driver() string {
	return s.dialect.name
}

// MaxClaimBatch returns the largest limit Claim accepts.
func (s *Store) MaxClaimBatch() int {
	return s.maxClaimBatch
}

// DefaultMaxAttempts returns the max_attempts stamped on jobs inserted
// without an explicit value.
func (s *Store) DefaultMaxAttempts() int {
	return s.defaultMaxAttempts
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// withTx runs fn inside one transaction. The transaction commits only when
// fn returns nil; otherwise every statement rolls back.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return tx.ExecContext(ctx, s.dialect.rebind(query), args...)
}
