// Package sqldb implements storage.Store on database/sql for SQLite
// (modernc.org/sqlite, pure Go) and Postgres (lib/pq).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the backend. SQLitePath is used for DriverSQLite,
// DatabaseURL for DriverPostgres.
type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool
}

type dialect struct {
	name string
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is appended to row reads that must hold a lock until commit.
// SQLite transactions are opened with BEGIN IMMEDIATE and already hold the
// database write lock.
func (d dialect) forUpdate() string {
	if d.name == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
	d dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

func (c conn) Entries() storage.EntryRepository          { return entryRepo{c} }
func (c conn) Rules() storage.RuleRepository             { return ruleRepo{c} }
func (c conn) Debtors() storage.DebtorRepository         { return debtorRepo{c} }
func (c conn) Obligations() storage.ObligationRepository { return obligationRepo{c} }
func (c conn) Receipts() storage.ReceiptRepository       { return receiptRepo{c} }

// Store implements storage.Store.
type Store struct {
	conn
	db     *sql.DB
	logger *log.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, opts Options, logger *log.Logger) (*Store, error) {
	logger = logger.WithComponent(log.ComponentStorage)

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		db, err = sql.Open("sqlite", sqliteDSN(opts.SQLitePath))
	case DriverPostgres:
		db, err = sql.Open("postgres", opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !opts.SkipMigrations {
		if err := RunMigrations(opts); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	logger.Info("Database ready", "driver", opts.Driver)
	return &Store{
		conn:   conn{q: db, d: dialect{name: opts.Driver}},
		db:     db,
		logger: logger,
	}, nil
}

// sqliteDSN enables foreign keys, waits on a busy database instead of
// failing, and opens every transaction with BEGIN IMMEDIATE.
func sqliteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Rollback failed", log.FieldError, rbErr)
			}
		}
	}()

	if err = fn(conn{q: tx, d: s.d}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return &core.StorageError{Op: "commit", Err: err}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
