package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

// Options tunes the query wrapper
type Options struct {
	// QueryTimeout bounds every QueryRow/Query/Exec issued through Database
	QueryTimeout time.Duration
	// SlowQueryThreshold logs queries slower than this at warn level; zero disables
	SlowQueryThreshold time.Duration
}

// Database holds the PostgreSQL connection pool and wraps queries with
// a per-query timeout and slow-query logging
type Database struct {
	pool          *pgxpool.Pool
	queryTimeout  time.Duration
	slowThreshold time.Duration
	logger        zerolog.Logger
}

// New creates a new database connection
func New(ctx context.Context, databaseURL string, opts Options) (*Database, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure connection pool
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := NewFromPool(pool, opts)

	if err := db.InitializeSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// NewFromPool wraps an existing pool
func NewFromPool(pool *pgxpool.Pool, opts Options) *Database {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	return &Database{
		pool:          pool,
		queryTimeout:  opts.QueryTimeout,
		slowThreshold: opts.SlowQueryThreshold,
		logger:        logging.NewLogger("database"),
	}
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// GetPool returns the connection pool
func (db *Database) GetPool() *pgxpool.Pool {
	return db.pool
}

// InitializeSchema executes the embedded schema. Statements are idempotent.
func (db *Database) InitializeSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	db.logger.Info().Msg("database schema initialized")
	return nil
}

// Health checks if the database is healthy
func (db *Database) Health(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return fmt.Errorf("database connection not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.pool.Ping(ctx)
}

// QueryRow executes a query that returns a single row.
// The timeout covers the query until Scan returns.
func (db *Database) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	start := time.Now()
	return &timedRow{
		row:    db.pool.QueryRow(ctx, sql, args...),
		cancel: cancel,
		done:   func(err error) { db.observe(sql, start, err) },
	}
}

// Query executes a query and returns rows. The timeout covers iteration until Close.
func (db *Database) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	start := time.Now()
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		cancel()
		db.observe(sql, start, err)
		return nil, err
	}
	return &timedRows{Rows: rows, cancel: cancel, done: func() { db.observe(sql, start, rows.Err()) }}, nil
}

// Exec executes a statement without returning rows
func (db *Database) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	defer cancel()

	start := time.Now()
	tag, err := db.pool.Exec(ctx, sql, args...)
	db.observe(sql, start, err)
	return tag, err
}

// Begin starts a transaction. Transactions are bounded by the caller's context only.
func (db *Database) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

func (db *Database) observe(sql string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil && err != pgx.ErrNoRows {
		db.logger.Debug().Err(err).Dur("duration", elapsed).Str("sql", compact(sql)).Msg("query failed")
	}
	if db.slowThreshold > 0 && elapsed > db.slowThreshold {
		db.logger.Warn().Dur("duration", elapsed).Str("sql", compact(sql)).Msg("slow query")
	}
}

type timedRow struct {
	row    pgx.Row
	cancel context.CancelFunc
	done   func(error)
}

func (r *timedRow) Scan(dest ...any) error {
	defer r.cancel()
	err := r.row.Scan(dest...)
	r.done(err)
	return err
}

type timedRows struct {
	pgx.Rows
	cancel context.CancelFunc
	done   func()
	closed bool
}

func (r *timedRows) Close() {
	r.Rows.Close()
	if !r.closed {
		r.closed = true
		r.done()
		r.cancel()
	}
}

// compact trims whitespace runs so multi-line SQL fits on one log line
func compact(sql string) string {
	out := strings.Join(strings.Fields(sql), " ")
	if len(out) > 200 {
		out = out[:200] + "..."
	}
	return out
}
