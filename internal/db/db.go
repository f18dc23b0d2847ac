// Package db wraps the pgx connection pool shared by every query store.
// It classifies connection-level failures as DatabaseUnavailable and
// records query round trips; SQL-level errors pass through untouched so
// callers can map pgx.ErrNoRows to their own NotFound messages.
package db

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

// Pool wraps a pgx pool with error classification and telemetry.
type Pool struct {
	pool    *pgxpool.Pool
	log     *zap.Logger
	metrics *telemetry.Metrics
}

// New opens a pool sized from the configuration. The pool is lazy; Ping
// verifies the database is actually reachable.
func New(ctx context.Context, cfg config.Database, log *zap.Logger, metrics *telemetry.Metrics) (*Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, err, "parsing database config")
	}
	pcfg.MaxConns = int32(cfg.PoolSize)
	pcfg.ConnConfig.RuntimeParams["application_name"] = "nldi"

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, err, "creating connection pool")
	}

	log.Info("database pool created",
		zap.String("dsn", cfg.Redacted()),
		zap.Int("pool_size", cfg.PoolSize))

	return &Pool{pool: pool, log: log.Named("db"), metrics: metrics}, nil
}

// Close releases the pool resources.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping verifies the database is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return errs.Wrap(errs.DatabaseUnavailable, err, "pinging database")
	}
	return nil
}

// Query runs a query and classifies connection failures.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, sql, args...)
	p.observe(start)
	if err != nil {
		return nil, p.classify(err)
	}
	return rows, nil
}

// QueryRow runs a single-row query. Scan errors, pgx.ErrNoRows included,
// surface to the caller unchanged.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	row := p.pool.QueryRow(ctx, sql, args...)
	p.observe(start)
	return row
}

// Exec runs a statement and classifies connection failures.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := p.pool.Exec(ctx, sql, args...)
	p.observe(start)
	if err != nil {
		return tag, p.classify(err)
	}
	return tag, nil
}

// Begin starts a transaction on a pooled connection.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, p.classify(err)
	}
	return tx, nil
}

func (p *Pool) observe(start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveQuery(time.Since(start))
	}
}

func (p *Pool) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		p.log.Warn("database unreachable", zap.Error(err))
		return errs.Wrap(errs.DatabaseUnavailable, err, "database unavailable")
	}
	return err
}
