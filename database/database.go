// Package database wraps a pgx connection pool behind a handle that can be
// transparently rebound to an open transaction. Handlers receive a *DB and
// never need to know whether the pipeline wrapped the request in a
// transaction for audit or row-level-security scoping.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/registry"
)

// Querier is the query surface shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a database handle bound to either a pool or an open transaction.
type DB struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// New returns a handle over pool.
func New(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("database: pool is nil")
	}
	return &DB{pool: pool}, nil
}

// Querier returns the open transaction when one is bound, the pool
// otherwise.
func (d *DB) Querier() Querier {
	if d.tx != nil {
		return d.tx
	}
	return d.pool
}

// InTx reports whether the handle is bound to an open transaction.
func (d *DB) InTx() bool {
	return d.tx != nil
}

// Pool exposes the underlying pool for collaborators that need it
// directly (migrations, job clients).
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// WithTx runs fn with a handle bound to a transaction. An already open
// transaction is reused; otherwise one is begun, committed on success, and
// rolled back on error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, db *DB) error) error {
	if d.tx != nil {
		return fn(ctx, d)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &DB{pool: d.pool, tx: tx}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close releases the pool.
func (d *DB) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// Connect opens a pool against url.
func Connect(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Service returns a registry descriptor for a *DB built from DATABASE_URL
// and DATABASE_MAX_CONNECTIONS.
func Service(name string) *registry.Descriptor {
	return registry.NewService(name, func(ctx context.Context, env *config.Env) (any, error) {
		url, err := env.Require("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := Connect(ctx, url, env.Int("DATABASE_MAX_CONNECTIONS", 25))
		if err != nil {
			return nil, err
		}
		return New(pool)
	})
}
