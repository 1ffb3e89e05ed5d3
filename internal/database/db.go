// Package database is the relational store layer. All SQL lives here;
// higher layers call narrow methods on DB and never see pgx directly.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool. It is constructed once at boot and
// passed explicitly into every component that needs durable state.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect parses the DSN, opens a pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases the pool. Safe to call once during shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}
