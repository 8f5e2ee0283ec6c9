// Package postgres implements the repository interfaces on PostgreSQL
// through a pgx connection pool. It is selected when DATABASE_URL is set.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of *pgxpool.Pool the repository uses. pgxmock's pool
// satisfies it too, which is how the tests run without a server.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// DB implements repository.IdentityRepository and repository.GuildRepository.
type DB struct {
	pool DBTX
}

// New wraps an existing pool. Call Migrate before first use.
func New(pool DBTX) *DB {
	return &DB{pool: pool}
}

// NewPool parses databaseURL, opens a pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	return pool, nil
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate creates the users and guilds tables if they are missing.
// Column layout matches the sqlite backend; expires_at is unix seconds.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGINT PRIMARY KEY,
			username      TEXT,
			access_token  TEXT,
			refresh_token TEXT,
			expires_at    BIGINT,
			email         TEXT,
			ip            TEXT
		)`); err != nil {
		return fmt.Errorf("postgres: creating users table: %w", err)
	}

	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS guilds (
			guild_id         BIGINT PRIMARY KEY,
			verified_role_id BIGINT
		)`); err != nil {
		return fmt.Errorf("postgres: creating guilds table: %w", err)
	}
	return nil
}
