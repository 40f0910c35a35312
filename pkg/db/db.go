package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	MaxConns int32
	MinConns int32
}

func DefaultOptions() Options { return Options{MaxConns: 10, MinConns: 1} }

func Connect(ctx context.Context, dsn string, opts Options) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Exec applies a multi-statement script. pgx sends argument-less Exec
// calls over the simple protocol, so the script may hold several statements.
func Exec(ctx context.Context, pool *pgxpool.Pool, script string) error {
	if _, err := pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
