package infrastructure

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse connection string")
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "unable to ping database")
	}

	client := &PostgresClient{Pool: pool}
	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migration failed")
	}

	return client, nil
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS advisory_usage (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			operation VARCHAR(20) NOT NULL,
			model VARCHAR(128) NOT NULL,
			fallback BOOLEAN NOT NULL DEFAULT FALSE,
			failure VARCHAR(32) NOT NULL DEFAULT '',
			latency_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return errors.Wrap(err, "create advisory_usage table")
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_advisory_usage_user_created
		ON advisory_usage (user_id, created_at);
	`)
	if err != nil {
		return errors.Wrap(err, "create advisory_usage index")
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
