package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	// Begin starts a transaction.
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execer is satisfied by both DatabasePool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logrus.Info("PostgreSQL connection closed")
	}
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if db.Pool == nil {
		return errors.New("postgres pool is not initialized")
	}
	return db.Pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS watchlist_items (
	ticker                  VARCHAR(15) PRIMARY KEY,
	date_added              TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_favourite            BOOLEAN NOT NULL DEFAULT false,
	is_leader               BOOLEAN NOT NULL DEFAULT false,
	last_refresh_status     VARCHAR(16) NOT NULL DEFAULT 'PENDING',
	last_refresh_at         TIMESTAMPTZ,
	failed_stage            VARCHAR(16),
	current_price           DOUBLE PRECISION,
	pivot_price             DOUBLE PRECISION,
	pivot_proximity_percent DOUBLE PRECISION,
	is_at_pivot             BOOLEAN,
	has_pullback_setup      BOOLEAN,
	vcp_pass                BOOLEAN,
	has_pivot               BOOLEAN,
	fresh                   BOOLEAN,
	pattern_age_days        INTEGER,
	days_since_pivot        INTEGER,
	vol_last                DOUBLE PRECISION,
	vol_50d_avg             DOUBLE PRECISION,
	vol_vs_50d_ratio        DOUBLE PRECISION,
	day_change_pct          DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS archived_watchlist_items (
	ticker       VARCHAR(15) PRIMARY KEY,
	archived_at  TIMESTAMPTZ NOT NULL,
	reason       VARCHAR(32) NOT NULL,
	failed_stage VARCHAR(16),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archived_watchlist_items_expires_at
	ON archived_watchlist_items (expires_at);
`

// Migrate creates the watchlist and archive tables when they do not exist.
func Migrate(ctx context.Context, pool execer) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// storageError marks a driver or network failure as ErrStorageUnavailable while keeping the cause.
func storageError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, utils.ErrStorageUnavailable, err)
}
