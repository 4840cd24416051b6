package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/repositories"
	"go.uber.org/zap"
)

const defaultQueryTimeout = 3 * time.Second

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	queryTimeout time.Duration
	logger       *zap.Logger
}

// Open creates the connection pool without touching the network.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := Wrap(sqlDB, logger)
	if cfg.QueryTimeout > 0 {
		db.queryTimeout = cfg.QueryTimeout
	}
	return db, nil
}

// Wrap adopts an existing pool, e.g. one created by sqlmock.
func Wrap(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: sqlDB, queryTimeout: defaultQueryTimeout, logger: logger}
}

// WaitReady pings with exponential backoff until the database answers or maxElapsed passes.
func (db *DB) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, db.queryTimeout)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			db.logger.Warn("database not ready, retrying",
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings and runs a trivial query
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// withTimeout bounds a single store call by the configured query timeout
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.queryTimeout)
}

// InitSchema creates the users and sessions tables when they do not exist yet
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			telegram_id BIGINT NOT NULL UNIQUE,
			username VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS user_sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_agent TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true
		);

		CREATE UNIQUE INDEX IF NOT EXISTS uq_user_sessions_active_client
			ON user_sessions(user_id, user_agent) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

// unavailable tags a driver error so callers can tell store failures from domain outcomes
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", repositories.ErrStoreUnavailable, op, err)
}
