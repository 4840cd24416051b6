package postgres

import (
	"context"
	"fmt"

	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the pool and hands out the Postgres-backed repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the pool, waits for the database, and bootstraps the schema if asked to.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := db.WaitReady(ctx, cfg.Startup.RetryMaxElapsed); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	if cfg.Database.InitSchema {
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return NewRepositoryFactoryFromDB(db, logger), nil
}

// NewRepositoryFactoryFromDB builds a factory around an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:    NewUserRepository(f.db, f.logger),
		Sessions: NewSessionRepository(f.db, f.logger),
	}
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
