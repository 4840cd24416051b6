package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/sessionauth/auth"
	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/handlers"
	"github.com/upb/sessionauth/internal/observability"
	"github.com/upb/sessionauth/middleware"
	"github.com/upb/sessionauth/repositories"
	"github.com/upb/sessionauth/repositories/postgres"
	redisstore "github.com/upb/sessionauth/repositories/redis"
	"github.com/upb/sessionauth/services"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *goredis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users    repositories.UserRepository
	Sessions repositories.SessionRepository

	// Metrics is what the service records into; Prometheus is set only when metrics are enabled.
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics

	// Auth
	AuthService    *services.AuthService
	Transport      *auth.Transport
	AuthMiddleware *middleware.AuthMiddleware

	// HTTP handlers
	AuthHandler   *handlers.AuthHandler
	HealthHandler *handlers.HealthHandler

	readiness map[string]handlers.Pinger
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		readiness: make(map[string]handlers.Pinger),
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize the session store
	if err := deps.initSessionStore(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	if err := deps.initServices(); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("session_store", cfg.SessionStore),
		zap.Bool("metrics_enabled", cfg.Observability.MetricsEnabled))
	return deps, nil
}

// NewDependenciesFromRepositories wires the service and HTTP layers over repositories the caller
// already owns. Nothing is closed by Close except the logger sync.
func NewDependenciesFromRepositories(cfg *config.Config, repos repositories.Repositories, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Users:     repos.Users,
		Sessions:  repos.Sessions,
		readiness: make(map[string]handlers.Pinger),
	}
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(ctx, cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	repos := factory.NewRepositories()
	d.Users = repos.Users
	d.Sessions = repos.Sessions
	d.readiness["database"] = handlers.PingFunc(d.DB.HealthCheck)

	d.Logger.Info("repositories initialized")
	return nil
}

// initSessionStore swaps the Postgres session repository for Redis when configured
func (d *Dependencies) initSessionStore(ctx context.Context, cfg *config.Config) error {
	if cfg.SessionStore != config.SessionStoreRedis {
		return nil
	}

	client := redisstore.NewClient(cfg.Redis)
	if err := redisstore.WaitReady(ctx, client, cfg.Startup.RetryMaxElapsed, d.Logger); err != nil {
		_ = client.Close()
		return err
	}
	d.useRedis(client, cfg.Redis)

	d.Logger.Info("redis session store connected",
		zap.String("addr", cfg.Redis.Addr),
		zap.Int("db", cfg.Redis.DB))
	return nil
}

func (d *Dependencies) useRedis(client *goredis.Client, cfg config.RedisConfig) {
	sessions := redisstore.NewSessionRepository(client, cfg.KeyPrefix, cfg.Retention, d.Logger)
	d.Redis = client
	d.Sessions = sessions
	d.readiness["redis"] = sessions
}

// initServices builds the auth service and the HTTP layer on top of the repositories
func (d *Dependencies) initServices() error {
	cfg := d.Config

	d.Metrics = observability.NopMetrics{}
	if cfg.Observability.MetricsEnabled {
		d.Prometheus = observability.NewPrometheusMetrics()
		d.Metrics = d.Prometheus
	}

	svc, err := services.NewAuthService(cfg.Auth, repositories.Repositories{
		Users:    d.Users,
		Sessions: d.Sessions,
	}, d.Logger, services.WithMetrics(d.Metrics))
	if err != nil {
		return err
	}

	d.AuthService = svc
	d.Transport = auth.NewTransport(cfg.Auth)
	d.AuthMiddleware = middleware.NewAuthMiddleware(svc, d.Transport, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(svc, d.Transport, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.readiness, d.Logger)
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
