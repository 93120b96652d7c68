package repositories

import (
	"context"
	"fmt"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/reliability"
	"streamcast/internal/infrastructure/repositories/memory"
	"streamcast/internal/infrastructure/repositories/postgres"
	redisrepo "streamcast/internal/infrastructure/repositories/redis"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/config"
	"streamcast/pkg/distributed"
	"streamcast/pkg/retry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	migrationLockKey = "streamcast:lock:migrate"
	migrationLockTTL = 30 * time.Second
)

// RepositoryFactory owns the record store and the optional Redis client.
type RepositoryFactory struct {
	store       *reliability.StoreWrapper
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory opens the configured store backend and wraps it with
// retry and circuit breaking. Redis is optional: if it cannot be reached the
// instance runs without cross-instance events.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, running without event bus",
				"error", err,
			)
		} else {
			factory.redisClient = client
		}
	}

	backend, err := factory.openStore(ctx, cfg)
	if err != nil {
		_ = redisrepo.CloseRedisClient(factory.redisClient)
		return nil, err
	}
	factory.store = reliability.NewStoreWrapper(backend, RetryConfig(cfg), BreakerConfig(cfg), logger)

	return factory, nil
}

func (f *RepositoryFactory) openStore(ctx context.Context, cfg *config.Config) (ports.Store, error) {
	if cfg.Store.Backend != "postgres" {
		f.logger.Info("using memory store")
		return memory.NewMemoryStore(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.DSN, postgres.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		if err := f.migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		f.logger.Info("database schema up to date")
	}

	f.logger.Info("using PostgreSQL store")
	return postgres.NewStore(pool), nil
}

// migrate holds a Redis lock when one is available so instances starting
// together do not race on the schema.
func (f *RepositoryFactory) migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if f.redisClient == nil {
		return postgres.Migrate(ctx, pool)
	}
	return distributed.WithLock(ctx, f.redisClient, migrationLockKey, migrationLockTTL, func(ctx context.Context) error {
		return postgres.Migrate(ctx, pool)
	})
}

// RetryConfig never retries caller errors such as an unknown stream.
func RetryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	rc.Enabled = cfg.Store.Retry.Enabled
	if cfg.Store.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Store.Retry.MaxAttempts
	}
	if cfg.Store.Retry.InitialDelay > 0 {
		rc.InitialDelay = cfg.Store.Retry.InitialDelay
	}
	if cfg.Store.Retry.MaxDelay > 0 {
		rc.MaxDelay = cfg.Store.Retry.MaxDelay
	}
	rc.NonRetryableErrors = []error{domain.ErrStreamNotFound, context.Canceled}
	return rc
}

func BreakerConfig(cfg *config.Config) circuitbreaker.Config {
	bc := circuitbreaker.DefaultConfig()
	if cfg.Store.CircuitBreaker.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.Store.CircuitBreaker.FailureThreshold
	}
	if cfg.Store.CircuitBreaker.SuccessThreshold > 0 {
		bc.SuccessThreshold = cfg.Store.CircuitBreaker.SuccessThreshold
	}
	if cfg.Store.CircuitBreaker.OpenTimeout > 0 {
		bc.Timeout = cfg.Store.CircuitBreaker.OpenTimeout
	}
	return bc
}

func (f *RepositoryFactory) Store() *reliability.StoreWrapper {
	return f.store
}

// RedisClient is nil when Redis is disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	f.store.Close()
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}
