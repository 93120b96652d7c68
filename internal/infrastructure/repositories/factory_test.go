package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRepositoryFactory_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	factory, err := NewRepositoryFactory(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.Nil(t, factory.RedisClient())

	store := factory.Store()
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	id, err := store.CreateStream(ctx, 5, "Chess", "")
	require.NoError(t, err)
	live, err := store.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, id, live[0].ID)
}

func TestNewRepositoryFactory_PostgresUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = "postgres"
	cfg.Database.DSN = "postgres://nobody@127.0.0.1:1/streamcast?connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewRepositoryFactory(ctx, cfg, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestRetryConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Retry.MaxAttempts = 4
	cfg.Store.Retry.InitialDelay = 10 * time.Millisecond

	rc := RetryConfig(cfg)
	assert.True(t, rc.Enabled)
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, rc.InitialDelay)

	var matched bool
	for _, e := range rc.NonRetryableErrors {
		if errors.Is(domain.ErrStreamNotFound, e) {
			matched = true
		}
	}
	assert.True(t, matched)
}

func TestBreakerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.CircuitBreaker.FailureThreshold = 2
	cfg.Store.CircuitBreaker.OpenTimeout = time.Second

	bc := BreakerConfig(cfg)
	assert.Equal(t, 2, bc.FailureThreshold)
	assert.Equal(t, 2, bc.SuccessThreshold)
	assert.Equal(t, time.Second, bc.Timeout)
}
