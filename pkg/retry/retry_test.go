package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func fastConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		attempts := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		attempts := 0
		err := Do(ctx, fastConfig(), func(context.Context) error {
			attempts++
			return errTransient
		})
		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, attempts)
	})

	t.Run("disabled", func(t *testing.T) {
		attempts := 0
		err := Do(ctx, Config{MaxAttempts: 5}, func(context.Context) error {
			attempts++
			return errTransient
		})
		assert.Equal(t, errTransient, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("non-retryable", func(t *testing.T) {
		cfg := fastConfig()
		cfg.NonRetryableErrors = []error{errFatal}
		attempts := 0
		err := Do(ctx, cfg, func(context.Context) error {
			attempts++
			return errors.Join(errFatal, errors.New("detail"))
		})
		assert.ErrorIs(t, err, errFatal)
		assert.NotErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 1, attempts)
	})
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error)
	go func() {
		done <- Do(ctx, cfg, func(context.Context) error {
			attempts++
			return errTransient
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	n, err := DoWithResult(context.Background(), fastConfig(), func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, 2, attempts)
}

func TestDelay(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, Delay(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, Delay(cfg, 1))
	assert.Equal(t, 400*time.Millisecond, Delay(cfg, 2))
	assert.Equal(t, time.Second, Delay(cfg, 10))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := Delay(cfg, 1)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
