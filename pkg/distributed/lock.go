package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrNotHeld     = errors.New("lock not held by this owner")
)

// Compare-and-delete so an expired holder never removes its successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a Redis mutex held for at most ttl unless renewed. While held, a
// background goroutine extends it every ttl/2.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	retryInterval time.Duration
	stopRenew     chan struct{}
	renewDone     chan struct{}
}

func NewLock(client redis.UniversalClient, key string, ttl time.Duration) *Lock {
	return &Lock{
		client:        client,
		key:           key,
		token:         uuid.NewString(),
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
	}
}

func (l *Lock) Key() string {
	return l.key
}

// TryAcquire makes a single SET NX attempt.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.startRenewal()
	}
	return ok, nil
}

// Acquire polls until the lock is taken or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, l.key, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *Lock) Release(ctx context.Context) error {
	l.stopRenewal()

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lock) startRenewal() {
	l.stopRenew = make(chan struct{})
	l.renewDone = make(chan struct{})

	go func() {
		defer close(l.renewDone)
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
				n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
				cancel()
				if err != nil || n == 0 {
					return
				}
			case <-l.stopRenew:
				return
			}
		}
	}()
}

func (l *Lock) stopRenewal() {
	if l.stopRenew == nil {
		return
	}
	close(l.stopRenew)
	<-l.renewDone
	l.stopRenew = nil
}

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration, fn func(context.Context) error) error {
	lock := NewLock(client, key, ttl)
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}
