package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/infrastructure/repositories/memory"
	"streamcast/pkg/circuitbreaker"
	"streamcast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errConnRefused = errors.New("connection refused")

// flakyStore fails the first n calls to each write with errConnRefused.
type flakyStore struct {
	*memory.MemoryStore

	mu       sync.Mutex
	failures int
	calls    map[string]int
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{
		MemoryStore: memory.NewMemoryStore(),
		failures:    failures,
		calls:       make(map[string]int),
	}
}

func (s *flakyStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	if s.calls[op] <= s.failures {
		return errConnRefused
	}
	return nil
}

func (s *flakyStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *flakyStore) CreateStream(ctx context.Context, userID domain.UserID, title, thumbnail string) (domain.StreamID, error) {
	if err := s.hit("create"); err != nil {
		return 0, err
	}
	return s.MemoryStore.CreateStream(ctx, userID, title, thumbnail)
}

func (s *flakyStore) MarkStreamsEnded(ctx context.Context, userID domain.UserID) error {
	if err := s.hit("end"); err != nil {
		return err
	}
	return s.MemoryStore.MarkStreamsEnded(ctx, userID)
}

func testRetry() retry.Config {
	return retry.Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func testBreaker() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	}
}

func TestStoreWrapper_RetriesIdempotentCalls(t *testing.T) {
	store := newFlakyStore(2)
	w := NewStoreWrapper(store, testRetry(), testBreaker(), zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, w.MarkStreamsEnded(ctx, 5))
	assert.Equal(t, 3, store.callCount("end"))
	assert.Equal(t, circuitbreaker.StateClosed, w.BreakerStats().State)
}

func TestStoreWrapper_CreateStreamIsNotRetried(t *testing.T) {
	store := newFlakyStore(1)
	w := NewStoreWrapper(store, testRetry(), testBreaker(), zap.NewNop().Sugar())

	_, err := w.CreateStream(context.Background(), 5, "Chess", "chess.png")
	assert.ErrorIs(t, err, errConnRefused)
	assert.Equal(t, 1, store.callCount("create"))

	id, err := w.CreateStream(context.Background(), 5, "Chess", "chess.png")
	require.NoError(t, err)
	assert.Equal(t, domain.StreamID(1), id)
}

func TestStoreWrapper_OpenBreakerFailsFast(t *testing.T) {
	store := newFlakyStore(100)
	w := NewStoreWrapper(store, testRetry(), testBreaker(), zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = w.CreateStream(ctx, 5, "Chess", "")
	}
	require.Equal(t, circuitbreaker.StateOpen, w.BreakerStats().State)

	err := w.MarkStreamsEnded(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Zero(t, store.callCount("end"))
}

func TestStoreWrapper_CallerErrorsDoNotTripBreaker(t *testing.T) {
	store := memory.NewMemoryStore()
	w := NewStoreWrapper(store, testRetry(), testBreaker(), zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := w.Insert(ctx, &domain.Chat{StreamID: 404, UserID: 5, Message: "hi"})
		assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, w.BreakerStats().State)
	assert.Zero(t, w.BreakerStats().FailureCount)
}

func TestStoreWrapper_PassThrough(t *testing.T) {
	store := memory.NewMemoryStore()
	w := NewStoreWrapper(store, testRetry(), testBreaker(), zap.NewNop().Sugar())
	ctx := context.Background()

	id, err := w.CreateStream(ctx, 5, "Chess openings", "chess.png")
	require.NoError(t, err)

	live, err := w.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, id, live[0].ID)

	found, err := w.SearchByTitle(ctx, "Chess", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, w.Insert(ctx, &domain.Chat{StreamID: id, UserID: 5, Message: "gg"}))
	chats, err := w.Latest(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "gg", chats[0].Message)

	require.NoError(t, w.MarkStreamEnded(ctx, id))
	live, err = w.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	assert.NoError(t, w.Ping(ctx))
}
