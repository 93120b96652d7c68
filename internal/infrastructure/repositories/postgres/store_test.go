package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
	assert.Equal(t, "Chess", escapeLike("Chess"))
}

// TestStore_Postgres runs against a real database when STREAMCAST_TEST_DSN is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("STREAMCAST_TEST_DSN")
	if dsn == "" {
		t.Skip("STREAMCAST_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, PoolOptions{MaxConns: 4}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be re-runnable")

	store := NewStore(pool)
	userID := domain.UserID(time.Now().UnixNano() % 1_000_000_000)
	title := "Chess " + time.Now().Format("150405.000000")

	streamID, err := store.CreateStream(ctx, userID, title, "chess.png")
	require.NoError(t, err)

	found, err := store.SearchByTitle(ctx, title[:8], 50)
	require.NoError(t, err)
	assert.NotEmpty(t, found)

	require.NoError(t, store.Insert(ctx, &domain.Chat{StreamID: streamID, UserID: userID, Message: "gg"}))
	chats, err := store.Latest(ctx, streamID, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "gg", chats[0].Message)

	err = store.Insert(ctx, &domain.Chat{StreamID: -1, UserID: userID, Message: "nope"})
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	require.NoError(t, store.MarkStreamsEnded(ctx, userID))
	live, err := store.ListLive(ctx)
	require.NoError(t, err)
	for _, s := range live {
		assert.NotEqual(t, streamID, s.ID)
	}
}
