package ports

import (
	"context"

	"streamcast/internal/core/domain"
)

// StreamStore is the persistence surface the signaling core writes through.
type StreamStore interface {
	CreateStream(ctx context.Context, userID domain.UserID, title, thumbnail string) (domain.StreamID, error)
	MarkStreamsEnded(ctx context.Context, userID domain.UserID) error
	MarkStreamEnded(ctx context.Context, streamID domain.StreamID) error
}

type StreamCatalog interface {
	ListLive(ctx context.Context) ([]*domain.Stream, error)
	SearchByTitle(ctx context.Context, prefix string, limit int) ([]*domain.Stream, error)
}

type ChatRepository interface {
	Insert(ctx context.Context, chat *domain.Chat) error
	Latest(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.Chat, error)
}

// Store bundles every record operation a backend provides.
type Store interface {
	StreamStore
	StreamCatalog
	ChatRepository
	Ping(ctx context.Context) error
	Close()
}
