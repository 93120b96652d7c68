package ports

import (
	"context"
	"encoding/json"

	"streamcast/internal/core/domain"
)

type SessionResolver interface {
	ResolveUserID(ctx context.Context, token string) (domain.UserID, error)
}

// Messenger delivers outbound events to connected sockets. Delivery never
// blocks; Send reports false when the target is gone or saturated.
type Messenger interface {
	Send(to domain.SocketID, event string, payload interface{}) bool
	Broadcast(event string, payload interface{}) int
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}

type SignalMetrics interface {
	RecordRegistry(stats domain.RegistryStats)
	RecordRelay(kind domain.SignalKind, delivered bool)
	RecordWatch(resolved bool)
	RecordRosterPublish(size int)
	RecordStoreFailure(operation string)
}

// SignalService is the entry point for every socket event.
type SignalService interface {
	Connect(ctx context.Context) domain.SocketID
	AnnounceIdentity(ctx context.Context, id domain.SocketID, userID domain.UserID) error
	AnnounceToken(ctx context.Context, id domain.SocketID, token string) error
	BecomeBroadcaster(ctx context.Context, id domain.SocketID)
	StartStream(ctx context.Context, id domain.SocketID, title, thumbnail string) (domain.StreamID, bool)
	StopStream(ctx context.Context, id domain.SocketID)
	WatcherReady(ctx context.Context, id domain.SocketID)
	WatchStream(ctx context.Context, id domain.SocketID, streamID domain.StreamID)
	Relay(ctx context.Context, kind domain.SignalKind, from, to domain.SocketID, payload json.RawMessage) error
	Disconnect(ctx context.Context, id domain.SocketID) bool
	Session(id domain.SocketID) (domain.PeerSession, bool)
	Stats() domain.RegistryStats
}

// CatalogService serves the persisted stream and chat records over HTTP.
type CatalogService interface {
	ListLive(ctx context.Context) ([]*domain.Stream, error)
	Search(ctx context.Context, query string) ([]*domain.Stream, error)
	LatestChats(ctx context.Context, streamID domain.StreamID) ([]*domain.Chat, error)
	PostChat(ctx context.Context, userID domain.UserID, streamID domain.StreamID, message string) (*domain.Chat, error)
}
