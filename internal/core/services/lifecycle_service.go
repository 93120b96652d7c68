package services

import (
	"context"
	"encoding/json"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/registry"
	"streamcast/pkg/utils"

	"go.uber.org/zap"
)

const logTitleLength = 64

type LifecycleOptions struct {
	// StoreTimeout bounds every store call made on behalf of a socket.
	StoreTimeout time.Duration
	// TrustClientIdentity accepts a bare user id announced by the client.
	TrustClientIdentity bool
}

func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		StoreTimeout:        5 * time.Second,
		TrustClientIdentity: true,
	}
}

// LifecycleService owns every registry mutation. Store calls happen outside
// the registry lock and their failures never reach the peer.
type LifecycleService struct {
	registry  *registry.Registry
	relay     *RelayService
	notifier  *RosterNotifier
	messenger ports.Messenger
	store     ports.StreamStore
	resolver  ports.SessionResolver
	events    ports.EventPublisher
	metrics   ports.SignalMetrics
	logger    *zap.SugaredLogger
	opts      LifecycleOptions

	newSocketID func() domain.SocketID
}

func NewLifecycleService(
	reg *registry.Registry,
	relay *RelayService,
	notifier *RosterNotifier,
	messenger ports.Messenger,
	store ports.StreamStore,
	resolver ports.SessionResolver,
	events ports.EventPublisher,
	metrics ports.SignalMetrics,
	logger *zap.SugaredLogger,
	opts LifecycleOptions,
) *LifecycleService {
	if events == nil {
		events = NoopEventPublisher{}
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultLifecycleOptions().StoreTimeout
	}
	return &LifecycleService{
		registry:    reg,
		relay:       relay,
		notifier:    notifier,
		messenger:   messenger,
		store:       store,
		resolver:    resolver,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		opts:        opts,
		newSocketID: utils.NewSocketID,
	}
}

// Connect allocates a socket id and attaches it to the registry.
func (s *LifecycleService) Connect(ctx context.Context) domain.SocketID {
	id := s.newSocketID()
	for !s.registry.Attach(id) {
		id = s.newSocketID()
	}
	s.recordStats()
	s.logger.Infow("socket connected", "socket_id", id)
	return id
}

// AnnounceIdentity binds a client supplied user id to the socket.
func (s *LifecycleService) AnnounceIdentity(ctx context.Context, id domain.SocketID, userID domain.UserID) error {
	if !s.opts.TrustClientIdentity {
		return domain.ErrIdentityRejected
	}
	if userID <= 0 {
		return domain.ErrUserUnknown
	}
	if !s.registry.SetUser(id, userID) {
		return domain.ErrSessionNotFound
	}
	s.recordStats()
	s.logger.Infow("identity announced", "socket_id", id, "user_id", userID)
	return nil
}

// AnnounceToken resolves a session token and binds its user to the socket.
func (s *LifecycleService) AnnounceToken(ctx context.Context, id domain.SocketID, token string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	userID, err := s.resolver.ResolveUserID(storeCtx, token)
	if err != nil {
		s.logger.Infow("session token rejected", "socket_id", id, "error", err)
		return err
	}
	if !s.registry.SetUser(id, userID) {
		return domain.ErrSessionNotFound
	}
	s.recordStats()
	s.logger.Infow("identity resolved from token", "socket_id", id, "user_id", userID)
	return nil
}

func (s *LifecycleService) BecomeBroadcaster(ctx context.Context, id domain.SocketID) {
	commit, ok := s.registry.BecomeBroadcaster(id)
	if !ok {
		return
	}
	s.recordStats()
	s.notifier.Publish(commit.Roster)
	if commit.Changed {
		s.logger.Infow("broadcaster registered", "socket_id", id)
		s.emit(ctx, domain.LifecycleEvent{
			Type:         domain.LifecycleRosterChanged,
			SocketID:     id,
			Broadcasters: len(commit.Roster.IDs),
		})
	}
}

// StartStream creates the stream record and, once it exists, binds it to the
// socket. Sockets without a known user are ignored. The returned bool reports
// whether the stream went live.
func (s *LifecycleService) StartStream(ctx context.Context, id domain.SocketID, title, thumbnail string) (domain.StreamID, bool) {
	userID, ok := s.registry.GetUser(id)
	if !ok {
		s.logger.Debugw("start-stream without identity ignored", "socket_id", id)
		return 0, false
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	streamID, err := s.store.CreateStream(storeCtx, userID, title, thumbnail)
	if err != nil {
		s.metrics.RecordStoreFailure("create_stream")
		s.logger.Errorw("failed to create stream",
			"socket_id", id,
			"user_id", userID,
			"error", err,
		)
		return 0, false
	}

	commit, ok := s.registry.CommitStream(id, streamID)
	if !ok {
		// socket left while the row was being written
		if err := s.store.MarkStreamEnded(storeCtx, streamID); err != nil {
			s.metrics.RecordStoreFailure("mark_stream_ended")
			s.logger.Warnw("failed to end orphaned stream",
				"socket_id", id,
				"stream_id", streamID,
				"error", err,
			)
		}
		s.logger.Infow("stream created after socket left", "socket_id", id, "stream_id", streamID)
		return streamID, false
	}

	s.recordStats()
	s.notifier.Publish(commit.Roster)
	s.logger.Infow("stream started",
		"socket_id", id,
		"user_id", userID,
		"stream_id", streamID,
		"title", utils.TruncateString(title, logTitleLength),
	)
	s.emit(ctx, domain.LifecycleEvent{
		Type:         domain.LifecycleStreamStarted,
		SocketID:     id,
		UserID:       userID,
		StreamIDs:    []domain.StreamID{streamID},
		Broadcasters: len(commit.Roster.IDs),
	})
	return streamID, true
}

// StopStream ends the socket's broadcast while keeping it connected.
func (s *LifecycleService) StopStream(ctx context.Context, id domain.SocketID) {
	stop, ok := s.registry.StopBroadcast(id)
	if !ok {
		return
	}
	s.recordStats()

	if stop.WasBroadcaster {
		s.messenger.Broadcast(domain.EventBroadcasterDisconnected, domain.SocketPayload{SocketID: id})
	}
	s.notifier.Publish(stop.Roster)

	// a socket that owns no stream must not end rows of the user's other sockets
	if !stop.WasBroadcaster && len(stop.Streams) == 0 {
		return
	}
	if stop.HasUser {
		s.endStreams(ctx, id, stop.UserID)
	}
	s.logger.Infow("stream stopped",
		"socket_id", id,
		"streams", stop.Streams,
		"viewers_released", len(stop.Viewers),
	)
	s.emit(ctx, domain.LifecycleEvent{
		Type:         domain.LifecycleStreamEnded,
		SocketID:     id,
		UserID:       stop.UserID,
		StreamIDs:    stop.Streams,
		Broadcasters: len(stop.Roster.IDs),
	})
}

func (s *LifecycleService) WatcherReady(ctx context.Context, id domain.SocketID) {
	s.notifier.SendTo(id, s.registry.CurrentBroadcasters())
}

func (s *LifecycleService) WatchStream(ctx context.Context, id domain.SocketID, streamID domain.StreamID) {
	if s.relay.Watch(id, streamID).Bound {
		s.recordStats()
	}
}

func (s *LifecycleService) Relay(ctx context.Context, kind domain.SignalKind, from, to domain.SocketID, payload json.RawMessage) error {
	_, err := s.relay.Relay(kind, from, to, payload)
	return err
}

// Disconnect tears the socket down. Only the first call for a socket has any
// effect; it reports whether this call performed the teardown.
func (s *LifecycleService) Disconnect(ctx context.Context, id domain.SocketID) bool {
	td, ok := s.registry.Detach(id)
	if !ok {
		return false
	}
	s.recordStats()

	if td.WasBroadcaster {
		s.messenger.Broadcast(domain.EventBroadcasterDisconnected, domain.SocketPayload{SocketID: id})
	}
	if td.Watched != "" {
		s.messenger.Send(td.Watched, domain.EventViewerDisconnected, domain.SocketPayload{SocketID: id})
	}
	s.notifier.Publish(td.Roster)

	s.logger.Infow("socket disconnected",
		"socket_id", id,
		"was_broadcaster", td.WasBroadcaster,
		"viewers_released", len(td.Viewers),
		"streams", td.Streams,
		"session_duration", time.Since(td.ConnectedAt),
	)

	if td.HasUser {
		s.endStreams(ctx, id, td.UserID)
	}
	if td.WasBroadcaster || len(td.Streams) > 0 {
		s.emit(ctx, domain.LifecycleEvent{
			Type:         domain.LifecycleStreamEnded,
			SocketID:     id,
			UserID:       td.UserID,
			StreamIDs:    td.Streams,
			Broadcasters: len(td.Roster.IDs),
		})
	}
	return true
}

// Session reports the socket's current registry state.
func (s *LifecycleService) Session(id domain.SocketID) (domain.PeerSession, bool) {
	return s.registry.Session(id)
}

func (s *LifecycleService) Stats() domain.RegistryStats {
	return s.registry.Stats()
}

func (s *LifecycleService) endStreams(ctx context.Context, id domain.SocketID, userID domain.UserID) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.MarkStreamsEnded(storeCtx, userID); err != nil {
		s.metrics.RecordStoreFailure("mark_streams_ended")
		s.logger.Errorw("failed to mark streams ended",
			"socket_id", id,
			"user_id", userID,
			"error", err,
		)
	}
}

// storeContext detaches from the caller's cancellation so a closing socket
// never aborts a store call halfway.
func (s *LifecycleService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
}

func (s *LifecycleService) emit(ctx context.Context, event domain.LifecycleEvent) {
	eventCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.events.Publish(eventCtx, event); err != nil {
		s.logger.Warnw("failed to publish lifecycle event",
			"type", event.Type,
			"socket_id", event.SocketID,
			"error", err,
		)
	}
}

func (s *LifecycleService) recordStats() {
	s.metrics.RecordRegistry(s.registry.Stats())
}
