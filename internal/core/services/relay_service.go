package services

import (
	"encoding/json"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/registry"

	"go.uber.org/zap"
)

// RelayService routes negotiation messages between two sockets. It keeps no
// state of its own; watch bindings live in the registry.
type RelayService struct {
	registry  *registry.Registry
	messenger ports.Messenger
	metrics   ports.SignalMetrics
	logger    *zap.SugaredLogger
}

func NewRelayService(reg *registry.Registry, messenger ports.Messenger, metrics ports.SignalMetrics, logger *zap.SugaredLogger) *RelayService {
	return &RelayService{
		registry:  reg,
		messenger: messenger,
		metrics:   metrics,
		logger:    logger,
	}
}

// Relay forwards payload to the target together with the sender id. The pair
// is not validated against any watch binding; a missing target drops the
// message.
func (s *RelayService) Relay(kind domain.SignalKind, from, to domain.SocketID, payload json.RawMessage) (bool, error) {
	if !kind.Valid() {
		return false, domain.ErrUnknownSignal
	}

	delivered := s.messenger.Send(to, string(kind), domain.RelayPayload{
		From:    from,
		Payload: payload,
	})
	s.metrics.RecordRelay(kind, delivered)

	if !delivered {
		s.logger.Debugw("relay target gone, message dropped",
			"kind", kind,
			"socket_id", from,
			"target", to,
		)
	}
	return delivered, nil
}

// Watch attaches viewer to whoever serves streamID. The viewer is always
// acknowledged, even when the stream does not resolve or the viewer is
// already watching.
func (s *RelayService) Watch(viewer domain.SocketID, streamID domain.StreamID) registry.WatchResult {
	result := s.registry.Watch(viewer, streamID)
	s.metrics.RecordWatch(result.Resolved)

	if result.Bound {
		s.messenger.Send(result.Broadcaster, domain.EventWatcher, domain.SocketPayload{SocketID: viewer})
		s.logger.Infow("viewer attached",
			"socket_id", viewer,
			"broadcaster", result.Broadcaster,
			"stream_id", streamID,
		)
	} else if !result.Resolved {
		s.logger.Debugw("watch for unknown stream",
			"socket_id", viewer,
			"stream_id", streamID,
		)
	}

	s.messenger.Send(viewer, domain.EventWatcherAccepted, domain.WatcherAcceptedPayload{StreamID: streamID})
	return result
}
