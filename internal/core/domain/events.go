package domain

import "encoding/json"

// Inbound event types.
const (
	EventIdentityAnnounce  = "identity-announce"
	EventBecomeBroadcaster = "become-broadcaster"
	EventWatcherReady      = "watcher-ready"
	EventWatchStream       = "watch-stream"
	EventStartStream       = "start-stream"
	EventStopStream        = "stop-stream"
)

// Outbound event types.
const (
	EventConnected               = "connected"
	EventBroadcasterList         = "broadcaster-list"
	EventWatcher                 = "watcher"
	EventWatcherAccepted         = "watcher-accepted"
	EventBroadcasterDisconnected = "broadcaster-disconnected"
	EventViewerDisconnected      = "viewer-disconnected"
	EventError                   = "error"
)

// SignalKind is a negotiation message type relayed verbatim between peers.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

type SocketPayload struct {
	SocketID SocketID `json:"socket_id"`
}

type WatcherAcceptedPayload struct {
	StreamID StreamID `json:"stream_id"`
}

// RelayPayload carries an opaque negotiation body together with the id of
// the socket that sent it.
type RelayPayload struct {
	From    SocketID        `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type LifecycleEventType string

const (
	LifecycleStreamStarted LifecycleEventType = "stream.started"
	LifecycleStreamEnded   LifecycleEventType = "stream.ended"
	LifecycleRosterChanged LifecycleEventType = "roster.changed"
)

// LifecycleEvent is published to other instances when the local roster or a
// stream changes.
type LifecycleEvent struct {
	Type         LifecycleEventType `json:"type"`
	SocketID     SocketID           `json:"socket_id,omitempty"`
	UserID       UserID             `json:"user_id,omitempty"`
	StreamIDs    []StreamID         `json:"stream_ids,omitempty"`
	Broadcasters int                `json:"broadcasters"`
}
