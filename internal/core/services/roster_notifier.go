package services

import (
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"go.uber.org/zap"
)

// RosterNotifier pushes the full broadcaster list to every client. Snapshots
// carry the registry version they were taken at; a snapshot older than the
// last one published is dropped so clients never move backwards.
type RosterNotifier struct {
	messenger ports.Messenger
	metrics   ports.SignalMetrics
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	published bool
	last      uint64
}

func NewRosterNotifier(messenger ports.Messenger, metrics ports.SignalMetrics, logger *zap.SugaredLogger) *RosterNotifier {
	return &RosterNotifier{
		messenger: messenger,
		metrics:   metrics,
		logger:    logger,
	}
}

// Publish broadcasts roster to all clients and reports whether it was sent.
func (n *RosterNotifier) Publish(roster domain.Roster) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.published && roster.Version < n.last {
		n.logger.Debugw("dropping stale roster",
			"version", roster.Version,
			"last_published", n.last,
		)
		return false
	}
	n.published = true
	n.last = roster.Version

	delivered := n.messenger.Broadcast(domain.EventBroadcasterList, rosterIDs(roster))
	n.metrics.RecordRosterPublish(len(roster.IDs))
	n.logger.Debugw("roster published",
		"version", roster.Version,
		"broadcasters", len(roster.IDs),
		"delivered", delivered,
	)
	return true
}

// SendTo replies to a single socket with the roster.
func (n *RosterNotifier) SendTo(id domain.SocketID, roster domain.Roster) bool {
	return n.messenger.Send(id, domain.EventBroadcasterList, rosterIDs(roster))
}

// rosterIDs never returns nil so an empty roster encodes as [].
func rosterIDs(roster domain.Roster) []domain.SocketID {
	if roster.IDs == nil {
		return []domain.SocketID{}
	}
	return roster.IDs
}
