// Package registry holds the process-wide connection state of the signaling
// server: which sockets broadcast, which viewer watches whom, which stream is
// served by which socket and which user owns a socket.
//
// Every exported method is one critical section. Callers never see the
// underlying maps, and slices returned are copies.
package registry

import (
	"sort"
	"sync"
	"time"

	"streamcast/internal/core/domain"
)

type Registry struct {
	mu sync.Mutex

	sessions     map[domain.SocketID]time.Time
	broadcasters map[domain.SocketID]struct{}
	viewers      map[domain.SocketID]domain.SocketID
	streams      map[domain.StreamID]domain.SocketID
	streamOwner  map[domain.SocketID]domain.StreamID
	users        map[domain.SocketID]domain.UserID

	// version changes whenever the broadcaster set does.
	version uint64

	now func() time.Time
}

func New() *Registry {
	return &Registry{
		sessions:     make(map[domain.SocketID]time.Time),
		broadcasters: make(map[domain.SocketID]struct{}),
		viewers:      make(map[domain.SocketID]domain.SocketID),
		streams:      make(map[domain.StreamID]domain.SocketID),
		streamOwner:  make(map[domain.SocketID]domain.StreamID),
		users:        make(map[domain.SocketID]domain.UserID),
		now:          time.Now,
	}
}

// Attach records a live socket. Entries may only reference attached sockets.
func (r *Registry) Attach(id domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return false
	}
	r.sessions[id] = r.now()
	return true
}

func (r *Registry) Attached(id domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	return ok
}

// AddBroadcaster reports whether the broadcaster set changed.
func (r *Registry) AddBroadcaster(id domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.addBroadcaster(id)
}

func (r *Registry) RemoveBroadcaster(id domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeBroadcaster(id)
}

// BindViewer binds viewer to broadcaster unless the viewer is already bound.
// The first binding wins.
func (r *Registry) BindViewer(viewer, broadcaster domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.bindViewer(viewer, broadcaster)
}

func (r *Registry) UnbindViewer(viewer domain.SocketID) (domain.SocketID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.unbindViewer(viewer)
}

// BindStream maps streamID to the socket, replacing any earlier holder of
// the stream and any earlier stream of the socket.
func (r *Registry) BindStream(streamID domain.StreamID, id domain.SocketID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.bindStream(streamID, id)
}

func (r *Registry) UnbindStreamsFor(id domain.SocketID) []domain.StreamID {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.unbindStreamsFor(id)
}

func (r *Registry) LookupBroadcasterForStream(streamID domain.StreamID) (domain.SocketID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.streams[streamID]
	return id, ok
}

func (r *Registry) ViewersWatching(broadcaster domain.SocketID) []domain.SocketID {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.viewersWatching(broadcaster)
}

func (r *Registry) SetUser(id domain.SocketID, userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.users[id] = userID
	return true
}

func (r *Registry) GetUser(id domain.SocketID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.users[id]
	return userID, ok
}

func (r *Registry) ClearUser(id domain.SocketID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, id)
}

// CurrentBroadcasters returns the roster sorted by socket id.
func (r *Registry) CurrentBroadcasters() domain.Roster {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.roster()
}

func (r *Registry) Session(id domain.SocketID) (domain.PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectedAt, ok := r.sessions[id]
	if !ok {
		return domain.PeerSession{}, false
	}

	session := domain.PeerSession{
		SocketID:    id,
		ConnectedAt: connectedAt,
		Watching:    r.viewers[id],
	}
	session.UserID, session.HasUser = r.users[id]
	_, session.Broadcaster = r.broadcasters[id]
	if streamID, ok := r.streamOwner[id]; ok {
		session.Streams = []domain.StreamID{streamID}
	}
	return session, true
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats()
}

// WatchResult describes the outcome of a watch request.
type WatchResult struct {
	Broadcaster domain.SocketID
	Resolved    bool
	Bound       bool
}

// Watch resolves streamID and binds the viewer to its broadcaster when the
// viewer is not watching anything yet.
func (r *Registry) Watch(viewer domain.SocketID, streamID domain.StreamID) WatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	broadcaster, ok := r.streams[streamID]
	if !ok {
		return WatchResult{}
	}
	return WatchResult{
		Broadcaster: broadcaster,
		Resolved:    true,
		Bound:       r.bindViewer(viewer, broadcaster),
	}
}

// Commit is the registry side of a successful stream creation.
type Commit struct {
	Changed bool
	Roster  domain.Roster
}

// CommitStream binds streamID to the socket and marks it as a broadcaster.
// It refuses when the socket detached while the stream was being created.
func (r *Registry) CommitStream(id domain.SocketID, streamID domain.StreamID) (Commit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return Commit{}, false
	}
	r.bindStream(streamID, id)
	changed := r.addBroadcaster(id)
	return Commit{Changed: changed, Roster: r.roster()}, true
}

// BecomeBroadcaster adds the socket to the broadcaster set and returns the
// roster taken in the same critical section.
func (r *Registry) BecomeBroadcaster(id domain.SocketID) (Commit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return Commit{}, false
	}
	changed := r.addBroadcaster(id)
	return Commit{Changed: changed, Roster: r.roster()}, true
}

// Teardown lists everything a detached socket left behind.
type Teardown struct {
	SocketID       domain.SocketID
	WasBroadcaster bool
	// Viewers were watching the socket when it left. Their bindings are gone.
	Viewers []domain.SocketID
	// Watched is the broadcaster the socket was watching, if any.
	Watched     domain.SocketID
	UserID      domain.UserID
	HasUser     bool
	Streams     []domain.StreamID
	ConnectedAt time.Time
	Roster      domain.Roster
}

// Detach removes the socket from every structure, keys and values alike.
// Only the first call for a socket returns true.
func (r *Registry) Detach(id domain.SocketID) (Teardown, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectedAt, ok := r.sessions[id]
	if !ok {
		return Teardown{}, false
	}

	t := Teardown{SocketID: id, ConnectedAt: connectedAt}
	t.WasBroadcaster = r.removeBroadcaster(id)
	t.Viewers = r.releaseViewersOf(id)
	t.Watched, _ = r.unbindViewer(id)
	t.UserID, t.HasUser = r.users[id]
	t.Streams = r.unbindStreamsFor(id)
	delete(r.users, id)
	delete(r.sessions, id)
	t.Roster = r.roster()

	return t, true
}

// Stop is the outcome of a broadcaster ending its stream while connected.
type Stop struct {
	WasBroadcaster bool
	Viewers        []domain.SocketID
	Streams        []domain.StreamID
	UserID         domain.UserID
	HasUser        bool
	Roster         domain.Roster
}

func (r *Registry) StopBroadcast(id domain.SocketID) (Stop, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return Stop{}, false
	}

	s := Stop{}
	s.WasBroadcaster = r.removeBroadcaster(id)
	s.Viewers = r.releaseViewersOf(id)
	s.Streams = r.unbindStreamsFor(id)
	s.UserID, s.HasUser = r.users[id]
	s.Roster = r.roster()
	return s, true
}

func (r *Registry) addBroadcaster(id domain.SocketID) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	if _, ok := r.broadcasters[id]; ok {
		return false
	}
	r.broadcasters[id] = struct{}{}
	r.version++
	return true
}

func (r *Registry) removeBroadcaster(id domain.SocketID) bool {
	if _, ok := r.broadcasters[id]; !ok {
		return false
	}
	delete(r.broadcasters, id)
	r.version++
	return true
}

func (r *Registry) bindViewer(viewer, broadcaster domain.SocketID) bool {
	if _, ok := r.sessions[viewer]; !ok {
		return false
	}
	if _, ok := r.sessions[broadcaster]; !ok {
		return false
	}
	if _, ok := r.viewers[viewer]; ok {
		return false
	}
	r.viewers[viewer] = broadcaster
	return true
}

func (r *Registry) unbindViewer(viewer domain.SocketID) (domain.SocketID, bool) {
	broadcaster, ok := r.viewers[viewer]
	if !ok {
		return "", false
	}
	delete(r.viewers, viewer)
	return broadcaster, true
}

func (r *Registry) releaseViewersOf(broadcaster domain.SocketID) []domain.SocketID {
	viewers := r.viewersWatching(broadcaster)
	for _, viewer := range viewers {
		delete(r.viewers, viewer)
	}
	return viewers
}

func (r *Registry) viewersWatching(broadcaster domain.SocketID) []domain.SocketID {
	var viewers []domain.SocketID
	for viewer, b := range r.viewers {
		if b == broadcaster {
			viewers = append(viewers, viewer)
		}
	}
	sortSocketIDs(viewers)
	return viewers
}

func (r *Registry) bindStream(streamID domain.StreamID, id domain.SocketID) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	if previous, ok := r.streamOwner[id]; ok && previous != streamID {
		delete(r.streams, previous)
	}
	if holder, ok := r.streams[streamID]; ok && holder != id {
		delete(r.streamOwner, holder)
	}
	r.streams[streamID] = id
	r.streamOwner[id] = streamID
	return true
}

func (r *Registry) unbindStreamsFor(id domain.SocketID) []domain.StreamID {
	var removed []domain.StreamID
	for streamID, holder := range r.streams {
		if holder == id {
			delete(r.streams, streamID)
			removed = append(removed, streamID)
		}
	}
	delete(r.streamOwner, id)
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}

func (r *Registry) roster() domain.Roster {
	ids := make([]domain.SocketID, 0, len(r.broadcasters))
	for id := range r.broadcasters {
		ids = append(ids, id)
	}
	sortSocketIDs(ids)
	return domain.Roster{Version: r.version, IDs: ids}
}

func (r *Registry) stats() domain.RegistryStats {
	return domain.RegistryStats{
		Sockets:      len(r.sessions),
		Broadcasters: len(r.broadcasters),
		Viewers:      len(r.viewers),
		Streams:      len(r.streams),
		Users:        len(r.users),
	}
}

func sortSocketIDs(ids []domain.SocketID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
