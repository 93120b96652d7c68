package domain

import "time"

// SocketID identifies one connected socket. It is never reused while any
// registry entry references it.
type SocketID string

type Role string

const (
	RoleNone        Role = "none"
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// PeerSession is a read-only view of one socket's registry state. Roles are
// derived from membership, so a socket may transiently be both.
type PeerSession struct {
	SocketID    SocketID
	UserID      UserID
	HasUser     bool
	Broadcaster bool
	Watching    SocketID
	Streams     []StreamID
	ConnectedAt time.Time
}

func (p PeerSession) Roles() []Role {
	var roles []Role
	if p.Broadcaster {
		roles = append(roles, RoleBroadcaster)
	}
	if p.Watching != "" {
		roles = append(roles, RoleViewer)
	}
	if len(roles) == 0 {
		roles = append(roles, RoleNone)
	}
	return roles
}

// Roster is a broadcaster snapshot stamped with the registry version it was
// taken at.
type Roster struct {
	Version uint64
	IDs     []SocketID
}

type RegistryStats struct {
	Sockets      int
	Broadcasters int
	Viewers      int
	Streams      int
	Users        int
}
