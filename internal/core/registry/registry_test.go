package registry

import (
	"fmt"
	"sync"
	"testing"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attached(t *testing.T, ids ...domain.SocketID) *Registry {
	t.Helper()
	r := New()
	for _, id := range ids {
		require.True(t, r.Attach(id))
	}
	return r
}

func TestRegistry_Broadcasters(t *testing.T) {
	r := attached(t, "b", "a")

	assert.True(t, r.AddBroadcaster("b"))
	assert.False(t, r.AddBroadcaster("b"), "second add must not report a change")
	assert.True(t, r.AddBroadcaster("a"))
	assert.False(t, r.AddBroadcaster("ghost"), "unknown sockets cannot broadcast")

	roster := r.CurrentBroadcasters()
	assert.Equal(t, []domain.SocketID{"a", "b"}, roster.IDs)

	assert.True(t, r.RemoveBroadcaster("b"))
	assert.False(t, r.RemoveBroadcaster("b"))
	assert.Greater(t, r.CurrentBroadcasters().Version, roster.Version)
}

func TestRegistry_BindViewerFirstWins(t *testing.T) {
	r := attached(t, "b1", "b2", "v")

	assert.True(t, r.BindViewer("v", "b1"))
	assert.False(t, r.BindViewer("v", "b2"))
	assert.Equal(t, []domain.SocketID{"v"}, r.ViewersWatching("b1"))
	assert.Empty(t, r.ViewersWatching("b2"))

	prev, ok := r.UnbindViewer("v")
	assert.True(t, ok)
	assert.Equal(t, domain.SocketID("b1"), prev)

	_, ok = r.UnbindViewer("v")
	assert.False(t, ok)
}

func TestRegistry_StreamBinding(t *testing.T) {
	r := attached(t, "s1", "s2")

	require.True(t, r.BindStream(7, "s1"))
	id, ok := r.LookupBroadcasterForStream(7)
	require.True(t, ok)
	assert.Equal(t, domain.SocketID("s1"), id)

	t.Run("upsert moves the stream", func(t *testing.T) {
		require.True(t, r.BindStream(7, "s2"))
		id, _ := r.LookupBroadcasterForStream(7)
		assert.Equal(t, domain.SocketID("s2"), id)
		assert.Empty(t, r.UnbindStreamsFor("s1"))
	})

	t.Run("one stream per socket", func(t *testing.T) {
		require.True(t, r.BindStream(8, "s2"))
		_, ok := r.LookupBroadcasterForStream(7)
		assert.False(t, ok)
		assert.Equal(t, []domain.StreamID{8}, r.UnbindStreamsFor("s2"))
		_, ok = r.LookupBroadcasterForStream(8)
		assert.False(t, ok)
	})

	t.Run("unknown socket", func(t *testing.T) {
		assert.False(t, r.BindStream(9, "ghost"))
	})
}

func TestRegistry_Users(t *testing.T) {
	r := attached(t, "s")

	assert.False(t, r.SetUser("ghost", 1))
	assert.True(t, r.SetUser("s", 42))

	userID, ok := r.GetUser("s")
	assert.True(t, ok)
	assert.Equal(t, domain.UserID(42), userID)

	r.ClearUser("s")
	_, ok = r.GetUser("s")
	assert.False(t, ok)
}

func TestRegistry_Watch(t *testing.T) {
	r := attached(t, "s1", "v1", "v2")
	r.BindStream(7, "s1")

	res := r.Watch("v1", 7)
	assert.Equal(t, WatchResult{Broadcaster: "s1", Resolved: true, Bound: true}, res)

	res = r.Watch("v1", 7)
	assert.True(t, res.Resolved)
	assert.False(t, res.Bound, "double bind must be a no-op")

	res = r.Watch("v2", 999)
	assert.False(t, res.Resolved)
	assert.False(t, res.Bound)
	_, watching := r.UnbindViewer("v2")
	assert.False(t, watching)
}

func TestRegistry_CommitStream(t *testing.T) {
	r := attached(t, "s1")

	commit, ok := r.CommitStream("s1", 7)
	require.True(t, ok)
	assert.True(t, commit.Changed)
	assert.Equal(t, []domain.SocketID{"s1"}, commit.Roster.IDs)

	_, ok = r.CommitStream("gone", 8)
	assert.False(t, ok)
	_, bound := r.LookupBroadcasterForStream(8)
	assert.False(t, bound)
}

func TestRegistry_DetachRemovesEverything(t *testing.T) {
	r := attached(t, "s1", "v1", "v2", "b2")
	r.SetUser("s1", 5)
	r.CommitStream("s1", 7)
	r.CommitStream("b2", 9)
	r.Watch("v1", 7)
	r.Watch("v2", 7)
	r.Watch("s1", 9)

	td, ok := r.Detach("s1")
	require.True(t, ok)
	assert.True(t, td.WasBroadcaster)
	assert.Equal(t, []domain.SocketID{"v1", "v2"}, td.Viewers)
	assert.Equal(t, domain.SocketID("b2"), td.Watched)
	assert.True(t, td.HasUser)
	assert.Equal(t, domain.UserID(5), td.UserID)
	assert.Equal(t, []domain.StreamID{7}, td.Streams)
	assert.Equal(t, []domain.SocketID{"b2"}, td.Roster.IDs)

	assert.False(t, r.Attached("s1"))
	_, ok = r.GetUser("s1")
	assert.False(t, ok)
	_, ok = r.LookupBroadcasterForStream(7)
	assert.False(t, ok)
	assert.Empty(t, r.ViewersWatching("s1"))
	assert.Empty(t, r.ViewersWatching("b2"))
	assert.NotContains(t, r.CurrentBroadcasters().IDs, domain.SocketID("s1"))

	// viewers released from s1 may watch again
	assert.True(t, r.Watch("v1", 9).Bound)

	_, again := r.Detach("s1")
	assert.False(t, again, "second detach must be a no-op")
	assert.Equal(t, domain.RegistryStats{Sockets: 3, Broadcasters: 1, Viewers: 1, Streams: 1}, r.Stats())
}

func TestRegistry_StopBroadcast(t *testing.T) {
	r := attached(t, "s1", "v1")
	r.SetUser("s1", 3)
	r.CommitStream("s1", 7)
	r.Watch("v1", 7)

	stop, ok := r.StopBroadcast("s1")
	require.True(t, ok)
	assert.True(t, stop.WasBroadcaster)
	assert.Equal(t, []domain.SocketID{"v1"}, stop.Viewers)
	assert.Equal(t, []domain.StreamID{7}, stop.Streams)
	assert.Empty(t, stop.Roster.IDs)
	assert.True(t, r.Attached("s1"))

	session, ok := r.Session("s1")
	require.True(t, ok)
	assert.Equal(t, []domain.Role{domain.RoleNone}, session.Roles())
	assert.True(t, session.HasUser)
}

func TestRegistry_ConcurrentDetachIsExclusive(t *testing.T) {
	r := New()
	const sockets = 50
	for i := 0; i < sockets; i++ {
		id := domain.SocketID(fmt.Sprintf("s%02d", i))
		r.Attach(id)
		r.CommitStream(id, domain.StreamID(i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := make(map[domain.SocketID]int)
	for i := 0; i < sockets; i++ {
		id := domain.SocketID(fmt.Sprintf("s%02d", i))
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := r.Detach(id); ok {
					mu.Lock()
					wins[id]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	assert.Len(t, wins, sockets)
	for id, n := range wins {
		assert.Equal(t, 1, n, "socket %s detached more than once", id)
	}
	assert.Equal(t, domain.RegistryStats{}, r.Stats())
}
